package wire

import (
	"errors"
	"io"
	"strings"
)

// HandshakeFailedError is raised when the peer's stream ends before a
// NEW_KEY envelope is observed. Prints accumulates every line seen
// before the stream ended, in order, so the caller can still surface
// whatever diagnostics the dying submission managed to emit.
type HandshakeFailedError struct {
	Prints []string
}

func (e *HandshakeFailedError) Error() string {
	return "handshake failed before NEW_KEY was observed"
}

// AwaitHandshake discards inbound lines from r until a NEW_KEY envelope
// is observed. Every line seen before that point is reclassified as a
// print and returned in order, regardless of whether it happened to
// parse as a well-formed envelope of some other type — the peer hasn't
// taken control of the protocol yet, so nothing it wrote before the key
// can be trusted as a structured message.
func AwaitHandshake(r *Reader) ([]string, error) {
	var prints []string
	for {
		line, err := r.NextRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return prints, &HandshakeFailedError{Prints: prints}
			}
			return prints, err
		}

		if isNewKeyLine(line) {
			return prints, nil
		}
		prints = append(prints, line)
	}
}

func isNewKeyLine(line string) bool {
	env := parseLine(strings.TrimSpace(line))
	return env.Type == TypeNewKey
}
