// Package conn implements the Connection state machine: a framed,
// line-oriented duplex channel carrying Messages between host and
// Sandbox, plus the TimedConnection wrapper that debits a shared
// wall-clock budget from every operation.
package conn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aiwarssoc/submission-runner/internal/wire"
)

// ErrConnectionNotActive is returned by any operation once the
// Connection has transitioned to done, whether because the peer closed
// the stream, sent END, or self-reported a failsafe trip.
var ErrConnectionNotActive = errors.New("connection is not active")

// ErrConnectionTimedOut is returned when an operation exhausts its
// allotted wall-clock budget while awaiting a response.
var ErrConnectionTimedOut = errors.New("connection timed out")

// Caller is the operation surface a Middleware slot needs: the
// subset of Connection/TimedConnection behaviour the Turn Engine drives.
type Caller interface {
	Call(methodName string, args []any, kwargs map[string]any) (json.RawMessage, error)
	Ping() (time.Duration, error)
	Close() ([]json.RawMessage, error)
	GetPrints() string
}

// Connection is a single framed duplex channel to one sandboxed
// submission. It is not safe for concurrent operations from multiple
// callers — at most one Call/Ping/Close may be in flight at a time.
type Connection struct {
	mu     sync.Mutex
	r      *wire.Reader
	w      *wire.Writer
	closer io.Closer
	prints []string
	done   bool
	name   string
}

// Open performs the handshake over rw (writing our own NEW_KEY and
// discarding the peer's stream until its NEW_KEY arrives) and returns
// an open Connection. If the peer's stream ends before its NEW_KEY is
// observed, it returns a *wire.HandshakeFailedError carrying whatever
// prints were accumulated first.
func Open(r io.Reader, w io.Writer, closer io.Closer, name string) (*Connection, error) {
	writer := wire.NewWriter(w)
	if err := writer.WriteNewKey(); err != nil {
		return nil, fmt.Errorf("sending handshake key: %w", err)
	}

	reader := wire.NewReader(r)
	prints, err := wire.AwaitHandshake(reader)
	if err != nil {
		return nil, err
	}

	return &Connection{
		r:      reader,
		w:      writer,
		closer: closer,
		prints: prints,
		name:   name,
	}, nil
}

// Call sends a `call` instruction and returns the single Result payload
// the peer sends in response.
func (c *Connection) Call(methodName string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil, ErrConnectionNotActive
	}

	payload := wire.CallPayload{Type: "call", MethodName: methodName, MethodArgs: args, MethodKwargs: kwargs}
	if err := c.w.WriteResult(payload); err != nil {
		return nil, fmt.Errorf("sending call: %w", err)
	}

	return c.nextResult()
}

// Ping sends a `ping` instruction and returns the observed round trip.
func (c *Connection) Ping() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return 0, ErrConnectionNotActive
	}

	start := time.Now()
	if err := c.w.WriteResult(wire.PingPayload{Type: "ping"}); err != nil {
		return 0, fmt.Errorf("sending ping: %w", err)
	}
	if _, err := c.nextResult(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Close sends an END envelope, then drains remaining Results until
// EOF. Idempotent after the first call.
func (c *Connection) Close() ([]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return nil, nil
	}

	// Best-effort: the peer may already be gone.
	_ = c.w.WriteEnd()

	var drained []json.RawMessage
	for {
		data, err := c.nextResultLocked()
		if err != nil {
			break
		}
		drained = append(drained, data)
	}
	if closer := c.closer; closer != nil {
		_ = closer.Close()
	}
	return drained, nil
}

// GetPrints returns the accumulated print buffer joined by newline.
func (c *Connection) GetPrints() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := ""
	for i, p := range c.prints {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

// nextResult reads envelopes until it finds a RESULT, diverting PRINTs
// into the buffer and terminating on END or EOF. Caller must hold mu
// and must not be marked done.
func (c *Connection) nextResult() (json.RawMessage, error) {
	return c.nextResultLocked()
}

func (c *Connection) nextResultLocked() (json.RawMessage, error) {
	for {
		env, err := c.r.Next()
		if err != nil {
			c.done = true
			return nil, ErrConnectionNotActive
		}

		switch env.Type {
		case wire.TypePrint:
			var text string
			if jsonErr := unmarshalPrint(env.Data, &text); jsonErr == nil {
				c.prints = append(c.prints, text)
			}
		case wire.TypeEnd:
			c.done = true
			return nil, ErrConnectionNotActive
		case wire.TypeResult:
			if failsafe, ok := decodedFailsafe(env.Data); ok {
				c.done = true
				return nil, fmt.Errorf("%w: %s", ErrConnectionNotActive, failsafe.Str)
			}
			return env.Data, nil
		default:
			// NEW_KEY after the handshake is unexpected; treat as noise.
		}
	}
}

func decodedFailsafe(data json.RawMessage) (wire.FailsafeError, bool) {
	v, err := wire.DecodeValue(data)
	if err != nil {
		return wire.FailsafeError{}, false
	}
	fe, ok := v.(wire.FailsafeError)
	return fe, ok
}

func unmarshalPrint(data json.RawMessage, out *string) error {
	return json.Unmarshal(data, out)
}

// String renders an identifying label for logs.
func (c *Connection) String() string {
	return fmt.Sprintf("Connection<%s>", c.name)
}
