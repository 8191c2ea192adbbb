package wire

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomValueRoundTrip(t *testing.T) {
	cases := []any{
		MissingFunctionError{Str: "no make_move"},
		FailsafeError{Str: "sandbox tripwire"},
		ExceptionTrace{Msg: "Traceback ..."},
		ChessBoard{FEN: "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", Chess960: false},
		ChessMove{UCI: "e2e4"},
	}

	for _, v := range cases {
		encoded, err := EncodeValue(v)
		require.NoError(t, err)

		decoded, err := DecodeValue(encoded)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestReaderClassifiesNonJSONAsPrint(t *testing.T) {
	r := NewReader(strings.NewReader("hello there\n"))
	env, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypePrint, env.Type)

	var s string
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "hello there", s)
}

func TestWriterReaderEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteResult(map[string]any{"hi": 1.0}))

	r := NewReader(&buf)
	env, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeResult, env.Type)
}

func TestAwaitHandshakeCollectsPreKeyPrints(t *testing.T) {
	stream := "line one\nline two\n" + `{"type":"NEW_KEY","data":123}` + "\n" + `{"type":"RESULT","data":{}}` + "\n"
	r := NewReader(strings.NewReader(stream))

	prints, err := AwaitHandshake(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "line two"}, prints)

	env, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeResult, env.Type)
}

func TestAwaitHandshakeFailsOnEOF(t *testing.T) {
	stream := "dying print 1\ndying print 2\n"
	r := NewReader(strings.NewReader(stream))

	_, err := AwaitHandshake(r)
	require.Error(t, err)

	var hfe *HandshakeFailedError
	require.ErrorAs(t, err, &hfe)
	assert.Equal(t, []string{"dying print 1", "dying print 2"}, hfe.Prints)
}
