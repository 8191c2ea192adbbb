package middleware

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwarssoc/submission-runner/internal/conn"
)

type fakeCaller struct {
	prints   string
	response json.RawMessage
}

func (f *fakeCaller) Call(string, []any, map[string]any) (json.RawMessage, error) {
	return f.response, nil
}
func (f *fakeCaller) Ping() (time.Duration, error) { return 5 * time.Millisecond, nil }
func (f *fakeCaller) Close() ([]json.RawMessage, error) {
	return []json.RawMessage{f.response}, nil
}
func (f *fakeCaller) GetPrints() string { return f.prints }

func TestMiddlewareRoutesByIndex(t *testing.T) {
	a := &fakeCaller{prints: "a-print", response: json.RawMessage(`"a"`)}
	b := &fakeCaller{prints: "b-print", response: json.RawMessage(`"b"`)}
	mw := New([]conn.Caller{a, b})

	assert.Equal(t, 2, mw.PlayerCount())

	data, err := mw.Call(1, "make_move", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `"b"`, string(data))

	assert.Equal(t, "a-print", mw.GetPlayerPrints(0))

	completions := mw.CompleteAll()
	require.Len(t, completions, 2)
	assert.Equal(t, `"a"`, string(completions[0][0]))
}

func TestMiddlewareOutOfRangeIndex(t *testing.T) {
	mw := New(nil)
	_, err := mw.Call(0, "x", nil, nil)
	assert.Error(t, err)
}
