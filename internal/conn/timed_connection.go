package conn

import (
	"encoding/json"
	"time"
)

// TimedConnection wraps a Caller with a shared wall-clock budget that
// every operation consumes. The budget is not reset per call — once
// exhausted, the wrapper raises ErrConnectionTimedOut permanently for
// every subsequent operation, enforcing a whole-game ceiling per player.
type TimedConnection struct {
	inner         Caller
	timeRemaining time.Duration
	poisoned      bool
}

// NewTimedConnection wraps inner with an initial budget.
func NewTimedConnection(inner Caller, budget time.Duration) *TimedConnection {
	return &TimedConnection{inner: inner, timeRemaining: budget}
}

// TimeRemaining reports the budget left, for diagnostics.
func (t *TimedConnection) TimeRemaining() time.Duration {
	return t.timeRemaining
}

func (t *TimedConnection) Call(methodName string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	var result json.RawMessage
	err := t.timed(func() error {
		var innerErr error
		result, innerErr = t.inner.Call(methodName, args, kwargs)
		return innerErr
	})
	return result, err
}

func (t *TimedConnection) Ping() (time.Duration, error) {
	var rtt time.Duration
	err := t.timed(func() error {
		var innerErr error
		rtt, innerErr = t.inner.Ping()
		return innerErr
	})
	return rtt, err
}

func (t *TimedConnection) Close() ([]json.RawMessage, error) {
	var drained []json.RawMessage
	err := t.timed(func() error {
		var innerErr error
		drained, innerErr = t.inner.Close()
		return innerErr
	})
	return drained, err
}

func (t *TimedConnection) GetPrints() string {
	return t.inner.GetPrints()
}

// timed runs op with an upper bound of the remaining budget. On
// timeout it poisons the wrapper permanently; otherwise it subtracts
// the elapsed wall-clock time from the budget.
func (t *TimedConnection) timed(op func() error) error {
	if t.poisoned {
		return ErrConnectionTimedOut
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- op()
	}()

	select {
	case err := <-done:
		t.timeRemaining -= time.Since(start)
		return err
	case <-time.After(t.timeRemaining):
		t.poisoned = true
		t.timeRemaining = 0
		return ErrConnectionTimedOut
	}
}
