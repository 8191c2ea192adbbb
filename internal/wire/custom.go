package wire

import (
	"encoding/json"
	"fmt"
)

// Custom-type discriminators recognised inside a RESULT's data payload,
// as specified for the domain value tags carried over the wire.
const (
	customMessage             = "message"
	customMissingFunctionErr  = "missing_function_error"
	customFailsafeError       = "failsafe_error"
	customExceptionTrace      = "exception_trace"
	customChessboard          = "chessboard"
	customChessMove           = "chess_move"
)

// MissingFunctionError reports that the submission's entry point does
// not implement the function the harness tried to call.
type MissingFunctionError struct {
	Str string `json:"str"`
}

func (e MissingFunctionError) Error() string { return e.Str }

// FailsafeError reports that the in-container harness tripped its own
// security failsafe and must no longer be trusted.
type FailsafeError struct {
	Str string `json:"str"`
}

func (e FailsafeError) Error() string { return e.Str }

// ExceptionTrace carries a player-code exception's traceback text.
type ExceptionTrace struct {
	Msg string `json:"msg"`
}

func (e ExceptionTrace) Error() string { return e.Msg }

// ChessBoard is the tagged board-state value for chess gamemodes.
type ChessBoard struct {
	FEN      string `json:"fen"`
	Chess960 bool   `json:"chess960"`
}

// ChessMove is the tagged move value for chess gamemodes.
type ChessMove struct {
	UCI string `json:"uci"`
}

type taggedEnvelope struct {
	CustomType string `json:"__custom_type"`
}

// EncodeValue marshals v, tagging it with __custom_type when v is one
// of the recognised domain types. Anything else marshals as plain JSON.
func EncodeValue(v any) (json.RawMessage, error) {
	var tagged any
	switch val := v.(type) {
	case Envelope:
		tagged = struct {
			CustomType string          `json:"__custom_type"`
			Type       MessageType     `json:"type"`
			Data       json.RawMessage `json:"data"`
		}{customMessage, val.Type, val.Data}
	case MissingFunctionError:
		tagged = struct {
			CustomType string `json:"__custom_type"`
			Str        string `json:"str"`
		}{customMissingFunctionErr, val.Str}
	case FailsafeError:
		tagged = struct {
			CustomType string `json:"__custom_type"`
			Str        string `json:"str"`
		}{customFailsafeError, val.Str}
	case ExceptionTrace:
		tagged = struct {
			CustomType string `json:"__custom_type"`
			Msg        string `json:"msg"`
		}{customExceptionTrace, val.Msg}
	case ChessBoard:
		tagged = struct {
			CustomType string `json:"__custom_type"`
			FEN        string `json:"fen"`
			Chess960   bool   `json:"chess960"`
		}{customChessboard, val.FEN, val.Chess960}
	case ChessMove:
		tagged = struct {
			CustomType string `json:"__custom_type"`
			UCI        string `json:"uci"`
		}{customChessMove, val.UCI}
	default:
		tagged = v
	}
	return json.Marshal(tagged)
}

// DecodeValue reconstructs the domain value tagged in raw, or returns
// the raw decoded JSON value (map[string]any, slice, or scalar) when no
// recognised __custom_type discriminator is present.
func DecodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var probe taggedEnvelope
	// Only object-shaped payloads can carry the discriminator; ignore
	// the error from non-object payloads and fall through to generic decode.
	_ = json.Unmarshal(raw, &probe)

	switch probe.CustomType {
	case customMessage:
		var v struct {
			Type MessageType     `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode tagged message: %w", err)
		}
		return Envelope{Type: v.Type, Data: v.Data}, nil
	case customMissingFunctionErr:
		var v MissingFunctionError
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode missing_function_error: %w", err)
		}
		return v, nil
	case customFailsafeError:
		var v FailsafeError
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode failsafe_error: %w", err)
		}
		return v, nil
	case customExceptionTrace:
		var v ExceptionTrace
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode exception_trace: %w", err)
		}
		return v, nil
	case customChessboard:
		var v ChessBoard
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode chessboard: %w", err)
		}
		return v, nil
	case customChessMove:
		var v ChessMove
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode chess_move: %w", err)
		}
		return v, nil
	default:
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("decode raw value: %w", err)
		}
		return generic, nil
	}
}
