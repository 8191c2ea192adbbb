// Package model holds the data shapes shared across the Turn Engine,
// Rating Engine, and persistence layer: Outcome, ResultCode,
// SingleResult, and ParsedResult from the data model.
package model

import "strings"

// Outcome is a single player's result from one match.
type Outcome int

const (
	Loss Outcome = iota
	Draw
	Win
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "Win"
	case Loss:
		return "Loss"
	default:
		return "Draw"
	}
}

// ResultCode classifies how a match terminated.
type ResultCode string

const (
	ValidGame        ResultCode = "ValidGame"
	Timeout          ResultCode = "Timeout"
	IllegalMove      ResultCode = "IllegalMove"
	BrokenEntryPoint ResultCode = "BrokenEntryPoint"
	Exception        ResultCode = "Exception"
	ProcessKilled    ResultCode = "ProcessKilled"
	GameUnfinished   ResultCode = "GameUnfinished"
	UnknownResultType ResultCode = "UnknownResultType"
)

// maxPrintedChars caps SingleResult.Printed, per the data model.
const maxPrintedChars = 1000

// SingleResult is one player's outcome from a single match.
type SingleResult struct {
	Outcome    Outcome    `json:"outcome"`
	Healthy    bool       `json:"healthy"`
	PlayerName string     `json:"player_name"`
	ResultCode ResultCode `json:"result_code"`
	Printed    string     `json:"printed"`
}

// NewSingleResult truncates printed to the 1000-character cap.
func NewSingleResult(outcome Outcome, playerName string, code ResultCode, printed string) SingleResult {
	if len(printed) > maxPrintedChars {
		printed = truncateRunes(printed, maxPrintedChars)
	}
	return SingleResult{
		Outcome:    outcome,
		Healthy:    code == ValidGame,
		PlayerName: playerName,
		ResultCode: code,
		Printed:    printed,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ParsedResult is the full outcome of one match.
type ParsedResult struct {
	InitialBoard      string         `json:"initial_board"`
	Moves             []string       `json:"moves"`
	SubmissionResults []SingleResult `json:"submission_results"`
}

// Outcomes returns the per-player outcome vector.
func (p ParsedResult) Outcomes() []Outcome {
	out := make([]Outcome, len(p.SubmissionResults))
	for i, r := range p.SubmissionResults {
		out[i] = r.Outcome
	}
	return out
}

// Healths returns the per-player health vector.
func (p ParsedResult) Healths() []bool {
	out := make([]bool, len(p.SubmissionResults))
	for i, r := range p.SubmissionResults {
		out[i] = r.Healthy
	}
	return out
}

// AnyHealthy reports whether at least one player was healthy.
func (p ParsedResult) AnyHealthy() bool {
	for _, h := range p.Healths() {
		if h {
			return true
		}
	}
	return false
}

// MovesRecording renders the move list the way a match's persisted
// recording stores it: newline-joined, mirroring the reference
// protocol's plain textual move log.
func (p ParsedResult) MovesRecording() string {
	return strings.Join(p.Moves, "\n")
}
