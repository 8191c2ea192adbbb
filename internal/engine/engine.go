// Package engine implements the Turn Engine: the host-side state
// machine that alternates make_move calls between players under a
// chess-clock budget and classifies how the game terminated.
package engine

import (
	"errors"
	"time"

	"github.com/aiwarssoc/submission-runner/internal/conn"
	"github.com/aiwarssoc/submission-runner/internal/gamemode"
	"github.com/aiwarssoc/submission-runner/internal/middleware"
	"github.com/aiwarssoc/submission-runner/internal/model"
	"github.com/aiwarssoc/submission-runner/internal/wire"
)

// maxPerPlayerLatency is the anti-slow-loris clamp applied to each
// player's measured ping latency before it feeds into the overall
// compensation figure.
const maxPerPlayerLatency = 200 * time.Millisecond

// pingSamples is how many pings are averaged per player during
// latency calibration.
const pingSamples = 5

// Run drives gm + mw for up to maxTurns turns and returns the
// resulting ParsedResult. It never returns an error for expected,
// player-attributable failures — those are folded into the returned
// ParsedResult's result code, per the error handling design.
func Run(gm gamemode.Gamemode, mw *middleware.Middleware, options map[string]any, maxTurns int) (*model.ParsedResult, error) {
	playerCount := gm.PlayerCount()
	turnTime := turnTimeSeconds(options, gm)

	board, err := gm.Setup(options)
	if err != nil {
		return nil, err
	}
	initialEncoded := gm.EncodeBoard(board)

	latency, err := calibrateLatency(mw, playerCount)
	if err != nil {
		return finalize(gm, mw, allOutcome(playerCount, model.Draw), model.UnknownResultType, nil, initialEncoded), nil
	}

	timeRemaining := make([]float64, playerCount)
	for i := range timeRemaining {
		timeRemaining[i] = turnTime
	}

	var moves []string
	playerTurn := 0

	for turn := 0; turn < maxTurns; turn++ {
		start := time.Now()
		filtered := gm.FilterBoard(board, playerTurn)

		raw, callErr := mw.Call(playerTurn, "make_move", nil, map[string]any{
			"board":          filtered,
			"time_remaining": timeRemaining[playerTurn],
		})
		if callErr != nil {
			code := model.ProcessKilled
			if errors.Is(callErr, conn.ErrConnectionTimedOut) {
				code = model.Timeout
			}
			return finalize(gm, mw, lossFor(playerCount, playerTurn), code, moves, initialEncoded), nil
		}

		elapsed := time.Since(start).Seconds() - latency
		timeRemaining[playerTurn] -= elapsed
		if timeRemaining[playerTurn] <= 0 {
			return finalize(gm, mw, lossFor(playerCount, playerTurn), model.Timeout, moves, initialEncoded), nil
		}

		if decoded, decodeErr := wire.DecodeValue(raw); decodeErr == nil {
			switch decoded.(type) {
			case wire.MissingFunctionError:
				return finalize(gm, mw, lossFor(playerCount, playerTurn), model.BrokenEntryPoint, moves, initialEncoded), nil
			case wire.ExceptionTrace:
				return finalize(gm, mw, lossFor(playerCount, playerTurn), model.Exception, moves, initialEncoded), nil
			}
		}

		move, parseErr := gm.ParseMove(raw)
		if parseErr != nil || !gm.IsMoveLegal(board, move) {
			return finalize(gm, mw, lossFor(playerCount, playerTurn), model.IllegalMove, moves, initialEncoded), nil
		}

		moves = append(moves, gm.EncodeMove(move, playerTurn))
		board, err = gm.ApplyMove(board, move)
		if err != nil {
			return finalize(gm, mw, lossFor(playerCount, playerTurn), model.IllegalMove, moves, initialEncoded), nil
		}

		switch {
		case gm.IsWin(board, playerTurn):
			return finalize(gm, mw, winFor(playerCount, playerTurn), model.ValidGame, moves, initialEncoded), nil
		case gm.IsLoss(board, playerTurn):
			return finalize(gm, mw, lossFor(playerCount, playerTurn), model.ValidGame, moves, initialEncoded), nil
		case gm.IsDraw(board, playerTurn):
			return finalize(gm, mw, allOutcome(playerCount, model.Draw), model.ValidGame, moves, initialEncoded), nil
		}

		playerTurn = (playerTurn + 1) % playerCount
	}

	return finalize(gm, mw, allOutcome(playerCount, model.Draw), model.GameUnfinished, moves, initialEncoded), nil
}

// calibrateLatency pings every player pingSamples times, clamps each
// player's average to maxPerPlayerLatency, and returns the mean across
// players in seconds.
func calibrateLatency(mw *middleware.Middleware, playerCount int) (float64, error) {
	if playerCount == 0 {
		return 0, nil
	}

	total := 0.0
	for i := 0; i < playerCount; i++ {
		sum := time.Duration(0)
		for s := 0; s < pingSamples; s++ {
			rtt, err := mw.Ping(i)
			if err != nil {
				return 0, err
			}
			sum += rtt
		}
		avg := sum / pingSamples
		if avg > maxPerPlayerLatency {
			avg = maxPerPlayerLatency
		}
		total += avg.Seconds()
	}
	return total / float64(playerCount), nil
}

func turnTimeSeconds(options map[string]any, gm gamemode.Gamemode) float64 {
	merged := map[string]any{}
	for k, v := range gm.Options() {
		merged[k] = v
	}
	for k, v := range options {
		merged[k] = v
	}
	switch v := merged["turn_time"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 10
	}
}

func allOutcome(n int, o model.Outcome) []model.Outcome {
	out := make([]model.Outcome, n)
	for i := range out {
		out[i] = o
	}
	return out
}

// winFor returns the outcome vector for a win by player w: Win for w,
// Loss for everyone else.
func winFor(n, w int) []model.Outcome {
	out := allOutcome(n, model.Loss)
	out[w] = model.Win
	return out
}

// lossFor returns the outcome vector for a loss by player l: Loss for
// l, Win for everyone else.
func lossFor(n, l int) []model.Outcome {
	out := allOutcome(n, model.Win)
	out[l] = model.Loss
	return out
}

// finalize drains the middleware, gathers per-player prints, and
// assembles the ParsedResult.
func finalize(gm gamemode.Gamemode, mw *middleware.Middleware, outcomes []model.Outcome, code model.ResultCode, moves []string, initialEncoded string) *model.ParsedResult {
	mw.CompleteAll()

	players := gm.Players()
	results := make([]model.SingleResult, len(outcomes))
	for i, outcome := range outcomes {
		name := ""
		if i < len(players) {
			name = players[i]
		}
		results[i] = model.NewSingleResult(outcome, name, code, mw.GetPlayerPrints(i))
	}

	return &model.ParsedResult{
		InitialBoard:      initialEncoded,
		Moves:             moves,
		SubmissionResults: results,
	}
}
