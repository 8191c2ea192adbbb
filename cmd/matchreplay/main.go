// Command matchreplay replays a persisted match's recording through a
// Gamemode for debugging — the original system persists `recording`
// specifically so a match can be stepped through after the fact, and
// this CLI is the tool that does it. Built on spf13/cobra, matching
// the retrieval pack's own cobra/pflag CLI usage.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aiwarssoc/submission-runner/internal/gamemode"
	"github.com/aiwarssoc/submission-runner/internal/gamemode/chess"
	"github.com/aiwarssoc/submission-runner/internal/store/sqlstore"
)

var gamemodes = map[string]func() gamemode.Gamemode{
	"chess": func() gamemode.Gamemode { return chess.New() },
}

func main() {
	var dsn, gamemodeID string

	root := &cobra.Command{
		Use:   "matchreplay <match-id>",
		Short: "Replay a persisted match recording move by move",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(dsn, gamemodeID, args[0])
		},
	}
	root.Flags().StringVar(&dsn, "db", "submission_runner.db", "sqlite database DSN")
	root.Flags().StringVar(&gamemodeID, "gamemode", "chess", "gamemode the match was played under")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dsn, gamemodeID, matchID string) error {
	factory, ok := gamemodes[gamemodeID]
	if !ok {
		return fmt.Errorf("unknown gamemode %q", gamemodeID)
	}
	gm := factory()

	st, err := sqlstore.Open(dsn)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	recording, err := st.Recording(context.Background(), matchID)
	if err != nil {
		return err
	}

	lines := strings.Split(recording, "\n")
	if len(lines) == 0 {
		return fmt.Errorf("empty recording for match %s", matchID)
	}
	initialBoard := lines[0]
	moves := lines[1:]

	board, err := gm.Setup(nil)
	if err != nil {
		return fmt.Errorf("setting up %s: %w", gm.Name(), err)
	}

	fmt.Printf("initial board: %s\n", initialBoard)
	fmt.Printf("encoded initial board: %s\n", gm.EncodeBoard(board))

	playerCount := gm.PlayerCount()
	playerTurn := 0
	for i, encoded := range moves {
		if encoded == "" {
			continue
		}
		raw, err := json.Marshal(encoded)
		if err != nil {
			return fmt.Errorf("encoding move %d (%q): %w", i, encoded, err)
		}
		move, err := gm.ParseMove(raw)
		if err != nil {
			return fmt.Errorf("move %d (%q): %w", i, encoded, err)
		}
		if !gm.IsMoveLegal(board, move) {
			return fmt.Errorf("move %d (%q) is illegal against the replayed board", i, encoded)
		}
		board, err = gm.ApplyMove(board, move)
		if err != nil {
			return fmt.Errorf("applying move %d (%q): %w", i, encoded, err)
		}

		fmt.Printf("turn %d (%s): %s -> %s\n", i, gm.Players()[playerTurn], encoded, gm.EncodeBoard(board))
		playerTurn = (playerTurn + 1) % playerCount
	}

	return nil
}
