// Package provision holds the per-player Sandbox lifecycle shared by
// the Matchmaker (§4.6) and the HTTP/WebSocket boundary (§6.1): create
// a container, install the harness and submission archive, run the
// entry command, and open the framed Connection over the resulting
// stream. Both callers hand the result to the same Turn Engine via a
// Middleware, exactly as §2's data-flow diagram has the HTTP/WS entry
// points "invoke the Turn Engine via the same path, optionally
// substituting an in-process Connection for a human player."
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aiwarssoc/submission-runner/internal/conn"
	"github.com/aiwarssoc/submission-runner/internal/gamemode"
	"github.com/aiwarssoc/submission-runner/internal/sandbox"
	"github.com/aiwarssoc/submission-runner/internal/wire"
)

// HarnessBuilder produces a fresh tar reader of the in-container
// harness source tree each time a sandbox needs one; io.Reader values
// are single-use, so this is a factory rather than a stored reader.
type HarnessBuilder func() (io.Reader, error)

// Config is everything needed to stand up one player's Sandbox.
type Config struct {
	Engine        sandbox.ContainerEngine
	SandboxConfig sandbox.Config
	EntryCommand  []string
	Harness       HarnessBuilder
	Submissions   sandbox.SubmissionSource
}

// Player pairs one provisioned submission's live Sandbox with the
// Caller the Middleware addresses it through. Teardown must be called
// on every exit path, successful or not.
type Player struct {
	Sandbox *sandbox.Sandbox
	Caller  conn.Caller
}

// Provisioner stands up Players against one ContainerEngine/Submission
// source pair.
type Provisioner struct {
	cfg Config
}

// New builds a Provisioner from cfg.
func New(cfg Config) *Provisioner {
	return &Provisioner{cfg: cfg}
}

// Bot provisions one submission hash into a fully handshaken,
// chess-clock-wrapped Player. A handshake failure is not returned as
// an error: it yields a Player whose Caller fails every operation
// (mirroring what a dead connection looks like to the Turn Engine) but
// still reports the pre-handshake prints, per §7's HandshakeFailed
// recovery path.
func (p *Provisioner) Bot(ctx context.Context, hash string, turnTime float64) (Player, error) {
	sb, err := sandbox.New(ctx, p.cfg.Engine, p.cfg.SandboxConfig)
	if err != nil {
		return Player{}, err
	}

	harnessTar, err := p.cfg.Harness()
	if err != nil {
		return Player{Sandbox: sb}, err
	}
	if err := sb.InstallHarness(ctx, harnessTar); err != nil {
		return Player{Sandbox: sb}, err
	}

	files, err := p.cfg.Submissions.Files(ctx, hash)
	if err != nil {
		return Player{Sandbox: sb}, err
	}
	submissionTar, err := sandbox.BuildSubmissionArchive(files)
	if err != nil {
		return Player{Sandbox: sb}, err
	}
	if err := sb.InstallSubmission(ctx, hash, submissionTar); err != nil {
		return Player{Sandbox: sb}, err
	}

	stream, err := sb.Run(ctx, p.cfg.EntryCommand)
	if err != nil {
		return Player{Sandbox: sb}, err
	}

	connection, err := conn.Open(stream, stream, stream, hash)
	if err != nil {
		var handshakeErr *wire.HandshakeFailedError
		if errors.As(err, &handshakeErr) {
			return Player{Sandbox: sb, Caller: DeadCaller{Prints: handshakeErr.Prints}}, nil
		}
		return Player{Sandbox: sb}, err
	}

	budget := time.Duration(turnTime * float64(time.Second))
	return Player{Sandbox: sb, Caller: conn.NewTimedConnection(connection, budget)}, nil
}

// Teardown stops every provisioned player's Sandbox, best-effort,
// regardless of how far provisioning got.
func Teardown(ctx context.Context, players []Player) {
	for _, p := range players {
		if p.Sandbox != nil {
			_ = p.Sandbox.Stop(ctx)
		}
	}
}

// TurnTimeSeconds resolves the effective turn_time from a Gamemode's
// defaults overridden by a per-match options map, the same merge order
// the Turn Engine itself applies.
func TurnTimeSeconds(gm gamemode.Gamemode, options map[string]any) float64 {
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

// DeadCaller stands in for a player whose handshake never completed:
// every operation fails as if the connection had already closed, but
// GetPrints still surfaces whatever the submission printed before it
// died.
type DeadCaller struct {
	Prints []string
}

func (d DeadCaller) Call(string, []any, map[string]any) (json.RawMessage, error) {
	return nil, conn.ErrConnectionNotActive
}

func (d DeadCaller) Ping() (time.Duration, error) {
	return 0, conn.ErrConnectionNotActive
}

func (d DeadCaller) Close() ([]json.RawMessage, error) { return nil, nil }

func (d DeadCaller) GetPrints() string {
	return strings.Join(d.Prints, "\n")
}

var _ conn.Caller = DeadCaller{}
