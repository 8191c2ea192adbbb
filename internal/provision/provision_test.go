package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwarssoc/submission-runner/internal/gamemode"
	"github.com/aiwarssoc/submission-runner/internal/sandbox"
	"github.com/aiwarssoc/submission-runner/internal/wire"
)

// scriptedStream lets reads and writes address independent buffers, so
// a test can pre-load exactly what the "peer" sends without it being
// confused with what the host wrote to it.
type scriptedStream struct {
	in     *bytes.Buffer
	out    bytes.Buffer
	closed bool
}

func (s *scriptedStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *scriptedStream) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

func handshakeOnly(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WriteNewKey())
	return &buf
}

type fakeEngine struct {
	stream *scriptedStream
}

func (f *fakeEngine) CreateAndStart(ctx context.Context, spec sandbox.ContainerSpec) (string, error) {
	return "container-1", nil
}
func (f *fakeEngine) PutArchive(ctx context.Context, containerID, path string, tarArchive io.Reader) error {
	_, err := io.Copy(io.Discard, tarArchive)
	return err
}
func (f *fakeEngine) ExecAttach(ctx context.Context, containerID string, cmd []string, opts sandbox.ExecOptions) (io.ReadWriteCloser, error) {
	// The lockdown chmod exec gets its own empty stream so it does not
	// drain what the scripted peer sends to the entry command.
	if len(cmd) > 0 && cmd[0] == "chmod" {
		return &scriptedStream{in: &bytes.Buffer{}}, nil
	}
	return f.stream, nil
}
func (f *fakeEngine) Wait(ctx context.Context, containerID string, timeout time.Duration) error {
	return nil
}
func (f *fakeEngine) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	return nil
}
func (f *fakeEngine) Remove(ctx context.Context, containerID string) error { return nil }

type fakeSubmissions struct{}

func (fakeSubmissions) Files(ctx context.Context, hash string) (map[string][]byte, error) {
	return map[string][]byte{"main.py": []byte("pass")}, nil
}

func testProvisioner(stream *scriptedStream) *Provisioner {
	return New(Config{
		Engine:        &fakeEngine{stream: stream},
		SandboxConfig: sandbox.Config{Image: "aiwarssoc/sandbox", MemoryBytes: 1 << 20, CPUCount: 1, RunTimeout: time.Second},
		EntryCommand:  []string{"python3", "entry.py"},
		Harness:       func() (io.Reader, error) { return bytes.NewReader(nil), nil },
		Submissions:   fakeSubmissions{},
	})
}

func TestBotProvisionsAndHandshakes(t *testing.T) {
	stream := &scriptedStream{in: handshakeOnly(t)}
	p := testProvisioner(stream)

	player, err := p.Bot(context.Background(), "deadbeef", 5)
	require.NoError(t, err)
	require.NotNil(t, player.Sandbox)
	require.NotNil(t, player.Caller)

	assert.Empty(t, player.Caller.GetPrints())
}

func TestBotHandshakeFailureYieldsDeadCaller(t *testing.T) {
	stream := &scriptedStream{in: bytes.NewBuffer([]byte("the submission printed this before dying\n"))}
	p := testProvisioner(stream)

	player, err := p.Bot(context.Background(), "deadbeef", 5)
	require.NoError(t, err)
	require.NotNil(t, player.Sandbox)
	require.NotNil(t, player.Caller)

	_, callErr := player.Caller.Call("make_move", nil, nil)
	assert.Error(t, callErr)
	assert.Contains(t, player.Caller.GetPrints(), "the submission printed this before dying")
}

func TestTurnTimeSecondsMergesOptionsOverGamemodeDefaults(t *testing.T) {
	gm := fakeGamemode{}
	assert.Equal(t, 5.0, TurnTimeSeconds(gm, nil))
	assert.Equal(t, 9.0, TurnTimeSeconds(gm, map[string]any{"turn_time": 9.0}))
}

type fakeGamemode struct{}

func (fakeGamemode) Name() string            { return "fake" }
func (fakeGamemode) Players() []string       { return []string{"p0", "p1"} }
func (fakeGamemode) PlayerCount() int        { return 2 }
func (fakeGamemode) Options() map[string]any { return map[string]any{"turn_time": 5.0} }

func (fakeGamemode) Setup(map[string]any) (gamemode.Board, error)        { return nil, nil }
func (fakeGamemode) FilterBoard(gamemode.Board, int) any                 { return nil }
func (fakeGamemode) ParseMove(raw json.RawMessage) (gamemode.Move, error) { return nil, nil }
func (fakeGamemode) IsMoveLegal(gamemode.Board, gamemode.Move) bool      { return true }
func (fakeGamemode) ApplyMove(gamemode.Board, gamemode.Move) (gamemode.Board, error) {
	return nil, nil
}
func (fakeGamemode) IsWin(gamemode.Board, int) bool         { return false }
func (fakeGamemode) IsLoss(gamemode.Board, int) bool        { return false }
func (fakeGamemode) IsDraw(gamemode.Board, int) bool        { return false }
func (fakeGamemode) EncodeBoard(gamemode.Board) string      { return "" }
func (fakeGamemode) EncodeMove(gamemode.Move, int) string   { return "" }

var _ gamemode.Gamemode = fakeGamemode{}
