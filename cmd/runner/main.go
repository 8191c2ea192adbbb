// Command runner is the long-running submission-runner process: it
// loads configuration, opens the persistence store, starts the
// configured number of Matchmaker workers, and serves the HTTP/
// WebSocket boundary. It generalises the teacher's
// cmd/gameserver/main.go — "load config, build the server, log a
// startup banner, serve HTTP" — to a tournament backend instead of a
// single racing-room server; it serves HTTP in a goroutine and blocks
// until SIGINT or SIGTERM, then shuts the server down.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog"

	"github.com/aiwarssoc/submission-runner/config"
	"github.com/aiwarssoc/submission-runner/internal/api"
	"github.com/aiwarssoc/submission-runner/internal/gamemode"
	"github.com/aiwarssoc/submission-runner/internal/gamemode/chess"
	"github.com/aiwarssoc/submission-runner/internal/matchmaker"
	"github.com/aiwarssoc/submission-runner/internal/provision"
	"github.com/aiwarssoc/submission-runner/internal/sandbox"
	"github.com/aiwarssoc/submission-runner/internal/store/sqlstore"
)

// defaultMaxTurns bounds a single match's turn loop; games that run
// past this are classified GameUnfinished by the Turn Engine.
const defaultMaxTurns = 500

// submissionsRepoDir is the well-known host path §4.2 assumes
// submission archives are materialised under, one directory per hash.
const submissionsRepoDir = "/var/lib/submission-runner/submissions"

// harnessDir is the host path of the in-container harness source tree
// copied into every sandbox during provisioning step 2.
const harnessDir = "/var/lib/submission-runner/harness"

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	rt, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}
	if rt.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	st, err := sqlstore.Open(rt.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("opening store")
	}
	defer st.Close()

	dockerCli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Fatal().Err(err).Msg("building docker client")
	}
	engine := sandbox.NewDockerEngine(dockerCli)

	memBytes, err := rt.SubmissionRunner.MemoryBytes()
	if err != nil {
		logger.Fatal().Err(err).Msg("parsing sandbox memory limit")
	}

	sandboxCfg := sandbox.Config{
		Image:        rt.SubmissionRunner.Image,
		MemoryBytes:  memBytes,
		CPUCount:     rt.SubmissionRunner.CPUCount,
		EntryTimeout: rt.SubmissionRunner.UnrunTimeout(),
		RunTimeout:   rt.SubmissionRunner.RunTimeout(),
	}

	provisioner := provision.New(provision.Config{
		Engine:        engine,
		SandboxConfig: sandboxCfg,
		EntryCommand:  []string{"python3", "-m", "sandbox.harness"},
		Harness:       func() (io.Reader, error) { return sandbox.BuildTarFromFS(os.DirFS(harnessDir), ".", "sandbox") },
		Submissions:   sandbox.FSSubmissionSource{BaseDir: submissionsRepoDir},
	})

	registry := api.Registry{
		"chess": func() gamemode.Gamemode { return chess.New() },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gm := registry[rt.Gamemode.ID]
	if gm == nil {
		logger.Fatal().Str("gamemode", rt.Gamemode.ID).Msg("unknown configured gamemode")
	}

	// The first untested_matchmakers workers run spec §4.6's untested
	// path (self-play against a zero-result submission, rating updates
	// suppressed) so every newly submitted entry gets exercised before
	// it ever enters the rated pool; the rest run the normal
	// health-weighted matchmaking loop.
	for i := 0; i < rt.SubmissionRunner.Matchmakers; i++ {
		untested := i < rt.SubmissionRunner.UntestedMatchmakers
		mm := matchmaker.New(matchmaker.Config{
			Gamemode:            gm(),
			Options:             rt.Gamemode.Options,
			MaxTurns:            defaultMaxTurns,
			Store:               st,
			Provisioner:         provisioner,
			InitialScore:        rt.Rating.InitialScore,
			ScoreTurbulence:     rt.Rating.ScoreTurbulence,
			TargetSecondsPerRun: float64(rt.SubmissionRunner.TargetSecondsPerGame),
			Untested:            untested,
			Logger:              logger.With().Int("matchmaker", i).Bool("untested", untested).Logger(),
		})
		go mm.Run(ctx)
	}

	srv := api.NewServer(registry, provisioner, defaultMaxTurns, logger, false)

	httpServer := &http.Server{
		Addr:    rt.HTTPAddr,
		Handler: srv,
	}

	go func() {
		logger.Info().Str("addr", rt.HTTPAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()
}
