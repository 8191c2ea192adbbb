// Package sandbox provisions one resource-capped, capability-stripped
// container per submission and exposes the raw duplex stream its
// in-container harness process talks the wire protocol over.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"
)

// ErrInvalidSubmission is returned when a submission hash fails the
// hex-only validation required before it is copied into a container.
var ErrInvalidSubmission = errors.New("invalid submission identifier")

var hexOnly = regexp.MustCompile(`^[a-fA-F0-9]+$`)

const (
	harnessPath    = "/home/sandbox/"
	submissionPath = "/home/sandbox/submission"
	tmpfsCapBytes  = 1 << 20 // 1 MiB, per provisioning step 1
)

var tmpfsMounts = []string{"/tmp", "/var/tmp", "/run/lock", "/var/lock"}

// Config is the per-submission resource envelope, sourced from the
// submission_runner.sandbox_* configuration keys.
type Config struct {
	Image        string
	MemoryBytes  int64
	CPUCount     float64
	EntryTimeout time.Duration
	RunTimeout   time.Duration
	Env          map[string]string
}

// Sandbox is a single provisioned container bound to one submission.
type Sandbox struct {
	engine      ContainerEngine
	containerID string
	runTimeout  time.Duration
}

// New runs provisioning step 1: create+start a container with memory
// and an equal swap limit (so no extra swap is granted), a CPU quota
// derived from cfg.CPUCount, all capabilities dropped, networking
// disabled, capped tmpfs mounts, and a PID 1 that sleeps for
// cfg.EntryTimeout, so the container stays alive until it is explicitly
// stopped or that sleep ends, whichever comes first.
func New(ctx context.Context, engine ContainerEngine, cfg Config) (*Sandbox, error) {
	tmpfs := make(map[string]int64, len(tmpfsMounts))
	for _, path := range tmpfsMounts {
		tmpfs[path] = tmpfsCapBytes
	}

	spec := ContainerSpec{
		Image:          cfg.Image,
		Command:        []string{"sh", "-c", fmt.Sprintf("sleep %d", int(cfg.EntryTimeout.Seconds()))},
		MemoryBytes:    cfg.MemoryBytes,
		MemorySwapByte: cfg.MemoryBytes, // equal to memory: no additional swap
		NanoCPUs:       int64(cfg.CPUCount * 1e9),
		DropAllCaps:    true,
		DisableNetwork: true,
		TmpfsCaps:      tmpfs,
		Env:            cfg.Env,
	}

	id, err := engine.CreateAndStart(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox container: %w", err)
	}

	return &Sandbox{engine: engine, containerID: id, runTimeout: cfg.RunTimeout}, nil
}

// InstallHarness copies the harness source tree (step 2) as a tar
// archive rooted at harnessPath.
func (s *Sandbox) InstallHarness(ctx context.Context, harnessTar io.Reader) error {
	return s.engine.PutArchive(ctx, s.containerID, harnessPath, harnessTar)
}

// InstallSubmission validates hash is hex-only, copies submissionTar
// (step 3) to submissionPath, and locks the whole tree down to
// read+execute for everyone (step 4). Callers build submissionTar with
// BuildSubmissionArchive so the importable __init__.py marker is
// always present.
func (s *Sandbox) InstallSubmission(ctx context.Context, hash string, submissionTar io.Reader) error {
	if !hexOnly.MatchString(hash) {
		return fmt.Errorf("%w: %q", ErrInvalidSubmission, hash)
	}
	if err := s.engine.PutArchive(ctx, s.containerID, submissionPath, submissionTar); err != nil {
		return fmt.Errorf("copying submission %s: %w", hash, err)
	}
	return s.lockdown(ctx)
}

func (s *Sandbox) lockdown(ctx context.Context) error {
	stream, err := s.engine.ExecAttach(ctx, s.containerID, []string{"chmod", "-R", "ugo=rx", harnessPath}, ExecOptions{User: "root"})
	if err != nil {
		return fmt.Errorf("locking down sandbox filesystem: %w", err)
	}
	_, _ = io.Copy(io.Discard, stream)
	return stream.Close()
}

// Run execs entryCmd inside the container and returns the duplex
// stream the Connection talks the wire protocol over. A kill timer
// fires after s.runTimeout and force-stops the container unless the
// returned stream has been closed first.
func (s *Sandbox) Run(ctx context.Context, entryCmd []string) (io.ReadWriteCloser, error) {
	stream, err := s.engine.ExecAttach(ctx, s.containerID, entryCmd, ExecOptions{User: "root", WorkDir: submissionPath + "/.."})
	if err != nil {
		return nil, fmt.Errorf("executing sandbox entry command: %w", err)
	}

	timer := time.AfterFunc(s.runTimeout, func() {
		_ = s.Stop(context.Background())
	})
	return &killTimerStream{ReadWriteCloser: stream, timer: timer}, nil
}

// killTimerStream stops the run-timeout kill timer as soon as the
// underlying stream is closed by its normal caller.
type killTimerStream struct {
	io.ReadWriteCloser
	timer *time.Timer
}

func (k *killTimerStream) Close() error {
	k.timer.Stop()
	return k.ReadWriteCloser.Close()
}

// Stop tears the container down. Per §6.2, NotFound on stop is
// treated as idempotent success.
func (s *Sandbox) Stop(ctx context.Context) error {
	if err := s.engine.Stop(ctx, s.containerID, 0); err != nil && !errors.Is(err, ErrContainerNotFound) {
		return fmt.Errorf("stopping sandbox container: %w", err)
	}
	if err := s.engine.Remove(ctx, s.containerID); err != nil && !errors.Is(err, ErrContainerNotFound) {
		return fmt.Errorf("removing sandbox container: %w", err)
	}
	return nil
}
