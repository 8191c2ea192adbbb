package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerEngine implements ContainerEngine over a real Docker daemon,
// the production counterpart to sandbox.py's module-level
// `docker.from_env()` client.
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine wraps an already-constructed Docker API client.
// Callers typically build cli with client.NewClientWithOpts(client.FromEnv).
func NewDockerEngine(cli *client.Client) *DockerEngine {
	return &DockerEngine{cli: cli}
}

func (d *DockerEngine) CreateAndStart(ctx context.Context, spec ContainerSpec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	tmpfs := make(map[string]string, len(spec.TmpfsCaps))
	for path, capBytes := range spec.TmpfsCaps {
		tmpfs[path] = fmt.Sprintf("size=%d", capBytes)
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:     spec.MemoryBytes,
			MemorySwap: spec.MemorySwapByte,
			NanoCPUs:   spec.NanoCPUs,
		},
		Tmpfs:       tmpfs,
		NetworkMode: container.NetworkMode("none"),
		CapDrop:     []string{"ALL"},
		AutoRemove:  false,
	}
	if !spec.DisableNetwork {
		hostCfg.NetworkMode = ""
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:     spec.Image,
		Cmd:       spec.Command,
		Env:       env,
		Tty:       false,
		OpenStdin: true,
	}, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("container start: %w", err)
	}
	return resp.ID, nil
}

func (d *DockerEngine) PutArchive(ctx context.Context, containerID, path string, tarArchive io.Reader) error {
	return d.cli.CopyToContainer(ctx, containerID, path, tarArchive, types.CopyToContainerOptions{})
}

func (d *DockerEngine) ExecAttach(ctx context.Context, containerID string, cmd []string, opts ExecOptions) (io.ReadWriteCloser, error) {
	created, err := d.cli.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          cmd,
		User:         opts.User,
		WorkingDir:   opts.WorkDir,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	// tty=false keeps the exec stream in raw mode so the wire protocol's
	// line framing isn't mangled by pty translation, but it also means
	// stdout/stderr arrive multiplexed with stdcopy's frame headers
	// rather than as a flat byte stream; demuxStream undoes that.
	attached, err := d.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{Tty: false})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	return demuxStream(attached), nil
}

// demuxStream wraps a non-tty Docker exec connection so Read returns the
// plain stdout bytes (stderr is discarded) and Write/Close pass through
// to stdin and the underlying connection unchanged.
type demuxedStream struct {
	io.Reader
	io.WriteCloser
}

func demuxStream(hijacked types.HijackedResponse) io.ReadWriteCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, io.Discard, hijacked.Reader)
		pw.CloseWithError(err)
	}()
	return &demuxedStream{Reader: pr, WriteCloser: hijacked.Conn}
}

func (d *DockerEngine) Wait(ctx context.Context, containerID string, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	statusCh, errCh := d.cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("container wait: %w", err)
		}
		return nil
	case <-statusCh:
		return nil
	}
}

func (d *DockerEngine) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds})
	if errdefs.IsNotFound(err) {
		return ErrContainerNotFound
	}
	return err
}

func (d *DockerEngine) Remove(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, types.ContainerRemoveOptions{Force: true})
	if errdefs.IsNotFound(err) {
		return ErrContainerNotFound
	}
	return err
}
