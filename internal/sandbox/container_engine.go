package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrContainerNotFound is the sentinel ContainerEngine implementations
// must return (or wrap) from Stop/Remove when the container is already
// gone, so Sandbox.Stop can treat it as idempotent success.
var ErrContainerNotFound = errors.New("container not found")

// ContainerSpec is the narrowed create+start request Sandbox issues,
// covering exactly the resource caps provisioning step 1 requires.
type ContainerSpec struct {
	Image          string
	Command        []string
	MemoryBytes    int64
	MemorySwapByte int64
	NanoCPUs       int64
	DropAllCaps    bool
	DisableNetwork bool
	TmpfsCaps      map[string]int64
	Env            map[string]string
}

// ExecOptions narrows the exec_run(cmd, user, ...) call from §6.2 to
// the fields Sandbox actually sets.
type ExecOptions struct {
	User    string
	WorkDir string
}

// ContainerEngine is the six-operation surface §6.2 requires of the
// container engine, narrowed from github.com/docker/docker/client's
// much larger API so Sandbox can be driven against a fake in tests.
type ContainerEngine interface {
	CreateAndStart(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	PutArchive(ctx context.Context, containerID, path string, tarArchive io.Reader) error
	ExecAttach(ctx context.Context, containerID string, cmd []string, opts ExecOptions) (io.ReadWriteCloser, error)
	Wait(ctx context.Context, containerID string, timeout time.Duration) error
	Stop(ctx context.Context, containerID string, timeout time.Duration) error
	Remove(ctx context.Context, containerID string) error
}
