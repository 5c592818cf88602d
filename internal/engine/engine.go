// Package engine abstracts the container engine guardctl deploys
// against. The orchestrator and supervisor only speak this interface;
// the default implementation shells out to the docker CLI, the same way
// any equivalent engine (podman, nerdctl) could be wired in.
package engine

import (
	"context"
	"errors"
	"io"
)

// ContainerState is the engine-reported state of a container.
type ContainerState string

const (
	StateRunning    ContainerState = "running"
	StateExited     ContainerState = "exited"
	StateRestarting ContainerState = "restarting"
	StateAbsent     ContainerState = "absent"
)

// ErrEngineNotFound indicates the engine binary is not installed.
var ErrEngineNotFound = errors.New("container engine binary not found in PATH")

// ErrDaemonUnavailable indicates the engine daemon is not reachable.
var ErrDaemonUnavailable = errors.New("container engine daemon is not reachable")

// BuildOptions configures an image build.
type BuildOptions struct {
	Tag        string
	Context    string
	Dockerfile string // optional, relative to Context
	NoCache    bool
}

// RunOptions configures a container launch.
type RunOptions struct {
	Name    string
	Image   string
	Ports   []string // "host:container"
	Volumes []string // "host:container[:mode]"
	Devices []string // "host:container"
	Env     map[string]string
	EnvFile string // optional KEY=VALUE file passed to the engine
}

// Engine is the container engine contract. All calls block until the
// underlying operation completes or errors; only callers impose
// deadlines, and only where the design allows them (health probes).
type Engine interface {
	// CheckAvailable verifies the engine binary exists and its daemon
	// answers. Returns ErrEngineNotFound or ErrDaemonUnavailable.
	CheckAvailable(ctx context.Context) error

	// Build builds an image. A non-zero build is returned as an error
	// carrying the build output.
	Build(ctx context.Context, opts BuildOptions) error

	// Run starts a detached container. The caller guarantees the name
	// is free (teardown runs first).
	Run(ctx context.Context, opts RunOptions) error

	// Remove force-removes a container. Absence is not an error.
	Remove(ctx context.Context, name string) error

	// Restart restarts a running or exited container in place.
	Restart(ctx context.Context, name string) error

	// Logs returns the last tail lines of a container's output.
	Logs(ctx context.Context, name string, tail int) (string, error)

	// FollowLogs streams the container's combined output to out until
	// the context is cancelled or the container stops. Cancellation is a
	// clean shutdown, not an error.
	FollowLogs(ctx context.Context, name string, tail int, out io.Writer) error

	// State reports the container's current state; StateAbsent when no
	// container with that name exists.
	State(ctx context.Context, name string) (ContainerState, error)

	// Prune removes unused engine artifacts (stopped containers,
	// dangling images, build cache).
	Prune(ctx context.Context) error
}
