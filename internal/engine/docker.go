package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"guardctl/pkg/logging"
)

// For mocking in tests
var execLookPath = exec.LookPath
var runDockerCommand = func(ctx context.Context, args ...string) (stdout string, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "docker", args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	stdoutStr := stdoutBuf.String()
	stderrStr := stderrBuf.String()

	if runErr != nil {
		// Include docker's stderr in the error message for better diagnostics
		return stdoutStr, stderrStr, fmt.Errorf("failed to execute 'docker %s': %w. Stderr: %s",
			strings.Join(args, " "), runErr, stderrStr)
	}
	return stdoutStr, stderrStr, nil
}

var streamDockerCommand = func(ctx context.Context, out io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// DockerEngine implements Engine against the docker CLI.
type DockerEngine struct{}

// NewDockerEngine creates a docker-backed engine.
func NewDockerEngine() *DockerEngine {
	return &DockerEngine{}
}

// CheckAvailable implements Engine.
func (e *DockerEngine) CheckAvailable(ctx context.Context) error {
	if _, err := execLookPath("docker"); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineNotFound, err)
	}
	if _, _, err := runDockerCommand(ctx, "info", "--format", "{{.ServerVersion}}"); err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	return nil
}

// Build implements Engine.
func (e *DockerEngine) Build(ctx context.Context, opts BuildOptions) error {
	args := []string{"build", "-t", opts.Tag}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	if opts.Dockerfile != "" {
		args = append(args, "-f", opts.Dockerfile)
	}
	args = append(args, opts.Context)

	logging.Debug("Engine", "Building image %s from %s", opts.Tag, opts.Context)
	if _, _, err := runDockerCommand(ctx, args...); err != nil {
		return fmt.Errorf("build of image %s failed: %w", opts.Tag, err)
	}
	return nil
}

// Run implements Engine.
func (e *DockerEngine) Run(ctx context.Context, opts RunOptions) error {
	args := []string{"run", "-d", "--name", opts.Name}
	for _, port := range opts.Ports {
		args = append(args, "-p", port)
	}
	for _, volume := range opts.Volumes {
		args = append(args, "-v", volume)
	}
	for _, device := range opts.Devices {
		args = append(args, "--device", device)
	}
	if opts.EnvFile != "" {
		args = append(args, "--env-file", opts.EnvFile)
	}
	// Sort env keys so the generated command line is deterministic.
	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	args = append(args, opts.Image)

	logging.Debug("Engine", "Starting container %s from image %s", opts.Name, opts.Image)
	if _, _, err := runDockerCommand(ctx, args...); err != nil {
		return fmt.Errorf("start of container %s failed: %w", opts.Name, err)
	}
	return nil
}

// Remove implements Engine. A missing container is treated as already
// removed.
func (e *DockerEngine) Remove(ctx context.Context, name string) error {
	_, stderr, err := runDockerCommand(ctx, "rm", "-f", name)
	if err != nil {
		if strings.Contains(stderr, "No such container") {
			return nil
		}
		return fmt.Errorf("removal of container %s failed: %w", name, err)
	}
	logging.Debug("Engine", "Removed container %s", name)
	return nil
}

// Restart implements Engine.
func (e *DockerEngine) Restart(ctx context.Context, name string) error {
	if _, _, err := runDockerCommand(ctx, "restart", name); err != nil {
		return fmt.Errorf("restart of container %s failed: %w", name, err)
	}
	return nil
}

// Logs implements Engine.
func (e *DockerEngine) Logs(ctx context.Context, name string, tail int) (string, error) {
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, name)

	stdout, stderr, err := runDockerCommand(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("fetching logs of container %s failed: %w", name, err)
	}
	// docker writes container stderr output to our stderr stream.
	return stdout + stderr, nil
}

// FollowLogs implements Engine. The underlying docker process runs
// until the context is cancelled or the container stops.
func (e *DockerEngine) FollowLogs(ctx context.Context, name string, tail int, out io.Writer) error {
	args := []string{"logs", "--follow"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, name)

	if err := streamDockerCommand(ctx, out, args...); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("following logs of container %s failed: %w", name, err)
	}
	return nil
}

// State implements Engine.
func (e *DockerEngine) State(ctx context.Context, name string) (ContainerState, error) {
	stdout, stderr, err := runDockerCommand(ctx, "inspect", "--format", "{{.State.Status}}", name)
	if err != nil {
		if strings.Contains(stderr, "No such object") || strings.Contains(stderr, "No such container") {
			return StateAbsent, nil
		}
		return "", fmt.Errorf("inspect of container %s failed: %w", name, err)
	}

	switch status := strings.TrimSpace(stdout); status {
	case "running":
		return StateRunning, nil
	case "restarting":
		return StateRestarting, nil
	case "exited", "dead", "created", "paused":
		return StateExited, nil
	default:
		return ContainerState(status), nil
	}
}

// Prune implements Engine.
func (e *DockerEngine) Prune(ctx context.Context) error {
	if _, _, err := runDockerCommand(ctx, "system", "prune", "-f"); err != nil {
		return fmt.Errorf("engine prune failed: %w", err)
	}
	logging.Info("Engine", "Pruned unused engine artifacts")
	return nil
}
