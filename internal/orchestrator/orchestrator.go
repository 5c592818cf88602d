// Package orchestrator tears down, builds, and launches the service set
// in dependency order against a container engine. It owns the service
// definitions for the duration of a run; supervision of the launched
// services is handled out-of-band by the supervisor package.
package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"guardctl/internal/config"
	"guardctl/internal/dependency"
	"guardctl/internal/engine"
	"guardctl/pkg/logging"
)

// BuildError indicates an image build failed. Builds run before any
// service starts, so a BuildError always means nothing was launched.
type BuildError struct {
	Service string
	Err     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for service %s: %v", e.Service, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// StartError indicates a service failed to start. Logs aggregates the
// output of the failed service and the services already started in the
// run, so the operator sees the whole picture in one report.
type StartError struct {
	Service string
	Err     error
	Logs    string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start failed for service %s: %v", e.Service, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Orchestrator launches and tears down the manifest's services.
type Orchestrator struct {
	engine   engine.Engine
	manifest config.Manifest
	profiles []string

	// Services started by the most recent Launch, in start order.
	started []string
}

// New creates an orchestrator for the manifest with the given active
// profiles. Profile-tagged services outside the active set are excluded
// from every operation.
func New(eng engine.Engine, manifest config.Manifest, profiles []string) *Orchestrator {
	return &Orchestrator{
		engine:   eng,
		manifest: manifest,
		profiles: profiles,
	}
}

// services returns the definitions participating in this run.
func (o *Orchestrator) services() []config.ServiceDefinition {
	return o.manifest.ServicesForProfiles(o.profiles)
}

// buildGraph constructs the dependency graph for this run's services.
// Dependencies on services excluded by profile selection are dropped:
// a default-profile run of guard-app must not wait for the production
// proxy.
func (o *Orchestrator) buildGraph() *dependency.Graph {
	g := dependency.New()
	included := make(map[string]bool)
	for _, svc := range o.services() {
		included[svc.Name] = true
	}
	for _, svc := range o.services() {
		var deps []dependency.NodeID
		for _, dep := range svc.DependsOn {
			if included[dep] {
				deps = append(deps, dependency.NodeID(dep))
			}
		}
		g.AddNode(dependency.Node{
			ID:           dependency.NodeID(svc.Name),
			FriendlyName: svc.Name,
			DependsOn:    deps,
		})
	}
	return g
}

// Launch replaces any previous instances of the run's services:
//
//  1. The dependency graph is ordered up front; a cycle aborts before
//     anything is touched.
//  2. Stale containers are removed (absence is not an error).
//  3. Every buildable image is rebuilt with caching disabled so the
//     image always reflects the current configuration. A failed build
//     aborts the launch before any service starts.
//  4. Services start in dependency order, each confirmed running before
//     its dependents start.
//
// On a start failure the aggregated logs of the failed and
// already-started services are attached to the returned *StartError;
// independent services that already started are left running for the
// caller to decide on. A cancelled context mid-launch tears down every
// service this run started, leaving no orphans.
func (o *Orchestrator) Launch(ctx context.Context) error {
	o.started = nil

	order, err := o.buildGraph().TopologicalOrder()
	if err != nil {
		return fmt.Errorf("invalid service graph: %w", err)
	}

	if err := o.Teardown(ctx); err != nil {
		return err
	}

	if err := o.buildImages(ctx); err != nil {
		return err
	}

	for _, id := range order {
		svc, _ := o.manifest.Service(string(id))

		if ctx.Err() != nil {
			logging.Warn("Orchestrator", "Launch interrupted, tearing down %d started service(s)", len(o.started))
			o.teardownStarted()
			return ctx.Err()
		}

		if err := o.startService(ctx, svc); err != nil {
			if ctx.Err() != nil {
				o.teardownStarted()
				return ctx.Err()
			}
			return &StartError{
				Service: svc.Name,
				Err:     err,
				Logs:    o.collectLogs(ctx, append([]string{svc.Name}, o.started...)),
			}
		}
		o.started = append(o.started, svc.Name)
		logging.Info("Orchestrator", "Started service %s", svc.Name)
	}

	return nil
}

// buildImages rebuilds every service image that has a build context.
// Caching is disabled on purpose; the freshest image must reflect the
// current configuration.
func (o *Orchestrator) buildImages(ctx context.Context) error {
	for _, svc := range o.services() {
		if svc.Build == "" {
			continue
		}
		logging.Info("Orchestrator", "Building image for service %s", svc.Name)
		err := o.engine.Build(ctx, engine.BuildOptions{
			Tag:        svc.Image,
			Context:    svc.Build,
			Dockerfile: svc.Dockerfile,
			NoCache:    true,
		})
		if err != nil {
			return &BuildError{Service: svc.Name, Err: err}
		}
	}
	return nil
}

// startService runs one container and confirms the engine reports it
// running before dependents are allowed to start.
func (o *Orchestrator) startService(ctx context.Context, svc config.ServiceDefinition) error {
	name := o.manifest.ContainerName(svc.Name)
	err := o.engine.Run(ctx, engine.RunOptions{
		Name:    name,
		Image:   svc.Image,
		Ports:   svc.Ports,
		Volumes: svc.Volumes,
		Devices: svc.Devices,
		Env:     svc.Environment,
		EnvFile: o.manifest.EnvFile,
	})
	if err != nil {
		return err
	}

	state, err := o.engine.State(ctx, name)
	if err != nil {
		return err
	}
	if state != engine.StateRunning {
		return fmt.Errorf("container %s is %s after start", name, state)
	}
	return nil
}

// Teardown removes any existing instance of every service in the run.
// Absence of a prior instance is not an error.
func (o *Orchestrator) Teardown(ctx context.Context) error {
	for _, svc := range o.services() {
		name := o.manifest.ContainerName(svc.Name)
		if err := o.engine.Remove(ctx, name); err != nil {
			return fmt.Errorf("teardown of %s failed: %w", svc.Name, err)
		}
	}
	return nil
}

// teardownStarted removes the services started by the current Launch,
// in reverse start order. Used on interrupt; errors are logged, not
// returned, because the launch is already failing.
func (o *Orchestrator) teardownStarted() {
	// The launch context is cancelled at this point; use a fresh one so
	// the cleanup itself is not aborted.
	ctx := context.Background()
	for i := len(o.started) - 1; i >= 0; i-- {
		name := o.manifest.ContainerName(o.started[i])
		if err := o.engine.Remove(ctx, name); err != nil {
			logging.Error("Orchestrator", err, "Failed to remove %s during interrupt teardown", name)
		}
	}
	o.started = nil
}

// RestartAll restarts the run's services in place, in dependency order.
func (o *Orchestrator) RestartAll(ctx context.Context) error {
	order, err := o.buildGraph().TopologicalOrder()
	if err != nil {
		return fmt.Errorf("invalid service graph: %w", err)
	}
	for _, id := range order {
		name := o.manifest.ContainerName(string(id))
		if err := o.engine.Restart(ctx, name); err != nil {
			return err
		}
		logging.Info("Orchestrator", "Restarted service %s", id)
	}
	return nil
}

// Cleanup tears the services down and prunes unused engine artifacts.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	if err := o.Teardown(ctx); err != nil {
		return err
	}
	return o.engine.Prune(ctx)
}

// Logs returns the aggregated recent output of the run's services.
func (o *Orchestrator) Logs(ctx context.Context, tail int) (string, error) {
	var names []string
	for _, svc := range o.services() {
		names = append(names, svc.Name)
	}
	logs := o.collectLogsTail(ctx, names, tail)
	if logs == "" {
		return "", fmt.Errorf("no logs available")
	}
	return logs, nil
}

// FollowLogs streams the combined output of the run's services to out,
// each line labelled with its service name, until the context is
// cancelled or every stream ends.
func (o *Orchestrator) FollowLogs(ctx context.Context, out io.Writer, tail int) error {
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, svc := range o.services() {
		containerName := o.manifest.ContainerName(svc.Name)
		w := &prefixWriter{prefix: svc.Name, out: out, mu: &mu}
		wg.Add(1)
		go func(serviceName, containerName string, w io.Writer) {
			defer wg.Done()
			if err := o.engine.FollowLogs(ctx, containerName, tail, w); err != nil {
				logging.Warn("Orchestrator", "Log stream for %s ended: %v", serviceName, err)
			}
		}(svc.Name, containerName, w)
	}
	wg.Wait()
	return nil
}

// prefixWriter labels every complete line written through it with a
// service name so interleaved streams stay attributable. The shared
// mutex keeps lines from different services whole.
type prefixWriter struct {
	prefix string
	out    io.Writer
	mu     *sync.Mutex
	buf    []byte
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			return len(p), nil
		}
		line := w.buf[:idx+1]
		w.mu.Lock()
		_, err := fmt.Fprintf(w.out, "%s | %s", w.prefix, line)
		w.mu.Unlock()
		if err != nil {
			return len(p), err
		}
		w.buf = w.buf[idx+1:]
	}
}

// collectLogs aggregates recent logs for the named services, labelled
// per service. Log retrieval failures are noted inline rather than
// aborting the aggregation; this runs on failure paths.
func (o *Orchestrator) collectLogs(ctx context.Context, names []string) string {
	return o.collectLogsTail(ctx, names, 50)
}

func (o *Orchestrator) collectLogsTail(ctx context.Context, names []string, tail int) string {
	var b strings.Builder
	for _, name := range names {
		containerName := o.manifest.ContainerName(name)
		fmt.Fprintf(&b, "===== %s =====\n", name)
		out, err := o.engine.Logs(ctx, containerName, tail)
		if err != nil {
			fmt.Fprintf(&b, "(logs unavailable: %v)\n", err)
			continue
		}
		b.WriteString(out)
		if !strings.HasSuffix(out, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Started returns the names of services started by the last Launch.
func (o *Orchestrator) Started() []string {
	out := make([]string, len(o.started))
	copy(out, o.started)
	return out
}
