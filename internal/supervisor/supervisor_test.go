package supervisor

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardctl/internal/config"
	"guardctl/internal/engine"
)

type probeFunc func(ctx context.Context) error

func (f probeFunc) Check(ctx context.Context) error { return f(ctx) }

// restartCounter satisfies engine.Engine; only Restart is exercised by
// the supervisor.
type restartCounter struct {
	restarts atomic.Int64
}

func (r *restartCounter) CheckAvailable(ctx context.Context) error { return nil }

func (r *restartCounter) Build(ctx context.Context, opts engine.BuildOptions) error { return nil }

func (r *restartCounter) Run(ctx context.Context, opts engine.RunOptions) error { return nil }

func (r *restartCounter) Remove(ctx context.Context, name string) error { return nil }

func (r *restartCounter) Restart(ctx context.Context, name string) error {
	r.restarts.Add(1)
	return nil
}

func (r *restartCounter) Logs(ctx context.Context, name string, tail int) (string, error) {
	return "", nil
}

func (r *restartCounter) FollowLogs(ctx context.Context, name string, tail int, out io.Writer) error {
	return nil
}

func (r *restartCounter) State(ctx context.Context, name string) (engine.ContainerState, error) {
	return engine.StateRunning, nil
}

func (r *restartCounter) Prune(ctx context.Context) error { return nil }

func manifestWith(svc config.ServiceDefinition) config.Manifest {
	return config.Manifest{
		Project:  "guard",
		Services: []config.ServiceDefinition{svc},
	}
}

func probedService(policy *config.RestartPolicy, startPeriod time.Duration) config.ServiceDefinition {
	return config.ServiceDefinition{
		Name:  "guard-app",
		Image: "guard/app:latest",
		HealthCheck: &config.HealthCheckSpec{
			Test:        []string{"http", "http://localhost:8002/api/health"},
			Interval:    config.Duration(5 * time.Millisecond),
			Timeout:     config.Duration(20 * time.Millisecond),
			Retries:     1,
			StartPeriod: config.Duration(startPeriod),
		},
		Restart: policy,
	}
}

func supervisorWithProbe(eng engine.Engine, svc config.ServiceDefinition, probe Probe) *Supervisor {
	s := New(eng, manifestWith(svc))
	s.newProbe = func(test []string) (Probe, error) { return probe, nil }
	return s
}

func snapshotOf(t *testing.T, s *Supervisor, service string) Snapshot {
	t.Helper()
	for _, snap := range s.Status() {
		if snap.Service == service {
			return snap
		}
	}
	t.Fatalf("no snapshot for %s", service)
	return Snapshot{}
}

func TestRestartBudgetExhaustionIsTerminal(t *testing.T) {
	eng := &restartCounter{}
	svc := probedService(&config.RestartPolicy{
		Condition:   config.RestartOnFailure,
		MaxAttempts: 3,
		Window:      config.Duration(time.Minute),
	}, 0)

	alwaysFailing := probeFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	s := supervisorWithProbe(eng, svc, alwaysFailing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Supervise(ctx, []string{"guard-app"})

	// The loop exits on its own once the budget is spent, so Wait
	// returns without the context being cancelled.
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("probe loop did not terminate after exhausting its restart budget")
	}

	assert.Equal(t, int64(3), eng.restarts.Load(), "exactly max_attempts restarts are issued")

	snap := snapshotOf(t, s, "guard-app")
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, 3, snap.Restarts)
}

func TestWindowExpiryFreesRestartBudget(t *testing.T) {
	eng := &restartCounter{}
	svc := probedService(&config.RestartPolicy{
		Condition:   config.RestartOnFailure,
		MaxAttempts: 1,
		Window:      config.Duration(100 * time.Millisecond),
	}, 0)

	// Each stored failure is consumed by exactly one check, so the
	// service recovers right after every restart.
	var pendingFailures atomic.Int64
	pendingFailures.Store(1)
	episodic := probeFunc(func(ctx context.Context) error {
		if pendingFailures.Load() > 0 {
			pendingFailures.Add(-1)
			return errors.New("down")
		}
		return nil
	})

	s := supervisorWithProbe(eng, svc, episodic)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Supervise(ctx, []string{"guard-app"})

	require.Eventually(t, func() bool { return eng.restarts.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return snapshotOf(t, s, "guard-app").State == StateHealthy
	}, 5*time.Second, 5*time.Millisecond)

	// Stay healthy long enough for the recorded attempt to age out of
	// the window, then fail once more.
	time.Sleep(250 * time.Millisecond)
	pendingFailures.Store(1)

	// The aged-out attempt freed the budget: a second restart happens
	// instead of terminal failed.
	require.Eventually(t, func() bool { return eng.restarts.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return snapshotOf(t, s, "guard-app").State == StateHealthy
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	s.Wait()

	assert.NotEqual(t, StateFailed, snapshotOf(t, s, "guard-app").State)
}

func TestStartPeriodFailuresDoNotCount(t *testing.T) {
	eng := &restartCounter{}
	svc := probedService(&config.RestartPolicy{
		Condition:   config.RestartOnFailure,
		MaxAttempts: 3,
		Window:      config.Duration(time.Minute),
	}, 10*time.Second)

	alwaysFailing := probeFunc(func(ctx context.Context) error {
		return errors.New("still booting")
	})

	s := supervisorWithProbe(eng, svc, alwaysFailing)
	ctx, cancel := context.WithCancel(context.Background())
	s.Supervise(ctx, []string{"guard-app"})

	// Several probe intervals pass, all inside the grace window.
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	assert.Equal(t, int64(0), eng.restarts.Load(), "grace-window failures never trigger restarts")

	snap := snapshotOf(t, s, "guard-app")
	assert.Equal(t, StateStarting, snap.State)
	assert.Equal(t, 0, snap.Restarts)
	assert.Error(t, snap.LastProbeErr, "the last failure is still recorded for status reporting")
}

func TestRecoveryResetsFailureCount(t *testing.T) {
	eng := &restartCounter{}
	svc := probedService(&config.RestartPolicy{
		Condition:   config.RestartOnFailure,
		MaxAttempts: 3,
		Window:      config.Duration(time.Minute),
	}, 0)
	svc.HealthCheck.Retries = 3

	// Fails twice, then recovers for good. Never reaches the retries
	// threshold, so no restart should happen.
	var calls atomic.Int64
	flaky := probeFunc(func(ctx context.Context) error {
		if calls.Add(1) <= 2 {
			return errors.New("transient")
		}
		return nil
	})

	s := supervisorWithProbe(eng, svc, flaky)
	ctx, cancel := context.WithCancel(context.Background())
	s.Supervise(ctx, []string{"guard-app"})

	require.Eventually(t, func() bool {
		return snapshotOf(t, s, "guard-app").State == StateHealthy
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	s.Wait()

	snap := snapshotOf(t, s, "guard-app")
	assert.Equal(t, StateHealthy, snap.State)
	assert.Equal(t, 0, snap.ConsecFails)
	assert.NoError(t, snap.LastProbeErr)
	assert.Equal(t, int64(0), eng.restarts.Load())
}

func TestNoRestartPolicyStaysUnhealthy(t *testing.T) {
	eng := &restartCounter{}
	svc := probedService(nil, 0)

	alwaysFailing := probeFunc(func(ctx context.Context) error {
		return errors.New("down")
	})

	s := supervisorWithProbe(eng, svc, alwaysFailing)
	ctx, cancel := context.WithCancel(context.Background())
	s.Supervise(ctx, []string{"guard-app"})

	require.Eventually(t, func() bool {
		return snapshotOf(t, s, "guard-app").State == StateUnhealthy
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	s.Wait()

	assert.Equal(t, int64(0), eng.restarts.Load(), "without a policy the supervisor only reports")
}

func TestServiceWithoutHealthcheckIsUnmonitored(t *testing.T) {
	eng := &restartCounter{}
	s := New(eng, manifestWith(config.ServiceDefinition{Name: "xvfb", Image: "guard/xvfb:latest"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Supervise(ctx, []string{"xvfb"})
	s.Wait() // no loop was spawned

	snap := snapshotOf(t, s, "xvfb")
	assert.Equal(t, StateUnmonitored, snap.State)
}

func TestNewProbe(t *testing.T) {
	tests := []struct {
		name    string
		test    []string
		want    any
		wantErr bool
	}{
		{"http", []string{"http", "http://localhost:8002/api/health"}, &HTTPProbe{}, false},
		{"tcp", []string{"tcp", "localhost:5000"}, &TCPProbe{}, false},
		{"cmd", []string{"cmd", "xdpyinfo", "-display", ":99"}, &CommandProbe{}, false},
		{"unknown kind", []string{"grpc", "localhost:9000"}, nil, true},
		{"too short", []string{"http"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe, err := NewProbe(tt.test)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, probe)
		})
	}
}
