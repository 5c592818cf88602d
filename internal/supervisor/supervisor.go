// Package supervisor keeps launched services alive. Each service with a
// healthcheck gets its own probe loop: periodic probes with a per-probe
// timeout, a grace window after start during which failures do not
// count, and a restart policy bounded by a sliding-window attempt
// budget. Loops run independently per service; one service exhausting
// its budget never affects the others and never crashes the supervisor.
package supervisor

import (
	"context"
	"sync"
	"time"

	"guardctl/internal/config"
	"guardctl/internal/engine"
	"guardctl/pkg/logging"
)

// ServiceState is the supervisor's view of a service.
type ServiceState string

const (
	// StateStarting covers the start_period grace window.
	StateStarting ServiceState = "starting"
	// StateHealthy means the last probe succeeded.
	StateHealthy ServiceState = "healthy"
	// StateUnhealthy means the failure budget for consecutive probes
	// was consumed.
	StateUnhealthy ServiceState = "unhealthy"
	// StateRestarting means a policy-driven restart is in flight.
	StateRestarting ServiceState = "restarting"
	// StateFailed is terminal: the restart budget was exhausted and the
	// service is no longer auto-restarted.
	StateFailed ServiceState = "failed"
	// StateUnmonitored marks services that declare no healthcheck.
	StateUnmonitored ServiceState = "unmonitored"
)

// Snapshot is a point-in-time view of one supervised service.
type Snapshot struct {
	Service      string
	State        ServiceState
	Restarts     int
	ConsecFails  int
	LastProbeErr error
}

// Supervisor runs the per-service probe loops.
type Supervisor struct {
	engine   engine.Engine
	manifest config.Manifest

	mu     sync.RWMutex
	status map[string]*Snapshot

	wg sync.WaitGroup

	// newProbe is swappable so tests can script probe outcomes.
	newProbe func(test []string) (Probe, error)
}

// New creates a supervisor for the manifest's services.
func New(eng engine.Engine, manifest config.Manifest) *Supervisor {
	return &Supervisor{
		engine:   eng,
		manifest: manifest,
		status:   make(map[string]*Snapshot),
		newProbe: NewProbe,
	}
}

// Supervise starts one probe loop per named service and returns
// immediately. Loops stop when ctx is cancelled or, individually, when
// a service reaches terminal failed. Wait blocks until all loops exit.
func (s *Supervisor) Supervise(ctx context.Context, services []string) {
	for _, name := range services {
		svc, ok := s.manifest.Service(name)
		if !ok {
			continue
		}

		if svc.HealthCheck == nil {
			s.setStatus(&Snapshot{Service: svc.Name, State: StateUnmonitored})
			logging.Debug("Supervisor", "Service %s has no healthcheck, not supervised", svc.Name)
			continue
		}

		probe, err := s.newProbe(svc.HealthCheck.Test)
		if err != nil {
			s.setStatus(&Snapshot{Service: svc.Name, State: StateUnmonitored, LastProbeErr: err})
			logging.Error("Supervisor", err, "Invalid healthcheck for %s, not supervised", svc.Name)
			continue
		}

		s.setStatus(&Snapshot{Service: svc.Name, State: StateStarting})
		s.wg.Add(1)
		go func(svc config.ServiceDefinition, probe Probe) {
			defer s.wg.Done()
			s.superviseService(ctx, svc, probe)
		}(svc, probe)
	}
}

// Wait blocks until every probe loop has exited.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Status returns snapshots for all supervised services.
func (s *Supervisor) Status() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.status))
	for _, snap := range s.status {
		out = append(out, *snap)
	}
	return out
}

func (s *Supervisor) setStatus(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[snap.Service] = snap
}

func (s *Supervisor) update(service string, fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.status[service]; ok {
		fn(snap)
	}
}

// superviseService is the sequential probe loop for one service:
// probe, evaluate, act, every interval. It returns when the context is
// cancelled or the service reaches terminal failed.
func (s *Supervisor) superviseService(ctx context.Context, svc config.ServiceDefinition, probe Probe) {
	hc := svc.HealthCheck
	graceUntil := time.Now().Add(hc.StartPeriod.Std())

	// Restart attempts within the sliding window, newest last.
	var attempts []time.Time
	consecFails := 0

	ticker := time.NewTicker(hc.Interval.Std())
	defer ticker.Stop()

	logging.Debug("Supervisor", "Probe loop started for %s (interval %s)", svc.Name, hc.Interval.Std())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, hc.Timeout.Std())
		err := probe.Check(probeCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			consecFails = 0
			s.update(svc.Name, func(snap *Snapshot) {
				snap.State = StateHealthy
				snap.ConsecFails = 0
				snap.LastProbeErr = nil
			})
			continue
		}

		if time.Now().Before(graceUntil) {
			// Inside the start period failures are recorded but never
			// counted against the budget.
			logging.Debug("Supervisor", "Probe failed for %s during start period: %v", svc.Name, err)
			s.update(svc.Name, func(snap *Snapshot) { snap.LastProbeErr = err })
			continue
		}

		consecFails++
		s.update(svc.Name, func(snap *Snapshot) {
			snap.ConsecFails = consecFails
			snap.LastProbeErr = err
		})
		logging.Warn("Supervisor", "Probe failed for %s (%d/%d): %v", svc.Name, consecFails, hc.Retries, err)

		if consecFails < hc.Retries {
			continue
		}

		// Failure budget consumed: the service is unhealthy.
		s.update(svc.Name, func(snap *Snapshot) { snap.State = StateUnhealthy })
		logging.Warn("Supervisor", "Service %s is unhealthy after %d consecutive probe failures", svc.Name, consecFails)

		policy := svc.Restart
		if policy == nil || (policy.Condition != config.RestartOnFailure && policy.Condition != config.RestartAny) {
			// No matching restart policy: stay unhealthy, keep probing.
			consecFails = 0
			continue
		}

		// Prune attempts that have aged out of the sliding window.
		if policy.Window > 0 {
			cutoff := time.Now().Add(-policy.Window.Std())
			kept := attempts[:0]
			for _, at := range attempts {
				if at.After(cutoff) {
					kept = append(kept, at)
				}
			}
			attempts = kept
		}

		if len(attempts) >= policy.MaxAttempts {
			s.update(svc.Name, func(snap *Snapshot) { snap.State = StateFailed })
			logging.Error("Supervisor", nil,
				"Service %s exhausted its restart budget (%d attempts within %s); giving up",
				svc.Name, policy.MaxAttempts, policy.Window.Std())
			return
		}

		s.update(svc.Name, func(snap *Snapshot) { snap.State = StateRestarting })
		if policy.Delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(policy.Delay.Std()):
			}
		}

		containerName := s.manifest.ContainerName(svc.Name)
		logging.Info("Supervisor", "Restarting service %s (attempt %d of %d)", svc.Name, len(attempts)+1, policy.MaxAttempts)
		if restartErr := s.engine.Restart(ctx, containerName); restartErr != nil {
			logging.Error("Supervisor", restartErr, "Restart of %s failed", svc.Name)
		}

		attempts = append(attempts, time.Now())
		consecFails = 0
		// Re-arm the grace window: the restarted service needs its boot
		// time before failures count again.
		graceUntil = time.Now().Add(hc.StartPeriod.Std())
		s.update(svc.Name, func(snap *Snapshot) {
			snap.Restarts = len(attempts)
			snap.ConsecFails = 0
		})
	}
}
