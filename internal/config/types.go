package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so manifest values can be written in the
// human form used by compose files, e.g. "30s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RestartCondition defines when the supervisor may restart a service.
type RestartCondition string

const (
	RestartOnFailure RestartCondition = "on-failure"
	RestartAny       RestartCondition = "any"
	RestartNever     RestartCondition = "none"
)

// Manifest is the top-level deployment manifest for guardctl.
type Manifest struct {
	Project  string              `yaml:"project,omitempty"`  // Prefix for container names, e.g. "guard"
	EnvFile  string              `yaml:"envFile,omitempty"`  // Environment file consumed at service start
	Services []ServiceDefinition `yaml:"services"`
}

// ServiceDefinition declares a single containerized service: how to build
// it, what it binds, and how it is supervised. Definitions are immutable
// once loaded; runtime state (probe counters, restart attempts) lives in
// the supervisor, never here.
type ServiceDefinition struct {
	Name        string            `yaml:"name"`                  // Unique name, e.g. "guard-app", "xvfb"
	Build       string            `yaml:"build,omitempty"`       // Build context directory
	Dockerfile  string            `yaml:"dockerfile,omitempty"`  // Optional Dockerfile path relative to the build context
	Image       string            `yaml:"image,omitempty"`       // Image tag (built when Build is set, otherwise pulled)
	Ports       []string          `yaml:"ports,omitempty"`       // Port bindings, "host:container"
	Volumes     []string          `yaml:"volumes,omitempty"`     // Bind mounts, "host:container"
	Devices     []string          `yaml:"devices,omitempty"`     // Device bindings, e.g. "/dev/video0:/dev/video0"
	Environment map[string]string `yaml:"environment,omitempty"` // Environment variables
	DependsOn   []string          `yaml:"depends_on,omitempty"`  // Names of services that must be started first
	Profiles    []string          `yaml:"profiles,omitempty"`    // Non-default profiles this service is restricted to
	HealthCheck *HealthCheckSpec  `yaml:"healthcheck,omitempty"`
	Restart     *RestartPolicy    `yaml:"restart_policy,omitempty"`
}

// HealthCheckSpec configures the periodic liveness probe for a service.
type HealthCheckSpec struct {
	Test        []string `yaml:"test"`                   // Probe, e.g. ["http", "http://localhost:8002/api/health"] or ["cmd", "curl", "-f", ...]
	Interval    Duration `yaml:"interval,omitempty"`     // Time between probes
	Timeout     Duration `yaml:"timeout,omitempty"`      // Per-probe deadline
	Retries     int      `yaml:"retries,omitempty"`      // Consecutive failures before unhealthy
	StartPeriod Duration `yaml:"start_period,omitempty"` // Grace window after start; failures inside it do not count. Zero disables the window.
}

// RestartPolicy bounds automatic relaunch of an unhealthy service.
type RestartPolicy struct {
	Condition   RestartCondition `yaml:"condition,omitempty"`    // When restarts apply
	Delay       Duration         `yaml:"delay,omitempty"`        // Wait before each restart
	MaxAttempts int              `yaml:"max_attempts,omitempty"` // Attempt budget per window
	Window      Duration         `yaml:"window,omitempty"`       // Sliding window the budget applies to
}

// InDefaultProfile reports whether the service participates in default
// orchestration runs. Services tagged with any profile are excluded
// unless that profile is activated explicitly.
func (s ServiceDefinition) InDefaultProfile() bool {
	return len(s.Profiles) == 0
}

// HasProfile reports whether the service is tagged with the given profile.
func (s ServiceDefinition) HasProfile(profile string) bool {
	for _, p := range s.Profiles {
		if p == profile {
			return true
		}
	}
	return false
}

// ContainerName returns the engine-level container name for the service.
func (m Manifest) ContainerName(service string) string {
	if m.Project == "" {
		return service
	}
	return m.Project + "-" + service
}

// ServicesForProfiles returns the services included in a run with the
// given active profiles. Default-profile services are always included.
func (m Manifest) ServicesForProfiles(profiles []string) []ServiceDefinition {
	var out []ServiceDefinition
	for _, svc := range m.Services {
		if svc.InDefaultProfile() {
			out = append(out, svc)
			continue
		}
		for _, p := range profiles {
			if svc.HasProfile(p) {
				out = append(out, svc)
				break
			}
		}
	}
	return out
}

// Service returns the definition with the given name.
func (m Manifest) Service(name string) (ServiceDefinition, bool) {
	for _, svc := range m.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceDefinition{}, false
}

// Validate checks manifest invariants: unique service names, known
// depends_on references, and sane healthcheck/restart bounds.
func (m Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Services))
	for _, svc := range m.Services {
		if svc.Name == "" {
			return fmt.Errorf("service with empty name")
		}
		if seen[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = true
	}

	for _, svc := range m.Services {
		for _, dep := range svc.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("service %q depends on unknown service %q", svc.Name, dep)
			}
		}
		if hc := svc.HealthCheck; hc != nil {
			if len(hc.Test) == 0 {
				return fmt.Errorf("service %q: healthcheck without test", svc.Name)
			}
			if hc.Retries < 1 {
				return fmt.Errorf("service %q: healthcheck retries must be >= 1", svc.Name)
			}
			if hc.Interval <= 0 || hc.Timeout <= 0 {
				return fmt.Errorf("service %q: healthcheck interval and timeout must be positive", svc.Name)
			}
			if hc.StartPeriod < 0 {
				return fmt.Errorf("service %q: healthcheck start_period must not be negative", svc.Name)
			}
		}
		if rp := svc.Restart; rp != nil {
			if rp.MaxAttempts < 1 {
				return fmt.Errorf("service %q: restart_policy max_attempts must be >= 1", svc.Name)
			}
		}
	}
	return nil
}
