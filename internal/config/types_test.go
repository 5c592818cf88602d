package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServicesForProfiles(t *testing.T) {
	manifest := GetDefaultManifest()

	defaults := manifest.ServicesForProfiles(nil)
	names := serviceNames(defaults)
	assert.Contains(t, names, "guard-app")
	assert.Contains(t, names, "xvfb")
	assert.NotContains(t, names, "proxy", "profile-tagged services are excluded from default runs")
	assert.NotContains(t, names, "autoheal")

	production := manifest.ServicesForProfiles([]string{ProfileProduction})
	names = serviceNames(production)
	assert.Contains(t, names, "proxy")
	assert.Contains(t, names, "autoheal")
	assert.Contains(t, names, "guard-app", "default services are always included")
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		wantErr  string
	}{
		{
			name:     "default manifest is valid",
			manifest: GetDefaultManifest(),
		},
		{
			name: "duplicate service name",
			manifest: Manifest{Services: []ServiceDefinition{
				{Name: "a"}, {Name: "a"},
			}},
			wantErr: "duplicate service name",
		},
		{
			name: "unknown dependency",
			manifest: Manifest{Services: []ServiceDefinition{
				{Name: "a", DependsOn: []string{"ghost"}},
			}},
			wantErr: "unknown service",
		},
		{
			name: "zero max_attempts",
			manifest: Manifest{Services: []ServiceDefinition{
				{Name: "a", Restart: &RestartPolicy{Condition: RestartOnFailure}},
			}},
			wantErr: "max_attempts must be >= 1",
		},
		{
			name: "healthcheck without test",
			manifest: Manifest{Services: []ServiceDefinition{
				{Name: "a", HealthCheck: &HealthCheckSpec{Retries: 1}},
			}},
			wantErr: "healthcheck without test",
		},
		{
			name: "negative start_period",
			manifest: Manifest{Services: []ServiceDefinition{
				{Name: "a", HealthCheck: &HealthCheckSpec{
					Test:        []string{"http", "http://localhost/health"},
					Interval:    Duration(10 * time.Second),
					Timeout:     Duration(2 * time.Second),
					Retries:     1,
					StartPeriod: Duration(-5 * time.Second),
				}},
			}},
			wantErr: "start_period must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestContainerName(t *testing.T) {
	m := Manifest{Project: "guard"}
	assert.Equal(t, "guard-xvfb", m.ContainerName("xvfb"))

	unnamed := Manifest{}
	assert.Equal(t, "xvfb", unnamed.ContainerName("xvfb"))
}

func serviceNames(services []ServiceDefinition) []string {
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = svc.Name
	}
	return names
}
