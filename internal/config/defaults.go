package config

import "time"

// Default ports exposed by the guard application. The API port serves
// the health endpoint; the stream port carries the MJPEG GUI bridge.
const (
	DefaultAPIPort    = 8002
	DefaultStreamPort = 5000
)

// DefaultHealthURL is the health endpoint the supervisor probes.
const DefaultHealthURL = "http://localhost:8002/api/health"

// ProfileProduction gates the reverse proxy and the auto-update agent,
// which only make sense on a long-lived deployment host.
const ProfileProduction = "production"

// GetDefaultManifest returns the built-in deployment manifest. A user
// manifest file, when present, is layered on top of these definitions.
func GetDefaultManifest() Manifest {
	return Manifest{
		Project: "guard",
		EnvFile: ".env",
		Services: []ServiceDefinition{
			{
				Name:  "xvfb",
				Image: "guard/xvfb:latest",
				Build: "./docker/xvfb",
				Volumes: []string{
					"/tmp/.X11-unix:/tmp/.X11-unix",
				},
				HealthCheck: &HealthCheckSpec{
					Test:        []string{"cmd", "xdpyinfo", "-display", ":99"},
					Interval:    Duration(15 * time.Second),
					Timeout:     Duration(5 * time.Second),
					Retries:     3,
					StartPeriod: Duration(5 * time.Second),
				},
				Restart: &RestartPolicy{
					Condition:   RestartOnFailure,
					Delay:       Duration(3 * time.Second),
					MaxAttempts: 3,
					Window:      Duration(2 * time.Minute),
				},
			},
			{
				Name:       "guard-app",
				Image:      "guard/app:latest",
				Build:      ".",
				Dockerfile: "Dockerfile",
				DependsOn:  []string{"xvfb"},
				Ports: []string{
					"8002:8002",
					"5000:5000",
				},
				Volumes: []string{
					"/tmp/.X11-unix:/tmp/.X11-unix",
					"./data:/app/data",
				},
				Devices: []string{
					"/dev/video0:/dev/video0",
				},
				Environment: map[string]string{
					"QT_X11_NO_MITSHM": "1",
				},
				HealthCheck: &HealthCheckSpec{
					Test:        []string{"http", DefaultHealthURL},
					Interval:    Duration(30 * time.Second),
					Timeout:     Duration(10 * time.Second),
					Retries:     3,
					StartPeriod: Duration(40 * time.Second),
				},
				Restart: &RestartPolicy{
					Condition:   RestartOnFailure,
					Delay:       Duration(5 * time.Second),
					MaxAttempts: 3,
					Window:      Duration(2 * time.Minute),
				},
			},
			{
				Name:      "proxy",
				Image:     "nginx:stable-alpine",
				DependsOn: []string{"guard-app"},
				Profiles:  []string{ProfileProduction},
				Ports: []string{
					"80:80",
				},
				Volumes: []string{
					"./docker/nginx.conf:/etc/nginx/conf.d/default.conf:ro",
				},
			},
			{
				Name:     "autoheal",
				Image:    "containrrr/watchtower:latest",
				Profiles: []string{ProfileProduction},
				Volumes: []string{
					"/var/run/docker.sock:/var/run/docker.sock",
				},
			},
		},
	}
}
