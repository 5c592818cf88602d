package supervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"

	"guardctl/pkg/logging"
)

// Probe performs a single liveness check. Implementations must honor
// the context deadline; an exceeded deadline is a failed probe, counted
// against the failure budget but never fatal on its own.
type Probe interface {
	Check(ctx context.Context) error
}

// HTTPProbe checks an HTTP endpoint; any 2xx status is healthy. This is
// the probe used for the application's health endpoint.
type HTTPProbe struct {
	URL string
}

// Check implements Probe.
func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach health endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("health endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	logging.Debug("Probe", "HTTP probe of %s succeeded", p.URL)
	return nil
}

// TCPProbe checks that a TCP address accepts connections.
type TCPProbe struct {
	Address string
}

// Check implements Probe.
func (p *TCPProbe) Check(ctx context.Context) error {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.Address, err)
	}
	defer conn.Close()

	logging.Debug("Probe", "TCP probe of %s succeeded", p.Address)
	return nil
}

// CommandProbe runs a host command; exit status zero is healthy.
type CommandProbe struct {
	Argv []string
}

// Check implements Probe.
func (p *CommandProbe) Check(ctx context.Context) error {
	if len(p.Argv) == 0 {
		return fmt.Errorf("empty probe command")
	}
	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("probe command %q failed: %w. Output: %s", p.Argv[0], err, string(out))
	}
	return nil
}

// NewProbe builds a Probe from a manifest healthcheck test declaration.
// Supported forms: ["http", url], ["tcp", address], ["cmd", argv...].
func NewProbe(test []string) (Probe, error) {
	if len(test) < 2 {
		return nil, fmt.Errorf("healthcheck test needs a kind and a target, got %v", test)
	}
	switch test[0] {
	case "http":
		return &HTTPProbe{URL: test[1]}, nil
	case "tcp":
		return &TCPProbe{Address: test[1]}, nil
	case "cmd":
		return &CommandProbe{Argv: test[1:]}, nil
	default:
		return nil, fmt.Errorf("unknown healthcheck test kind %q", test[0])
	}
}
