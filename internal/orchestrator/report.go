package orchestrator

import (
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"guardctl/internal/config"
)

var (
	reportTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	reportServiceStyle = lipgloss.NewStyle().Bold(true)
	reportURLStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	reportMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// For mocking in tests
var localHostAddress = func() string {
	// Dialing a public address selects the outbound interface without
	// sending any traffic.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "localhost"
}

// AccessReport renders the reachable endpoints of the run's services:
// each published host port, plus the health-check URL where a service
// declares an HTTP probe. Shown to the operator after a successful
// start or restart.
func (o *Orchestrator) AccessReport() string {
	host := localHostAddress()

	var b strings.Builder
	b.WriteString(reportTitleStyle.Render("Services are up. Access points:"))
	b.WriteString("\n")

	for _, svc := range o.services() {
		if len(svc.Ports) == 0 && svc.HealthCheck == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s\n", reportServiceStyle.Render(svc.Name))
		for _, binding := range svc.Ports {
			hostPort := hostPortOf(binding)
			label := portLabel(hostPort)
			fmt.Fprintf(&b, "    %s %s\n",
				reportURLStyle.Render(fmt.Sprintf("http://%s:%s", host, hostPort)),
				reportMutedStyle.Render(label))
		}
		if url, ok := healthProbeURL(svc); ok {
			fmt.Fprintf(&b, "    %s %s\n",
				reportURLStyle.Render(url),
				reportMutedStyle.Render("(health check)"))
		}
	}
	return b.String()
}

// hostPortOf extracts the host side of a "host:container" binding.
func hostPortOf(binding string) string {
	if idx := strings.Index(binding, ":"); idx > 0 {
		return binding[:idx]
	}
	return binding
}

func portLabel(hostPort string) string {
	switch hostPort {
	case fmt.Sprint(config.DefaultAPIPort):
		return "(API)"
	case fmt.Sprint(config.DefaultStreamPort):
		return "(live stream / GUI bridge)"
	default:
		return ""
	}
}

// healthProbeURL returns the URL of a service's HTTP health probe.
func healthProbeURL(svc config.ServiceDefinition) (string, bool) {
	hc := svc.HealthCheck
	if hc == nil || len(hc.Test) < 2 || hc.Test[0] != "http" {
		return "", false
	}
	return hc.Test[1], true
}
