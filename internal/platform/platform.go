// Package platform answers capability queries about the host guardctl
// runs on. Callers ask whether a capability is available instead of
// branching on the operating system name; each target OS provides its
// own implementation.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// Capabilities describes what the host can offer the deployment.
type Capabilities interface {
	// Name identifies the platform for log output, e.g. "linux".
	Name() string

	// SupportsDisplayForwarding reports whether a host display server
	// can be shared with containers via the X11 socket.
	SupportsDisplayForwarding() bool

	// DisplayAddress returns the DISPLAY value containers should use
	// when display forwarding is supported.
	DisplayAddress() string

	// CameraDevices returns the camera device nodes present on the
	// host, sorted. An empty slice is not an error: setup may run on a
	// host with no camera attached.
	CameraDevices() []string
}

// Detect returns the Capabilities implementation for the current OS.
func Detect() Capabilities {
	switch runtime.GOOS {
	case "linux":
		return linuxCapabilities{}
	default:
		return headlessCapabilities{goos: runtime.GOOS}
	}
}

// For mocking in tests
var filepathGlob = filepath.Glob
var osStat = os.Stat

type linuxCapabilities struct{}

func (linuxCapabilities) Name() string { return "linux" }

func (linuxCapabilities) SupportsDisplayForwarding() bool {
	// The X11 socket directory existing is what makes forwarding viable.
	_, err := osStat("/tmp/.X11-unix")
	return err == nil
}

func (linuxCapabilities) DisplayAddress() string {
	if display := os.Getenv("DISPLAY"); display != "" {
		return display
	}
	return ":0"
}

func (linuxCapabilities) CameraDevices() []string {
	matches, err := filepathGlob("/dev/video*")
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// headlessCapabilities is the fallback for platforms without display
// forwarding or device-node cameras (darwin, windows). Orchestration
// still works there; only environment preparation degrades.
type headlessCapabilities struct {
	goos string
}

func (h headlessCapabilities) Name() string { return h.goos }

func (headlessCapabilities) SupportsDisplayForwarding() bool { return false }

func (headlessCapabilities) DisplayAddress() string { return "" }

func (headlessCapabilities) CameraDevices() []string { return nil }
