// Package prepare performs idempotent host environment setup before
// services are launched: camera device probing, display server access,
// and environment file maintenance. Probe misses are warnings, never
// failures; setup must be able to proceed on a host without a camera.
package prepare

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"

	"guardctl/internal/config"
	"guardctl/internal/envfile"
	"guardctl/internal/platform"
	"guardctl/pkg/logging"
)

// For mocking in tests
var runCommand = func(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	if err := cmd.Run(); err != nil {
		return stderrBuf.String(), fmt.Errorf("failed to execute '%s': %w. Stderr: %s", name, err, stderrBuf.String())
	}
	return stderrBuf.String(), nil
}

// Preparer runs environment preparation against a set of host
// capabilities and an environment file.
type Preparer struct {
	caps        platform.Capabilities
	envFilePath string
}

// New creates a Preparer for the given capabilities and env file path.
func New(caps platform.Capabilities, envFilePath string) *Preparer {
	return &Preparer{caps: caps, envFilePath: envFilePath}
}

// Prepare probes the camera, grants display access when the platform
// supports forwarding, and upserts runtime assignments into the env
// file. It returns the warnings it accumulated; the caller reports
// them, so each warning reaches the operator exactly once. Only an env
// file write failure is an error, everything else degrades to a
// warning. Running Prepare repeatedly yields the same file: assignments
// are replaced, never appended twice.
func (p *Preparer) Prepare() ([]string, error) {
	var warnings []string

	cameras := p.caps.CameraDevices()
	if len(cameras) == 0 {
		warnings = append(warnings, "no camera device found; the detector will start without video input")
	} else {
		logging.Info("Prepare", "Found %d camera device(s), using %s", len(cameras), cameras[0])
	}

	doc, err := envfile.Load(p.envFilePath)
	if err != nil {
		return warnings, err
	}

	if p.caps.SupportsDisplayForwarding() {
		if err := p.grantDisplayAccess(); err != nil {
			warnings = append(warnings, fmt.Sprintf("could not grant display access: %v", err))
		}
		doc.Set("DISPLAY", p.caps.DisplayAddress())
	} else {
		logging.Debug("Prepare", "Platform %s does not support display forwarding, skipping", p.caps.Name())
	}

	doc.Set("GUARD_API_PORT", strconv.Itoa(config.DefaultAPIPort))
	if len(cameras) > 0 {
		doc.Set("GUARD_CAMERA_DEVICE", cameras[0])
	}

	if err := doc.Save(p.envFilePath); err != nil {
		return warnings, err
	}

	logging.Info("Prepare", "Environment file %s updated", p.envFilePath)
	return warnings, nil
}

// grantDisplayAccess allows local container processes to talk to the
// host display server. The grant is scoped to the local root user, not
// opened to the network.
func (p *Preparer) grantDisplayAccess() error {
	if _, err := exec.LookPath("xhost"); err != nil {
		return fmt.Errorf("xhost not found in PATH: %w", err)
	}
	if _, err := runCommand("xhost", "+local:root"); err != nil {
		return err
	}
	logging.Debug("Prepare", "Granted local display access via xhost")
	return nil
}
