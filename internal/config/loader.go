package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/guardctl"
	manifestFileName = "guardctl.yaml"
)

// LoadManifest loads the deployment manifest by layering the built-in
// defaults, an optional user manifest (~/.config/guardctl/guardctl.yaml),
// and an optional project manifest (./guardctl.yaml). The result is
// validated before it is returned; a manifest that fails validation is
// never handed to the orchestrator.
func LoadManifest() (Manifest, error) {
	manifest := GetDefaultManifest()

	userPath, err := getUserManifestPath()
	if err != nil {
		// User manifest is optional; keep going with defaults.
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user manifest path: %v\n", err)
	} else if _, statErr := os.Stat(userPath); statErr == nil {
		overlay, err := loadManifestFromFile(userPath)
		if err != nil {
			return Manifest{}, fmt.Errorf("error loading user manifest from %s: %w", userPath, err)
		}
		manifest = mergeManifests(manifest, overlay)
	}

	projectPath, err := getProjectManifestPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project manifest path: %v\n", err)
	} else if _, statErr := os.Stat(projectPath); statErr == nil {
		overlay, err := loadManifestFromFile(projectPath)
		if err != nil {
			return Manifest{}, fmt.Errorf("error loading project manifest from %s: %w", projectPath, err)
		}
		manifest = mergeManifests(manifest, overlay)
	}

	if err := manifest.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}

	return manifest, nil
}

var getUserManifestPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, manifestFileName), nil
}

var getProjectManifestPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, manifestFileName), nil
}

// loadManifestFromFile loads a Manifest from a YAML file.
func loadManifestFromFile(filePath string) (Manifest, error) {
	var manifest Manifest
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Manifest{}, err
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// mergeManifests merges 'overlay' into 'base'. Overlay services replace
// base services of the same name and otherwise extend the list, so a
// project manifest can tweak one service without restating the rest.
func mergeManifests(base, overlay Manifest) Manifest {
	merged := base

	if overlay.Project != "" {
		merged.Project = overlay.Project
	}
	if overlay.EnvFile != "" {
		merged.EnvFile = overlay.EnvFile
	}

	if len(overlay.Services) > 0 {
		byName := make(map[string]int, len(merged.Services))
		for i, svc := range merged.Services {
			byName[svc.Name] = i
		}
		for _, svc := range overlay.Services {
			if i, exists := byName[svc.Name]; exists {
				merged.Services[i] = svc
			} else {
				merged.Services = append(merged.Services, svc)
			}
		}
	}

	return merged
}
