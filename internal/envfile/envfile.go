// Package envfile reads and writes line-oriented KEY=VALUE environment
// files. Mutation is a structured read-modify-write: setting a key that
// already has an assignment replaces it in place instead of appending a
// duplicate, so repeated preparation runs leave exactly one assignment
// per key. Comments, blank lines, and unknown keys are preserved.
package envfile

import (
	"fmt"
	"os"
	"strings"
)

// Document is an in-memory environment file, line-accurate so that a
// load/save round trip without modification is byte-stable.
type Document struct {
	lines []string
}

// Load reads the environment file at path. A missing file yields an
// empty document, since preparation may run before the file exists.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return &Document{}, nil
	}
	return &Document{lines: strings.Split(content, "\n")}, nil
}

// Get returns the value of the last assignment for key.
func (d *Document) Get(key string) (string, bool) {
	value := ""
	found := false
	for _, line := range d.lines {
		if k, v, ok := parseAssignment(line); ok && k == key {
			value = v
			found = true
		}
	}
	return value, found
}

// Set upserts an assignment for key. An existing assignment is replaced
// in place; only an absent key results in an appended line.
func (d *Document) Set(key, value string) {
	assignment := key + "=" + value
	replaced := false
	kept := d.lines[:0]
	for _, line := range d.lines {
		if k, _, ok := parseAssignment(line); ok && k == key {
			if replaced {
				// Collapse duplicate assignments left behind by older tooling.
				continue
			}
			kept = append(kept, assignment)
			replaced = true
			continue
		}
		kept = append(kept, line)
	}
	d.lines = kept
	if !replaced {
		d.lines = append(d.lines, assignment)
	}
}

// Keys returns every assigned key in file order, without duplicates.
func (d *Document) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, line := range d.lines {
		if k, _, ok := parseAssignment(line); ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Save writes the document to path with a trailing newline.
func (d *Document) Save(path string) error {
	var content string
	if len(d.lines) > 0 {
		content = strings.Join(d.lines, "\n") + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	return nil
}

// parseAssignment splits a line into key and value. Comment lines and
// lines without '=' are not assignments.
func parseAssignment(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	idx := strings.Index(trimmed, "=")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(trimmed[:idx]), trimmed[idx+1:], true
}
