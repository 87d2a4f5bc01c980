// Package capability is the capability detector: it classifies a workspace
// as {web, cli, neither, both} by reading its package manifest, the same
// os.ReadFile-plus-json.Unmarshal idiom internal/workspace uses for its own
// JSON sidecars.
package capability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	Web = "web"
	CLI = "cli"
)

// Detected is the result of detecting a workspace's capabilities.
type Detected struct {
	Capabilities []string
	BinEntries   map[string]string
}

// HasCapability reports whether cap was detected.
func (d Detected) HasCapability(cap string) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

type packageManifest struct {
	Name    string            `json:"name"`
	Scripts map[string]string `json:"scripts"`
	Bin     json.RawMessage   `json:"bin"`
}

// Detect reads <path>/package.json and classifies the workspace. A missing
// or unparsable manifest yields an empty Detected ("neither"), not an error
// — capability detection is best-effort, not load-bearing for lifecycle
// steps that don't depend on it.
func Detect(path string) Detected {
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return Detected{}
	}

	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Detected{}
	}

	var caps []string
	if hasWebScript(manifest.Scripts) {
		caps = append(caps, Web)
	}
	binEntries := parseBinEntries(manifest.Bin, manifest.Name)
	if len(binEntries) > 0 {
		caps = append(caps, CLI)
	}

	return Detected{Capabilities: caps, BinEntries: binEntries}
}

// hasWebScript reports whether scripts.dev or scripts.start exists. Any
// dev/start script implies a listen port — servers without an explicit
// --port/PORT= token fall back to their framework default.
func hasWebScript(scripts map[string]string) bool {
	for _, key := range []string{"dev", "start"} {
		if scripts[key] != "" {
			return true
		}
	}
	return false
}

// parseBinEntries normalizes package.json's "bin" field, which may be a
// single string (keyed by the package's own name) or a map of name->path,
// into a name->relative-path mapping.
func parseBinEntries(raw json.RawMessage, packageName string) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil && len(asMap) > 0 {
		return asMap
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" && packageName != "" {
		return map[string]string{packageName: asString}
	}
	return nil
}

// CreateSymlinks materializes one symlink per bin entry under binDir, named
// "<binName>-<number>" and pointing at <workspacePath>/<relativeBinPath>, so
// a workspace's CLI entry points don't collide with another workspace's. A
// failure linking one entry does not prevent the others — symlink creation
// is best-effort, never fatal for workspace creation.
func CreateSymlinks(binDir, workspacePath string, number int, entries map[string]string) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return nil, fmt.Errorf("creating bin directory: %w", err)
	}

	var created []string
	var firstErr error
	for name, rel := range entries {
		linkName := fmt.Sprintf("%s-%d", name, number)
		linkPath := filepath.Join(binDir, linkName)
		target := filepath.Join(workspacePath, rel)

		_ = os.Remove(linkPath)
		if err := os.Symlink(target, linkPath); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("linking %s: %w", linkName, err)
			}
			continue
		}
		created = append(created, linkPath)
	}
	return created, firstErr
}

// RemoveSymlinks removes every symlink path in links, ignoring entries that
// are already gone.
func RemoveSymlinks(links []string) error {
	var firstErr error
	for _, link := range links {
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
