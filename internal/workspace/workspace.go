// Package workspace defines the Workspace/WorkspaceTarget data model and the
// on-disk registry that tracks live workspaces for a repository.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TargetKind identifies what a WorkspaceTarget was resolved from.
type TargetKind string

const (
	KindIssue  TargetKind = "issue"
	KindPR     TargetKind = "pull-request"
	KindBranch TargetKind = "branch"
)

// WorkspaceTarget is the canonical result of resolving a user-supplied
// identifier: exactly one of Number/BranchName is meaningful, selected by Kind.
type WorkspaceTarget struct {
	Kind          TargetKind `json:"kind"`
	Number        int        `json:"number,omitempty"`
	BranchName    string     `json:"branchName,omitempty"`
	OriginalInput string     `json:"originalInput"`
}

// RegistryKey is the stable lookup key for a target within the registry:
// "issue:42", "pull-request:777", or "branch:<name>".
func (t WorkspaceTarget) RegistryKey() string {
	switch t.Kind {
	case KindBranch:
		return string(KindBranch) + ":" + t.BranchName
	default:
		return string(t.Kind) + ":" + fmt.Sprintf("%d", t.Number)
	}
}

// Workspace is a live, on-disk context owned by exactly one VCS worktree.
type Workspace struct {
	ID           string            `json:"id"`
	Target       WorkspaceTarget   `json:"target"`
	Path         string            `json:"path"`
	Branch       string            `json:"branch"`
	Port         int               `json:"port"`
	Capabilities []string          `json:"capabilities,omitempty"`
	BinEntries   map[string]string `json:"binEntries,omitempty"`
	CLISymlinks  []string          `json:"cliSymlinks,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// HasCapability reports whether the workspace was detected to support cap
// ("web" or "cli").
func (w Workspace) HasCapability(cap string) bool {
	for _, c := range w.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// CleanupOperation is one reported step of a cleanup run.
type CleanupOperation struct {
	Kind    string `json:"kind"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// CleanupResult is the structured, non-short-circuiting report returned by
// a cleanup operation: every step contributes exactly one operation entry.
type CleanupResult struct {
	Target           WorkspaceTarget    `json:"target"`
	Success          bool               `json:"success"`
	Operations       []CleanupOperation `json:"operations"`
	Errors           []string           `json:"errors,omitempty"`
	RollbackRequired bool               `json:"rollbackRequired"`
}

// WorkContext holds the resolved context for the current working environment
// (which on-disk tree a command should operate against).
type WorkContext struct {
	Target  WorkspaceTarget
	WorkDir string
	EnvPath string
}

var branchNamePattern = regexp.MustCompile(`^[^\s@#\x00-\x1f]+$`)

// ValidateBranchName rejects identifiers containing '@', '#', whitespace, or
// control characters, per the VCS ref grammar.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name must not be empty")
	}
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("invalid branch name %q: must not contain whitespace, '@', '#', or control characters", name)
	}
	return nil
}

// WorkspacePath returns the workspace directory:
// <repoPath>/.loom/workspaces/<key>/
func WorkspacePath(repoPath, key string) string {
	return filepath.Join(repoPath, ".loom", "workspaces", sanitizeKey(key))
}

// sanitizeKey makes a registry key filesystem-safe (registry keys may
// contain ':' and '/').
func sanitizeKey(key string) string {
	r := strings.NewReplacer(":", "-", "/", "-")
	return r.Replace(key)
}

// DetectCurrent parses cwd for a .loom/workspaces/<key>/tree path segment.
// Returns (key, true) if inside a workspace tree, or ("", false) otherwise.
func DetectCurrent(cwd string) (string, bool) {
	normalized := filepath.ToSlash(cwd)

	const marker = ".loom/workspaces/"
	_, rest, found := strings.Cut(normalized, marker)
	if !found {
		return "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return "", false
	}
	key := parts[0]
	if parts[1] != "tree" {
		return "", false
	}
	if key == "" {
		return "", false
	}
	return key, true
}

// registryEntry is the JSON structure stored in workspaces.json.
type registryEntry struct {
	Key       string    `json:"key"`
	Workspace Workspace `json:"workspace"`
	Missing   bool      `json:"missing,omitempty"`
}

func registryPath(repoPath string) string {
	return filepath.Join(repoPath, ".loom", "state", "workspaces.json")
}

func readRegistry(repoPath string) ([]registryEntry, error) {
	data, err := os.ReadFile(registryPath(repoPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workspaces registry: %w", err)
	}
	var entries []registryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing workspaces registry: %w", err)
	}
	return entries, nil
}

func writeRegistry(repoPath string, entries []registryEntry) error {
	dir := filepath.Dir(registryPath(repoPath))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling workspaces registry: %w", err)
	}
	return os.WriteFile(registryPath(repoPath), data, 0644)
}

// RegistryCreate adds a workspace to the registry, keyed by its target.
func RegistryCreate(repoPath string, ws Workspace) error {
	key := ws.Target.RegistryKey()
	entries, err := readRegistry(repoPath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Key == key {
			return fmt.Errorf("workspace %q already exists in registry", key)
		}
	}
	entries = append(entries, registryEntry{Key: key, Workspace: ws})
	return writeRegistry(repoPath, entries)
}

// RegistryList returns all registered workspaces.
func RegistryList(repoPath string) ([]Workspace, error) {
	entries, err := readRegistry(repoPath)
	if err != nil {
		return nil, err
	}
	result := make([]Workspace, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.Workspace)
	}
	return result, nil
}

// WorkspaceEntry represents a workspace with its missing status, for list
// output.
type WorkspaceEntry struct {
	Workspace Workspace
	Missing   bool
}

// RegistryListWithMissing returns all registered workspaces with a missing
// flag for workspaces whose directories no longer exist.
func RegistryListWithMissing(repoPath string) ([]WorkspaceEntry, error) {
	entries, err := readRegistry(repoPath)
	if err != nil {
		return nil, err
	}
	result := make([]WorkspaceEntry, 0, len(entries))
	for _, e := range entries {
		entry := WorkspaceEntry{Workspace: e.Workspace}
		if _, statErr := os.Stat(e.Workspace.Path); os.IsNotExist(statErr) {
			entry.Missing = true
		}
		result = append(result, entry)
	}
	return result, nil
}

// RegistryGet returns a single workspace from the registry by target.
func RegistryGet(repoPath string, target WorkspaceTarget) (*Workspace, error) {
	key := target.RegistryKey()
	entries, err := readRegistry(repoPath)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Key == key {
			ws := e.Workspace
			return &ws, nil
		}
	}
	return nil, fmt.Errorf("workspace %q not found", key)
}

// RegistryUpdate overwrites an existing registry entry (used after a reuse
// path re-materializes the env file or port).
func RegistryUpdate(repoPath string, ws Workspace) error {
	key := ws.Target.RegistryKey()
	entries, err := readRegistry(repoPath)
	if err != nil {
		return err
	}
	found := false
	for i, e := range entries {
		if e.Key == key {
			entries[i].Workspace = ws
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("workspace %q not found in registry", key)
	}
	return writeRegistry(repoPath, entries)
}

// RegistryRemove removes a workspace from the registry by target.
func RegistryRemove(repoPath string, target WorkspaceTarget) error {
	key := target.RegistryKey()
	entries, err := readRegistry(repoPath)
	if err != nil {
		return err
	}
	found := false
	remaining := make([]registryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Key == key {
			found = true
			continue
		}
		remaining = append(remaining, e)
	}
	if !found {
		return fmt.Errorf("workspace %q not found in registry", key)
	}
	return writeRegistry(repoPath, remaining)
}

// ReadWorkspaceJSON reads the workspace.json sidecar from a workspace directory.
func ReadWorkspaceJSON(path string) (*Workspace, error) {
	data, err := os.ReadFile(filepath.Join(path, "workspace.json"))
	if err != nil {
		return nil, fmt.Errorf("reading workspace.json: %w", err)
	}
	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parsing workspace.json: %w", err)
	}
	return &ws, nil
}

// WriteWorkspaceJSON writes the workspace.json sidecar into a workspace
// directory (dir is the workspace directory, not the tree/ subdirectory).
func WriteWorkspaceJSON(dir string, ws Workspace) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating workspace directory: %w", err)
	}
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling workspace.json: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "workspace.json"), data, 0644)
}

// ResolveWorkContext maps an already-resolved target onto its registry
// entry's paths (worktree and .env). With a nil target it falls back to
// repoPath as the work directory, except that a repoPath inside a
// .loom/workspaces/<key>/tree directory is an error: a bare key is not
// turned into a target here. Auto-detection from cwd is handled by
// internal/identifier.
func ResolveWorkContext(repoPath string, target *WorkspaceTarget) (WorkContext, error) {
	if target == nil {
		if key, ok := DetectCurrent(repoPath); ok {
			return WorkContext{}, fmt.Errorf("cannot resolve target from bare key %q without a registry lookup", key)
		}
		return WorkContext{WorkDir: repoPath}, nil
	}
	ws, err := RegistryGet(repoPath, *target)
	if err != nil {
		return WorkContext{}, err
	}
	return WorkContext{
		Target:  ws.Target,
		WorkDir: ws.Path,
		EnvPath: filepath.Join(ws.Path, ".env"),
	}, nil
}
