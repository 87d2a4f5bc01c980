package commands

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/shell"
	"github.com/loom-dev/loom/internal/vcs"
)

// Init implements `loom init`: scaffolds .loom/settings.json with the
// built-in defaults in the current repository root.
func Init(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := AddForceFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	repoRoot, err := vcs.MainRepoPath(ctx, &shell.Runner{Dir: cwd})
	if err != nil {
		return fmt.Errorf("resolving repository root: %w", err)
	}

	settingsDir := filepath.Join(repoRoot, ".loom")
	settingsPath := filepath.Join(settingsDir, "settings.json")

	if _, err := os.Stat(settingsPath); err == nil && !*force {
		return fmt.Errorf("%s already exists; use --force to overwrite", settingsPath)
	}

	if err := os.MkdirAll(settingsDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", settingsDir, err)
	}

	defaults := config.Defaults()
	defaults.Workflows = map[string]config.WorkflowConfig{
		"issue":        {PermissionMode: "acceptEdits"},
		"pull-request": {PermissionMode: "plan"},
		"branch":       {PermissionMode: "default"},
	}

	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling default settings: %w", err)
	}
	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", settingsPath, err)
	}

	fmt.Printf("wrote %s\n", settingsPath)
	fmt.Printf("credentials: set LINEAR_API_KEY/GITHUB_TOKEN or populate %s\n", "~/.loom-credentials/credentials.yaml")
	return nil
}
