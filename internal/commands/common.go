// Package commands is the thin CLI surface: argument parsing, environment
// assembly, and dispatch into internal/lifecycle. It deliberately contains
// no lifecycle logic of its own — every subcommand resolves a Coordinator
// from common.go and hands off to it immediately.
package commands

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/credentials"
	"github.com/loom-dev/loom/internal/dbbranch"
	"github.com/loom-dev/loom/internal/lifecycle"
	"github.com/loom-dev/loom/internal/procsup"
	"github.com/loom-dev/loom/internal/shell"
	"github.com/loom-dev/loom/internal/tracker"
	"github.com/loom-dev/loom/internal/tracker/github"
	"github.com/loom-dev/loom/internal/tracker/linear"
	"github.com/loom-dev/loom/internal/vcs"
)

// AddForceFlag adds the shared --force/-f flag to a FlagSet.
func AddForceFlag(fs *flag.FlagSet) *bool {
	f := fs.Bool("force", false, "skip confirmations; permit closed-state finish; force branch deletion on cleanup")
	fs.BoolVar(f, "f", false, "shorthand for --force")
	return f
}

// AddDryRunFlag adds the shared --dry-run flag to a FlagSet.
func AddDryRunFlag(fs *flag.FlagSet) *bool {
	return fs.Bool("dry-run", false, "preview only; no mutating I/O")
}

// AddPRFlag adds the shared --pr flag to a FlagSet.
func AddPRFlag(fs *flag.FlagSet) *int {
	return fs.Int("pr", 0, "force pull-request interpretation of the identifier")
}

// AddNoVerifyFlag adds the shared --no-verify flag to a FlagSet.
func AddNoVerifyFlag(fs *flag.FlagSet) *bool {
	return fs.Bool("no-verify", false, "bypass pre-commit hooks at commit time")
}

// AddSetFlag adds the shared --set key=value runtime override flag,
// collecting repeated occurrences.
func AddSetFlag(fs *flag.FlagSet) *stringSliceFlag {
	v := &stringSliceFlag{}
	fs.Var(v, "set", "runtime settings override key=value (repeatable)")
	return v
}

type stringSliceFlag struct{ values []string }

func (s *stringSliceFlag) String() string { return fmt.Sprint(s.values) }
func (s *stringSliceFlag) Set(v string) error {
	s.values = append(s.values, v)
	return nil
}

// PositionalIdentifier returns the first positional argument, or "" when
// absent (the resolver then auto-detects from cwd).
func PositionalIdentifier(fs *flag.FlagSet) string {
	if fs.NArg() == 0 {
		return ""
	}
	return fs.Arg(0)
}

// Environment bundles everything a command needs to construct a
// lifecycle.Coordinator: the resolved repo root, merged settings, and the
// coordinator itself wired to production collaborators.
type Environment struct {
	RepoPath    string
	Settings    *config.Settings
	Coordinator *lifecycle.Coordinator
}

// ResolveEnvironment discovers the repository root from cwd, loads and
// validates settings, resolves credentials, and constructs a ready-to-use
// Coordinator with one production implementation per collaborator.
func ResolveEnvironment(ctx context.Context, overrides config.Settings) (*Environment, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	repoRoot, err := vcs.MainRepoPath(ctx, &shell.Runner{Dir: cwd})
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}

	settings, err := config.Load(repoRoot, overrides)
	if err != nil {
		return nil, err
	}

	creds, credErr := credentials.Resolve(credentials.DefaultPath(), os.Getenv("LOOM_PROFILE"))

	var trk tracker.Tracker
	if credErr == nil {
		composite := &tracker.Composite{
			Owner:   os.Getenv("LOOM_GITHUB_OWNER"),
			Repo:    os.Getenv("LOOM_GITHUB_REPO"),
			TeamKey: os.Getenv("LOOM_LINEAR_TEAM_KEY"),
		}
		if creds.GithubToken != "" {
			if gh, err := github.New(creds.GithubToken); err == nil {
				composite.GitHub = gh
			}
		}
		if creds.LinearAPIKey != "" {
			composite.Linear = linear.New(creds.LinearAPIKey)
		}
		if composite.GitHub != nil || composite.Linear != nil {
			trk = composite
		}
	}

	db := dbbranch.New(dbbranch.Config{
		BaseURL:   os.Getenv("LOOM_DB_PROVIDER_URL"),
		Token:     os.Getenv("LOOM_DB_PROVIDER_TOKEN"),
		ProjectID: os.Getenv("LOOM_DB_PROJECT_ID"),
	})

	supervisor := &procsup.Supervisor{
		IDECommand:   os.Getenv("LOOM_IDE_COMMAND"),
		AgentCommand: os.Getenv("LOOM_AGENT_COMMAND"),
	}

	coord := &lifecycle.Coordinator{
		RepoPath:   repoRoot,
		Settings:   settings,
		Tracker:    trk,
		DB:         db,
		Supervisor: supervisor,
		BinDir:     os.Getenv("LOOM_BIN_DIR"),
	}

	return &Environment{RepoPath: repoRoot, Settings: settings, Coordinator: coord}, nil
}

// settingsOverridesFromSet parses --set key=value pairs into a
// config.Settings sparse overlay. Only the handful of scalar fields that
// make sense as one-off CLI overrides are supported; anything else is
// silently ignored — a narrow escape hatch, not a full settings editor.
func settingsOverridesFromSet(pairs []string) config.Settings {
	var s config.Settings
	for _, kv := range pairs {
		key, value, ok := splitKV(kv)
		if !ok {
			continue
		}
		switch key {
		case "mainBranch":
			s.MainBranch = value
		case "worktreePrefix":
			s.WorktreePrefix = value
		case "capabilities.web.basePort":
			fmt.Sscanf(value, "%d", &s.Capabilities.Web.BasePort)
		case "capabilities.database.databaseUrlEnvVarName":
			s.Capabilities.Database.DatabaseURLEnvVarName = value
		}
	}
	return s
}

func splitKV(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
