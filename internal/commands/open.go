package commands

import (
	"context"
	"flag"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/loom-dev/loom/internal/loomerr"
	"github.com/loom-dev/loom/internal/workspace"
)

// Open implements `loom open [identifier]`: locate an already-provisioned
// workspace and launch only its IDE window, without touching the dev
// server, agent, database, or dependency install. Without an identifier it
// presents an interactive picker over the registered workspaces instead of
// auto-detecting from cwd — "open" is how an operator jumps between
// contexts, so the whole set is the natural starting point.
func Open(args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}

	identifier := PositionalIdentifier(fs)

	var ws *workspace.Workspace
	if identifier == "" {
		ws, err = pickWorkspace(env)
		if err != nil {
			return err
		}
	} else {
		ws, err = env.Coordinator.Find(ctx, identifier)
		if err != nil {
			return loomerr.New(loomerr.NoWorktreeFound, "no workspace found for target").WithInput(identifier)
		}
	}

	if env.Coordinator.Supervisor != nil {
		if _, err := env.Coordinator.Supervisor.LaunchIDE(ws.Path); err != nil {
			return fmt.Errorf("launching IDE: %w", err)
		}
	}
	fmt.Println(ws.Path)
	return nil
}

// pickWorkspace lets the user select one of the registered workspaces whose
// worktree is still present.
func pickWorkspace(env *Environment) (*workspace.Workspace, error) {
	entries, err := env.Coordinator.List(env.RepoPath)
	if err != nil {
		return nil, err
	}

	byKey := map[string]workspace.Workspace{}
	var options []huh.Option[string]
	for _, e := range entries {
		if e.Missing {
			continue
		}
		ws := e.Workspace
		key := ws.Target.RegistryKey()
		byKey[key] = ws
		options = append(options, huh.NewOption(fmt.Sprintf("%s  (%s)", key, ws.Branch), key))
	}
	if len(options) == 0 {
		return nil, loomerr.New(loomerr.NoWorktreeFound, "no workspaces registered — run 'loom start' first to create one")
	}

	var selected string
	err = huh.NewSelect[string]().
		Title("Select workspace").
		Options(options...).
		Value(&selected).
		Run()
	if err != nil {
		return nil, fmt.Errorf("selection cancelled")
	}

	ws := byKey[selected]
	return &ws, nil
}
