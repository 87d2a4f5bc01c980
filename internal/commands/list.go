package commands

import (
	"context"
	"flag"
	"fmt"

	"github.com/loom-dev/loom/internal/tui"
	"github.com/loom-dev/loom/internal/workspace"
)

// List implements the `loom list` subcommand: a read-only view over every
// registered workspace. The default output is plain tab-separated lines for
// scripting; --watch opens the interactive overview with live agent session
// logs instead.
func List(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	watch := fs.Bool("watch", false, "interactive overview with live agent session logs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}

	entries, err := env.Coordinator.List(env.RepoPath)
	if err != nil {
		return err
	}

	if *watch {
		return tui.RunOverview(workspaceRows(entries))
	}

	printWorkspaceList(entries)
	return nil
}

func workspaceRows(entries []workspace.WorkspaceEntry) []tui.WorkspaceRow {
	rows := make([]tui.WorkspaceRow, 0, len(entries))
	for _, e := range entries {
		ws := e.Workspace
		rows = append(rows, tui.WorkspaceRow{
			Key:     ws.Target.RegistryKey(),
			Branch:  ws.Branch,
			Port:    ws.Port,
			Path:    ws.Path,
			Missing: e.Missing,
		})
	}
	return rows
}

func printWorkspaceList(entries []workspace.WorkspaceEntry) {
	if len(entries) == 0 {
		fmt.Println("no workspaces registered")
		return
	}
	for _, e := range entries {
		status := ""
		if e.Missing {
			status = " (missing)"
		}
		ws := e.Workspace
		fmt.Printf("%s\t%s\tport %d\t%s%s\n", ws.Target.RegistryKey(), ws.Branch, ws.Port, ws.Path, status)
	}
}
