package commands

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/charmbracelet/huh"

	"github.com/loom-dev/loom/internal/lifecycle"
	"github.com/loom-dev/loom/internal/loomerr"
)

// Cleanup implements the `loom cleanup [identifier]` subcommand, with its
// --all/--list/--issue mode flags.
func Cleanup(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	force := AddForceFlag(fs)
	dryRun := AddDryRunFlag(fs)
	all := fs.Bool("all", false, "clean up every registered workspace")
	list := fs.Bool("list", false, "list registered workspaces without mutating anything")
	issueNumber := fs.Int("issue", 0, "clean up the workspace for this issue number only")
	deleteBranch := fs.Bool("delete-branch", false, "also delete the local branch")
	keepDatabase := fs.Bool("keep-database", false, "do not delete the provisioned database branch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := PositionalIdentifier(fs)

	mode := lifecycle.CleanupSingle
	switch {
	case *list:
		mode = lifecycle.CleanupList
	case *all:
		mode = lifecycle.CleanupAll
	case *issueNumber != 0:
		mode = lifecycle.CleanupByNumber
	}
	if mode != lifecycle.CleanupSingle && input != "" {
		return loomerr.New(loomerr.OptionConflict, "cleanup mode flags do not take an identifier").WithInput(input)
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}

	if mode == lifecycle.CleanupList {
		entries, err := env.Coordinator.List(env.RepoPath)
		if err != nil {
			return err
		}
		printWorkspaceList(entries)
		return nil
	}

	if mode == lifecycle.CleanupSingle && !*force {
		if !confirm(fmt.Sprintf("Clean up workspace %q?", input)) {
			log.Printf("[loom] aborted")
			return nil
		}
	}

	results, err := env.Coordinator.Cleanup(ctx, lifecycle.CleanupOptions{
		Mode:         mode,
		Input:        input,
		IssueNumber:  *issueNumber,
		Force:        *force,
		DryRun:       *dryRun,
		DeleteBranch: *deleteBranch || *force,
		KeepDatabase: *keepDatabase,
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		printCleanupResult(r)
	}
	return nil
}

// confirm asks the user to approve a destructive action. A cancelled form
// (ctrl+c, esc) counts as "no".
func confirm(prompt string) bool {
	var approved bool
	err := huh.NewConfirm().
		Title(prompt).
		Affirmative("Clean up").
		Negative("Keep it").
		Value(&approved).
		Run()
	return err == nil && approved
}
