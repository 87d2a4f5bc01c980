// Package cleanup tears down everything workspace creation accumulated: the
// dev server, database branch, worktree, local branch, and symlinks. A
// single returned error would short-circuit after the first failed step, so
// Run instead records one CleanupOperation per step and keeps going
// regardless of earlier failures.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/dbbranch"
	"github.com/loom-dev/loom/internal/envfile"
	"github.com/loom-dev/loom/internal/procsup"
	"github.com/loom-dev/loom/internal/shell"
	"github.com/loom-dev/loom/internal/vcs"
	"github.com/loom-dev/loom/internal/workspace"
)

// Options controls which cleanup steps mutate and which are skipped.
type Options struct {
	DryRun       bool
	Force        bool
	DeleteBranch bool
	KeepDatabase bool
}

// Deps collects the collaborators Run needs, injected so callers can supply
// fakes in tests.
type Deps struct {
	DB         dbbranch.Provider
	MainBranch string
	DBURLKey   string
}

func op(kind string, success bool, message string, err error) workspace.CleanupOperation {
	o := workspace.CleanupOperation{Kind: kind, Success: success, Message: message}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

func prefixed(dryRun bool, message string) string {
	if dryRun {
		return "[DRY RUN] " + message
	}
	return message
}

// forgetWorkspace drops the registry entry and metadata directory once the
// worktree itself is gone, so a removed workspace does not linger forever as
// a "missing" row in `loom list` — a workspace exists iff its worktree
// exists. Best-effort: the worktree is already gone either way.
func forgetWorkspace(repoPath string, target workspace.WorkspaceTarget) {
	_ = os.RemoveAll(workspace.WorkspacePath(repoPath, target.RegistryKey()))
	_ = workspace.RegistryRemove(repoPath, target)
}

// Run tears down a single workspace, recording one operation per step
// regardless of earlier failures. success is false iff the worktree could
// not be removed — every other step failure is reported but non-fatal to
// the overall result.
func Run(ctx context.Context, repoPath string, ws workspace.Workspace, deps Deps, opts Options) workspace.CleanupResult {
	result := workspace.CleanupResult{Target: ws.Target, Success: true}

	// Step 1: pre-read env file, capturing DB connection details before the
	// worktree (and the env file with it) is removed.
	envFilePath := filepath.Join(ws.Path, ".env")
	dbURL := ""
	if opts.DryRun {
		result.Operations = append(result.Operations, op("env-file", true,
			prefixed(true, "would read "+envFilePath), nil))
	} else if v, ok := envfile.ReadEnvVar(envFilePath, deps.DBURLKey); ok {
		dbURL = v
		result.Operations = append(result.Operations, op("env-file", true, "read "+envFilePath, nil))
	} else {
		result.Operations = append(result.Operations, op("env-file", true, "no env file to read", nil))
	}
	_ = dbURL // captured for diagnostics; the provider tears down by workspace name, not URL

	// Step 2: terminate dev server.
	if opts.DryRun {
		result.Operations = append(result.Operations, op("dev-server", true,
			prefixed(true, "would terminate dev server"), nil))
	} else {
		var desc *procsup.DevServerDescriptor
		if ws.Port != 0 {
			desc = &procsup.DevServerDescriptor{Port: ws.Port}
		}
		if desc == nil {
			result.Operations = append(result.Operations, op("dev-server", true, "no dev server to terminate", nil))
		} else if err := procsup.TerminateFor(desc); err != nil {
			result.Operations = append(result.Operations, op("dev-server", false, "failed to terminate dev server", err))
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Operations = append(result.Operations, op("dev-server", true, "terminated dev server", nil))
		}
	}

	// Step 3: delete database branch unless keepDatabase.
	branchName := ws.Target.RegistryKey()
	if opts.KeepDatabase {
		result.Operations = append(result.Operations, op("database", true, "kept database branch", nil))
	} else if opts.DryRun {
		result.Operations = append(result.Operations, op("database", true,
			prefixed(true, "would delete database branch "+branchName), nil))
	} else if deps.DB == nil {
		result.Operations = append(result.Operations, op("database", true, "no database provider configured", nil))
	} else {
		deleted, err := deps.DB.DeleteBranchIfConfigured(ctx, branchName)
		if err != nil {
			result.Operations = append(result.Operations, op("database", false, "failed to delete database branch", err))
			result.Errors = append(result.Errors, err.Error())
		} else if deleted {
			result.Operations = append(result.Operations, op("database", true, "deleted database branch", nil))
		} else {
			result.Operations = append(result.Operations, op("database", true, "no database branch to delete", nil))
		}
	}

	// Step 4: remove worktree (force). Missing worktree is skipped, not
	// failed, but every other step still runs.
	r := &shell.Runner{Dir: repoPath}
	if _, err := os.Stat(ws.Path); os.IsNotExist(err) {
		result.Operations = append(result.Operations, op("worktree", true, "worktree already removed", nil))
		forgetWorkspace(repoPath, ws.Target)
	} else if opts.DryRun {
		result.Operations = append(result.Operations, op("worktree", true,
			prefixed(true, "would remove worktree "+ws.Path), nil))
	} else if err := vcs.RemoveWorktree(ctx, r, repoPath, ws.Path, opts.Force); err != nil {
		result.Operations = append(result.Operations, op("worktree", false, "failed to remove worktree", err))
		result.Errors = append(result.Errors, err.Error())
		result.Success = false
	} else {
		result.Operations = append(result.Operations, op("worktree", true, "removed worktree", nil))
		forgetWorkspace(repoPath, ws.Target)
	}

	// Step 5: delete local branch iff deleteBranch, not protected, and
	// either force or fully merged into mainBranch.
	if !opts.DeleteBranch {
		result.Operations = append(result.Operations, op("branch", true, "branch deletion not requested", nil))
	} else if opts.DryRun {
		result.Operations = append(result.Operations, op("branch", true,
			prefixed(true, "would delete branch "+ws.Branch), nil))
	} else {
		protected, _ := config.GetProtectedBranches(repoPath)
		protected = append(protected, deps.MainBranch)
		isProtected := false
		for _, p := range protected {
			if p == ws.Branch {
				isProtected = true
			}
		}
		merged := opts.Force
		if !merged {
			ancestor, err := vcs.IsAncestor(ctx, r, ws.Branch, deps.MainBranch)
			merged = err == nil && ancestor
		}
		if isProtected {
			result.Operations = append(result.Operations, op("branch", true, "branch "+ws.Branch+" is protected, skipped", nil))
		} else if !merged {
			result.Operations = append(result.Operations, op("branch", true, "branch not fully merged, skipped", nil))
		} else if err := vcs.DeleteBranch(ctx, r, ws.Branch); err != nil {
			result.Operations = append(result.Operations, op("branch", false, "failed to delete branch", err))
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Operations = append(result.Operations, op("branch", true, "deleted branch "+ws.Branch, nil))
		}
	}

	// Step 6: remove per-workspace CLI symlinks.
	if len(ws.CLISymlinks) == 0 {
		result.Operations = append(result.Operations, op("symlinks", true, "no symlinks to remove", nil))
	} else if opts.DryRun {
		result.Operations = append(result.Operations, op("symlinks", true,
			prefixed(true, fmt.Sprintf("would remove %d symlinks", len(ws.CLISymlinks))), nil))
	} else {
		failed := 0
		for _, link := range ws.CLISymlinks {
			if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
				failed++
				result.Errors = append(result.Errors, err.Error())
			}
		}
		if failed > 0 {
			result.Operations = append(result.Operations, op("symlinks", false,
				fmt.Sprintf("failed to remove %d/%d symlinks", failed, len(ws.CLISymlinks)), nil))
		} else {
			result.Operations = append(result.Operations, op("symlinks", true, "removed symlinks", nil))
		}
	}

	return result
}

// RunMultiple implements cleanupMultiple: runs Run sequentially over
// targets, one target's failure never halting the others.
func RunMultiple(ctx context.Context, repoPath string, targets []workspace.Workspace, deps Deps, opts Options) []workspace.CleanupResult {
	results := make([]workspace.CleanupResult, 0, len(targets))
	for _, ws := range targets {
		results = append(results, Run(ctx, repoPath, ws, deps, opts))
	}
	return results
}
