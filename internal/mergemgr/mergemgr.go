// Package mergemgr is the merge manager: it wraps internal/vcs's rebase and
// fast-forward primitives into the two finish-time operations, mapping
// their outcomes onto loomerr's taxonomy instead of returning raw
// *shell.ExitError.
package mergemgr

import (
	"context"
	"fmt"

	"github.com/loom-dev/loom/internal/loomerr"
	"github.com/loom-dev/loom/internal/shell"
	"github.com/loom-dev/loom/internal/vcs"
)

// RebaseOutcome is the result of rebasing a workspace branch onto the
// latest mainline.
type RebaseOutcome struct {
	Success   bool
	Conflicts []string
}

// RebaseOntoMain rebases the worktree's current branch onto the local
// mainline, returning the conflicting files (if any) rather than erroring —
// a rebase conflict is an expected, recoverable outcome, not a failure of
// the merge manager itself. The local mainline is the rebase target because
// it is also the fast-forward target of the finish pipeline's next step; a
// repository with no remote works the same as one with.
func RebaseOntoMain(ctx context.Context, treePath, mainBranch string) (RebaseOutcome, error) {
	r := &shell.Runner{Dir: treePath}

	result, err := vcs.Rebase(ctx, r, mainBranch)
	if err != nil {
		return RebaseOutcome{}, loomerr.Wrap(loomerr.CommandFailed, "git rebase", err)
	}
	if result.HasConflicts {
		return RebaseOutcome{Conflicts: result.Conflicts}, nil
	}
	return RebaseOutcome{Success: true}, nil
}

// ContinueRebase resumes a conflicted rebase after the caller has resolved
// and staged the conflicting files.
func ContinueRebase(ctx context.Context, treePath string) (RebaseOutcome, error) {
	r := &shell.Runner{Dir: treePath}
	result, err := vcs.ContinueRebase(ctx, r)
	if err != nil {
		return RebaseOutcome{}, loomerr.Wrap(loomerr.CommandFailed, "git rebase --continue", err)
	}
	if result.HasConflicts {
		return RebaseOutcome{Conflicts: result.Conflicts}, nil
	}
	return RebaseOutcome{Success: true}, nil
}

// AbortRebase abandons a rebase in progress, restoring the pre-rebase HEAD.
func AbortRebase(ctx context.Context, treePath string) error {
	r := &shell.Runner{Dir: treePath}
	if err := vcs.AbortRebase(ctx, r); err != nil {
		return loomerr.Wrap(loomerr.CommandFailed, "git rebase --abort", err)
	}
	return nil
}

// FastForwardMerge checks out mainBranch in the main repository and fast
// forwards it to branch. A non-fast-forward (mainline has diverged) is
// reported as loomerr.NotFastForward rather than a generic command failure,
// so callers can distinguish it from an unrelated git error.
func FastForwardMerge(ctx context.Context, repoPath, mainBranch, branch string) error {
	r := &shell.Runner{Dir: repoPath}
	if _, err := r.Run(ctx, "git", "checkout", mainBranch); err != nil {
		return loomerr.Wrap(loomerr.CommandFailed, "git checkout "+mainBranch, err)
	}
	if err := vcs.FastForward(ctx, r, branch); err != nil {
		return loomerr.New(loomerr.NotFastForward,
			fmt.Sprintf("%s is not a fast-forward of %s", mainBranch, branch))
	}
	return nil
}

// SquashMerge checks out baseBranch, squash-merges featureBranch into it,
// and commits with the given message — the PR-workflow counterpart to
// FastForwardMerge, delegating to vcs.SquashMerge verbatim.
func SquashMerge(ctx context.Context, repoPath, featureBranch, baseBranch, commitMsg string) error {
	r := &shell.Runner{Dir: repoPath}
	if err := vcs.SquashMerge(ctx, r, repoPath, featureBranch, baseBranch, commitMsg); err != nil {
		return loomerr.Wrap(loomerr.CommandFailed, "git merge --squash", err)
	}
	return nil
}
