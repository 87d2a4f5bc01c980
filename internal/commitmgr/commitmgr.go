// Package commitmgr is the commit manager: it detects working-copy state
// (`git status --porcelain` parsed into WorkingCopyStatus) and records
// commits ahead of a finish.
package commitmgr

import (
	"context"
	"strconv"
	"strings"

	"github.com/loom-dev/loom/internal/loomerr"
	"github.com/loom-dev/loom/internal/shell"
	"github.com/loom-dev/loom/internal/vcs"
)

// WorkingCopyStatus is the result of detectUncommittedChanges.
type WorkingCopyStatus struct {
	HasUncommittedChanges bool
	UnstagedFiles         []string
	StagedFiles           []string
	CurrentBranch         string
	IsAheadOfRemote       int
	IsBehindRemote        int
}

// DetectUncommittedChanges inspects path's working copy: which files are
// staged vs. unstaged, the current branch, and how far it has diverged from
// its upstream.
func DetectUncommittedChanges(ctx context.Context, path string) (WorkingCopyStatus, error) {
	r := &shell.Runner{Dir: path}

	branch, err := vcs.CurrentBranch(ctx, r)
	if err != nil {
		return WorkingCopyStatus{}, loomerr.Wrap(loomerr.CommandFailed, "git rev-parse", err)
	}

	out, err := r.Run(ctx, "git", "status", "--porcelain")
	if err != nil {
		return WorkingCopyStatus{}, loomerr.Wrap(loomerr.CommandFailed, "git status", err)
	}

	var staged, unstaged []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		indexStatus, worktreeStatus, file := line[0], line[1], strings.TrimSpace(line[3:])
		if indexStatus != ' ' && indexStatus != '?' {
			staged = append(staged, file)
		}
		if worktreeStatus != ' ' {
			unstaged = append(unstaged, file)
		}
	}

	ahead, behind := 0, 0
	if counts, err := r.Run(ctx, "git", "rev-list", "--left-right", "--count", "@{u}...HEAD"); err == nil {
		fields := strings.Fields(counts)
		if len(fields) == 2 {
			behind, _ = strconv.Atoi(fields[0])
			ahead, _ = strconv.Atoi(fields[1])
		}
	}

	return WorkingCopyStatus{
		HasUncommittedChanges: len(staged) > 0 || len(unstaged) > 0,
		UnstagedFiles:         unstaged,
		StagedFiles:           staged,
		CurrentBranch:         branch,
		IsAheadOfRemote:       ahead,
		IsBehindRemote:        behind,
	}, nil
}

// CommitChanges stages all tracked and untracked changes and commits them
// with message. A clean working copy (nothing to commit) is not an error —
// the finish pipeline treats it the same as a successful commit.
func CommitChanges(ctx context.Context, path, message string, noVerify bool) error {
	r := &shell.Runner{Dir: path}
	if _, err := r.Run(ctx, "git", "add", "-A"); err != nil {
		return loomerr.Wrap(loomerr.CommandFailed, "git add", err)
	}

	args := []string{"commit", "-m", message}
	if noVerify {
		args = append(args, "--no-verify")
	}
	if _, err := r.Run(ctx, "git", args...); err != nil {
		if isNothingToCommit(ctx, r) {
			return nil
		}
		return loomerr.Wrap(loomerr.CommandFailed, "git commit", err)
	}
	return nil
}

// isNothingToCommit reports whether there was nothing staged to commit: the
// working copy is clean after `git add -A`.
func isNothingToCommit(ctx context.Context, r *shell.Runner) bool {
	status, err := r.Run(ctx, "git", "status", "--porcelain")
	return err == nil && strings.TrimSpace(status) == ""
}
