// Package identifier resolves a free-form user-supplied string (or cwd
// auto-detection) into a canonical workspace.WorkspaceTarget.
package identifier

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/loom-dev/loom/internal/loomerr"
	"github.com/loom-dev/loom/internal/workspace"
)

// Classifier probes the tracker to distinguish an ambiguous numeric input as
// an issue or a pull request. It is satisfied by internal/tracker.Tracker.
type Classifier interface {
	DetectInputType(ctx context.Context, raw string) (kind string, number int, err error)
}

// Options mirrors the subset of start/finish CLI options that influence
// resolution.
type Options struct {
	ExplicitPR int // > 0 when --pr was passed
}

var (
	prFormatPattern = regexp.MustCompile(`(?i)^pr[-/](\d+)$`)
	numericPattern  = regexp.MustCompile(`^0*(\d+)$`)
	prCwdPattern    = regexp.MustCompile(`_pr_(\d+)`)
	issueCwdPattern = regexp.MustCompile(`issue-(\d+)`)
)

// Resolve applies the resolution precedence chain:
// explicit --pr > PR-format identifier > numeric identifier (classified via
// the tracker) > branch-name identifier > cwd auto-detection.
func Resolve(ctx context.Context, input string, opts Options, cwd string, repoPath string, cl Classifier, vcsRunner VCSRunner) (workspace.WorkspaceTarget, error) {
	trimmed := strings.TrimSpace(input)

	if opts.ExplicitPR > 0 {
		return workspace.WorkspaceTarget{
			Kind:          workspace.KindPR,
			Number:        opts.ExplicitPR,
			OriginalInput: trimmed,
		}, nil
	}

	if trimmed == "" {
		return autoDetect(ctx, cwd, vcsRunner)
	}

	if m := prFormatPattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return workspace.WorkspaceTarget{}, loomerr.New(loomerr.InvalidIdentifier, "malformed PR number").WithInput(trimmed)
		}
		return workspace.WorkspaceTarget{Kind: workspace.KindPR, Number: n, OriginalInput: trimmed}, nil
	}

	if m := numericPattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return workspace.WorkspaceTarget{}, loomerr.New(loomerr.InvalidIdentifier, "malformed number").WithInput(trimmed)
		}
		if cl == nil {
			return workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: n, OriginalInput: trimmed}, nil
		}
		kind, number, err := cl.DetectInputType(ctx, trimmed)
		if err != nil {
			return workspace.WorkspaceTarget{}, loomerr.Wrap(loomerr.NetworkError, trimmed, err)
		}
		switch kind {
		case "issue":
			return workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: number, OriginalInput: trimmed}, nil
		case "pr":
			return workspace.WorkspaceTarget{Kind: workspace.KindPR, Number: number, OriginalInput: trimmed}, nil
		default:
			return workspace.WorkspaceTarget{}, loomerr.New(loomerr.UnknownNumber, "number is neither a known issue nor pull request").WithInput(trimmed)
		}
	}

	if err := workspace.ValidateBranchName(trimmed); err != nil {
		return workspace.WorkspaceTarget{}, loomerr.Wrap(loomerr.InvalidIdentifier, trimmed, err)
	}
	return workspace.WorkspaceTarget{Kind: workspace.KindBranch, BranchName: trimmed, OriginalInput: trimmed}, nil
}

// VCSRunner is the minimal surface of internal/vcs needed for auto-detection
// (current branch fallback). Kept as an interface so callers can inject a
// double in tests without spawning git.
type VCSRunner interface {
	CurrentBranch(ctx context.Context) (string, error)
}

func autoDetect(ctx context.Context, cwd string, vcsRunner VCSRunner) (workspace.WorkspaceTarget, error) {
	base := lastPathSegment(cwd)

	if m := prCwdPattern.FindStringSubmatch(base); m != nil {
		n, _ := strconv.Atoi(m[1])
		return workspace.WorkspaceTarget{Kind: workspace.KindPR, Number: n, OriginalInput: cwd}, nil
	}
	if m := issueCwdPattern.FindStringSubmatch(base); m != nil {
		n, _ := strconv.Atoi(m[1])
		return workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: n, OriginalInput: cwd}, nil
	}

	if vcsRunner == nil {
		return workspace.WorkspaceTarget{}, loomerr.New(loomerr.AutoDetectFailed, "no identifier given and no VCS context available").WithInput(cwd)
	}
	branch, err := vcsRunner.CurrentBranch(ctx)
	if err != nil || branch == "" {
		return workspace.WorkspaceTarget{}, loomerr.New(loomerr.AutoDetectFailed, "could not auto-detect a workspace from the current directory or branch").WithInput(cwd)
	}
	return workspace.WorkspaceTarget{Kind: workspace.KindBranch, BranchName: branch, OriginalInput: cwd}, nil
}

func lastPathSegment(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx == -1 {
		return p
	}
	return p[idx+1:]
}

// NewVCSRunner adapts any "current branch" lookup (typically
// internal/vcs.CurrentBranch bound to a shell.Runner and repo path) into the
// VCSRunner interface this package depends on, without importing
// internal/vcs directly.
func NewVCSRunner(cb func(ctx context.Context) (string, error)) VCSRunner {
	return funcVCSRunner(cb)
}

type funcVCSRunner func(ctx context.Context) (string, error)

func (f funcVCSRunner) CurrentBranch(ctx context.Context) (string, error) {
	return f(ctx)
}
