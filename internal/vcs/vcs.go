// Package vcs is the version-control adapter: worktree lifecycle, branch
// discovery, rebase/fast-forward, all shelled out to git through
// internal/shell.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/loom-dev/loom/internal/shell"
)

// Worktree describes one entry from `git worktree list --porcelain`.
type Worktree struct {
	Path     string
	Branch   string // empty when detached
	Head     string
	Bare     bool
	Detached bool
	Locked   bool
}

// ListWorktrees parses `git worktree list --porcelain` output.
func ListWorktrees(ctx context.Context, r *shell.Runner) ([]Worktree, error) {
	out, err := r.Run(ctx, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}

	var result []Worktree
	var cur *Worktree
	flush := func() {
		if cur != nil {
			result = append(result, *cur)
			cur = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			cur.Bare = true
		case line == "detached":
			cur.Detached = true
		case strings.HasPrefix(line, "locked"):
			cur.Locked = true
		}
	}
	flush()
	return result, nil
}

// GenerateWorktreePath computes the worktree directory for a branch under
// worktreePrefix, relative to repoPath.
func GenerateWorktreePath(repoPath, worktreePrefix, branch string) string {
	safe := strings.NewReplacer("/", "-").Replace(branch)
	return filepath.Join(repoPath, worktreePrefix, safe)
}

// BranchExistsLocally checks whether a branch exists in the local repo.
func BranchExistsLocally(ctx context.Context, r *shell.Runner, branch string) bool {
	_, err := r.Run(ctx, "git", "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// BranchExists is an alias of BranchExistsLocally.
func BranchExists(ctx context.Context, r *shell.Runner, branch string) bool {
	return BranchExistsLocally(ctx, r, branch)
}

// RemoteBranchExists checks whether origin/<branch> is known locally
// (i.e. the branch has been fetched at least once).
func RemoteBranchExists(ctx context.Context, r *shell.Runner, branch string) bool {
	_, err := r.Run(ctx, "git", "rev-parse", "--verify", "refs/remotes/origin/"+branch)
	return err == nil
}

// CreateWorktree adds a new worktree at path. When createBranch is true a
// new branch is created from startPoint; protectedBranches prevents creating
// a worktree that would clobber a protected branch.
func CreateWorktree(ctx context.Context, r *shell.Runner, path, branch, startPoint string, createBranch bool, protectedBranches []string) error {
	if createBranch && isProtected(branch, protectedBranches) {
		return fmt.Errorf("refusing to create branch %q: it is protected", branch)
	}
	var err error
	if createBranch {
		_, err = r.Run(ctx, "git", "worktree", "add", "-b", branch, path, startPoint)
	} else {
		_, err = r.Run(ctx, "git", "worktree", "add", path, branch)
	}
	if err != nil {
		return fmt.Errorf("creating worktree at %s: %w", path, err)
	}
	return nil
}

func isProtected(branch string, protectedBranches []string) bool {
	for _, p := range protectedBranches {
		if p == branch {
			return true
		}
	}
	return false
}

// RemoveWorktree removes a git worktree. A missing worktree path is treated
// as success (idempotent) whatever force is; force passes --force to git.
func RemoveWorktree(ctx context.Context, r *shell.Runner, repoPath, worktreePath string, force bool) error {
	if _, statErr := os.Stat(worktreePath); os.IsNotExist(statErr) {
		return nil
	}
	repoRunner := &shell.Runner{Dir: repoPath}
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, worktreePath)
	_, err := repoRunner.Run(ctx, "git", args...)
	if err != nil {
		return fmt.Errorf("removing worktree %s: %w", worktreePath, err)
	}
	return nil
}

// FindWorktreeForBranch returns the worktree checked out at branch, if any.
// Multiple matches are a warning condition at the caller; this returns the
// first in listing order.
func FindWorktreeForBranch(ctx context.Context, r *shell.Runner, branch string) (*Worktree, error) {
	worktrees, err := ListWorktrees(ctx, r)
	if err != nil {
		return nil, err
	}
	for _, w := range worktrees {
		if w.Branch == branch {
			wt := w
			return &wt, nil
		}
	}
	return nil, nil
}

// FindWorktreeForIssue finds the worktree whose branch matches one of the
// issue-N naming conventions for issue number n.
func FindWorktreeForIssue(ctx context.Context, r *shell.Runner, n int, protectedBranches []string) (*Worktree, error) {
	branches, err := FindAllBranchesForIssue(ctx, r, n, protectedBranches)
	if err != nil || len(branches) == 0 {
		return nil, err
	}
	return FindWorktreeForBranch(ctx, r, branches[0])
}

// FindWorktreeForPR finds the worktree for a PR, preferring branchHint
// (the PR's head branch) when supplied.
func FindWorktreeForPR(ctx context.Context, r *shell.Runner, n int, branchHint string) (*Worktree, error) {
	if branchHint != "" {
		if wt, err := FindWorktreeForBranch(ctx, r, branchHint); err != nil || wt != nil {
			return wt, err
		}
	}
	return FindWorktreeForIssue(ctx, r, n, nil)
}

// issueBranchPatterns returns the set of regexes used to match a branch name
// against issue number n with strict digit-boundary anchoring, so that 42
// does not match issue-425, tissue-42, or 142-x.
func issueBranchPatterns(n int) []*regexp.Regexp {
	num := fmt.Sprintf("%d", n)
	return []*regexp.Regexp{
		regexp.MustCompile(`(?:^|/)issue[-/]` + num + `(?:[^0-9]|$)`),
		regexp.MustCompile(`(?:^|/)` + num + `-`),
		regexp.MustCompile(`(?:^|/)feat[-/_].*[-/_]` + num + `(?:[^0-9]|$)`),
		regexp.MustCompile(`(?:^|/)pr[-/_]` + num + `(?:[^0-9]|$)`),
		regexp.MustCompile(`(?:^|/)pull/` + num + `(?:[^0-9]|$)`),
	}
}

// FindAllBranchesForIssue returns every local/remote branch whose name
// matches one of issue-N, issue/N, N-..., feat[-/_]...N, pr[-/_]N, pull/N,
// with strict digit boundaries. Protected branches are filtered out,
// remote-tracking prefixes are stripped, and results are deduplicated.
func FindAllBranchesForIssue(ctx context.Context, r *shell.Runner, n int, protectedBranches []string) ([]string, error) {
	out, err := r.Run(ctx, "git", "branch", "-a", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	patterns := issueBranchPatterns(n)
	seen := map[string]bool{}
	var result []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		name = strings.TrimPrefix(name, "origin/")
		if isProtected(name, protectedBranches) {
			continue
		}
		matched := false
		for _, p := range patterns {
			if p.MatchString(name) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	return result, nil
}

// DeleteBranch force-deletes a local branch.
func DeleteBranch(ctx context.Context, r *shell.Runner, branch string) error {
	_, err := r.Run(ctx, "git", "branch", "-D", branch)
	if err != nil {
		return fmt.Errorf("deleting branch %s: %w", branch, err)
	}
	return nil
}

// EnsureRepositoryHasCommits seeds an empty initial commit when the
// repository at root has no commits yet (a fresh bare-ish repo).
func EnsureRepositoryHasCommits(ctx context.Context, r *shell.Runner) error {
	_, err := r.Run(ctx, "git", "rev-parse", "--verify", "HEAD")
	if err == nil {
		return nil
	}
	_, err = r.Run(ctx, "git", "commit", "--allow-empty", "-m", "initial commit")
	if err != nil {
		return fmt.Errorf("seeding initial commit: %w", err)
	}
	return nil
}

// CopyDotLoom copies the .loom directory from the repo root into the
// worktree, enabling the agent to read config and prompts.
func CopyDotLoom(repoPath, worktreePath string) error {
	src := filepath.Join(repoPath, ".loom")
	dst := filepath.Join(worktreePath, ".loom")

	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}

	skipDirs := map[string]bool{
		"worktrees":  true,
		"state":      true,
		"workspaces": true,
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() && skipDirs[rel] {
			return fs.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}

// CopyDotClaude copies the .claude directory from the repo root into the
// worktree, enabling Claude settings and skills to be available in the
// isolated environment.
func CopyDotClaude(repoPath, worktreePath string) error {
	src := filepath.Join(repoPath, ".claude")
	dst := filepath.Join(worktreePath, ".claude")

	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}

// Commit stages all changes and creates a commit.
func Commit(ctx context.Context, r *shell.Runner, message string) error {
	if _, err := r.Run(ctx, "git", "add", "-A"); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	if _, err := r.Run(ctx, "git", "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// IsWorktree returns true when the current working directory (runner.Dir) is
// inside a git worktree rather than the main repository.
func IsWorktree(ctx context.Context, r *shell.Runner) (bool, error) {
	out, err := r.Run(ctx, "git", "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, fmt.Errorf("checking work tree: %w", err)
	}
	if strings.TrimSpace(out) != "true" {
		return false, nil
	}

	gitDir, err := r.Run(ctx, "git", "rev-parse", "--git-dir")
	if err != nil {
		return false, fmt.Errorf("checking git dir: %w", err)
	}
	return strings.Contains(strings.TrimSpace(gitDir), "worktrees"), nil
}

// CurrentBranch returns the name of the currently checked-out branch.
func CurrentBranch(ctx context.Context, r *shell.Runner) (string, error) {
	out, err := r.Run(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("getting current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// IsAncestor returns true when ancestor is an ancestor of descendant.
func IsAncestor(ctx context.Context, r *shell.Runner, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, "git", "merge-base", "--is-ancestor", ancestor, descendant)
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) && exitErr.Code == 1 {
			return false, nil
		}
		return false, fmt.Errorf("checking ancestry: %w", err)
	}
	return true, nil
}

// FetchBranch fetches origin/<branch>.
func FetchBranch(ctx context.Context, r *shell.Runner, branch string) error {
	_, err := r.Run(ctx, "git", "fetch", "origin", branch)
	if err != nil {
		return fmt.Errorf("fetching origin/%s: %w", branch, err)
	}
	return nil
}

// RebaseResult describes the outcome of a rebase operation.
type RebaseResult struct {
	Success      bool
	HasConflicts bool
	Conflicts    []string
}

// Rebase runs `git rebase <onto>` inside path and returns the conflict list
// on failure.
func Rebase(ctx context.Context, r *shell.Runner, onto string) (RebaseResult, error) {
	_, err := r.Run(ctx, "git", "rebase", onto)
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) {
			inProgress, checkErr := HasRebaseInProgress(ctx, r)
			if checkErr != nil {
				return RebaseResult{}, fmt.Errorf("starting rebase: %w", err)
			}
			if inProgress {
				files, _ := ConflictFiles(ctx, r)
				return RebaseResult{HasConflicts: true, Conflicts: files}, nil
			}
			return RebaseResult{}, fmt.Errorf("starting rebase: %w", err)
		}
		return RebaseResult{}, fmt.Errorf("starting rebase: %w", err)
	}
	return RebaseResult{Success: true}, nil
}

// HasRebaseInProgress detects if a rebase is currently in progress.
func HasRebaseInProgress(ctx context.Context, r *shell.Runner) (bool, error) {
	gitDir, err := r.Run(ctx, "git", "rev-parse", "--absolute-git-dir")
	if err != nil {
		return false, fmt.Errorf("getting git dir: %w", err)
	}
	absGitDir := strings.TrimSpace(gitDir)
	rebaseMerge := filepath.Join(absGitDir, "rebase-merge")
	rebaseApply := filepath.Join(absGitDir, "rebase-apply")

	if _, err := os.Stat(rebaseMerge); err == nil {
		return true, nil
	}
	if _, err := os.Stat(rebaseApply); err == nil {
		return true, nil
	}
	return false, nil
}

// ContinueRebase runs git rebase --continue and returns whether more conflicts
// occurred.
func ContinueRebase(ctx context.Context, r *shell.Runner) (RebaseResult, error) {
	_, err := r.Run(ctx, "git", "-c", "core.editor=true", "rebase", "--continue")
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) {
			inProgress, checkErr := HasRebaseInProgress(ctx, r)
			if checkErr != nil {
				return RebaseResult{}, fmt.Errorf("continuing rebase: %w", err)
			}
			if inProgress {
				files, _ := ConflictFiles(ctx, r)
				return RebaseResult{HasConflicts: true, Conflicts: files}, nil
			}
			return RebaseResult{}, fmt.Errorf("continuing rebase: %w", err)
		}
		return RebaseResult{}, fmt.Errorf("continuing rebase: %w", err)
	}
	return RebaseResult{Success: true}, nil
}

// AbortRebase runs git rebase --abort.
func AbortRebase(ctx context.Context, r *shell.Runner) error {
	_, err := r.Run(ctx, "git", "rebase", "--abort")
	if err != nil {
		return fmt.Errorf("aborting rebase: %w", err)
	}
	return nil
}

// ConflictFiles returns the list of files with conflict markers.
func ConflictFiles(ctx context.Context, r *shell.Runner) ([]string, error) {
	out, err := r.Run(ctx, "git", "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("listing conflict files: %w", err)
	}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// FastForward fast-forwards the checked-out branch in path to branch,
// rejecting explicitly if the merge would not be a fast-forward.
func FastForward(ctx context.Context, r *shell.Runner, branch string) error {
	_, err := r.Run(ctx, "git", "merge", "--ff-only", branch)
	if err != nil {
		return fmt.Errorf("fast-forwarding to %s: %w", branch, err)
	}
	return nil
}

// SquashMerge checks out baseBranch in the main repo, runs git merge --squash
// from featureBranch, and commits with the given message.
func SquashMerge(ctx context.Context, r *shell.Runner, repoPath, featureBranch, baseBranch, commitMsg string) error {
	repoRunner := &shell.Runner{Dir: repoPath}

	if _, err := repoRunner.Run(ctx, "git", "checkout", baseBranch); err != nil {
		return fmt.Errorf("checking out %s: %w", baseBranch, err)
	}
	if _, err := repoRunner.Run(ctx, "git", "merge", "--squash", featureBranch); err != nil {
		return fmt.Errorf("squash merging %s: %w", featureBranch, err)
	}
	if _, err := repoRunner.Run(ctx, "git", "commit", "-m", commitMsg); err != nil {
		return fmt.Errorf("committing squash merge: %w", err)
	}
	return nil
}

// MainRepoPath returns the root of the main repository, even when called from
// inside a worktree.
func MainRepoPath(ctx context.Context, r *shell.Runner) (string, error) {
	out, err := r.Run(ctx, "git", "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		return "", fmt.Errorf("getting git common dir: %w", err)
	}
	gitCommonDir := strings.TrimSpace(out)
	return filepath.Dir(gitCommonDir), nil
}

// CopyGlobPatterns copies files matching glob patterns from srcDir to dstDir.
// Patterns that match nothing invoke the warn callback but do not error.
func CopyGlobPatterns(srcDir, dstDir string, patterns []string, warn func(string)) error {
	for _, pattern := range patterns {
		srcPath := filepath.Join(srcDir, pattern)

		info, err := os.Stat(srcPath)
		if err == nil && info.IsDir() {
			if err := copyDir(srcPath, filepath.Join(dstDir, pattern)); err != nil {
				return fmt.Errorf("copying directory %s: %w", pattern, err)
			}
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(srcDir), pattern)
		if err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 {
			warn(fmt.Sprintf("pattern %q matched no files", pattern))
			continue
		}

		for _, match := range matches {
			src := filepath.Join(srcDir, match)
			dst := filepath.Join(dstDir, match)

			info, err := os.Stat(src)
			if err != nil {
				return fmt.Errorf("stat %s: %w", src, err)
			}
			if info.IsDir() {
				continue
			}

			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", dst, err)
			}

			data, err := os.ReadFile(src)
			if err != nil {
				return fmt.Errorf("reading %s: %w", src, err)
			}
			if err := os.WriteFile(dst, data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", dst, err)
			}
		}
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}
