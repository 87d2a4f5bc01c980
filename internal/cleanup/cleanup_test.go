package cleanup

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/loom-dev/loom/internal/workspace"
)

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func initRepoWithWorktree(t *testing.T) (repoPath, treePath, branch string) {
	t.Helper()
	repoPath = t.TempDir()
	run(t, repoPath, "init", "-b", "main")
	run(t, repoPath, "config", "user.email", "test@example.com")
	run(t, repoPath, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(repoPath, "README.md"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run(t, repoPath, "add", "-A")
	run(t, repoPath, "commit", "-m", "initial")

	branch = "issue-42"
	treePath = filepath.Join(repoPath, "tree")
	run(t, repoPath, "worktree", "add", "-b", branch, treePath, "main")
	return repoPath, treePath, branch
}

func TestRunRemovesWorktree(t *testing.T) {
	repoPath, treePath, branch := initRepoWithWorktree(t)
	ws := workspace.Workspace{
		Target: workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: 42},
		Path:   treePath,
		Branch: branch,
	}

	result := Run(context.Background(), repoPath, ws, Deps{MainBranch: "main"}, Options{Force: true})
	if !result.Success {
		t.Fatalf("result.Success = false, errors: %v", result.Errors)
	}
	if _, err := os.Stat(treePath); !os.IsNotExist(err) {
		t.Errorf("worktree still present at %s", treePath)
	}

	var sawWorktreeOp bool
	for _, o := range result.Operations {
		if o.Kind == "worktree" {
			sawWorktreeOp = true
			if !o.Success {
				t.Errorf("worktree operation = %+v, want success", o)
			}
		}
	}
	if !sawWorktreeOp {
		t.Error("no worktree operation recorded")
	}
}

func TestRunMissingWorktreeIsSkippedNotFailed(t *testing.T) {
	repoPath, treePath, branch := initRepoWithWorktree(t)
	run(t, repoPath, "worktree", "remove", "--force", treePath)

	ws := workspace.Workspace{
		Target: workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: 42},
		Path:   treePath,
		Branch: branch,
	}

	result := Run(context.Background(), repoPath, ws, Deps{MainBranch: "main"}, Options{})
	if !result.Success {
		t.Errorf("result.Success = false, want true when worktree already absent")
	}
}

func TestRunDryRunPerformsNoMutation(t *testing.T) {
	repoPath, treePath, branch := initRepoWithWorktree(t)
	ws := workspace.Workspace{
		Target: workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: 42},
		Path:   treePath,
		Branch: branch,
	}

	result := Run(context.Background(), repoPath, ws, Deps{MainBranch: "main"}, Options{DryRun: true})
	if !result.Success {
		t.Errorf("result.Success = false on dry run")
	}
	if _, err := os.Stat(treePath); err != nil {
		t.Errorf("worktree removed during dry run: %v", err)
	}
	for _, o := range result.Operations {
		if o.Kind == "worktree" && o.Message[:9] != "[DRY RUN]" {
			t.Errorf("worktree operation message = %q, want [DRY RUN] prefix", o.Message)
		}
	}
}

func TestRunMultipleContinuesPastMissingWorktree(t *testing.T) {
	repoPath, treePath, branch := initRepoWithWorktree(t)
	good := workspace.Workspace{
		Target: workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: 42},
		Path:   treePath,
		Branch: branch,
	}
	missing := workspace.Workspace{
		Target: workspace.WorkspaceTarget{Kind: workspace.KindIssue, Number: 999},
		Path:   filepath.Join(repoPath, "does-not-exist"),
		Branch: "issue-999",
	}

	results := RunMultiple(context.Background(), repoPath, []workspace.Workspace{missing, good}, Deps{MainBranch: "main"}, Options{Force: true})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].Success || !results[1].Success {
		t.Errorf("results = %+v, want both successful", results)
	}
}
