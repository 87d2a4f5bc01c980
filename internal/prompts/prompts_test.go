package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderWorkspaceContext_ContainsKindAndBranch(t *testing.T) {
	out, err := RenderWorkspaceContext(WorkspaceContextData{
		Kind:       "issue",
		Number:     42,
		BranchName: "feat/issue-42-add-oauth",
		Title:      "Add OAuth",
		Path:       "/repo/.loom/workspaces/issue-42/tree",
		Port:       3042,
	}, "")
	if err != nil {
		t.Fatalf("RenderWorkspaceContext failed: %v", err)
	}
	checks := []string{"issue", "#42", "feat/issue-42-add-oauth", "Add OAuth", "/repo/.loom/workspaces/issue-42/tree", "3042"}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got: %s", want, out)
		}
	}
}

func TestRenderWorkspaceContext_BranchKindOmitsNumber(t *testing.T) {
	out, err := RenderWorkspaceContext(WorkspaceContextData{
		Kind:       "branch",
		BranchName: "my-feature",
		Path:       "/repo/.loom/workspaces/branch-my-feature/tree",
	}, "")
	if err != nil {
		t.Fatalf("RenderWorkspaceContext failed: %v", err)
	}
	if strings.Contains(out, "#0") {
		t.Errorf("branch-kind output should not render a zero issue number, got: %s", out)
	}
}

func TestRenderWorkspaceContext_CapabilitiesListed(t *testing.T) {
	out, err := RenderWorkspaceContext(WorkspaceContextData{
		Kind:         "pull-request",
		Number:       7,
		BranchName:   "fix/bug",
		Path:         "/repo/tree",
		Capabilities: []string{"web", "cli"},
	}, "")
	if err != nil {
		t.Fatalf("RenderWorkspaceContext failed: %v", err)
	}
	if !strings.Contains(out, "web, cli") {
		t.Errorf("expected capabilities listed, got: %s", out)
	}
}

func TestRenderWorkspaceContext_NoVerifyNoted(t *testing.T) {
	out, err := RenderWorkspaceContext(WorkspaceContextData{
		Kind:       "branch",
		BranchName: "x",
		Path:       "/repo/tree",
		NoVerify:   true,
	}, "")
	if err != nil {
		t.Fatalf("RenderWorkspaceContext failed: %v", err)
	}
	if !strings.Contains(out, "disabled") {
		t.Errorf("expected no-verify note, got: %s", out)
	}
}

func TestRenderWorkspaceContext_UsesOverrideTemplateWhenPresent(t *testing.T) {
	dir := t.TempDir()
	customContent := `Custom context for {{.BranchName}}`
	if err := os.WriteFile(filepath.Join(dir, "workspace_context.md"), []byte(customContent), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := RenderWorkspaceContext(WorkspaceContextData{BranchName: "my-branch"}, dir)
	if err != nil {
		t.Fatalf("RenderWorkspaceContext with override failed: %v", err)
	}
	if !strings.Contains(out, "Custom context for my-branch") {
		t.Errorf("expected override template content, got: %s", out)
	}
}

func TestRenderWorkspaceContext_FallsBackToEmbeddedWhenOverrideDirEmpty(t *testing.T) {
	out, err := RenderWorkspaceContext(WorkspaceContextData{Kind: "issue", Number: 1, BranchName: "x", Path: "/repo"}, t.TempDir())
	if err != nil {
		t.Fatalf("RenderWorkspaceContext failed: %v", err)
	}
	if !strings.Contains(out, "issue") {
		t.Error("expected embedded template to render")
	}
}

func TestRenderWorkspaceContext_FallsBackWhenOverrideDirNonexistent(t *testing.T) {
	out, err := RenderWorkspaceContext(WorkspaceContextData{Kind: "branch", BranchName: "x", Path: "/repo"}, "/nonexistent/path/prompts")
	if err != nil {
		t.Fatalf("expected fallback to embedded, got error: %v", err)
	}
	if !strings.Contains(out, "branch") {
		t.Error("expected embedded template to render")
	}
}

func TestReadTemplate_OverrideAndEmbeddedDiffer(t *testing.T) {
	dir := t.TempDir()
	customContent := `custom workspace context`
	if err := os.WriteFile(filepath.Join(dir, "workspace_context.md"), []byte(customContent), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := readTemplate("templates/workspace_context.md", dir)
	if err != nil {
		t.Fatalf("readTemplate failed: %v", err)
	}
	if string(content) != customContent {
		t.Errorf("expected override content, got: %s", content)
	}

	embedded, err := readTemplate("templates/workspace_context.md", "")
	if err != nil {
		t.Fatalf("readTemplate without override failed: %v", err)
	}
	if string(embedded) == customContent {
		t.Error("embedded content should differ from override")
	}
}
