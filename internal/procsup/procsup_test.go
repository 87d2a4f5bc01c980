package procsup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loom-dev/loom/internal/config"
)

func TestCalculatePort(t *testing.T) {
	cases := []struct {
		basePort, number, want int
	}{
		{3000, 42, 3042},
		{3000, 0, 3000},
		{1, 65534, 65535},
	}
	for _, c := range cases {
		if got := CalculatePort(c.basePort, c.number); got != c.want {
			t.Errorf("CalculatePort(%d, %d) = %d, want %d", c.basePort, c.number, got, c.want)
		}
	}
}

func TestDetectDevServer(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"scripts": {"dev": "next dev"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	script, ok := DetectDevServer(dir)
	if !ok || script != "dev" {
		t.Errorf("DetectDevServer = %q, %v; want dev, true", script, ok)
	}
}

func TestDetectDevServerMissingManifest(t *testing.T) {
	dir := t.TempDir()
	if _, ok := DetectDevServer(dir); ok {
		t.Error("expected no dev server for missing manifest")
	}
}

func TestLaunchAIAgentWritesContextFile(t *testing.T) {
	dir := t.TempDir()
	s := &Supervisor{AgentCommand: "true"}

	proc, err := s.LaunchAIAgent(dir, "hello agent", config.WorkflowConfig{})
	if err != nil {
		t.Fatalf("LaunchAIAgent: %v", err)
	}
	_, _ = proc.Wait()

	content, err := os.ReadFile(filepath.Join(dir, ".loom", "agent-context.md"))
	if err != nil {
		t.Fatalf("reading agent context file: %v", err)
	}
	if string(content) != "hello agent" {
		t.Errorf("agent context file = %q, want %q", content, "hello agent")
	}
}

func TestPermissionArgs(t *testing.T) {
	cases := []struct {
		mode string
		want []string
	}{
		{"plan", []string{"--permission-mode", "plan"}},
		{"acceptEdits", []string{"--permission-mode", "acceptEdits"}},
		{"bypassPermissions", []string{"--dangerously-skip-permissions"}},
		{"default", nil},
		{"", nil},
	}
	for _, c := range cases {
		got := permissionArgs(config.WorkflowConfig{PermissionMode: c.mode})
		if len(got) != len(c.want) {
			t.Errorf("permissionArgs(%q) = %v, want %v", c.mode, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("permissionArgs(%q)[%d] = %q, want %q", c.mode, i, got[i], c.want[i])
			}
		}
	}
}
