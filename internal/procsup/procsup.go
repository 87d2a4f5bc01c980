// Package procsup is the process supervisor: port calculation, dev server
// detection, and fire-and-forget launches of the IDE, dev server, AI agent,
// and plain terminal. Launches start-and-return (shell.Runner.RunDetached)
// — the CLI never joins a long-running child.
package procsup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/shell"
)

// CalculatePort computes a workspace's deterministic port: basePort + number
// for issue/PR workspaces, basePort alone for branch workspaces (number==0).
func CalculatePort(basePort, number int) int {
	return basePort + number
}

// DevServerDescriptor identifies a launched dev server so TerminateFor can
// find it again without scanning every process on the machine.
type DevServerDescriptor struct {
	PID  int
	Port int
}

// DetectDevServer inspects the workspace's package manifest for a dev/start
// script, returning the script name when one is declared (capability
// detection proper lives in internal/capability; this only answers "is
// there a command to launch").
func DetectDevServer(path string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return "", false
	}
	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", false
	}
	if manifest.Scripts["dev"] != "" {
		return "dev", true
	}
	if manifest.Scripts["start"] != "" {
		return "start", true
	}
	return "", false
}

// Supervisor launches and tracks child processes for one workspace.
type Supervisor struct {
	// PackageManager runs scripts (npm/pnpm/yarn run <script>), defaulting
	// to "npm" when empty.
	PackageManager string

	// IDECommand is the editor launch command, defaulting to "code" (VS
	// Code / compatible forks share this binary name convention).
	IDECommand string

	// TerminalCommand launches a plain shell in the workspace, defaulting
	// to $SHELL or "/bin/sh".
	TerminalCommand string

	// AgentCommand is the AI agent CLI binary, defaulting to "claude".
	AgentCommand string
}

func (s *Supervisor) packageManager() string {
	if s.PackageManager != "" {
		return s.PackageManager
	}
	return "npm"
}

func (s *Supervisor) agentCommand() string {
	if s.AgentCommand != "" {
		return s.AgentCommand
	}
	return "claude"
}

// LaunchIDE opens the workspace directory in the configured editor.
func (s *Supervisor) LaunchIDE(path string) (*os.Process, error) {
	cmd := s.IDECommand
	if cmd == "" {
		cmd = "code"
	}
	r := &shell.Runner{Dir: path}
	return r.RunDetached(cmd, path)
}

// LaunchDevServer starts the workspace's dev script (fire-and-forget) with
// PORT set in its environment, returning a descriptor TerminateFor can use
// later.
func (s *Supervisor) LaunchDevServer(path string, port int) (*DevServerDescriptor, error) {
	script, ok := DetectDevServer(path)
	if !ok {
		return nil, fmt.Errorf("no dev/start script found in %s", path)
	}
	r := &shell.Runner{Dir: path, Env: []string{"PORT=" + strconv.Itoa(port)}}
	proc, err := r.RunDetached(s.packageManager(), "run", script)
	if err != nil {
		return nil, fmt.Errorf("launching dev server: %w", err)
	}
	return &DevServerDescriptor{PID: proc.Pid, Port: port}, nil
}

// LaunchTerminal opens a plain shell in the workspace.
func (s *Supervisor) LaunchTerminal(path string) (*os.Process, error) {
	cmd := s.TerminalCommand
	if cmd == "" {
		cmd = os.Getenv("SHELL")
	}
	if cmd == "" {
		cmd = "/bin/sh"
	}
	r := &shell.Runner{Dir: path}
	return r.RunDetached(cmd)
}

// LaunchAIAgent writes the rendered, opaque context payload to a file inside
// the workspace and fire-and-forget launches the agent CLI against it — the
// CLI never waits on the agent, which is expected to outlive this
// invocation.
func (s *Supervisor) LaunchAIAgent(path, payload string, wf config.WorkflowConfig) (*os.Process, error) {
	contextPath := filepath.Join(path, ".loom", "agent-context.md")
	if err := os.MkdirAll(filepath.Dir(contextPath), 0755); err != nil {
		return nil, fmt.Errorf("preparing agent context file: %w", err)
	}
	if err := os.WriteFile(contextPath, []byte(payload), 0644); err != nil {
		return nil, fmt.Errorf("writing agent context file: %w", err)
	}

	args := permissionArgs(wf)
	args = append(args, "--append-system-prompt-file", contextPath)

	r := &shell.Runner{Dir: path}
	proc, err := r.RunDetached(s.agentCommand(), args...)
	if err != nil {
		return nil, fmt.Errorf("launching AI agent: %w", err)
	}
	return proc, nil
}

func permissionArgs(wf config.WorkflowConfig) []string {
	switch wf.PermissionMode {
	case "plan":
		return []string{"--permission-mode", "plan"}
	case "acceptEdits":
		return []string{"--permission-mode", "acceptEdits"}
	case "bypassPermissions":
		return []string{"--dangerously-skip-permissions"}
	default:
		return nil
	}
}

// TerminateFor best-effort kills the process recorded for a workspace,
// falling back to a port-based lookup when no PID was recorded (e.g. after
// a restart where in-memory descriptors were lost).
func TerminateFor(desc *DevServerDescriptor) error {
	if desc == nil {
		return nil
	}
	if desc.PID > 0 {
		proc, err := os.FindProcess(desc.PID)
		if err == nil && proc.Signal(syscall.Signal(0)) == nil {
			return proc.Signal(syscall.SIGTERM)
		}
	}
	return terminateByPort(desc.Port)
}

// terminateByPort is the fallback path: a port is an address, not a lock,
// so this never prevents a collision — it only helps clean up a server the
// supervisor itself launched and lost track of.
func terminateByPort(port int) error {
	if port <= 0 {
		return nil
	}
	r := &shell.Runner{}
	out, err := r.Run(context.Background(), "lsof", "-ti", fmt.Sprintf("tcp:%d", port))
	if err != nil || strings.TrimSpace(out) == "" {
		return nil
	}
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			continue
		}
		if proc, findErr := os.FindProcess(pid); findErr == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
	return nil
}
