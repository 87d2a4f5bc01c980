// Package validation is the validation runner: it derives a step list from
// the workspace's package manifest and runs each step to completion,
// recording output and timing rather than stopping at the first failure.
// Captured logs are bounded with a head/tail truncation scheme so both the
// first error and the final state survive.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loom-dev/loom/internal/shell"
)

// DefaultTimeout is the per-step ceiling — a single runaway script (an
// infinite watch mode, a hung test) cannot block a workspace operation
// forever.
const DefaultTimeout = 600 * time.Second

// maxOutputLines bounds captured step output.
const maxOutputLines = 200

// Step is one named validation step and its outcome.
type Step struct {
	Name       string
	DurationMs int64
	Success    bool
	Output     string
}

// Result is the overall outcome of runValidations: Success is true only
// when every step succeeded, but every step still runs and is recorded
// regardless of earlier failures.
type Result struct {
	Success       bool
	Steps         []Step
	TotalDuration time.Duration
}

// Options customizes which steps are skipped and how long each may run.
type Options struct {
	// SkipAll bypasses validation entirely (the --no-verify CLI flag /
	// workflows.*.noVerify setting), returning a vacuously successful
	// Result with no steps.
	SkipAll bool

	// Timeout overrides DefaultTimeout for every step.
	Timeout time.Duration
}

// manifestScripts is the subset of package.json this runner understands.
type manifestScripts struct {
	Scripts map[string]string `json:"scripts"`
}

// stepOrder fixes the order checks run in: the most-likely-to-fail checks
// first, so a developer sees the cheapest signal soonest.
var stepOrder = []string{"test", "typecheck", "lint"}

// Run implements runValidations: it reads <path>/package.json, derives the
// step list from whichever of test/typecheck/lint scripts are declared, and
// runs each with shell.Runner under a context timeout, continuing after a
// failing step.
func Run(ctx context.Context, path string, opts Options) (Result, error) {
	if opts.SkipAll {
		return Result{Success: true}, nil
	}

	scripts, err := loadScripts(path)
	if err != nil {
		return Result{}, fmt.Errorf("reading package manifest: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runner := &shell.Runner{Dir: path}

	start := time.Now()
	result := Result{Success: true}
	for _, name := range stepOrder {
		script, ok := scripts.Scripts[name]
		if !ok || script == "" {
			continue
		}

		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		stepStart := time.Now()
		output, runErr := runner.Run(stepCtx, "npm", "run", name)
		cancel()
		duration := time.Since(stepStart)

		success := runErr == nil
		if !success {
			if exitErr, ok := runErr.(*shell.ExitError); ok {
				output = output + exitErr.Stderr
			} else {
				output = output + runErr.Error()
			}
		}

		result.Steps = append(result.Steps, Step{
			Name:       name,
			DurationMs: duration.Milliseconds(),
			Success:    success,
			Output:     truncateLog(output, maxOutputLines),
		})
		if !success {
			result.Success = false
		}
	}
	result.TotalDuration = time.Since(start)

	return result, nil
}

func loadScripts(path string) (manifestScripts, error) {
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if os.IsNotExist(err) {
		return manifestScripts{}, nil
	}
	if err != nil {
		return manifestScripts{}, err
	}

	var m manifestScripts
	if err := json.Unmarshal(data, &m); err != nil {
		return manifestScripts{}, fmt.Errorf("parsing package.json: %w", err)
	}
	return m, nil
}

// truncateLog keeps the first headLines and last tailLines of a log string,
// inserting a truncation marker between them when the log exceeds maxLines.
// Head preserves early error context; tail preserves recent state.
func truncateLog(log string, maxLines int) string {
	const headLines = 30
	tailLines := maxLines - headLines

	lines := strings.Split(log, "\n")
	if len(lines) <= maxLines {
		return log
	}

	truncated := len(lines) - headLines - tailLines
	marker := fmt.Sprintf("[... %d lines truncated ...]", truncated)

	result := make([]string, 0, headLines+1+tailLines)
	result = append(result, lines[:headLines]...)
	result = append(result, marker)
	result = append(result, lines[len(lines)-tailLines:]...)
	return strings.Join(result, "\n")
}
