package commands

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"strings"

	"github.com/loom-dev/loom/internal/claude"
	"github.com/loom-dev/loom/internal/events"
	"github.com/loom-dev/loom/internal/lifecycle"
)

// Ignite implements `loom ignite [identifier]`: like start, but blocking —
// it provisions (or reuses) the workspace exactly like start, then attaches
// the operator's terminal directly to an interactive AI agent session
// inside it via internal/claude.Invoke, instead of the fire-and-forget
// launch internal/procsup performs for a plain `start`. `start` remains the
// non-blocking entrypoint for scripting and tooling.
func Ignite(args []string) error {
	fs := flag.NewFlagSet("ignite", flag.ExitOnError)
	force := AddForceFlag(fs)
	pr := AddPRFlag(fs)
	continueSession := fs.Bool("continue", false, "resume the most recent conversation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}

	ws, err := env.Coordinator.Start(ctx, PositionalIdentifier(fs), lifecycle.StartOptions{
		Force:      *force,
		ExplicitPR: *pr,
		SkipAgent:  true, // Ignite attaches interactively below instead.
	})
	if err != nil {
		return err
	}

	log.Printf("[loom] igniting agent session in %s", ws.Path)

	// The session log is JSONL under the workspace's own .loom/logs,
	// replayable with events.LogReader. It holds the SessionStart line
	// written here; the interactive invocation itself emits no events.
	handler := events.NewFileHandler(filepath.Join(ws.Path, ".loom", "logs"))
	defer handler.Close()
	label := strings.NewReplacer(":", "-", "/", "-").Replace(ws.Target.RegistryKey())
	handler.Handle(events.SessionStart{Label: label})

	_, err = claude.Invoke(ctx, claude.InvokeOpts{
		Dir:          ws.Path,
		Interactive:  true,
		Continue:     *continueSession,
		EventHandler: handler,
	})
	return err
}
