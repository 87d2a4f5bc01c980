package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loom-dev/loom/internal/claude"
	"github.com/loom-dev/loom/internal/events"
	"github.com/loom-dev/loom/internal/loomerr"
)

// Enhance implements `loom enhance [identifier] <instruction>`: appends an
// operator-supplied refinement to the workspace's agent context file ahead
// of the next agent invocation, without re-running provisioning. With
// --run, the instruction is additionally handed straight to a
// non-interactive agent session.
func Enhance(args []string) error {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	runNow := fs.Bool("run", false, "hand the instruction to the agent immediately instead of waiting for its next launch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return loomerr.New(loomerr.MissingIdentifier, "usage: loom enhance [identifier] <instruction>")
	}

	identifier, instruction := "", fs.Arg(0)
	if fs.NArg() > 1 {
		identifier, instruction = fs.Arg(0), fs.Arg(1)
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}

	ws, err := env.Coordinator.Find(ctx, identifier)
	if err != nil {
		return loomerr.New(loomerr.NoWorktreeFound, "no workspace found for target").WithInput(identifier)
	}

	contextPath := filepath.Join(ws.Path, ".loom", "agent-context.md")
	f, err := os.OpenFile(contextPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening agent context file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "\n\n## Enhancement\n\n%s\n", instruction); err != nil {
		return fmt.Errorf("appending enhancement: %w", err)
	}

	if *runNow {
		_, err := claude.Invoke(ctx, claude.InvokeOpts{
			Dir:          ws.Path,
			Print:        true,
			Prompt:       instruction,
			EventHandler: &events.PlainTextHandler{W: os.Stdout},
		})
		return err
	}

	fmt.Println("enhancement recorded; it will apply to the next agent launch")
	return nil
}
