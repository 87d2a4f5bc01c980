package commands

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/loom-dev/loom/internal/lifecycle"
)

// Start implements the `loom start [identifier]` subcommand.
func Start(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	force := AddForceFlag(fs)
	dryRun := AddDryRunFlag(fs)
	pr := AddPRFlag(fs)
	setFlag := AddSetFlag(fs)
	skipAgent := fs.Bool("skip-agent", false, "do not launch the AI agent")
	codeOnly := fs.Bool("code-only", false, "suppress dev-server and agent launches")
	terminalOnly := fs.Bool("terminal-only", false, "suppress IDE launch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(setFlag.values))
	if err != nil {
		return err
	}

	ws, err := env.Coordinator.Start(ctx, PositionalIdentifier(fs), lifecycle.StartOptions{
		Force:        *force,
		DryRun:       *dryRun,
		ExplicitPR:   *pr,
		SkipAgent:    *skipAgent,
		CodeOnly:     *codeOnly,
		TerminalOnly: *terminalOnly,
	})
	if err != nil {
		return err
	}

	log.Printf("[loom] workspace ready: %s (branch %s, port %d)", ws.Path, ws.Branch, ws.Port)
	fmt.Printf("%s\n", ws.Path)
	return nil
}
