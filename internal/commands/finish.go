package commands

import (
	"context"
	"flag"
	"log"

	"github.com/loom-dev/loom/internal/lifecycle"
	"github.com/loom-dev/loom/internal/workspace"
)

// Finish implements the `loom finish [identifier]` subcommand.
func Finish(args []string) error {
	fs := flag.NewFlagSet("finish", flag.ExitOnError)
	force := AddForceFlag(fs)
	dryRun := AddDryRunFlag(fs)
	pr := AddPRFlag(fs)
	noVerify := AddNoVerifyFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}

	result, err := env.Coordinator.Finish(ctx, PositionalIdentifier(fs), lifecycle.FinishOptions{
		Force:      *force,
		DryRun:     *dryRun,
		ExplicitPR: *pr,
		NoVerify:   *noVerify,
	})
	if err != nil {
		return err
	}
	if result == nil {
		log.Printf("[loom] pushed pending branch; pull request remains open")
		return nil
	}

	printCleanupResult(*result)
	return nil
}

// printCleanupResult renders a CleanupResult's operations, one terminal
// line per outcome.
func printCleanupResult(result workspace.CleanupResult) {
	for _, op := range result.Operations {
		status := "ok"
		if !op.Success {
			status = "FAILED"
		}
		log.Printf("[loom] %s: %s (%s)", op.Kind, op.Message, status)
	}
	if result.Success {
		log.Printf("[loom] workspace cleaned up")
	} else {
		log.Printf("[loom] cleanup completed with errors: %v", result.Errors)
	}
}
