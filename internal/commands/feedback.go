package commands

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/loom-dev/loom/internal/loomerr"
)

// Feedback implements `loom feedback <number> <text>`: posts an operator
// comment back onto the tracker issue or pull request backing a workspace,
// a way of leaving a note for whoever picks this item up next without a
// context switch into the tracker's own UI.
func Feedback(args []string) error {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	asPR := fs.Bool("pr", false, "post to the pull request rather than the issue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return loomerr.New(loomerr.MissingIdentifier, "usage: loom feedback <number> <text>")
	}

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}
	if env.Coordinator.Tracker == nil {
		return loomerr.New(loomerr.NotFound, "no issue tracker configured")
	}

	number, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return loomerr.New(loomerr.InvalidIdentifier, "not a numeric issue/PR number").WithInput(fs.Arg(0))
	}
	text := fs.Arg(1)

	kind := "issue"
	if *asPR {
		kind = "pull-request"
	}
	if err := env.Coordinator.Tracker.PostFeedback(ctx, kind, number, text); err != nil {
		return err
	}
	fmt.Printf("feedback posted to %s %d\n", kind, number)
	return nil
}
