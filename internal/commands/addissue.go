package commands

import (
	"context"
	"flag"
	"fmt"

	"github.com/loom-dev/loom/internal/lifecycle"
	"github.com/loom-dev/loom/internal/loomerr"
)

// AddIssue implements `loom add-issue [--body text] <title>`: files a new issue on
// the configured tracker and immediately starts a workspace for it, so a
// one-off piece of work never needs a separate round trip through the
// tracker's own UI before a workspace exists for it.
func AddIssue(args []string) error {
	fs := flag.NewFlagSet("add-issue", flag.ExitOnError)
	body := fs.String("body", "", "issue description")
	skipStart := fs.Bool("no-start", false, "file the issue without starting a workspace for it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		return loomerr.New(loomerr.MissingIdentifier, "usage: loom add-issue [--body text] <title>")
	}
	title := fs.Arg(0)

	ctx := context.Background()
	env, err := ResolveEnvironment(ctx, settingsOverridesFromSet(nil))
	if err != nil {
		return err
	}
	if env.Coordinator.Tracker == nil {
		return loomerr.New(loomerr.NotFound, "no issue tracker configured")
	}

	issue, err := env.Coordinator.Tracker.CreateIssue(ctx, title, *body)
	if err != nil {
		return err
	}
	fmt.Printf("created issue #%d: %s\n", issue.Number, issue.Title)

	if *skipStart {
		return nil
	}

	ws, err := env.Coordinator.Start(ctx, fmt.Sprintf("%d", issue.Number), lifecycle.StartOptions{})
	if err != nil {
		return err
	}
	fmt.Println(ws.Path)
	return nil
}
