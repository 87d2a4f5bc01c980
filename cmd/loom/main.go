// Command loom is the CLI entrypoint: argument dispatch and exit-code
// mapping. All lifecycle logic lives in internal/lifecycle; this file only
// routes subcommands.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/loom-dev/loom/internal/commands"
	"github.com/loom-dev/loom/internal/loomerr"
)

func usage() {
	fmt.Fprintf(os.Stderr, `loom — workspace lifecycle coordinator for AI-assisted development

Usage:
  loom init
  loom start [--pr N] [--force] [--dry-run] [--skip-agent] [--code-only] [--terminal-only] [--set key=value] [identifier]
  loom ignite [--pr N] [--force] [--continue] [identifier]
  loom finish [--pr N] [--force] [--dry-run] [--no-verify] [identifier]
  loom cleanup [--all] [--list] [--issue N] [--force] [--dry-run] [--delete-branch] [--keep-database] [identifier]
  loom list [--watch]
  loom open [identifier]
  loom add-issue [--body text] [--no-start] <title>
  loom enhance [--run] [identifier] <instruction>
  loom feedback [--pr] <number> <text>

Flags go before positional arguments; anything after the first positional
argument is treated as positional.
  loom update

Flags:
  --pr N         force pull-request interpretation of the identifier
  --force, -f    skip confirmations; permit closed-state finish; force branch deletion
  --dry-run      preview only; no mutating I/O
  --no-verify    bypass pre-commit hooks at commit time
  --set k=v      runtime settings override (repeatable)
`)
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	subcmd := os.Args[1]
	rest := os.Args[2:]

	var err error
	switch subcmd {
	case "init":
		err = commands.Init(rest)
	case "start":
		err = commands.Start(rest)
	case "ignite":
		err = commands.Ignite(rest)
	case "finish":
		err = commands.Finish(rest)
	case "cleanup":
		err = commands.Cleanup(rest)
	case "list":
		err = commands.List(rest)
	case "open":
		err = commands.Open(rest)
	case "add-issue":
		err = commands.AddIssue(rest)
	case "enhance":
		err = commands.Enhance(rest)
	case "feedback":
		err = commands.Feedback(rest)
	case "update":
		err = commands.Update(rest)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "loom %s: %v\n", subcmd, err)
		os.Exit(loomerr.ExitCode(err))
	}
}
