package commands

import (
	"flag"
	"fmt"
)

// Version is the loom CLI's release version, set at build time via
// -ldflags "-X github.com/loom-dev/loom/internal/commands.Version=...".
var Version = "dev"

// Update implements `loom update`. Installer machinery belongs to whatever
// package manager installed the CLI; this reports the running version and
// defers the actual upgrade to it.
func Update(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Printf("loom %s\n", Version)
	fmt.Println("update via your package manager (e.g. `brew upgrade loom`, `npm i -g @loom-dev/cli`)")
	return nil
}
