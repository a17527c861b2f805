package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pageturn-io/pageturn/types"
)

// VersionCommand returns the version command. It reports the canonical
// project version and never touches the network.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(_ *cli.Context) error {
			fmt.Fprintf(os.Stdout, "pageturn %s (commit: %s)\n", types.Version, commit)
			return nil
		},
	}
}
