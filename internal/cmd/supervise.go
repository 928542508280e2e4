package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/supervisor"
)

// newSuperviseCmd is the hidden entry point of supervisor processes. It is
// not attached to the root command, so no user command can collide with it.
func newSuperviseCmd() *cobra.Command {
	return &cobra.Command{
		Use:                supervisor.Command + " --runs-dir <dir> --ready-fd <fd> <run-id>",
		Hidden:             true,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := supervisor.ParseArgs(args)
			if err != nil {
				return err
			}
			return supervisor.Main(inv)
		},
	}
}

func runSupervisor(args []string, stderr io.Writer) int {
	c := newSuperviseCmd()
	c.SetArgs(args)
	if err := c.Execute(); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", supervisor.Command, err)
		return 1
	}
	return 0
}
