package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/controller"
	"github.com/steveyegge/rum/internal/exitcode"
	"github.com/steveyegge/rum/internal/style"
)

func (a *app) runRemove(ctx context.Context, cmd *cobra.Command, args []string) error {
	// Flag parsing stops at the first prefix, so a trailing -y lands here.
	var prefixes []string
	for _, arg := range args {
		if arg == "-y" || arg == "--yes" {
			a.yes = true
			continue
		}
		prefixes = append(prefixes, arg)
	}
	if len(prefixes) == 0 {
		return exitcode.New(exitcode.ErrUsage, "--remove needs at least one run prefix")
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	var confirm controller.ConfirmFunc
	if !a.yes && a.cfg.ConfirmRemove {
		in := bufio.NewReader(cmd.InOrStdin())
		confirm = func(e controller.Entry) bool {
			return askRemove(out, in, e)
		}
	}

	results := a.ctl.Remove(ctx, prefixes, confirm)

	failed, firstCode := 0, exitcode.Success
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
			if firstCode == exitcode.Success {
				firstCode = codeFor(res.Err)
			}
			fmt.Fprintf(errOut, "%s %s: %v\n", style.ErrorPrefix, res.Prefix, res.Err)
		case res.Declined:
			fmt.Fprintf(out, "%s Kept %s\n", style.Dim.Render("ℹ"), res.Entry.Run.ID)
		case res.Removed:
			fmt.Fprintf(out, "%s Removed %s\n", style.SuccessPrefix, res.Entry.Run.ID)
		}
	}

	if failed > 0 {
		a.log.WithField("failed", failed).Debug("Some runs were not removed")
		return &reportedError{code: firstCode}
	}
	return nil
}

// askRemove prompts for one run. Anything but y/yes keeps the run.
func askRemove(out io.Writer, in *bufio.Reader, e controller.Entry) bool {
	r := e.Run
	fmt.Fprintf(out, "Remove run %s %s %s? [y/N] ", r.ID, statusTag(e), shellJoin(r.Command))
	line, _ := in.ReadString('\n')
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}
