package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/style"
)

func (a *app) runList(ctx context.Context, cmd *cobra.Command) error {
	entries, problems, err := a.ctl.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range problems {
		a.log.WithError(p).Warn("Skipping unreadable run")
	}

	out := cmd.OutOrStdout()

	if a.json {
		items := make([]runJSON, 0, len(entries))
		for _, e := range entries {
			items = append(items, toJSON(e, a.store))
		}
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding runs: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No runs.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Start one with:")
		fmt.Fprintln(out, "  rum <command> [args...]")
		return nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Run.ID
	}
	idWidth := uniquePrefixLen(ids, minIDWidth)

	tbl := style.NewTable(
		style.Column{Name: "ID", Width: idWidth},
		style.Column{Name: "STATUS", Width: 12},
		style.Column{Name: "STARTED", Width: len(timeLayout)},
		style.Column{Name: "DURATION", Width: 9, Align: style.AlignRight},
		style.Column{Name: "LABEL", Width: 14},
		style.Column{Name: "COMMAND", Width: 48},
	).SetIndent("")

	for _, e := range entries {
		r := e.Run
		label := r.Label
		if label == "" {
			label = style.Dim.Render("-")
		}
		tbl.AddRow(
			r.ShortID(idWidth),
			styledTag(e),
			formatTime(&r.StartedAt),
			formatDuration(r.Duration()),
			label,
			shellJoin(r.Command),
		)
	}
	fmt.Fprint(out, tbl.Render())

	if len(problems) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %d run(s) could not be read\n",
			style.WarningPrefix, len(problems))
	}
	return nil
}
