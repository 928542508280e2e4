package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/controller"
	"github.com/steveyegge/rum/internal/style"
)

func (a *app) runInfo(ctx context.Context, cmd *cobra.Command, prefix string) error {
	e, err := a.ctl.Info(ctx, prefix)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.json {
		data, err := json.MarshalIndent(toJSON(*e, a.store), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding run: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	a.printInfo(out, e)
	return nil
}

func (a *app) printInfo(out io.Writer, e *controller.Entry) {
	r := e.Run
	field := func(name, value string) {
		fmt.Fprintf(out, "%-10s %s\n", style.Dim.Render(name+":"), value)
	}

	field("ID", style.Bold.Render(r.ID))
	field("Command", shellJoin(r.Command))
	if r.Label != "" {
		field("Label", r.Label)
	}
	if r.Dir != "" {
		field("Dir", r.Dir)
	}

	status := r.Status.String()
	if e.Health == controller.HealthStale {
		status += " " + style.Warning.Render("(supervisor is gone; outcome unknown)")
	}
	field("Status", styledTag(*e)+" "+status)
	field("Started", formatTime(&r.StartedAt))
	field("Finished", formatTime(r.FinishedAt))
	field("Duration", formatDuration(r.Duration()))
	if r.PID > 0 {
		field("PID", fmt.Sprint(r.PID))
	}
	if r.SpawnError != "" {
		field("Error", style.Error.Render(r.SpawnError))
	}
	field("Output", a.store.OutputPath(r.ID))
	field("Log", a.store.LogPath(r.ID))

	if p := e.Process; p != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, style.Bold.Render("Process"))
		if p.Name != "" {
			field("Name", p.Name)
		}
		if p.RSS > 0 {
			field("Memory", formatBytes(p.RSS))
		}
		field("CPU", fmt.Sprintf("%.1f%%", p.CPUPercent))
		if p.Threads > 0 {
			field("Threads", fmt.Sprint(p.Threads))
		}
	}
}
