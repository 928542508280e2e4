package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/launcher"
)

func (a *app) runStart(ctx context.Context, cmd *cobra.Command, command []string) error {
	r, err := launcher.Start(ctx, a.store, command, launcher.Options{
		Label:        a.label,
		Executable:   a.executable,
		ReadyTimeout: a.cfg.ReadyTimeout.Duration,
	})
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"run": r.ID,
		"pid": r.PID,
	}).Debug("Run started")

	out := cmd.OutOrStdout()
	if a.json {
		data, err := json.MarshalIndent(toJSON(a.ctl.Entry(r), a.store), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding run: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprintln(out, r.ID)
	}

	// The run exists either way; a command that could not start is
	// recorded as its outcome.
	if r.SpawnError != "" {
		a.log.WithField("run", r.ID).Warnf("Command could not be started: %s", r.SpawnError)
	}
	return nil
}
