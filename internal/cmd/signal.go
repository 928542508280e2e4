package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/controller"
	"github.com/steveyegge/rum/internal/run"
	"github.com/steveyegge/rum/internal/style"
)

func (a *app) runSignal(ctx context.Context, cmd *cobra.Command, prefix string, kind controller.SignalKind) error {
	sig, err := kind.Signal()
	if err != nil {
		return err
	}
	e, err := a.ctl.Signal(ctx, prefix, kind)
	if err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"run":    e.Run.ID,
		"pgid":   e.Run.PID,
		"signal": run.SignalName(int(sig)),
	}).Debug("Signalled process group")

	fmt.Fprintf(cmd.OutOrStdout(), "%s Sent %s to run %s\n",
		style.SuccessPrefix, run.SignalName(int(sig)), e.Run.ID)
	return nil
}
