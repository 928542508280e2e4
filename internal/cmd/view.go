package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/steveyegge/rum/internal/tui/viewer"
)

func (a *app) runView(ctx context.Context, cmd *cobra.Command, prefix string) error {
	follow := !a.noFollow
	if !follow || !a.interactive {
		return a.ctl.View(ctx, prefix, cmd.OutOrStdout(), follow)
	}

	id, err := a.store.Resolve(prefix)
	if err != nil {
		return err
	}
	return viewer.Run(ctx, id, func(ctx context.Context, w io.Writer) error {
		return a.ctl.View(ctx, id, w, true)
	})
}
