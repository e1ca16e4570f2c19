package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"wfs-go/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background sync scheduler",
	Long: `Drain the sync queue periodically and whenever connectivity returns,
purge expired drafts, raise due reminders and, when [events] listen is set,
stream engine events to websocket clients. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: withApp("serve", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), "Serving (Ctrl-C to stop)")
		return a.Serve(ctx)
	}),
}
