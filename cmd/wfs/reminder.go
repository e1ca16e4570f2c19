package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"wfs-go/internal/app"
	"wfs-go/internal/wfs"
)

// reminder command
var reminderCmd = &cobra.Command{
	Use:   "reminder",
	Short: "Track inactive sections and list their reminders",
}

var reminderTrackCmd = &cobra.Command{
	Use:   "track DOCUMENT SECTION",
	Short: "Report a section's progress",
	Long: `Report when a section was last updated and whether it is complete.
An incomplete section becomes due for a reminder after the configured
inactivity window. Reminders are raised while the process runs, so keep
'wfs serve' running to receive them.`,
	Args: cobra.ExactArgs(2),
	RunE: withApp("reminder track", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		completed, _ := cmd.Flags().GetBool("completed")
		raw, _ := cmd.Flags().GetString("last-updated")
		lastUpdated := time.Now().UTC()
		if raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("parsing --last-updated: %w", err)
			}
			lastUpdated = ts
		}
		err := a.Reminders().Track(ctx, wfs.SectionActivity{
			DocumentID:  args[0],
			SectionID:   args[1],
			LastUpdated: lastUpdated,
			Completed:   completed,
		})
		if err != nil {
			return fmt.Errorf("tracking section: %w", err)
		}
		if completed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s complete\n", args[0], args[1])
			return nil
		}
		due := lastUpdated.Add(a.Config().Reminders.Inactivity.Duration)
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s due for a reminder at %s\n", args[0], args[1], due.Format(time.RFC3339))
		return nil
	}),
}

var reminderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted reminders by due time",
	Args:  cobra.NoArgs,
	RunE: withApp("reminder list", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		reminders, err := a.Reminders().List(ctx)
		if err != nil {
			return err
		}
		return render(cmd, reminders, func(w io.Writer) {
			if len(reminders) == 0 {
				fmt.Fprintln(w, "No reminders.")
				return
			}
			for _, r := range reminders {
				flag := ""
				if r.Escalate {
					flag = "  OVERDUE"
				}
				fmt.Fprintf(w, "%s/%s  due %s%s\n", r.DocumentID, r.SectionID, r.DueAt.Format(time.RFC3339), flag)
			}
		})
	}),
}

var reminderDismissCmd = &cobra.Command{
	Use:   "dismiss DOCUMENT SECTION",
	Short: "Delete a section's reminder",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("reminder dismiss", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		return a.Reminders().Dismiss(ctx, args[0], args[1])
	}),
}

func init() {
	reminderCmd.AddCommand(reminderTrackCmd)
	reminderTrackCmd.Flags().String("last-updated", "", "RFC 3339 time of the last edit (default now)")
	reminderTrackCmd.Flags().Bool("completed", false, "Mark the section complete")
	reminderCmd.AddCommand(reminderListCmd)
	reminderCmd.AddCommand(reminderDismissCmd)
}
