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

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drain the sync queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending jobs in send order",
	Args:  cobra.NoArgs,
	RunE: withApp("queue list", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		return renderJobs(cmd, a.Queue().Jobs(), "Queue is empty.")
	}),
}

var queueEnqueueCmd = &cobra.Command{
	Use:   "enqueue KIND DOCUMENT JSON",
	Short: "Add a job to the queue",
	Long: `Add a job to the queue. With --upsert the job replaces any pending job
for the same kind, document and section, keeping the newer payload.`,
	Args: cobra.ExactArgs(3),
	RunE: withApp("queue enqueue", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		payload, err := parsePayload(args[2])
		if err != nil {
			return err
		}
		section, _ := cmd.Flags().GetString("section")
		upsert, _ := cmd.Flags().GetBool("upsert")

		job := wfs.SyncJob{Kind: args[0], DocumentID: args[1], SectionID: section, Payload: payload}
		if upsert {
			job = wfs.NewUpsertJob(args[0], args[1], section, payload)
		}
		id, err := a.Queue().Enqueue(ctx, job)
		if err != nil {
			return fmt.Errorf("enqueueing job: %w", err)
		}
		return render(cmd, map[string]any{"id": id, "pending": a.Queue().Len()}, func(w io.Writer) {
			fmt.Fprintf(w, "Enqueued %s (%d pending)\n", id, a.Queue().Len())
		})
	}),
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Send pending jobs to the remote in order",
	Args:  cobra.NoArgs,
	RunE: withApp("queue drain", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		unsubscribe := a.Bus().Subscribe(func(e wfs.Event) {
			if r, ok := e.(wfs.QueueRetry); ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s failed (attempt %d), retrying in %s\n", r.JobID, r.Attempts, r.Delay)
			}
		})
		defer unsubscribe()

		report, err := a.Drain(ctx)
		if err != nil {
			return err
		}
		return render(cmd, report, func(w io.Writer) {
			fmt.Fprintf(w, "Sent %d, dropped %d, requeued %d, dead-lettered %d; %d remaining\n",
				report.Sent, report.Dropped, report.Requeued, report.DeadLettered, report.Remaining)
			if report.Failed {
				fmt.Fprintln(w, "Stopped on a failed job.")
			}
		})
	}),
}

var queueDeadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List jobs that exhausted their attempts",
	Args:  cobra.NoArgs,
	RunE: withApp("queue deadletters", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		jobs, err := a.Queue().DeadLetters(ctx)
		if err != nil {
			return err
		}
		return renderJobs(cmd, jobs, "No dead letters.")
	}),
}

func renderJobs(cmd *cobra.Command, jobs []wfs.SyncJob, empty string) error {
	return render(cmd, jobs, func(w io.Writer) {
		if len(jobs) == 0 {
			fmt.Fprintln(w, empty)
			return
		}
		for _, j := range jobs {
			target := j.DocumentID
			if j.SectionID != "" {
				target += "/" + j.SectionID
			}
			fmt.Fprintf(w, "%-40s %-14s %-24s attempts=%d  %s\n",
				j.ID, j.Kind, target, j.Attempts, j.EnqueuedAt.Format(time.RFC3339))
		}
	})
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueEnqueueCmd)
	queueEnqueueCmd.Flags().String("section", "", "Section the job targets")
	queueEnqueueCmd.Flags().Bool("upsert", false, "Replace a pending job for the same target")
	queueCmd.AddCommand(queueDrainCmd)
	queueCmd.AddCommand(queueDeadLettersCmd)
}
