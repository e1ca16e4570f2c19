package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"wfs-go/internal/app"
)

// draft command
var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage local draft snapshots",
}

var draftSaveCmd = &cobra.Command{
	Use:   "save DOCUMENT SECTION JSON",
	Short: "Append a snapshot of a section",
	Args:  cobra.ExactArgs(3),
	RunE: withApp("draft save", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		payload, err := parsePayload(args[2])
		if err != nil {
			return err
		}
		snap, err := a.Drafts().Save(ctx, args[0], args[1], payload)
		if err != nil {
			return fmt.Errorf("saving draft: %w", err)
		}
		if enqueue, _ := cmd.Flags().GetBool("enqueue"); enqueue {
			if _, err := a.Queue().Enqueue(ctx, upsertJob(a.Config().Autosave.JobKind, args[0], args[1], payload)); err != nil {
				return fmt.Errorf("enqueueing sync job: %w", err)
			}
		}
		return render(cmd, snap, func(w io.Writer) {
			fmt.Fprintf(w, "Saved %s/%s  %s  %s\n", snap.DocumentID, snap.SectionID, snap.SavedAt.Format(time.RFC3339), snap.Digest[:12])
		})
	}),
}

var draftShowCmd = &cobra.Command{
	Use:   "show DOCUMENT SECTION",
	Short: "Show the latest valid snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("draft show", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		snap, ok, err := a.Drafts().LatestValid(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no valid draft for %s/%s", args[0], args[1])
		}
		return render(cmd, snap, func(w io.Writer) {
			fmt.Fprintf(w, "Saved at: %s\n", snap.SavedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Digest:   %s\n", snap.Digest)
			fmt.Fprintf(w, "Payload:  %s\n", compactJSON(snap.Payload))
		})
	}),
}

var draftHistoryCmd = &cobra.Command{
	Use:   "history DOCUMENT SECTION",
	Short: "List stored snapshots, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("draft history", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		infos, err := a.Drafts().History(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return render(cmd, infos, func(w io.Writer) {
			if len(infos) == 0 {
				fmt.Fprintln(w, "No snapshots.")
				return
			}
			for _, info := range infos {
				state := "ok"
				if !info.Valid {
					state = "CORRUPT"
				}
				fmt.Fprintf(w, "#%-4d %s  %s  %s\n", info.Index, info.SavedAt.Format(time.RFC3339), info.Digest[:min(12, len(info.Digest))], state)
			}
		})
	}),
}

var draftSectionsCmd = &cobra.Command{
	Use:   "sections DOCUMENT",
	Short: "List the sections of a document that have drafts",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("draft sections", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		sections, err := a.Drafts().Sections(ctx, args[0])
		if err != nil {
			return err
		}
		return render(cmd, sections, func(w io.Writer) {
			for _, s := range sections {
				fmt.Fprintln(w, s)
			}
		})
	}),
}

var draftMergeCmd = &cobra.Command{
	Use:   "merge DOCUMENT SECTION JSON",
	Short: "Adopt an incoming payload if it is at least as new as the local draft",
	Args:  cobra.ExactArgs(3),
	RunE: withApp("draft merge", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		incoming, err := parsePayload(args[2])
		if err != nil {
			return err
		}
		snap, err := a.Drafts().Merge(ctx, args[0], args[1], incoming)
		if err != nil {
			return fmt.Errorf("merging draft: %w", err)
		}
		return render(cmd, snap, func(w io.Writer) {
			fmt.Fprintf(w, "Current %s/%s: %s\n", snap.DocumentID, snap.SectionID, compactJSON(snap.Payload))
		})
	}),
}

var draftPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop snapshots older than the retention window",
	Args:  cobra.NoArgs,
	RunE: withApp("draft purge", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		changed, err := a.Drafts().PurgeExpired(ctx)
		if err != nil {
			return err
		}
		return render(cmd, map[string]bool{"changed": changed}, func(w io.Writer) {
			if changed {
				fmt.Fprintln(w, "Expired snapshots purged.")
			} else {
				fmt.Fprintln(w, "Nothing to purge.")
			}
		})
	}),
}

var draftClearCmd = &cobra.Command{
	Use:   "clear DOCUMENT",
	Short: "Remove every draft of a document",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("draft clear", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		if err := a.Drafts().Clear(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared drafts of %s\n", args[0])
		return nil
	}),
}

func init() {
	draftCmd.AddCommand(draftSaveCmd)
	draftSaveCmd.Flags().Bool("enqueue", false, "Also enqueue an upsert sync job")
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftHistoryCmd)
	draftCmd.AddCommand(draftSectionsCmd)
	draftCmd.AddCommand(draftMergeCmd)
	draftCmd.AddCommand(draftPurgeCmd)
	draftCmd.AddCommand(draftClearCmd)
	draftCmd.AddCommand(draftWatchCmd)
}
