package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wfs-go/internal/app"
	"wfs-go/internal/wfs"
)

// version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage numbered document versions",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create DOCUMENT KIND JSON",
	Short: "Record a new version",
	Args:  cobra.ExactArgs(3),
	RunE: withApp("version create", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		payload, err := parsePayload(args[2])
		if err != nil {
			return err
		}
		author, _ := cmd.Flags().GetString("author")
		reason, _ := cmd.Flags().GetString("reason")
		entry, err := a.Versions().CreateVersion(ctx, args[0], args[1], payload, wfs.VersionMeta{
			Author: author,
			Reason: reason,
		})
		if err != nil {
			return fmt.Errorf("creating version: %w", err)
		}
		return render(cmd, entry, func(w io.Writer) {
			fmt.Fprintf(w, "Created %s/%s v%d\n", entry.DocumentID, entry.Kind, entry.Version)
		})
	}),
}

var versionListCmd = &cobra.Command{
	Use:   "list DOCUMENT KIND",
	Short: "List versions, oldest first",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("version list", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		entries, err := a.Versions().ListVersions(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return render(cmd, entries, func(w io.Writer) {
			if len(entries) == 0 {
				fmt.Fprintln(w, "No versions.")
				return
			}
			for _, e := range entries {
				fmt.Fprintf(w, "v%-4d %s  %s\n", e.Version, e.SavedAt.Format(time.RFC3339), describeMeta(e.Meta))
			}
		})
	}),
}

var versionShowCmd = &cobra.Command{
	Use:   "show DOCUMENT KIND [VERSION]",
	Short: "Show one version, or the latest",
	Args:  cobra.RangeArgs(2, 3),
	RunE: withApp("version show", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		var entry wfs.VersionEntry
		if len(args) == 3 {
			v, err := parseVersion(args[2])
			if err != nil {
				return err
			}
			if entry, err = a.Versions().GetVersion(ctx, args[0], args[1], v); err != nil {
				return err
			}
		} else {
			latest, ok, err := a.Versions().LatestVersion(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no versions of %s/%s", args[0], args[1])
			}
			entry = latest
		}
		return render(cmd, entry, func(w io.Writer) {
			fmt.Fprintf(w, "Version:  %d\n", entry.Version)
			fmt.Fprintf(w, "Saved at: %s\n", entry.SavedAt.Format(time.RFC3339))
			if m := describeMeta(entry.Meta); m != "" {
				fmt.Fprintf(w, "Meta:     %s\n", m)
			}
			fmt.Fprintf(w, "Payload:  %s\n", compactJSON(entry.Payload))
		})
	}),
}

var versionDiffCmd = &cobra.Command{
	Use:   "diff DOCUMENT KIND FROM TO",
	Short: "Show the top-level fields that differ between two versions",
	Args:  cobra.ExactArgs(4),
	RunE: withApp("version diff", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		from, err := parseVersion(args[2])
		if err != nil {
			return err
		}
		to, err := parseVersion(args[3])
		if err != nil {
			return err
		}
		base, err := a.Versions().GetVersion(ctx, args[0], args[1], from)
		if err != nil {
			return err
		}
		other, err := a.Versions().GetVersion(ctx, args[0], args[1], to)
		if err != nil {
			return err
		}
		changes := wfs.Diff(base.Payload, other.Payload)
		return render(cmd, changes, func(w io.Writer) {
			if len(changes) == 0 {
				fmt.Fprintln(w, "No differences.")
				return
			}
			for _, field := range wfs.DiffFields(changes) {
				c := changes[field]
				fmt.Fprintf(w, "%s: %s -> %s\n", field, compactJSON(c.From), compactJSON(c.To))
			}
		})
	}),
}

var versionRestoreCmd = &cobra.Command{
	Use:   "restore DOCUMENT KIND VERSION",
	Short: "Record a copy of an old version as the newest one",
	Args:  cobra.ExactArgs(3),
	RunE: withApp("version restore", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		v, err := parseVersion(args[2])
		if err != nil {
			return err
		}
		author, _ := cmd.Flags().GetString("author")
		reason, _ := cmd.Flags().GetString("reason")
		entry, err := a.Versions().Restore(ctx, args[0], args[1], v, wfs.VersionMeta{Author: author, Reason: reason})
		if err != nil {
			return fmt.Errorf("restoring version: %w", err)
		}
		return render(cmd, entry, func(w io.Writer) {
			fmt.Fprintf(w, "Restored v%d as v%d\n", v, entry.Version)
		})
	}),
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return v, nil
}

func describeMeta(m wfs.VersionMeta) string {
	s := ""
	if m.Author != "" {
		s += "by " + m.Author
	}
	if m.Reason != "" {
		if s != "" {
			s += ", "
		}
		s += m.Reason
	}
	if m.RestoredFromVersion > 0 {
		if s != "" {
			s += ", "
		}
		s += fmt.Sprintf("restored from v%d", m.RestoredFromVersion)
	}
	return s
}

func init() {
	versionCmd.AddCommand(versionCreateCmd)
	versionCreateCmd.Flags().String("author", "", "Author recorded in the version metadata")
	versionCreateCmd.Flags().String("reason", "", "Reason recorded in the version metadata")
	versionCmd.AddCommand(versionListCmd)
	versionCmd.AddCommand(versionShowCmd)
	versionCmd.AddCommand(versionDiffCmd)
	versionCmd.AddCommand(versionRestoreCmd)
	versionRestoreCmd.Flags().String("author", "", "Author recorded in the version metadata")
	versionRestoreCmd.Flags().String("reason", "", "Reason recorded in the version metadata (default \"restore\")")
}
