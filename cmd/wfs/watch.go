package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"wfs-go/internal/app"
	"wfs-go/internal/wfs"
)

var draftWatchCmd = &cobra.Command{
	Use:   "watch DOCUMENT SECTION FILE",
	Short: "Autosave a section from a JSON file as it is edited",
	Long: `Watch FILE and autosave its JSON object into DOCUMENT/SECTION after
each burst of edits settles. Every save also enqueues an upsert sync job.
Runs until interrupted; a pending edit is flushed on exit.`,
	Args: cobra.ExactArgs(3),
	RunE: withApp("draft watch", func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		doc, section, path := args[0], args[1], args[2]
		path, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		saver := a.NewAutosaver(doc, section)
		if err := saver.Start(ctx); err != nil {
			return err
		}
		defer saver.Stop()

		unsubscribe := a.Bus().Subscribe(func(e wfs.Event) {
			end, ok := e.(wfs.AutosaveEnd)
			if !ok || end.DocumentID != doc || end.SectionID != section {
				return
			}
			if end.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "autosave failed: %v\n", end.Err)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s/%s\n", doc, section)
		})
		defer unsubscribe()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer watcher.Close()
		// Editors often replace the file, so watch its directory.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}

		observe := func() {
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			if err != nil {
				a.Logger().Warn("reading watched file", "path", path, "error", err)
				return
			}
			p, err := wfs.DecodePayload(data)
			if err != nil || p == nil {
				a.Logger().Debug("ignoring unparsable edit", "path", path, "error", err)
				return
			}
			saver.Observe(p)
		}
		observe()
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", path)

		for {
			select {
			case <-ctx.Done():
				// ctx is canceled; flush with a fresh one.
				return saver.Flush(context.WithoutCancel(ctx))
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) == path && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					observe()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				a.Logger().Warn("watcher error", "error", err)
			}
		}
	}),
}

func upsertJob(kind, doc, section string, p wfs.Payload) wfs.SyncJob {
	if kind == "" {
		kind = wfs.KindUpsertStep
	}
	return wfs.NewUpsertJob(kind, doc, section, p)
}
