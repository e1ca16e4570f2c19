package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wfs-go/internal/app"
	"wfs-go/internal/config"
	"wfs-go/internal/wfs"
)

func main() {
	// A missing .env is fine; it only supplies WFS_* overrides.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "wfs",
	Short:         "Local-first draft, version and sync engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// loadConfig reads the config file at the default path.
func loadConfig() (*config.Config, string, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, "", fmt.Errorf("resolving default paths: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, paths.ConfigPath, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(ctx context.Context, cmd *cobra.Command, command string) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	a, err := app.NewApp(ctx, cfg, command, app.Options{
		Passphrase: func() (string, error) { return readPassphrase("Passphrase: ") },
		Verbose:    verbose,
		Stderr:     os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp adapts fn to a cobra RunE that opens the app, runs fn and closes
// the app, recording failures on the session.
func withApp(command string, fn func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
		defer stop()

		a, err := newApp(ctx, cmd, command)
		if err != nil {
			return err
		}
		err = fn(ctx, cmd, a, args)
		if err != nil {
			a.Fail()
		}
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}
}

func parsePayload(raw string) (wfs.Payload, error) {
	p, err := wfs.DecodePayload([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing payload JSON: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return p, nil
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(reminderCmd)
	rootCmd.AddCommand(serveCmd)
}
