package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wfs-go/internal/app"
	"wfs-go/internal/config"
	"wfs-go/internal/encryption"
)

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to resolve default paths: %w", err)
		}

		cfg := config.NewConfig(paths.BaseDir)
		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Fprintf(cmd.OutOrStdout(), "Base Dir: %s\n", paths.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		return render(cmd, cfg, func(w io.Writer) {
			fmt.Fprintf(w, "Configuration from %s:\n\n", path)
			fmt.Fprintf(w, "Base Dir:     %s\n", cfg.BaseDir)
			fmt.Fprintf(w, "Log Dir:      %s\n", cfg.LogDir)
			fmt.Fprintf(w, "Storage:      %s\n", cfg.Storage.Type)
			fmt.Fprintf(w, "Compression:  %s\n", cfg.Compression.Type)
			fmt.Fprintf(w, "Encryption:   %s\n", cfg.Encryption.Type)
			fmt.Fprintf(w, "Remote:       %s %s\n", cfg.Remote.Type, cfg.Remote.URL)
			fmt.Fprintf(w, "Connectivity: %s\n", cfg.Connectivity.Type)
			fmt.Fprintf(w, "Drain every:  %s\n", cfg.Sync.DrainInterval.Duration)
			fmt.Fprintf(w, "Debounce:     %s\n", cfg.Autosave.Debounce.Duration)
		})
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the age key pair used for encryption at rest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewKeyManagerFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc.IsConfigured() {
			return fmt.Errorf("keys already exist at %s", cfg.Encryption.PublicKeyPath)
		}

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		fmt.Fprintln(cmd.OutOrStdout(), "Set [encryption] type = \"age\" to encrypt stored values.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	keysCmd.AddCommand(keysInitCmd)
}
