package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newConfigCmd returns the "config" subcommand group for configuration management.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

// newConfigValidateCmd returns the "config validate" subcommand that checks config file validity.
func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if _, err := voiceConfig(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styleSuccess.Render("✓ Configuration is valid"))
			fmt.Fprintf(out, "  TMDb:     %s (%s)\n", sanitizeURL(cfg.TMDb.BaseURL), cfg.TMDb.Language)
			fmt.Fprintf(out, "  Voice:    match on %s, locale %s\n", cfg.Voice.MatchOn, cfg.Voice.Locale)
			if cfg.Telegram != nil {
				fmt.Fprintf(out, "  Telegram: %d allowed users\n", len(cfg.Telegram.AllowedUserIDs))
			} else {
				fmt.Fprintln(out, styleDim.Render("  Telegram: not configured"))
			}
			return nil
		},
	}
}
