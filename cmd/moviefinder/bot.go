package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vadimtrunov/moviefinder/internal/config"
	"github.com/vadimtrunov/moviefinder/internal/frontend/telegram"
)

// newBotCmd returns the "bot" subcommand for running the Telegram bot.
func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Start the Telegram bot",
		Long:  "Serve the movie browser over Telegram: /start lists movies, /more pages, a title selects.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd)
		},
	}
}

// runBot starts the Telegram bot and blocks until interrupted.
func runBot(cmd *cobra.Command) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Telegram == nil {
		return errors.New(
			"telegram configuration is required: set telegram.bot_token in config or " +
				config.EnvPrefix + "TELEGRAM_BOT_TOKEN env var",
		)
	}

	vcfg, err := voiceConfig(cfg)
	if err != nil {
		return err
	}

	logger := config.SetupLogger(cfg.App.LogLevel)
	catalog := initCatalog(cfg, logger)

	bot, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.AllowedUserIDs, catalog, vcfg, logger)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	logger.Info("telegram bot starting")
	return bot.Start(ctx)
}
