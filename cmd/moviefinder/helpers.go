package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vadimtrunov/moviefinder/internal/config"
	"github.com/vadimtrunov/moviefinder/internal/httpclient"
	"github.com/vadimtrunov/moviefinder/internal/metadata/tmdb"
	"github.com/vadimtrunov/moviefinder/internal/movies"
	"github.com/vadimtrunov/moviefinder/internal/voice"
)

// Lipgloss styles used across commands.
var (
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray

	styleTitle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true) // white bold
	styleGenres   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	styleSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true) // magenta bold

	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("5")).
			MarginBottom(1)

	styleAlert = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(0, 1)
)

const (
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 10 * time.Second
)

// loadConfig loads and validates the configuration file.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// setup loads the configuration and sends logs to the command's stderr so
// they never mix with command output.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := config.SetupLoggerTo(cmd.ErrOrStderr(), cfg.App.LogLevel)
	return cfg, logger, nil
}

// initCatalog creates the TMDb client and the HTTP client it shares.
func initCatalog(cfg *config.Config, logger *slog.Logger) *tmdb.Client {
	hc := httpclient.New(httpclient.Config{
		MaxAttempts: cfg.HTTP.MaxRetries + 1,
		BaseDelay:   retryBaseDelay,
		MaxDelay:    retryMaxDelay,
		Timeout:     cfg.HTTP.Timeout,
	}, logger)

	client := tmdb.New(tmdb.Config{
		APIKey:         cfg.TMDb.APIKey,
		BaseURL:        cfg.TMDb.BaseURL,
		ImageListURL:   cfg.TMDb.ImageListURL,
		ImageDetailURL: cfg.TMDb.ImageDetailURL,
		Language:       cfg.TMDb.Language,
	}, hc, logger)

	logger.Debug("catalog client initialized",
		slog.String("url", sanitizeURL(cfg.TMDb.BaseURL)),
		slog.Int("max_attempts", cfg.HTTP.MaxRetries+1),
	)
	return client
}

// voiceConfig converts the voice section of the configuration.
func voiceConfig(cfg *config.Config) (voice.Config, error) {
	mode, err := voice.ParseMatchMode(cfg.Voice.MatchOn)
	if err != nil {
		return voice.Config{}, err
	}
	return voice.Config{Mode: mode, Locale: cfg.Voice.Locale}, nil
}

// signalContext derives a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// openStore starts a dispatcher and a Store on it, subscribed through a
// channel. The returned close function releases both.
func openStore(catalog *tmdb.Client, logger *slog.Logger) (*movies.Store, <-chan movies.Event, func()) {
	d := movies.NewSerialDispatcher()
	store := movies.New(catalog, d, logger)
	events, stop := store.Events(16)
	return store, events, func() {
		stop()
		d.Close()
	}
}

// awaitOK waits for req to answer op and folds a failed event into the error.
func awaitOK(ctx context.Context, events <-chan movies.Event, req movies.Request, op movies.Op) error {
	e, err := movies.Await(ctx, events, req, op)
	if err != nil {
		return err
	}
	return e.Err
}

// sanitizeURL strips credentials, query params, and fragment from a URL for safe logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Scheme == "" {
		return "<redacted>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
