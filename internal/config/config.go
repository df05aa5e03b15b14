package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate.
const (
	DefaultBaseURL        = "https://api.themoviedb.org/3"
	DefaultImageListURL   = "https://image.tmdb.org/t/p/w342"
	DefaultImageDetailURL = "https://image.tmdb.org/t/p/original"
	DefaultLanguage       = "en-US"
	DefaultLogLevel       = "info"
	DefaultMatchOn        = "first"

	maxRetriesLimit = 10
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MOVIEFINDER_"

// Config represents the main application configuration
type Config struct {
	// Catalog service
	TMDb TMDbConfig `yaml:"tmdb"`

	// Outbound HTTP behaviour
	HTTP HTTPConfig `yaml:"http"`

	// Voice search
	Voice VoiceConfig `yaml:"voice"`

	// Frontends
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`

	// Application settings
	App AppConfig `yaml:"app"`
}

// TMDbConfig holds catalog service configuration
type TMDbConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url,omitempty"`
	ImageListURL   string `yaml:"image_list_url,omitempty"`
	ImageDetailURL string `yaml:"image_detail_url,omitempty"`
	Language       string `yaml:"language,omitempty"`
}

// HTTPConfig controls retries and timeouts for catalog requests.
// Zero values mean a single attempt without a client-side timeout.
type HTTPConfig struct {
	MaxRetries int           `yaml:"max_retries,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// VoiceConfig holds voice search settings
type VoiceConfig struct {
	MatchOn string `yaml:"match_on,omitempty"` // "first" or "final"
	Locale  string `yaml:"locale,omitempty"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	AllowedUserIDs []int64 `yaml:"allowed_user_ids,omitempty"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	LogLevel string `yaml:"log_level"` // "debug", "info", "warn", "error"
}

// Load loads configuration from a YAML file with environment variable
// overrides. Variables from a .env file in the working directory are loaded
// first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	_ = godotenv.Load()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// validateConfigPath checks that path names a regular, readable file.
func validateConfigPath(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables
func (c *Config) applyEnvOverrides() error {
	// TMDb
	setFromEnv("TMDB_API_KEY", &c.TMDb.APIKey)
	setFromEnv("TMDB_BASE_URL", &c.TMDb.BaseURL)
	setFromEnv("TMDB_IMAGE_LIST_URL", &c.TMDb.ImageListURL)
	setFromEnv("TMDB_IMAGE_DETAIL_URL", &c.TMDb.ImageDetailURL)
	setFromEnv("TMDB_LANGUAGE", &c.TMDb.Language)

	// HTTP
	if v := os.Getenv(EnvPrefix + "HTTP_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_MAX_RETRIES: %w", EnvPrefix, err)
		}
		c.HTTP.MaxRetries = n
	}
	if v := os.Getenv(EnvPrefix + "HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sHTTP_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HTTP.Timeout = d
	}

	// Voice
	setFromEnv("VOICE_MATCH_ON", &c.Voice.MatchOn)
	setFromEnv("VOICE_LOCALE", &c.Voice.Locale)

	// Telegram
	if v := os.Getenv(EnvPrefix + "TELEGRAM_BOT_TOKEN"); v != "" {
		if c.Telegram == nil {
			c.Telegram = &TelegramConfig{}
		}
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(EnvPrefix + "TELEGRAM_ALLOWED_USER_IDS"); v != "" && c.Telegram != nil {
		ids, err := parseIDList(v)
		if err != nil {
			return fmt.Errorf("%sTELEGRAM_ALLOWED_USER_IDS: %w", EnvPrefix, err)
		}
		c.Telegram.AllowedUserIDs = ids
	}

	// App
	setFromEnv("LOG_LEVEL", &c.App.LogLevel)
	return nil
}

func setFromEnv(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

// parseIDList parses a comma-separated list of user IDs.
func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.TMDb.APIKey == "" {
		return fmt.Errorf("tmdb.api_key is required")
	}

	c.setDefaults()

	urls := []struct{ value, field string }{
		{c.TMDb.BaseURL, "tmdb.base_url"},
		{c.TMDb.ImageListURL, "tmdb.image_list_url"},
		{c.TMDb.ImageDetailURL, "tmdb.image_detail_url"},
	}
	for _, u := range urls {
		if err := validateURL(u.value, u.field); err != nil {
			return err
		}
	}

	if c.HTTP.MaxRetries < 0 || c.HTTP.MaxRetries > maxRetriesLimit {
		return fmt.Errorf("http.max_retries must be between 0 and %d", maxRetriesLimit)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}

	switch c.Voice.MatchOn {
	case "first", "final":
	default:
		return fmt.Errorf("voice.match_on must be 'first' or 'final'")
	}

	if c.Telegram != nil && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}

	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug, info, warn, error")
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.TMDb.BaseURL == "" {
		c.TMDb.BaseURL = DefaultBaseURL
	}
	if c.TMDb.ImageListURL == "" {
		c.TMDb.ImageListURL = DefaultImageListURL
	}
	if c.TMDb.ImageDetailURL == "" {
		c.TMDb.ImageDetailURL = DefaultImageDetailURL
	}
	if c.TMDb.Language == "" {
		c.TMDb.Language = DefaultLanguage
	}
	if c.Voice.MatchOn == "" {
		c.Voice.MatchOn = DefaultMatchOn
	}
	if c.Voice.Locale == "" {
		c.Voice.Locale = c.TMDb.Language
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = DefaultLogLevel
	}
}

// validateURL checks that raw is an absolute http(s) URL with a host.
func validateURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", field)
	}
	return nil
}

// Allows reports whether a Telegram user may talk to the bot. An empty
// allow-list admits everyone.
func (t *TelegramConfig) Allows(userID int64) bool {
	return len(t.AllowedUserIDs) == 0 || slices.Contains(t.AllowedUserIDs, userID)
}
