// Package config loads MoodPipe configuration from the environment.
//
// A .env file in the working directory is loaded first (when present); real
// environment variables take precedence over it. Command line flags in the
// binaries override the result.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Defaults used when the environment leaves a setting empty.
const (
	DefaultStateDir   = "/var/lib/moodpipe"
	DefaultDBFileName = "moodpipe.db"
	DefaultAPIAddr    = ":8080"
)

// Sentiment providers.
const (
	ProviderTextAnalytics = "textanalytics"
	ProviderOpenAI        = "openai"
)

// Config holds environment configuration.
type Config struct {
	StateDir    string `env:"MOODPIPE_STATE_DIR" envDefault:"/var/lib/moodpipe"`
	DatabaseURL string `env:"DATABASE_URL"`
	APIAddr     string `env:"API_ADDR" envDefault:":8080"`

	SentimentProvider string        `env:"SENTIMENT_PROVIDER" envDefault:"textanalytics"`
	SentimentEndpoint string        `env:"SENTIMENT_ENDPOINT"`
	SentimentKey      string        `env:"SENTIMENT_KEY"`
	SentimentKeyParam string        `env:"SENTIMENT_KEY_PARAM"`
	SentimentLanguage string        `env:"SENTIMENT_LANGUAGE" envDefault:"en"`
	SentimentTimeout  time.Duration `env:"SENTIMENT_TIMEOUT" envDefault:"10s"`
	OpenAIKey         string        `env:"OPENAI_API_KEY"`
	OpenAIModel       string        `env:"OPENAI_MODEL"`

	GatePolicy string `env:"GATE_POLICY" envDefault:"every-message"`

	WhatsAppEnabled  bool   `env:"WHATSAPP_ENABLED"`
	WhatsAppDSN      string `env:"WHATSAPP_DB_DSN"`
	WhatsAppQROutput string `env:"WHATSAPP_QR_OUTPUT"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`

	DiscordToken string `env:"DISCORD_TOKEN"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
	// Debug forces debug logging regardless of LOG_LEVEL.
	Debug bool `env:"MOODPIPE_DEBUG"`

	AWSRegion string `env:"AWS_REGION"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config.Load: no .env file loaded", "error", err)
	} else {
		slog.Debug("config.Load: loaded .env file")
	}
	return Parse()
}

// Parse reads the process environment without touching .env files.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	slog.Debug("config.Parse: environment loaded",
		"state_dir", cfg.StateDir,
		"database_url_set", cfg.DatabaseURL != "",
		"api_addr", cfg.APIAddr,
		"sentiment_provider", cfg.SentimentProvider,
		"sentiment_key_set", cfg.SentimentKey != "",
		"sentiment_key_param", cfg.SentimentKeyParam,
		"openai_key_set", cfg.OpenAIKey != "",
		"gate_policy", cfg.GatePolicy,
		"whatsapp_enabled", cfg.WhatsAppEnabled,
		"twilio_enabled", cfg.TwilioEnabled(),
		"discord_enabled", cfg.DiscordToken != "")
	return cfg, nil
}

// Validate checks values the binaries cannot work around.
func (c Config) Validate() error {
	switch strings.ToLower(c.SentimentProvider) {
	case ProviderTextAnalytics, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown SENTIMENT_PROVIDER %q", c.SentimentProvider)
	}
	if c.SentimentTimeout <= 0 {
		return fmt.Errorf("SENTIMENT_TIMEOUT must be positive, got %s", c.SentimentTimeout)
	}
	return nil
}

// StoreDSN returns DATABASE_URL, falling back to a SQLite file in the state directory.
func (c Config) StoreDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	dir := c.StateDir
	if dir == "" {
		dir = DefaultStateDir
	}
	return filepath.Join(dir, DefaultDBFileName)
}

// WhatsAppStoreDSN returns the whatsmeow device store DSN.
func (c Config) WhatsAppStoreDSN() string {
	if c.WhatsAppDSN != "" {
		return c.WhatsAppDSN
	}
	dir := c.StateDir
	if dir == "" {
		dir = DefaultStateDir
	}
	return "file:" + filepath.Join(dir, "whatsmeow.db") + "?_foreign_keys=on"
}

// TwilioEnabled reports whether all Twilio credentials are present.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}
