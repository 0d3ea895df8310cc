package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	for _, k := range []string{"MOODPIPE_STATE_DIR", "DATABASE_URL", "API_ADDR", "SENTIMENT_PROVIDER", "SENTIMENT_TIMEOUT", "SENTIMENT_LANGUAGE", "GATE_POLICY", "LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StateDir != DefaultStateDir || cfg.APIAddr != DefaultAPIAddr {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SentimentProvider != ProviderTextAnalytics || cfg.SentimentLanguage != "en" || cfg.SentimentTimeout != 10*time.Second {
		t.Errorf("unexpected sentiment defaults %+v", cfg)
	}
	if cfg.GatePolicy != "every-message" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if got := cfg.StoreDSN(); got != filepath.Join(DefaultStateDir, DefaultDBFileName) {
		t.Errorf("unexpected store DSN %q", got)
	}
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "dynamodb://moodpipe-state")
	t.Setenv("SENTIMENT_PROVIDER", "openai")
	t.Setenv("SENTIMENT_TIMEOUT", "3s")
	t.Setenv("WHATSAPP_ENABLED", "true")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+1")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDSN() != "dynamodb://moodpipe-state" {
		t.Errorf("unexpected store DSN %q", cfg.StoreDSN())
	}
	if cfg.SentimentProvider != ProviderOpenAI || cfg.SentimentTimeout != 3*time.Second {
		t.Errorf("unexpected sentiment config %+v", cfg)
	}
	if !cfg.WhatsAppEnabled || !cfg.TwilioEnabled() {
		t.Errorf("expected channels enabled %+v", cfg)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"SENTIMENT_PROVIDER": "magic",
		"SENTIMENT_TIMEOUT":  "-1s",
	}
	for k, v := range tests {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := Parse(); err == nil {
				t.Errorf("expected error for %s=%s", k, v)
			}
		})
	}
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("SENTIMENT_TIMEOUT", "soon")
		if _, err := Parse(); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestWhatsAppStoreDSN(t *testing.T) {
	cfg := Config{StateDir: "/data"}
	if got := cfg.WhatsAppStoreDSN(); got != "file:/data/whatsmeow.db?_foreign_keys=on" {
		t.Errorf("unexpected DSN %q", got)
	}
	cfg.WhatsAppDSN = "postgres://x"
	if cfg.WhatsAppStoreDSN() != "postgres://x" {
		t.Error("explicit DSN should win")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewLogger_WritesToRotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "moodpipe.log")
	logger, closer := NewLogger(&buf, slog.LevelInfo, path)
	logger.Info("Bot.HandleTurn: turn complete", "conversation", "c1")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, out := range []string{buf.String(), string(data)} {
		if !strings.Contains(out, "turn complete") || strings.Contains(out, "hidden") {
			t.Errorf("unexpected log output %q", out)
		}
	}
}

func TestParse_DebugOverridesLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("MOODPIPE_DEBUG", "true")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Debug {
		t.Fatal("expected Debug to be set from MOODPIPE_DEBUG")
	}
	level, err := cfg.Level()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v, %v", level, err)
	}

	cfg.Debug = false
	if level, _ := cfg.Level(); level != slog.LevelWarn {
		t.Errorf("expected LOG_LEVEL to apply without debug, got %v", level)
	}
}

func TestConfigLevel_InvalidLogLevel(t *testing.T) {
	if _, err := (Config{LogLevel: "loud"}).Level(); err == nil {
		t.Error("expected error for invalid LOG_LEVEL")
	}
	if level, err := (Config{LogLevel: "loud", Debug: true}).Level(); err != nil || level != slog.LevelDebug {
		t.Errorf("expected debug to bypass LOG_LEVEL parsing, got %v, %v", level, err)
	}
}
