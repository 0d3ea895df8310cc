package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BTreeMap/MoodPipe/internal/api"
	"github.com/BTreeMap/MoodPipe/internal/app"
	"github.com/BTreeMap/MoodPipe/internal/config"
	"github.com/BTreeMap/MoodPipe/internal/lockfile"
	"github.com/BTreeMap/MoodPipe/internal/messaging"
	"github.com/BTreeMap/MoodPipe/internal/store"
	"github.com/BTreeMap/MoodPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/MoodPipe/internal/whatsapp"
)

// Flags holds command line options that do not live in Config.
type Flags struct {
	numericCode bool
}

func main() {
	// Initialize structured logger
	closer := initializeLogger()
	defer closer.Close()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg, flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], cfg)
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(1)
	}

	// Reconfigure now that LOG_LEVEL and LOG_FILE are known.
	closer.Close()
	if closer, err = config.InitLogger(cfg); err != nil {
		slog.Error("Failed to configure logger", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags); err != nil {
		slog.Error("MoodPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("MoodPipe exited successfully")
}

// initializeLogger installs a text logger before configuration is parsed.
func initializeLogger() io.Closer {
	logger, closer := config.NewLogger(os.Stdout, slog.LevelInfo, "")
	slog.SetDefault(logger)
	return closer
}

// parseCommandLineFlags applies flag overrides on top of the environment configuration.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, cfg config.Config) (config.Config, Flags, error) {
	var flags Flags
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for MoodPipe data (overrides $MOODPIPE_STATE_DIR)")
	fs.StringVar(&cfg.DatabaseURL, "db-dsn", cfg.DatabaseURL, "state store DSN: sqlite path, postgres URL, dynamodb://table or memory (overrides $DATABASE_URL)")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&cfg.SentimentProvider, "sentiment-provider", cfg.SentimentProvider, "sentiment provider: textanalytics or openai (overrides $SENTIMENT_PROVIDER)")
	fs.StringVar(&cfg.SentimentEndpoint, "sentiment-endpoint", cfg.SentimentEndpoint, "sentiment service URL (overrides $SENTIMENT_ENDPOINT)")
	fs.StringVar(&cfg.GatePolicy, "gate-policy", cfg.GatePolicy, "gate policy: every-message or first-message-only (overrides $GATE_POLICY)")
	fs.BoolVar(&cfg.WhatsAppEnabled, "whatsapp", cfg.WhatsAppEnabled, "enable the WhatsApp channel (overrides $WHATSAPP_ENABLED)")
	fs.StringVar(&cfg.WhatsAppDSN, "whatsapp-db-dsn", cfg.WhatsAppDSN, "WhatsApp device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&cfg.WhatsAppQROutput, "qr-output", cfg.WhatsAppQROutput, "path to write login QR code (overrides $WHATSAPP_QR_OUTPUT)")
	fs.BoolVar(&flags.numericCode, "numeric-code", false, "print the raw login code instead of a QR code")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotating log file path (overrides $LOG_FILE)")

	if err := fs.Parse(args); err != nil {
		return cfg, flags, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, flags, err
	}

	slog.Debug("flags parsed",
		"state_dir", cfg.StateDir,
		"db_dsn_set", cfg.DatabaseURL != "",
		"api_addr", cfg.APIAddr,
		"sentiment_provider", cfg.SentimentProvider,
		"gate_policy", cfg.GatePolicy,
		"whatsapp", cfg.WhatsAppEnabled,
		"numeric_code", flags.numericCode)
	return cfg, flags, nil
}

// needsStateLock reports whether the store DSN points at a local file.
func needsStateLock(cfg config.Config) bool {
	return store.DetectDSNType(cfg.StoreDSN()) == store.DSNTypeSQLite || cfg.WhatsAppEnabled
}

// run assembles the pipeline, starts every configured channel and serves the API until ctx ends.
func run(ctx context.Context, cfg config.Config, flags Flags) error {
	if needsStateLock(cfg) {
		lockDir := cfg.StateDir
		if cfg.DatabaseURL != "" && store.DetectDSNType(cfg.DatabaseURL) == store.DSNTypeSQLite {
			lockDir = filepath.Dir(cfg.DatabaseURL)
		}
		lock, err := lockfile.AcquireLock(lockDir)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				slog.Warn("Failed to release state lock", "error", err)
			}
		}()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()

	router := messaging.NewTurnRouter(a.Bot, a.Store)
	var apiOpts []api.Option
	if cfg.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(cfg.APIAddr))
	}

	if cfg.WhatsAppEnabled {
		waClient, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(cfg, flags)...)
		if err != nil {
			return fmt.Errorf("failed to start WhatsApp: %w", err)
		}
		defer waClient.Disconnect()
		router.Register(messaging.NewWhatsAppService(waClient))
	}

	if cfg.TwilioEnabled() {
		twClient, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(cfg.TwilioFromNumber),
		)
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(twClient, cfg.TwilioFromNumber)
		router.Register(svc)
		apiOpts = append(apiOpts, api.WithTwilio(svc))
	}

	if cfg.DiscordToken != "" {
		svc, err := messaging.NewDiscordService(cfg.DiscordToken)
		if err != nil {
			return fmt.Errorf("failed to create Discord service: %w", err)
		}
		router.Register(svc)
	}

	for _, svc := range router.Services() {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s service: %w", svc.Name(), err)
		}
		defer func(svc messaging.Service) {
			if err := svc.Stop(); err != nil && !errors.Is(err, messaging.ErrServiceStopped) {
				slog.Warn("Failed to stop service", "service", svc.Name(), "error", err)
			}
		}(svc)
	}
	router.Start(ctx)
	defer router.Wait()

	slog.Info("Bootstrapping MoodPipe", "channels", len(router.Services()), "api_addr", cfg.APIAddr)
	return api.NewServer(a.Bot, a.Store, apiOpts...).Run(ctx)
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(cfg config.Config, flags Flags) []whatsapp.Option {
	opts := []whatsapp.Option{whatsapp.WithDBDSN(cfg.WhatsAppStoreDSN())}
	if cfg.WhatsAppQROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(cfg.WhatsAppQROutput))
	}
	if flags.numericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	return opts
}
