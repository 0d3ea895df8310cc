// Package app assembles the MoodPipe turn pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/MoodPipe/internal/bot"
	"github.com/BTreeMap/MoodPipe/internal/config"
	"github.com/BTreeMap/MoodPipe/internal/flow"
	"github.com/BTreeMap/MoodPipe/internal/paramstore"
	"github.com/BTreeMap/MoodPipe/internal/sentiment"
	"github.com/BTreeMap/MoodPipe/internal/state"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// Opts holds injected dependencies. Anything left nil is built from Config.
type Opts struct {
	Store    store.Store
	Scorer   sentiment.Scorer
	Params   paramstore.Getter
	Messages *flow.Messages
}

// Option customises App construction.
type Option func(*Opts)

// WithStore uses st instead of opening Config.StoreDSN().
func WithStore(st store.Store) Option {
	return func(o *Opts) { o.Store = st }
}

// WithScorer uses s instead of building a scorer from Config.
func WithScorer(s sentiment.Scorer) Option {
	return func(o *Opts) { o.Scorer = s }
}

// WithParamStore resolves *_PARAM settings through g.
func WithParamStore(g paramstore.Getter) Option {
	return func(o *Opts) { o.Params = g }
}

// WithMessages overrides the reply catalogue.
func WithMessages(m flow.Messages) Option {
	return func(o *Opts) { o.Messages = &m }
}

// App is a ready-to-use turn pipeline.
type App struct {
	Config config.Config
	Store  store.Store
	Scorer sentiment.Scorer
	Bot    *bot.Bot
}

// New builds the store, scorer, flow engine and bot.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}

	gate, err := bot.ParseGatePolicy(cfg.GatePolicy)
	if err != nil {
		return nil, err
	}

	scorer := o.Scorer
	if scorer == nil {
		if scorer, err = NewScorer(ctx, cfg, o.Params); err != nil {
			return nil, fmt.Errorf("failed to create sentiment scorer: %w", err)
		}
	}

	st := o.Store
	if st == nil {
		dsn := cfg.StoreDSN()
		slog.Debug("app.New: opening store", "dsn_type", store.DetectDSNType(dsn))
		if st, err = store.Open(ctx, dsn); err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	var engineOpts []flow.Option
	if o.Messages != nil {
		engineOpts = append(engineOpts, flow.WithMessages(*o.Messages))
	}
	engine := flow.NewEngine(scorer, engineOpts...)

	slog.Info("MoodPipe pipeline assembled", "gate", gate, "sentiment_provider", cfg.SentimentProvider)
	return &App{
		Config: cfg,
		Store:  st,
		Scorer: scorer,
		Bot:    bot.New(engine, state.NewManager(st), bot.WithGatePolicy(gate)),
	}, nil
}

// NewScorer builds the configured sentiment scorer. Secrets named by
// SENTIMENT_KEY_PARAM are read from params, or from SSM when params is nil.
func NewScorer(ctx context.Context, cfg config.Config, params paramstore.Getter) (sentiment.Scorer, error) {
	if params == nil && cfg.SentimentKeyParam != "" {
		client, err := paramstore.NewFromEnvironment(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		params = client
	}

	switch strings.ToLower(cfg.SentimentProvider) {
	case config.ProviderOpenAI:
		key, err := paramstore.Resolve(ctx, params, cfg.OpenAIKey, cfg.SentimentKeyParam)
		if err != nil {
			return nil, err
		}
		return sentiment.NewOpenAIScorer(key, cfg.OpenAIModel)
	case config.ProviderTextAnalytics, "":
		key, err := paramstore.Resolve(ctx, params, cfg.SentimentKey, cfg.SentimentKeyParam)
		if err != nil {
			return nil, err
		}
		return sentiment.NewTextAnalyticsClient(
			sentiment.WithEndpoint(cfg.SentimentEndpoint),
			sentiment.WithKey(key),
			sentiment.WithLanguage(cfg.SentimentLanguage),
			sentiment.WithTimeout(cfg.SentimentTimeout),
		)
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.SentimentProvider)
	}
}

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
