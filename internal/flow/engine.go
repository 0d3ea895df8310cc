// filepath: internal/flow/engine.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/sentiment"
)

// ErrNoScorer is returned when the feeling state is reached without a scorer.
var ErrNoScorer = errors.New("no sentiment scorer configured")

// Opts holds configuration for the Engine.
type Opts struct {
	Messages Messages
}

// Option configures the Engine.
type Option func(*Opts)

// WithMessages overrides the reply catalogue. Empty entries keep their defaults.
func WithMessages(m Messages) Option {
	return func(o *Opts) { o.Messages = m }
}

// Engine sequences the scripted questions of a conversation.
type Engine struct {
	scorer   sentiment.Scorer
	messages Messages
}

// NewEngine creates an Engine that scores feelings with scorer.
func NewEngine(scorer sentiment.Scorer, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{scorer: scorer, messages: cfg.Messages.withDefaults()}
}

// Messages returns the catalogue in use.
func (e *Engine) Messages() Messages {
	return e.messages
}

// Advance processes one input against the current cursor and returns the
// updated state together with the replies to send, in order. On error the
// input state is returned unchanged and no replies are produced.
func (e *Engine) Advance(ctx context.Context, flow models.ConversationFlow, profile models.UserProfile, input string) (models.ConversationFlow, models.UserProfile, []string, error) {
	switch flow.LastQuestionAsked {
	case models.QuestionNone, "":
		flow.LastQuestionAsked = models.QuestionName
		return flow, profile, []string{e.messages.AskName}, nil

	case models.QuestionName:
		profile.Name = input
		flow.LastQuestionAsked = models.QuestionFeeling
		return flow, profile, []string{
			fmt.Sprintf(e.messages.Acknowledge, profile.Name),
			e.messages.AskFeeling,
		}, nil

	case models.QuestionFeeling:
		if e.scorer == nil {
			return flow, profile, nil, ErrNoScorer
		}
		score, err := e.scorer.Score(ctx, input)
		if err != nil {
			slog.Error("Engine.Advance: sentiment scoring failed", "error", err)
			return flow, profile, nil, fmt.Errorf("failed to score feeling: %w", err)
		}
		bucket := Classify(score)
		slog.Debug("Engine.Advance: feeling scored", "score", score, "bucket", bucket)
		flow.LastQuestionAsked = models.QuestionNone
		return flow, profile, []string{e.messages.Reply(bucket, profile.Name)}, nil

	default:
		return flow, profile, nil, fmt.Errorf("%w: %q", models.ErrUnknownQuestionState, flow.LastQuestionAsked)
	}
}
