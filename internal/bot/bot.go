// Package bot dispatches incoming activities to the conversation flow.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/MoodPipe/internal/flow"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/state"
)

// TurnContext is one incoming activity plus a way to reply to it.
type TurnContext interface {
	Activity() models.Activity
	SendActivity(ctx context.Context, text string) error
}

// GatePolicy decides when a user message reaches the flow engine.
type GatePolicy string

const (
	// GateEveryMessage runs the engine for every message.
	GateEveryMessage GatePolicy = "every-message"
	// GateFirstMessageOnly runs the engine only until the user has been welcomed.
	GateFirstMessageOnly GatePolicy = "first-message-only"
)

// ParseGatePolicy converts a configuration string into a GatePolicy.
// The empty string selects GateEveryMessage.
func ParseGatePolicy(s string) (GatePolicy, error) {
	switch GatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GateEveryMessage:
		return GateEveryMessage, nil
	case GateFirstMessageOnly:
		return GateFirstMessageOnly, nil
	default:
		return "", fmt.Errorf("unknown gate policy %q", s)
	}
}

// Opts holds configuration for the Bot.
type Opts struct {
	Gate GatePolicy
}

// Option configures the Bot.
type Option func(*Opts)

// WithGatePolicy sets the gating policy. Defaults to GateEveryMessage.
func WithGatePolicy(p GatePolicy) Option {
	return func(o *Opts) { o.Gate = p }
}

// Bot handles turns.
type Bot struct {
	engine *flow.Engine
	states *state.Manager
	gate   GatePolicy
	turns  keyedLocks
}

// New creates a Bot.
func New(engine *flow.Engine, states *state.Manager, opts ...Option) *Bot {
	cfg := Opts{Gate: GateEveryMessage}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Gate == "" {
		cfg.Gate = GateEveryMessage
	}
	slog.Debug("Bot created", "gate", cfg.Gate)
	return &Bot{engine: engine, states: states, gate: cfg.Gate}
}

// HandleTurn routes the activity by type. Errors abort the turn before any
// state is written. Message turns of one conversation run one at a time, so
// concurrent callers such as HTTP requests never interleave on its state.
func (b *Bot) HandleTurn(ctx context.Context, turn TurnContext) error {
	a := turn.Activity()
	switch {
	case a.IsMessage():
		key, err := state.ConversationKey(a)
		if err != nil {
			return err
		}
		unlock := b.turns.lock(key)
		defer unlock()
		return b.handleMessage(ctx, turn, a)
	case a.IsConversationUpdate():
		return b.greetMembers(ctx, turn, a)
	default:
		return turn.SendActivity(ctx, fmt.Sprintf("[%s event detected]", a.Type))
	}
}

func (b *Bot) handleMessage(ctx context.Context, turn TurnContext, a models.Activity) error {
	user, err := b.states.OpenUser(ctx, a)
	if err != nil {
		return err
	}
	welcomed, err := state.Get(user, models.PropertyWelcomed, false)
	if err != nil {
		return err
	}
	if welcomed && b.gate == GateFirstMessageOnly {
		slog.Debug("Bot.handleMessage: user already welcomed, ignoring", "user", user.Key())
		return nil
	}

	conv, err := b.states.OpenConversation(ctx, a)
	if err != nil {
		return err
	}
	current, err := state.Get(conv, models.PropertyFlow, models.ConversationFlow{LastQuestionAsked: models.QuestionNone})
	if err != nil {
		return err
	}
	profile, err := state.Get(user, models.PropertyProfile, models.UserProfile{})
	if err != nil {
		return err
	}

	next, profile, replies, err := b.engine.Advance(ctx, current, profile, a.Text)
	if err != nil {
		return err
	}
	for _, reply := range replies {
		if err := turn.SendActivity(ctx, reply); err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}

	if err := state.Set(conv, models.PropertyFlow, next); err != nil {
		return err
	}
	if err := state.Set(user, models.PropertyProfile, profile); err != nil {
		return err
	}
	if err := state.Set(user, models.PropertyWelcomed, true); err != nil {
		return err
	}
	// User scope first: if the conversation commit then fails, the cursor has
	// not moved and replaying the turn only rewrites the same profile.
	if err := user.Commit(ctx); err != nil {
		return err
	}
	if err := conv.Commit(ctx); err != nil {
		return err
	}
	slog.Debug("Bot.handleMessage: turn complete", "conversation", conv.Key(), "from", current.LastQuestionAsked, "to", next.LastQuestionAsked, "replies", len(replies))
	return nil
}

func (b *Bot) greetMembers(ctx context.Context, turn TurnContext, a models.Activity) error {
	greeting := b.engine.Messages().Greeting
	for _, member := range a.MembersAdded {
		if member.ID == a.Recipient.ID {
			continue
		}
		if err := turn.SendActivity(ctx, greeting); err != nil {
			return fmt.Errorf("failed to greet member %s: %w", member.ID, err)
		}
	}
	return nil
}
