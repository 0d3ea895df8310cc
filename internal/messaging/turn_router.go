package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/bot"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/state"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// TurnHandler processes one turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn bot.TurnContext) error
}

// serviceTurn replies through the service the activity arrived on.
type serviceTurn struct {
	activity models.Activity
	service  Service
}

func (t *serviceTurn) Activity() models.Activity { return t.activity }

func (t *serviceTurn) SendActivity(ctx context.Context, text string) error {
	return t.service.SendMessage(ctx, t.activity.Conversation.ID, text)
}

// recordingTurn appends every sent reply to the transcript.
type recordingTurn struct {
	bot.TurnContext
	transcripts store.Store
	key         string
}

func (t *recordingTurn) SendActivity(ctx context.Context, text string) error {
	if err := t.TurnContext.SendActivity(ctx, text); err != nil {
		return err
	}
	a := t.Activity()
	record(ctx, t.transcripts, models.TranscriptEntry{
		ConversationKey: t.key,
		ActivityID:      a.ID,
		Direction:       models.DirectionOutbound,
		ActivityType:    models.ActivityTypeMessage,
		FromID:          a.Recipient.ID,
		Text:            text,
		Time:            time.Now().Unix(),
	})
	return nil
}

func record(ctx context.Context, st store.Store, entry models.TranscriptEntry) {
	if err := st.AddTranscript(ctx, entry); err != nil {
		slog.Warn("messaging: failed to record transcript", "conversation", entry.ConversationKey, "error", err)
	}
}

// Dispatch records the inbound activity, runs handler and records each reply.
// Transcript failures are logged and do not fail the turn. A nil store disables recording.
func Dispatch(ctx context.Context, transcripts store.Store, handler TurnHandler, turn bot.TurnContext) error {
	if transcripts == nil {
		return handler.HandleTurn(ctx, turn)
	}
	a := turn.Activity()
	key, err := state.ConversationKey(a)
	if err != nil {
		return handler.HandleTurn(ctx, turn)
	}
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	record(ctx, transcripts, models.TranscriptEntry{
		ConversationKey: key,
		ActivityID:      a.ID,
		Direction:       models.DirectionInbound,
		ActivityType:    a.Type,
		FromID:          a.From.ID,
		Text:            a.Text,
		Time:            ts.Unix(),
	})
	return handler.HandleTurn(ctx, &recordingTurn{TurnContext: turn, transcripts: transcripts, key: key})
}

// TurnRouter consumes the activities of registered services and hands each
// one to the turn handler. Each service is drained by a single goroutine, so
// turns from one channel run to completion in arrival order.
type TurnRouter struct {
	handler     TurnHandler
	transcripts store.Store
	services    []Service
	wg          sync.WaitGroup
}

// NewTurnRouter creates a router. transcripts may be nil.
func NewTurnRouter(handler TurnHandler, transcripts store.Store) *TurnRouter {
	return &TurnRouter{handler: handler, transcripts: transcripts}
}

// Register adds a service. Must be called before Start.
func (r *TurnRouter) Register(svc Service) {
	r.services = append(r.services, svc)
}

// Services returns the registered services.
func (r *TurnRouter) Services() []Service {
	return append([]Service(nil), r.services...)
}

// ProcessActivity runs a single turn for an activity received on svc.
func (r *TurnRouter) ProcessActivity(ctx context.Context, svc Service, a models.Activity) error {
	if a.ChannelID == "" {
		a.ChannelID = svc.Name()
	}
	if err := a.Validate(); err != nil {
		slog.Warn("TurnRouter dropping invalid activity", "service", svc.Name(), "error", err)
		return err
	}
	slog.Debug("TurnRouter processing activity", "service", svc.Name(), "type", a.Type, "conversation", a.Conversation.ID)
	return Dispatch(ctx, r.transcripts, r.handler, &serviceTurn{activity: a, service: svc})
}

// Start begins processing activities from every registered service.
func (r *TurnRouter) Start(ctx context.Context) {
	slog.Info("TurnRouter starting activity processing", "services", len(r.services))
	for _, svc := range r.services {
		r.wg.Add(1)
		go func(svc Service) {
			defer r.wg.Done()
			defer slog.Info("TurnRouter stopped activity processing", "service", svc.Name())
			for {
				select {
				case a, ok := <-svc.Activities():
					if !ok {
						slog.Debug("TurnRouter activity channel closed", "service", svc.Name())
						return
					}
					if err := r.ProcessActivity(ctx, svc, a); err != nil {
						slog.Error("TurnRouter failed to process activity", "error", err, "service", svc.Name(), "conversation", a.Conversation.ID)
					}
				case <-ctx.Done():
					slog.Debug("TurnRouter stopping due to context cancellation", "service", svc.Name())
					return
				}
			}
		}(svc)
	}
}

// Wait blocks until all processing goroutines have returned.
func (r *TurnRouter) Wait() {
	r.wg.Wait()
}
