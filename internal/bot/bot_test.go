package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/flow"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/state"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

type stubScorer struct {
	score float64
	err   error
}

func (s *stubScorer) Score(ctx context.Context, text string) (float64, error) {
	return s.score, s.err
}

// recordingTurn captures replies and can fail after a number of sends.
type recordingTurn struct {
	activity  models.Activity
	sent      []string
	failAfter int
}

func (r *recordingTurn) Activity() models.Activity { return r.activity }

func (r *recordingTurn) SendActivity(ctx context.Context, text string) error {
	if r.failAfter > 0 && len(r.sent) >= r.failAfter {
		return errors.New("channel closed")
	}
	r.sent = append(r.sent, text)
	return nil
}

func message(text string) models.Activity {
	return models.Activity{
		Type:         models.ActivityTypeMessage,
		ChannelID:    "test",
		Conversation: models.ConversationAccount{ID: "conv-1"},
		From:         models.ChannelAccount{ID: "user-1", Name: "Ann"},
		Recipient:    models.ChannelAccount{ID: "bot"},
		Text:         text,
	}
}

func newBot(st store.Store, scorer *stubScorer, opts ...Option) *Bot {
	return New(flow.NewEngine(scorer), state.NewManager(st), opts...)
}

func loadFlow(t *testing.T, st store.Store) models.ConversationFlow {
	t.Helper()
	bag, err := state.NewManager(st).Open(context.Background(), models.ScopeConversation, "test/conversations/conv-1")
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	f, err := state.Get(bag, models.PropertyFlow, models.ConversationFlow{LastQuestionAsked: models.QuestionNone})
	if err != nil {
		t.Fatalf("get flow: %v", err)
	}
	return f
}

func loadUser(t *testing.T, st store.Store) (bool, models.UserProfile) {
	t.Helper()
	bag, err := state.NewManager(st).Open(context.Background(), models.ScopeUser, "test/users/user-1")
	if err != nil {
		t.Fatalf("open user: %v", err)
	}
	welcomed, err := state.Get(bag, models.PropertyWelcomed, false)
	if err != nil {
		t.Fatalf("get welcomed: %v", err)
	}
	profile, err := state.Get(bag, models.PropertyProfile, models.UserProfile{})
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return welcomed, profile
}

func TestParseGatePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    GatePolicy
		wantErr bool
	}{
		{"", GateEveryMessage, false},
		{"every-message", GateEveryMessage, false},
		{" First-Message-Only ", GateFirstMessageOnly, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := ParseGatePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseGatePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestHandleTurn_FullProgression(t *testing.T) {
	st := store.NewInMemoryStore()
	b := newBot(st, &stubScorer{score: 0.95})
	ctx := context.Background()

	var all []string
	for _, text := range []string{"hello", "Ann", "wonderful"} {
		turn := &recordingTurn{activity: message(text)}
		if err := b.HandleTurn(ctx, turn); err != nil {
			t.Fatalf("turn %q: unexpected error: %v", text, err)
		}
		all = append(all, turn.sent...)
	}

	want := []string{
		"Hello! What is your name?",
		"Nice to meet you Ann.",
		"How are you feeling today?",
		"Good to hear that you are doing well Ann!",
	}
	if len(all) != len(want) {
		t.Fatalf("expected %v, got %v", want, all)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("reply %d: expected %q, got %q", i, want[i], all[i])
		}
	}
	if f := loadFlow(t, st); f.LastQuestionAsked != models.QuestionNone {
		t.Errorf("expected cursor none, got %q", f.LastQuestionAsked)
	}
	welcomed, profile := loadUser(t, st)
	if !welcomed || profile.Name != "Ann" {
		t.Errorf("expected welcomed user Ann, got %v %+v", welcomed, profile)
	}
}

func TestHandleTurn_LegacyGateStopsAfterFirstMessage(t *testing.T) {
	st := store.NewInMemoryStore()
	b := newBot(st, &stubScorer{score: 0.5}, WithGatePolicy(GateFirstMessageOnly))
	ctx := context.Background()

	first := &recordingTurn{activity: message("hi")}
	if err := b.HandleTurn(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.sent) != 1 {
		t.Fatalf("expected name prompt, got %v", first.sent)
	}

	second := &recordingTurn{activity: message("Ann")}
	if err := b.HandleTurn(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.sent) != 0 {
		t.Errorf("expected no replies once welcomed, got %v", second.sent)
	}
	if f := loadFlow(t, st); f.LastQuestionAsked != models.QuestionName {
		t.Errorf("expected cursor to stay at name, got %q", f.LastQuestionAsked)
	}
}

func TestHandleTurn_ScorerFailureCommitsNothing(t *testing.T) {
	st := store.NewInMemoryStore()
	scorer := &stubScorer{score: 0.5}
	b := newBot(st, scorer)
	ctx := context.Background()
	for _, text := range []string{"hi", "Ann"} {
		if err := b.HandleTurn(ctx, &recordingTurn{activity: message(text)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	scorer.err = errors.New("timeout")
	turn := &recordingTurn{activity: message("fine")}
	if err := b.HandleTurn(ctx, turn); err == nil {
		t.Fatal("expected error")
	}
	if len(turn.sent) != 0 {
		t.Errorf("expected no replies, got %v", turn.sent)
	}
	if f := loadFlow(t, st); f.LastQuestionAsked != models.QuestionFeeling {
		t.Errorf("expected cursor feeling after failure, got %q", f.LastQuestionAsked)
	}
}

func TestHandleTurn_SendFailureCommitsNothing(t *testing.T) {
	st := store.NewInMemoryStore()
	b := newBot(st, &stubScorer{})
	failing := &failingTurn{activity: message("hi")}
	if err := b.HandleTurn(context.Background(), failing); err == nil {
		t.Fatal("expected send error")
	}
	rec, err := st.LoadState(context.Background(), models.ScopeConversation, "test/conversations/conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nothing committed, got %+v", rec)
	}
	rec, _ = st.LoadState(context.Background(), models.ScopeUser, "test/users/user-1")
	if rec != nil {
		t.Errorf("expected user scope not committed, got %+v", rec)
	}
}

type failingTurn struct {
	activity models.Activity
}

func (f *failingTurn) Activity() models.Activity { return f.activity }

func (f *failingTurn) SendActivity(ctx context.Context, text string) error {
	return errors.New("channel closed")
}

func TestHandleTurn_PartialSendFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	b := newBot(st, &stubScorer{})
	ctx := context.Background()
	if err := b.HandleTurn(ctx, &recordingTurn{activity: message("hi")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	turn := &recordingTurn{activity: message("Ann"), failAfter: 1}
	if err := b.HandleTurn(ctx, turn); err == nil {
		t.Fatal("expected send error")
	}
	if len(turn.sent) != 1 {
		t.Errorf("expected one reply before failure, got %v", turn.sent)
	}
	if f := loadFlow(t, st); f.LastQuestionAsked != models.QuestionName {
		t.Errorf("expected cursor name, got %q", f.LastQuestionAsked)
	}
	if _, profile := loadUser(t, st); profile.Name != "" {
		t.Errorf("expected profile not committed, got %+v", profile)
	}
}

func TestHandleTurn_MembersAdded(t *testing.T) {
	b := newBot(store.NewInMemoryStore(), &stubScorer{})
	a := models.Activity{
		Type:         models.ActivityTypeConversationUpdate,
		ChannelID:    "test",
		Conversation: models.ConversationAccount{ID: "conv-1"},
		Recipient:    models.ChannelAccount{ID: "bot"},
		MembersAdded: []models.ChannelAccount{{ID: "bot"}, {ID: "user-1"}},
	}
	turn := &recordingTurn{activity: a}
	if err := b.HandleTurn(context.Background(), turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turn.sent) != 1 || turn.sent[0] != flow.DefaultMessages().Greeting {
		t.Errorf("expected exactly one greeting, got %v", turn.sent)
	}

	a.MembersAdded = []models.ChannelAccount{{ID: "u2"}, {ID: "bot"}, {ID: "u3"}}
	turn = &recordingTurn{activity: a}
	if err := b.HandleTurn(context.Background(), turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turn.sent) != 2 {
		t.Errorf("expected two greetings, got %v", turn.sent)
	}
}

func TestHandleTurn_OtherEventEchoesType(t *testing.T) {
	b := newBot(store.NewInMemoryStore(), &stubScorer{})
	turn := &recordingTurn{activity: models.Activity{Type: models.ActivityTypeTyping}}
	if err := b.HandleTurn(context.Background(), turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turn.sent) != 1 || turn.sent[0] != "[typing event detected]" {
		t.Errorf("unexpected replies %v", turn.sent)
	}
}

func TestHandleTurn_MissingIdentifiers(t *testing.T) {
	b := newBot(store.NewInMemoryStore(), &stubScorer{})
	a := message("hi")
	a.From.ID = ""
	if err := b.HandleTurn(context.Background(), &recordingTurn{activity: a}); !errors.Is(err, state.ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestRun_CollectsReplies(t *testing.T) {
	b := newBot(store.NewInMemoryStore(), &stubScorer{})
	res, err := b.Run(context.Background(), message("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ConversationID != "conv-1" || len(res.Replies) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

// slowScorer holds each call long enough for concurrent turns to overlap.
type slowScorer struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowScorer) Score(ctx context.Context, text string) (float64, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return 0.95, nil
}

func TestHandleTurn_ConcurrentTurnsRunInOrder(t *testing.T) {
	st := store.NewInMemoryStore()
	scorer := &slowScorer{delay: 50 * time.Millisecond}
	b := New(flow.NewEngine(scorer), state.NewManager(st))
	ctx := context.Background()
	for _, text := range []string{"hi", "Ann"} {
		if err := b.HandleTurn(ctx, &recordingTurn{activity: message(text)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	turns := []*recordingTurn{{activity: message("great")}, {activity: message("great")}}
	var wg sync.WaitGroup
	for _, turn := range turns {
		wg.Add(1)
		go func(turn *recordingTurn) {
			defer wg.Done()
			if err := b.HandleTurn(ctx, turn); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(turn)
	}
	wg.Wait()

	if got := scorer.calls.Load(); got != 1 {
		t.Errorf("expected the feeling to be scored once, got %d", got)
	}
	replies := map[string]int{}
	for _, turn := range turns {
		for _, r := range turn.sent {
			replies[r]++
		}
	}
	if replies["Good to hear that you are doing well Ann!"] != 1 || replies[flow.DefaultMessages().AskName] != 1 {
		t.Errorf("expected one closing reply and one name prompt, got %v", replies)
	}
	if f := loadFlow(t, st); f.LastQuestionAsked != models.QuestionName {
		t.Errorf("expected cursor name after both turns, got %q", f.LastQuestionAsked)
	}
	if n := b.turns.size(); n != 0 {
		t.Errorf("expected turn locks to be released, %d left", n)
	}
}

// conversationSaveFails rejects conversation-scope writes.
type conversationSaveFails struct {
	store.Store
}

func (c conversationSaveFails) SaveState(ctx context.Context, rec models.StateRecord) error {
	if rec.Scope == models.ScopeConversation {
		return errors.New("disk full")
	}
	return c.Store.SaveState(ctx, rec)
}

func TestHandleTurn_ConversationCommitFailureKeepsCursor(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	if err := newBot(st, &stubScorer{}).HandleTurn(ctx, &recordingTurn{activity: message("hi")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failing := newBot(conversationSaveFails{st}, &stubScorer{})
	if err := failing.HandleTurn(ctx, &recordingTurn{activity: message("Ann")}); err == nil {
		t.Fatal("expected commit error")
	}
	if f := loadFlow(t, st); f.LastQuestionAsked != models.QuestionName {
		t.Errorf("expected cursor to stay at name, got %q", f.LastQuestionAsked)
	}

	// Replaying the turn once storage recovers completes it normally.
	turn := &recordingTurn{activity: message("Ann")}
	if err := newBot(st, &stubScorer{}).HandleTurn(ctx, turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turn.sent) != 2 || turn.sent[0] != "Nice to meet you Ann." {
		t.Errorf("unexpected replies %v", turn.sent)
	}
	if _, profile := loadUser(t, st); profile.Name != "Ann" {
		t.Errorf("expected profile name Ann, got %+v", profile)
	}
}
