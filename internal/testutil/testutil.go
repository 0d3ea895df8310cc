// Package testutil provides common test doubles and helpers for MoodPipe tests.
package testutil

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/bot"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// StubScorer returns a fixed score or error and counts calls.
// Delay holds each call open, which lets tests overlap concurrent turns.
type StubScorer struct {
	Value float64
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	calls []string
}

// Score implements sentiment.Scorer.
func (s *StubScorer) Score(ctx context.Context, text string) (float64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	return s.Value, s.Err
}

// Calls returns the texts scored so far.
func (s *StubScorer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// EchoHandler replies "echo: <text>" to every turn.
// Err makes every turn fail; Silent suppresses the reply.
type EchoHandler struct {
	Err    error
	Silent bool

	mu   sync.Mutex
	seen []models.Activity
}

// HandleTurn implements messaging.TurnHandler.
func (h *EchoHandler) HandleTurn(ctx context.Context, turn bot.TurnContext) error {
	h.mu.Lock()
	h.seen = append(h.seen, turn.Activity())
	h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	if h.Silent {
		return nil
	}
	return turn.SendActivity(ctx, "echo: "+turn.Activity().Text)
}

// Seen returns the activities handled so far.
func (h *EchoHandler) Seen() []models.Activity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Activity(nil), h.seen...)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// APIResponse mirrors models.APIResponse with a typed result.
type APIResponse[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

// DecodeAPIResponse decodes a recorded JSON response and validates its status field.
func DecodeAPIResponse[T any](t testing.TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) APIResponse[T] {
	t.Helper()
	var resp APIResponse[T]
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if resp.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, resp.Status)
	}
	return resp
}

// AssertTranscriptLen validates the number of transcript entries stored for a conversation key.
func AssertTranscriptLen(t testing.TB, st store.Store, conversationKey string, expected int) []models.TranscriptEntry {
	t.Helper()
	entries, err := st.ListTranscript(context.Background(), conversationKey, store.DefaultTranscriptLimit)
	if err != nil {
		t.Fatalf("failed to list transcript %s: %v", conversationKey, err)
	}
	if len(entries) != expected {
		t.Errorf("%s: expected %d transcript entries, got %d", conversationKey, expected, len(entries))
	}
	return entries
}
