// Package api provides HTTP handlers for MoodPipe endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/bot"
	"github.com/BTreeMap/MoodPipe/internal/messaging"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/state"
	"github.com/BTreeMap/MoodPipe/internal/store"
	"github.com/google/uuid"
)

// messagesHandler runs one turn for the posted activity and returns its replies.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.messagesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var a models.Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)).Decode(&a); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		s.respond(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if a.ChannelID == "" {
		a.ChannelID = HTTPChannelID
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if err := a.Validate(); err != nil {
		slog.Warn("Server.messagesHandler: validation failed", "error", err)
		s.respond(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	turn := bot.NewBufferedTurn(a)
	if err := messaging.Dispatch(r.Context(), s.st, s.handler, turn); err != nil {
		slog.Error("Server.messagesHandler: turn failed", "error", err, "conversation", a.Conversation.ID)
		s.respond(w, http.StatusInternalServerError, models.Error("Failed to process activity"))
		return
	}

	replies := turn.Replies
	if replies == nil {
		replies = []string{}
	}
	slog.Debug("Server.messagesHandler: turn complete", "conversation", a.Conversation.ID, "replies", len(replies))
	s.respond(w, http.StatusOK, models.Success(models.TurnResult{ConversationID: a.Conversation.ID, Replies: replies}))
}

// stateHandler returns the stored record of one scope.
func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	scope := models.Scope(r.URL.Query().Get("scope"))
	key := r.URL.Query().Get("key")
	if scope != models.ScopeUser && scope != models.ScopeConversation {
		s.respond(w, http.StatusBadRequest, models.Error("scope must be 'user' or 'conversation'"))
		return
	}
	if key == "" {
		s.respond(w, http.StatusBadRequest, models.Error("Missing required parameter: key"))
		return
	}

	rec, err := s.st.LoadState(r.Context(), scope, key)
	if err != nil {
		slog.Error("Server.stateHandler: failed to load state", "error", err, "scope", scope, "key", key)
		s.respond(w, http.StatusInternalServerError, models.Error("Failed to load state"))
		return
	}
	if rec == nil {
		s.respond(w, http.StatusNotFound, models.Error("State not found"))
		return
	}
	s.respond(w, http.StatusOK, models.Success(rec))
}

// transcriptHandler lists the newest transcript entries of a conversation.
// The conversation is addressed by channel and conversation ID.
func (s *Server) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = HTTPChannelID
	}
	conversation, err := state.ConversationKey(models.Activity{
		ChannelID:    channel,
		Conversation: models.ConversationAccount{ID: r.URL.Query().Get("conversation")},
	})
	if err != nil {
		s.respond(w, http.StatusBadRequest, models.Error("Missing required parameter: conversation"))
		return
	}
	limit := store.DefaultTranscriptLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > store.MaxTranscriptLimit {
			s.respond(w, http.StatusBadRequest, models.Error(fmt.Sprintf("limit must be an integer between 1 and %d", store.MaxTranscriptLimit)))
			return
		}
		limit = n
	}

	entries, err := s.st.ListTranscript(r.Context(), conversation, limit)
	if err != nil {
		slog.Error("Server.transcriptHandler: failed to list transcript", "error", err, "conversation", conversation)
		s.respond(w, http.StatusInternalServerError, models.Error("Failed to load transcript"))
		return
	}
	if entries == nil {
		entries = []models.TranscriptEntry{}
	}
	s.respond(w, http.StatusOK, models.Success(entries))
}
