// Package state provides scoped, per-turn property bags on top of a store.Store.
//
// A Bag is opened for one scope (user or conversation) at the start of a turn,
// read and written through typed accessors, and committed once at the end of the turn.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// ErrMissingKey is returned when an activity lacks the identifiers needed to build a scope key.
var ErrMissingKey = errors.New("state: activity lacks identifiers for scope key")

// UserKey returns the user-scope key for an activity: <channel>/users/<from>.
func UserKey(a models.Activity) (string, error) {
	if a.ChannelID == "" || a.From.ID == "" {
		return "", ErrMissingKey
	}
	return a.ChannelID + "/users/" + a.From.ID, nil
}

// ConversationKey returns the conversation-scope key: <channel>/conversations/<conversation>.
func ConversationKey(a models.Activity) (string, error) {
	if a.ChannelID == "" || a.Conversation.ID == "" {
		return "", ErrMissingKey
	}
	return a.ChannelID + "/conversations/" + a.Conversation.ID, nil
}

// Manager opens property bags backed by a store.
type Manager struct {
	store store.Store
}

// NewManager creates a Manager backed by st.
func NewManager(st store.Store) *Manager {
	slog.Debug("Creating state Manager")
	return &Manager{store: st}
}

// Open loads the bag for (scope, key). A missing record yields an empty bag.
func (m *Manager) Open(ctx context.Context, scope models.Scope, key string) (*Bag, error) {
	rec, err := m.store.LoadState(ctx, scope, key)
	if err != nil {
		slog.Error("StateManager Open load error", "error", err, "scope", scope, "key", key)
		return nil, fmt.Errorf("load %s state: %w", scope, err)
	}
	b := &Bag{store: m.store, scope: scope, key: key, props: make(map[string]json.RawMessage)}
	if rec != nil {
		b.createdAt = rec.CreatedAt
		for k, v := range rec.Properties {
			b.props[k] = v
		}
	}
	slog.Debug("StateManager Open", "scope", scope, "key", key, "found", rec != nil)
	return b, nil
}

// OpenUser opens the user-scope bag for an activity.
func (m *Manager) OpenUser(ctx context.Context, a models.Activity) (*Bag, error) {
	key, err := UserKey(a)
	if err != nil {
		return nil, err
	}
	return m.Open(ctx, models.ScopeUser, key)
}

// OpenConversation opens the conversation-scope bag for an activity.
func (m *Manager) OpenConversation(ctx context.Context, a models.Activity) (*Bag, error) {
	key, err := ConversationKey(a)
	if err != nil {
		return nil, err
	}
	return m.Open(ctx, models.ScopeConversation, key)
}

// Bag is the in-turn view of one scope. It is not safe for concurrent use.
type Bag struct {
	store     store.Store
	scope     models.Scope
	key       string
	props     map[string]json.RawMessage
	createdAt time.Time
	dirty     bool
}

// Scope returns the bag's scope.
func (b *Bag) Scope() models.Scope { return b.scope }

// Key returns the bag's storage key.
func (b *Bag) Key() string { return b.key }

// Dirty reports whether the bag has uncommitted changes.
func (b *Bag) Dirty() bool { return b.dirty }

// Has reports whether a property is present.
func (b *Bag) Has(name string) bool {
	_, ok := b.props[name]
	return ok
}

// Delete removes a property.
func (b *Bag) Delete(name string) {
	if _, ok := b.props[name]; ok {
		delete(b.props, name)
		b.dirty = true
	}
}

// Get reads a property into a T. When the property is absent, def is stored
// under name and returned, so the default is persisted on the next commit.
func Get[T any](b *Bag, name string, def T) (T, error) {
	raw, ok := b.props[name]
	if !ok {
		if err := Set(b, name, def); err != nil {
			return def, err
		}
		return def, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode %s property %q: %w", b.scope, name, err)
	}
	return v, nil
}

// Set stores v under name.
func Set[T any](b *Bag, name string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s property %q: %w", b.scope, name, err)
	}
	if prev, ok := b.props[name]; ok && string(prev) == string(raw) {
		return nil
	}
	b.props[name] = raw
	b.dirty = true
	return nil
}

// Commit writes the bag to the store if it changed since it was opened or last committed.
func (b *Bag) Commit(ctx context.Context) error {
	if !b.dirty {
		slog.Debug("StateManager Commit skipped (clean)", "scope", b.scope, "key", b.key)
		return nil
	}
	now := time.Now()
	if b.createdAt.IsZero() {
		b.createdAt = now
	}
	props := make(map[string]json.RawMessage, len(b.props))
	for k, v := range b.props {
		props[k] = v
	}
	rec := models.StateRecord{
		Scope:      b.scope,
		Key:        b.key,
		Properties: props,
		CreatedAt:  b.createdAt,
		UpdatedAt:  now,
	}
	if err := b.store.SaveState(ctx, rec); err != nil {
		slog.Error("StateManager Commit save error", "error", err, "scope", b.scope, "key", b.key)
		return fmt.Errorf("commit %s state: %w", b.scope, err)
	}
	b.dirty = false
	slog.Debug("StateManager Commit succeeded", "scope", b.scope, "key", b.key, "properties", len(props))
	return nil
}

// Reset deletes the stored record and clears the bag.
func (b *Bag) Reset(ctx context.Context) error {
	if err := b.store.DeleteState(ctx, b.scope, b.key); err != nil {
		slog.Error("StateManager Reset error", "error", err, "scope", b.scope, "key", b.key)
		return err
	}
	b.props = make(map[string]json.RawMessage)
	b.createdAt = time.Time{}
	b.dirty = false
	slog.Info("StateManager Reset succeeded", "scope", b.scope, "key", b.key)
	return nil
}
