// Package store provides storage backends for MoodPipe.
//
// Every backend persists scoped state records (one flat JSON property bag per user or
// conversation) and an append-only transcript of inbound activities and outbound replies.
// The in-memory store is the default; SQLite, PostgreSQL and DynamoDB are selected by DSN.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

// Transcript page sizes. A non-positive limit selects DefaultTranscriptLimit;
// anything above MaxTranscriptLimit is clamped to it.
const (
	DefaultTranscriptLimit = 100
	MaxTranscriptLimit     = 1000
)

func transcriptLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultTranscriptLimit
	case limit > MaxTranscriptLimit:
		return MaxTranscriptLimit
	default:
		return limit
	}
}

// ErrMissingStateKey is returned when a record is saved or loaded without scope or key.
var ErrMissingStateKey = errors.New("state scope and key are required")

// Store is the persistence contract used by the state manager and transcript logger.
type Store interface {
	// LoadState returns the record for (scope, key), or nil when none exists.
	LoadState(ctx context.Context, scope models.Scope, key string) (*models.StateRecord, error)
	// SaveState inserts or replaces a record.
	SaveState(ctx context.Context, rec models.StateRecord) error
	// DeleteState removes a record; deleting a missing record is not an error.
	DeleteState(ctx context.Context, scope models.Scope, key string) error
	// AddTranscript appends one transcript entry.
	AddTranscript(ctx context.Context, entry models.TranscriptEntry) error
	// ListTranscript returns the newest entries of a conversation in chronological order.
	ListTranscript(ctx context.Context, conversationKey string, limit int) ([]models.TranscriptEntry, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for persistent stores.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DSN types returned by DetectDSNType.
const (
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
	DSNTypeDynamoDB = "dynamodb"
	DSNTypeMemory   = "memory"
)

// DynamoDBScheme prefixes a DSN that names a DynamoDB table, e.g. dynamodb://moodpipe-state.
const DynamoDBScheme = "dynamodb://"

// DetectDSNType classifies a DSN. File paths are treated as SQLite.
func DetectDSNType(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case trimmed == "" || trimmed == ":memory:" || trimmed == "memory":
		return DSNTypeMemory
	case strings.HasPrefix(trimmed, DynamoDBScheme):
		return DSNTypeDynamoDB
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"),
		strings.Contains(trimmed, "host=") && strings.Contains(trimmed, "dbname="):
		return DSNTypePostgres
	default:
		return DSNTypeSQLite
	}
}

// DynamoDBTableFromDSN extracts the table name from a dynamodb:// DSN.
func DynamoDBTableFromDSN(dsn string) string {
	return strings.TrimPrefix(strings.TrimSpace(dsn), DynamoDBScheme)
}

// InMemoryStore keeps records in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu          sync.RWMutex
	records     map[string]models.StateRecord
	transcripts map[string][]models.TranscriptEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:     make(map[string]models.StateRecord),
		transcripts: make(map[string][]models.TranscriptEntry),
	}
}

func recordID(scope models.Scope, key string) string {
	return string(scope) + "|" + key
}

func (s *InMemoryStore) LoadState(ctx context.Context, scope models.Scope, key string) (*models.StateRecord, error) {
	if scope == "" || key == "" {
		return nil, ErrMissingStateKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID(scope, key)]
	if !ok {
		return nil, nil
	}
	out := rec
	out.Properties = cloneProperties(rec.Properties)
	return &out, nil
}

func (s *InMemoryStore) SaveState(ctx context.Context, rec models.StateRecord) error {
	if rec.Scope == "" || rec.Key == "" {
		return ErrMissingStateKey
	}
	rec.Properties = cloneProperties(rec.Properties)
	s.mu.Lock()
	s.records[recordID(rec.Scope, rec.Key)] = rec
	s.mu.Unlock()
	slog.Debug("InMemoryStore SaveState succeeded", "scope", rec.Scope, "key", rec.Key, "properties", len(rec.Properties))
	return nil
}

func (s *InMemoryStore) DeleteState(ctx context.Context, scope models.Scope, key string) error {
	s.mu.Lock()
	delete(s.records, recordID(scope, key))
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) AddTranscript(ctx context.Context, entry models.TranscriptEntry) error {
	if entry.Time == 0 {
		entry.Time = time.Now().Unix()
	}
	s.mu.Lock()
	s.transcripts[entry.ConversationKey] = append(s.transcripts[entry.ConversationKey], entry)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ListTranscript(ctx context.Context, conversationKey string, limit int) ([]models.TranscriptEntry, error) {
	limit = transcriptLimit(limit)
	s.mu.RLock()
	entries := append([]models.TranscriptEntry(nil), s.transcripts[conversationKey]...)
	s.mu.RUnlock()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time < entries[j].Time })
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
