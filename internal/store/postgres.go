// Package store provides storage backends for MoodPipe.
//
// This file implements a PostgreSQL-backed store for state records and transcripts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/MoodPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// LoadState retrieves the record for (scope, key).
func (s *PostgresStore) LoadState(ctx context.Context, scope models.Scope, key string) (*models.StateRecord, error) {
	if scope == "" || key == "" {
		return nil, ErrMissingStateKey
	}
	query := `SELECT properties, created_at, updated_at FROM state_records WHERE scope = $1 AND state_key = $2`

	rec := models.StateRecord{Scope: scope, Key: key}
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, string(scope), key).Scan(&raw, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore LoadState not found", "scope", scope, "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LoadState failed", "error", err, "scope", scope, "key", key)
		return nil, fmt.Errorf("failed to load state %s/%s: %w", scope, key, err)
	}
	rec.Properties, err = decodeProperties(raw)
	if err != nil {
		slog.Error("PostgresStore LoadState decode failed", "error", err, "scope", scope, "key", key)
		return nil, err
	}
	return &rec, nil
}

// SaveState stores or replaces a record.
func (s *PostgresStore) SaveState(ctx context.Context, rec models.StateRecord) error {
	if rec.Scope == "" || rec.Key == "" {
		return ErrMissingStateKey
	}
	raw, err := encodeProperties(rec.Properties)
	if err != nil {
		return err
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	query := `
		INSERT INTO state_records (scope, state_key, properties, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, state_key)
		DO UPDATE SET
			properties = EXCLUDED.properties,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.db.ExecContext(ctx, query, string(rec.Scope), rec.Key, string(raw), rec.CreatedAt, rec.UpdatedAt); err != nil {
		slog.Error("PostgresStore SaveState failed", "error", err, "scope", rec.Scope, "key", rec.Key)
		return fmt.Errorf("failed to save state %s/%s: %w", rec.Scope, rec.Key, err)
	}
	slog.Debug("PostgresStore SaveState succeeded", "scope", rec.Scope, "key", rec.Key)
	return nil
}

// DeleteState removes a record.
func (s *PostgresStore) DeleteState(ctx context.Context, scope models.Scope, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM state_records WHERE scope = $1 AND state_key = $2`, string(scope), key)
	if err != nil {
		slog.Error("PostgresStore DeleteState failed", "error", err, "scope", scope, "key", key)
		return fmt.Errorf("failed to delete state %s/%s: %w", scope, key, err)
	}
	return nil
}

// AddTranscript appends a transcript entry.
func (s *PostgresStore) AddTranscript(ctx context.Context, e models.TranscriptEntry) error {
	if e.Time == 0 {
		e.Time = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (conversation_key, activity_id, direction, activity_type, from_id, text, time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ConversationKey, nilIfEmpty(e.ActivityID), string(e.Direction), string(e.ActivityType), nilIfEmpty(e.FromID), e.Text, e.Time)
	if err != nil {
		slog.Error("PostgresStore AddTranscript failed", "error", err, "conversation", e.ConversationKey)
		return fmt.Errorf("failed to insert transcript entry for %s: %w", e.ConversationKey, err)
	}
	return nil
}

// ListTranscript returns the newest entries of a conversation in chronological order.
func (s *PostgresStore) ListTranscript(ctx context.Context, conversationKey string, limit int) ([]models.TranscriptEntry, error) {
	limit = transcriptLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_key, activity_id, direction, activity_type, from_id, text, time
		 FROM transcripts WHERE conversation_key = $1 ORDER BY time DESC, id DESC LIMIT $2`,
		conversationKey, limit)
	if err != nil {
		slog.Error("PostgresStore ListTranscript query failed", "error", err)
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()
	return scanTranscript(rows)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
