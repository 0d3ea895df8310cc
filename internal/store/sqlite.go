// Package store provides storage backends for MoodPipe.
//
// This file implements an SQLite-backed store for state records and transcripts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/MoodPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer avoids "database is locked" under concurrent turns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

// LoadState retrieves the record for (scope, key).
func (s *SQLiteStore) LoadState(ctx context.Context, scope models.Scope, key string) (*models.StateRecord, error) {
	if scope == "" || key == "" {
		return nil, ErrMissingStateKey
	}
	query := `SELECT properties, created_at, updated_at FROM state_records WHERE scope = ? AND state_key = ?`

	rec := models.StateRecord{Scope: scope, Key: key}
	var raw string
	err := s.db.QueryRowContext(ctx, query, string(scope), key).Scan(&raw, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore LoadState not found", "scope", scope, "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LoadState failed", "error", err, "scope", scope, "key", key)
		return nil, fmt.Errorf("failed to load state %s/%s: %w", scope, key, err)
	}

	rec.Properties, err = decodeProperties([]byte(raw))
	if err != nil {
		slog.Error("SQLiteStore LoadState decode failed", "error", err, "scope", scope, "key", key)
		return nil, err
	}
	return &rec, nil
}

// SaveState stores or replaces a record.
func (s *SQLiteStore) SaveState(ctx context.Context, rec models.StateRecord) error {
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (scope, state_key)
		DO UPDATE SET properties = excluded.properties, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, string(rec.Scope), rec.Key, string(raw), rec.CreatedAt, rec.UpdatedAt); err != nil {
		slog.Error("SQLiteStore SaveState failed", "error", err, "scope", rec.Scope, "key", rec.Key)
		return fmt.Errorf("failed to save state %s/%s: %w", rec.Scope, rec.Key, err)
	}
	slog.Debug("SQLiteStore SaveState succeeded", "scope", rec.Scope, "key", rec.Key)
	return nil
}

// DeleteState removes a record.
func (s *SQLiteStore) DeleteState(ctx context.Context, scope models.Scope, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM state_records WHERE scope = ? AND state_key = ?`, string(scope), key)
	if err != nil {
		slog.Error("SQLiteStore DeleteState failed", "error", err, "scope", scope, "key", key)
		return fmt.Errorf("failed to delete state %s/%s: %w", scope, key, err)
	}
	return nil
}

// AddTranscript appends a transcript entry.
func (s *SQLiteStore) AddTranscript(ctx context.Context, e models.TranscriptEntry) error {
	if e.Time == 0 {
		e.Time = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (conversation_key, activity_id, direction, activity_type, from_id, text, time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ConversationKey, nilIfEmpty(e.ActivityID), string(e.Direction), string(e.ActivityType), nilIfEmpty(e.FromID), e.Text, e.Time)
	if err != nil {
		slog.Error("SQLiteStore AddTranscript failed", "error", err, "conversation", e.ConversationKey)
		return fmt.Errorf("failed to insert transcript entry for %s: %w", e.ConversationKey, err)
	}
	return nil
}

// ListTranscript returns the newest entries of a conversation in chronological order.
func (s *SQLiteStore) ListTranscript(ctx context.Context, conversationKey string, limit int) ([]models.TranscriptEntry, error) {
	limit = transcriptLimit(limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_key, activity_id, direction, activity_type, from_id, text, time
		 FROM transcripts WHERE conversation_key = ? ORDER BY time DESC, id DESC LIMIT ?`,
		conversationKey, limit)
	if err != nil {
		slog.Error("SQLiteStore ListTranscript query failed", "error", err)
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	entries, err := scanTranscript(rows)
	if err != nil {
		slog.Error("SQLiteStore ListTranscript scan failed", "error", err)
		return nil, err
	}
	return entries, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
