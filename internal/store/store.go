// Package store persists the pineapple reward ledger and per-project
// activity history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"vibeforge/internal/orchestrator"
)

// activityCapacity bounds each project's history; the oldest entries are
// evicted first.
const activityCapacity = 50

// eventAmounts maps an economy event type to the pineapples it credits.
var eventAmounts = map[string]int64{
	"prompt":            10,
	"feature_tag_bonus": 5,
	"bugfix_tag_bonus":  5,
	"polish_tag_bonus":  3,
}

// Store is the SQLite persistence layer. It implements both
// orchestrator.Ledger and orchestrator.ActivityLog.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open initializes the database at path, creating directories and schema
// as needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer keeps SQLite happy under concurrent requests.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set journal_mode", zap.Error(err))
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS reward_entries (
			idempotency_key TEXT PRIMARY KEY,
			credential      TEXT NOT NULL,
			project_id      TEXT NOT NULL,
			event_type      TEXT NOT NULL,
			amount          INTEGER NOT NULL,
			balance_after   INTEGER NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reward_credential ON reward_entries(credential)`,
		`CREATE TABLE IF NOT EXISTS activity_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id  TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata    TEXT,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_project ON activity_events(project_id, id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Award credits one economy event at most once per idempotency key.
// Replaying a used key returns the recorded amount and balance with
// Idempotent set, without crediting again.
func (s *Store) Award(ctx context.Context, credential, projectID, eventType, idempotencyKey string) (*orchestrator.Award, error) {
	if credential == "" || projectID == "" || idempotencyKey == "" {
		return nil, fmt.Errorf("credential, project id, and idempotency key are required")
	}
	amount, ok := eventAmounts[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prior orchestrator.Award
	err = tx.QueryRowContext(ctx,
		`SELECT amount, balance_after FROM reward_entries WHERE idempotency_key = ?`,
		idempotencyKey).Scan(&prior.Amount, &prior.NewBalance)
	if err == nil {
		prior.Idempotent = true
		return &prior, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	var balance int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM reward_entries WHERE credential = ?`,
		credential).Scan(&balance); err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	balance += amount

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reward_entries
			(idempotency_key, credential, project_id, event_type, amount, balance_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		idempotencyKey, credential, projectID, eventType, amount, balance,
		time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("failed to record award: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit award: %w", err)
	}

	s.logger.Debug("reward credited",
		zap.String("project", projectID),
		zap.String("event", eventType),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance))

	return &orchestrator.Award{Amount: amount, NewBalance: balance}, nil
}

// Balance reports a credential's current pineapple balance.
func (s *Store) Balance(ctx context.Context, credential string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM reward_entries WHERE credential = ?`,
		credential).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// AppendActivity appends one event to a project's history and evicts the
// oldest entries beyond capacity.
func (s *Store) AppendActivity(ctx context.Context, projectID string, event orchestrator.ActivityEvent) error {
	if projectID == "" {
		return fmt.Errorf("project id required")
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO activity_events (project_id, event_type, description, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		projectID, event.Type, event.Description, string(metadata),
		ts.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM activity_events
		 WHERE project_id = ?
		   AND id NOT IN (
			SELECT id FROM activity_events WHERE project_id = ? ORDER BY id DESC LIMIT ?
		 )`,
		projectID, projectID, activityCapacity); err != nil {
		return fmt.Errorf("failed to trim activity history: %w", err)
	}

	return tx.Commit()
}

// ListActivity returns a project's history, newest first.
func (s *Store) ListActivity(ctx context.Context, projectID string) ([]orchestrator.ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, description, metadata, created_at
		 FROM activity_events WHERE project_id = ? ORDER BY id DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var events []orchestrator.ActivityEvent
	for rows.Next() {
		var event orchestrator.ActivityEvent
		var metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&event.Type, &event.Description, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				s.logger.Debug("unreadable activity metadata", zap.Error(err))
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			event.Timestamp = ts
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
