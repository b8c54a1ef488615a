// Package sqlite persists classifier parameter snapshots in an embedded
// SQLite database so a restart can skip retraining.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/disaster-risk-service/internal/classifier"
)

// keepSnapshots is how many snapshots per schema survive a Save.
const keepSnapshots = 5

// Store implements classifier.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS model_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			schema_name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			trained_at TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			params_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_schema ON model_snapshots(schema_name, fingerprint, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init model store: %w", err)
		}
	}
	return nil
}

// Save appends a snapshot and prunes old ones for the same schema.
func (s *Store) Save(ctx context.Context, p *classifier.Params) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO model_snapshots (schema_name, fingerprint, trained_at, row_count, params_json)
		VALUES (?, ?, ?, ?, ?)`,
		p.Schema,
		p.Fingerprint,
		p.TrainedAt.UTC().Format(time.RFC3339Nano),
		p.Rows,
		string(payload),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM model_snapshots
		WHERE schema_name = ? AND id NOT IN (
			SELECT id FROM model_snapshots WHERE schema_name = ? ORDER BY id DESC LIMIT ?
		)`,
		p.Schema, p.Schema, keepSnapshots,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot for schema with a matching fingerprint,
// or classifier.ErrNoSnapshot.
func (s *Store) Latest(ctx context.Context, schema, fingerprint string) (*classifier.Params, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT params_json FROM model_snapshots
		WHERE schema_name = ? AND fingerprint = ?
		ORDER BY id DESC LIMIT 1`,
		schema, fingerprint,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, classifier.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	var p classifier.Params
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &p, nil
}

// Count returns the number of stored snapshots for schema.
func (s *Store) Count(ctx context.Context, schema string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM model_snapshots WHERE schema_name = ?`, schema,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
