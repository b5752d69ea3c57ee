// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/ManuGH/streamvault/internal/store"
)

// Config defines SQLite operational parameters.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	// _pragma in the DSN applies to every connection in the pool.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}

// Store is the SQLite implementation of store.UnitOfWork.
type Store struct {
	db *sql.DB
}

var _ store.UnitOfWork = (*Store)(nil)

// New opens dbPath and applies the schema.
func New(dbPath string, cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := Open(dbPath, cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Videos() store.VideoRepository     { return &videoRepo{q: s.db} }
func (s *Store) Streams() store.StreamRepository   { return &streamRepo{q: s.db} }
func (s *Store) Upscales() store.UpscaleRepository { return &upscaleRepo{q: s.db} }
func (s *Store) Models() store.ModelRepository     { return &modelRepo{q: s.db} }

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &txScope{tx: tx}, nil
}

type txScope struct {
	tx *sql.Tx
}

func (t *txScope) Videos() store.VideoRepository     { return &videoRepo{q: t.tx} }
func (t *txScope) Streams() store.StreamRepository   { return &streamRepo{q: t.tx} }
func (t *txScope) Upscales() store.UpscaleRepository { return &upscaleRepo{q: t.tx} }
func (t *txScope) Models() store.ModelRepository     { return &modelRepo{q: t.tx} }

func (t *txScope) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *txScope) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		raw_path TEXT NOT NULL,
		master_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK(status IN ('queued', 'encoding', 'ready', 'failed')),
		resolution TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_streams (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		resolution TEXT NOT NULL,
		playlist_path TEXT NOT NULL,
		aes_key TEXT NOT NULL,
		aes_iv TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (video_id, resolution)
	);

	CREATE TABLE IF NOT EXISTS onnx_models (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		scale INTEGER NOT NULL CHECK(scale >= 1),
		element_type TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_upscales (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		model_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('queued', 'processing', 'ready', 'failed')),
		output_path TEXT NOT NULL DEFAULT '',
		stream_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_video_streams_video ON video_streams(video_id);
	CREATE INDEX IF NOT EXISTS idx_video_upscales_video ON video_upscales(video_id);
	`
	_, err := s.db.Exec(schema)
	return err
}
