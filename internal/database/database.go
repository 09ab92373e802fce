// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package database owns the DuckDB connection and schema for the catalog
// and interaction stores.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/logging"
)

// DB wraps the DuckDB connection.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens (creating if necessary) the DuckDB database and initializes the
// schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// 0750 per gosec G301
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	// DuckDB is embedded; a single writer connection avoids write-write
	// conflicts while still allowing concurrent readers through the driver.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(numThreads)
	conn.SetConnMaxLifetime(0)

	if err := db.initSchema(); err != nil {
		if cerr := conn.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("failed to close database after init error")
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("database opened")
	return db, nil
}

// OpenReadOnly opens an existing database file read-only. DuckDB allows
// one read-write process or several read-only ones but never a mix, so
// the trainer never opens the server's live file: the server snapshots
// the database and hands the snapshot path to the trainer, which opens
// it here. Schema initialization is skipped; the file must already
// exist.
func OpenReadOnly(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	connStr := fmt.Sprintf("%s?access_mode=read_only&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database read-only: %w", err)
	}
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(numThreads)
	conn.SetConnMaxLifetime(0)

	return &DB{conn: conn, cfg: cfg}, nil
}

// Snapshot copies the live database to path using COPY FROM DATABASE,
// producing a consistent standalone file another process can open
// without touching the server's write lock. Any stale file at path is
// removed first.
func (db *DB) Snapshot(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}

	var dbName string
	if err := db.conn.QueryRowContext(ctx, `SELECT current_database()`).Scan(&dbName); err != nil {
		return fmt.Errorf("resolve database name: %w", err)
	}

	// ATTACH/COPY/DETACH must run on one connection; the attached alias
	// is per-connection state.
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // error on close after copy is not actionable

	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`ATTACH '%s' AS snapshot`, path)); err != nil {
		return fmt.Errorf("attach snapshot: %w", err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`COPY FROM DATABASE "%s" TO snapshot`, dbName)); err != nil {
		_, _ = conn.ExecContext(ctx, `DETACH snapshot`) //nolint:errcheck // best-effort cleanup after copy failure
		return fmt.Errorf("copy database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `DETACH snapshot`); err != nil {
		return fmt.Errorf("detach snapshot: %w", err)
	}

	logging.Debug().Str("path", path).Msg("database snapshot written")
	return nil
}

// Conn exposes the underlying *sql.DB for the store packages.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id VARCHAR PRIMARY KEY,
			title VARCHAR NOT NULL,
			authors VARCHAR NOT NULL DEFAULT '[]',
			genres VARCHAR NOT NULL DEFAULT '[]',
			summary VARCHAR NOT NULL DEFAULT '',
			year INTEGER NOT NULL DEFAULT 0,
			language VARCHAR NOT NULL DEFAULT '',
			star_rating DOUBLE NOT NULL DEFAULT 0,
			num_ratings INTEGER NOT NULL DEFAULT 0,
			popularity_score DOUBLE NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_books_title ON books (title)`,
		`CREATE INDEX IF NOT EXISTS idx_books_language ON books (language)`,

		`CREATE TABLE IF NOT EXISTS interactions (
			user_id VARCHAR NOT NULL,
			book_title VARCHAR NOT NULL,
			action VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, book_title)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_title ON interactions (book_title)`,

		`CREATE TABLE IF NOT EXISTS genre_prefs (
			user_id VARCHAR NOT NULL,
			genre VARCHAR NOT NULL,
			action VARCHAR NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, genre, action)
		)`,

		`CREATE TABLE IF NOT EXISTS user_languages (
			user_id VARCHAR NOT NULL,
			language VARCHAR NOT NULL,
			added_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, language)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
