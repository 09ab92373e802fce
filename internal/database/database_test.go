// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tomtom215/librarium/internal/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "librarium.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSnapshotIsReadableWhileServerHoldsWriteLock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Conn().ExecContext(ctx,
		`INSERT INTO books (id, title, language) VALUES ('b1', 'Dune', 'english')`); err != nil {
		t.Fatal(err)
	}

	snapPath := filepath.Join(t.TempDir(), "snapshot.duckdb")
	if err := db.Snapshot(ctx, snapPath); err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	// The live read-write handle stays open; the snapshot must still be
	// openable by a second read-only connection.
	snap, err := OpenReadOnly(&config.DatabaseConfig{Path: snapPath, MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("OpenReadOnly() on snapshot error: %v", err)
	}
	defer func() { _ = snap.Close() }()

	var count int
	if err := snap.Conn().QueryRowContext(ctx, `SELECT count(*) FROM books`).Scan(&count); err != nil {
		t.Fatalf("querying snapshot: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot book count = %d, want 1", count)
	}
}

func TestSnapshotOverwritesStaleFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	snapPath := filepath.Join(t.TempDir(), "snapshot.duckdb")
	if err := db.Snapshot(ctx, snapPath); err != nil {
		t.Fatalf("first Snapshot() error: %v", err)
	}
	if err := db.Snapshot(ctx, snapPath); err != nil {
		t.Fatalf("second Snapshot() over existing file error: %v", err)
	}
}
