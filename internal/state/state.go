// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package state opens the shared BadgerDB instance that backs author
// preferences, user similarities, the retrain counter, and training run
// records. Each consumer namespaces its keys with its own prefix.
package state

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/librarium/internal/logging"
)

// Open opens (or creates) the Badger store at dir. Writes are synced for
// durability; the value log is sized for the small documents this system
// stores.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Badger's own logging is too chatty at defaults
	opts.ValueLogFileSize = 16 << 20
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	logging.Info().Str("dir", dir).Msg("State store opened")
	return db, nil
}
