// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package main is the standalone model trainer.
//
// The server invokes this binary (retrain.command) whenever the
// interaction counter crosses its threshold. DuckDB allows only one
// read-write process per file, so the server snapshots its database and
// passes the snapshot path via LIBRARIUM_DUCKDB_PATH. The trainer opens
// that snapshot read-only, refits the content pipeline and the
// collaborative model, and writes the resulting artifacts to the model
// directory. The server then reloads the artifacts in place.
//
// The final summary is printed to stdout in a fixed format the server
// parses into its training history:
//
//	Total interactions: 1234
//	Total users: 56
//	Total books: 789
//	Training time: 12.50 seconds
//
// Exit code 0 means artifacts were written; anything else means the
// previous artifacts are still the latest.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/collab"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/content"
	"github.com/tomtom215/librarium/internal/database"
	"github.com/tomtom215/librarium/internal/interaction"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/modelstore"
	"github.com/tomtom215/librarium/internal/vectorindex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// stdout carries the parseable summary; logs go to stderr.
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Training failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.OpenReadOnly(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing database")
		}
	}()

	books := catalog.NewStore(db)
	inter := interaction.NewStore(db)

	store, err := modelstore.New(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("opening model store: %w", err)
	}
	indices := vectorindex.NewManager(store)

	trainer := content.NewTrainer(cfg.Content, books, store, indices)
	if _, err := trainer.Train(ctx); err != nil {
		if errors.Is(err, content.ErrNoEligibleBooks) {
			logging.Warn().Msg("Catalog empty, content pipeline left unchanged")
		} else {
			return fmt.Errorf("content training: %w", err)
		}
	}

	result, err := collab.TrainModel(ctx, cfg.Collab, inter, store)
	if err != nil {
		return fmt.Errorf("collaborative training: %w", err)
	}

	stats := result.Stats
	fmt.Printf("Total interactions: %d\n", stats.Interactions)
	fmt.Printf("Total users: %d\n", stats.Users)
	fmt.Printf("Total books: %d\n", stats.Books)
	fmt.Printf("Training time: %.2f seconds\n", stats.Duration.Seconds())
	return nil
}
