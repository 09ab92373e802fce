// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package main is the entry point for the Librarium server.
//
// Librarium is a self-hosted book recommendation service. It serves
// content-based, profile, and collaborative recommendations over a REST
// API, tracks per-user author preferences, and retrains its models
// automatically once enough new interactions accumulate.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, LIBRARIUM_ env vars (Koanf v2)
//  2. Storage: DuckDB for the catalog and interactions, Badger for
//     counters, author preferences, similarity tables, and history
//  3. Model store: versioned gob artifacts plus per-language vector indices
//  4. Engines: content-based (TF-IDF-style pipeline + ANN) and
//     collaborative (ALS with a similar-user cascade)
//  5. Retraining: counter-driven trigger that shells out to the
//     librarium-train binary and hot-reloads the artifacts
//  6. HTTP server: Chi REST API under /api/v1 with Prometheus /metrics
//
// Everything runs under a suture supervisor tree: a background layer for
// the one-shot bootstrap trainer and an API layer for the HTTP server.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes the state and catalog databases
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/librarium/internal/api"
	"github.com/tomtom215/librarium/internal/authorpref"
	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/collab"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/content"
	"github.com/tomtom215/librarium/internal/database"
	"github.com/tomtom215/librarium/internal/interaction"
	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/modelstore"
	"github.com/tomtom215/librarium/internal/recommend"
	"github.com/tomtom215/librarium/internal/retrain"
	"github.com/tomtom215/librarium/internal/series"
	"github.com/tomtom215/librarium/internal/state"
	"github.com/tomtom215/librarium/internal/supervisor"
	"github.com/tomtom215/librarium/internal/supervisor/services"
	"github.com/tomtom215/librarium/internal/vectorindex"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("state_dir", cfg.State.Dir).
		Str("model_dir", cfg.Models.Dir).
		Msg("Starting Librarium")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	stateDB, err := state.Open(cfg.State.Dir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer func() {
		if err := stateDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}()

	books := catalog.NewStore(db)
	inter := interaction.NewStore(db)
	authors := authorpref.NewStore(stateDB)
	sims := collab.NewSimilarityStore(stateDB)

	store, err := modelstore.New(cfg.Models.Dir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open model store")
	}
	indices := vectorindex.NewManager(store)
	detector := language.NewDetector(inter, inter, books)

	results := cache.New(cfg.Cache.DefaultTTL, cfg.Cache.CleanupInterval, cfg.Cache.MaxEntries)
	defer results.Stop()

	contentEng := content.NewEngine(cfg.Content, books, inter, detector, indices, store, results)
	collabEng := collab.NewEngine(cfg.Collab, inter, books, sims, store, results, detector)
	trainer := content.NewTrainer(cfg.Content, books, store, indices)

	history := retrain.NewHistory(stateDB)
	runner := retrain.NewRunner(cfg.Retrain, history, db, results, contentEng, collabEng)
	counter := retrain.NewCounter(stateDB, cfg.Retrain.Threshold, runner)

	interactions := interaction.NewService(inter, books, authors, counter, results, detector)

	var seriesDetector series.Detector
	if cfg.Series.Enabled {
		upstream := series.NewHTTPDetector(cfg.Series.URL, cfg.Series.Timeout)
		seriesDetector = series.NewCachedDetector(cfg.Series, upstream, results)
		logging.Info().Str("url", cfg.Series.URL).Msg("Series detection enabled")
	} else {
		logging.Info().Msg("Series detection disabled")
	}

	recommender := recommend.NewService(books, inter, authors, detector, seriesDetector, results)

	router := api.NewRouter(cfg.API, interactions, contentEng, collabEng, recommender, authors, counter, history, seriesDetector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddBackgroundService(services.NewBootstrapService(trainer, contentEng, collabEng))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
