// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package retrain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
)

// Reloader is a recommendation engine that can pick up freshly trained
// model artifacts from disk.
type Reloader interface {
	Reload() error
}

// Invalidator removes cached results by glob pattern.
type Invalidator interface {
	DeletePattern(pattern string) (int, error)
}

// Snapshotter copies the live database to a standalone file the trainer
// process can open. DuckDB allows a single read-write process, so the
// trainer never opens the server's live file directly.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// Cached result families flushed after a successful training run.
var cachePatterns = []string{
	"content_based:*",
	"based_on_likes:*",
	"collaborative:*",
	"best_from_author:*",
	"popular_books:*",
	"continue_reading:*",
	"recommendations:*",
}

// Runner executes the external training binary, at most one run at a
// time, and records every attempt in the history store.
type Runner struct {
	cfg       config.RetrainConfig
	history   *History
	snapshots Snapshotter
	reloaders []Reloader
	results   Invalidator
	running   atomic.Bool

	// onSuccess is invoked after a successful run; the counter uses it
	// to bump its retraining tally.
	onSuccess func()
}

// NewRunner builds a runner around the configured training command. A
// nil snapshots runs the command against its configured database.
func NewRunner(cfg config.RetrainConfig, history *History, snapshots Snapshotter, results Invalidator, reloaders ...Reloader) *Runner {
	return &Runner{
		cfg:       cfg,
		history:   history,
		snapshots: snapshots,
		reloaders: reloaders,
		results:   results,
	}
}

// Running reports whether a training run is currently in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// TryRun starts a background training run unless one is already in
// progress. It reports whether a run was started.
func (r *Runner) TryRun(triggerCount int) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer r.running.Store(false)
		r.execute(triggerCount)
	}()
	return true
}

func (r *Runner) execute(triggerCount int) {
	started := time.Now().UTC()
	rec := &TrainingRecord{
		ID:           uuid.NewString(),
		TriggerCount: triggerCount,
		Started:      started,
		Status:       StatusInProgress,
	}
	if err := r.history.Put(rec); err != nil {
		logging.Error().Err(err).Msg("recording training start")
	}

	logging.Info().Int("trigger_count", triggerCount).
		Str("command", r.cfg.Command).
		Msg("starting model training")

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.cfg.Command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.snapshots != nil {
		snapPath := filepath.Join(os.TempDir(), fmt.Sprintf("librarium-train-%s.duckdb", rec.ID))
		if err := r.snapshots.Snapshot(ctx, snapPath); err != nil {
			rec.Completed = time.Now().UTC()
			rec.DurationSeconds = rec.Completed.Sub(started).Seconds()
			rec.Status = StatusError
			rec.ErrorMessage = fmt.Sprintf("database snapshot: %v", err)
			if err := r.history.Put(rec); err != nil {
				logging.Error().Err(err).Msg("recording training outcome")
			}
			metrics.RecordTrainingRun(rec.Status, rec.Completed.Sub(started))
			logging.Error().Str("error", rec.ErrorMessage).Msg("model training did not start")
			return
		}
		defer func() { _ = os.Remove(snapPath) }() //nolint:errcheck // best-effort cleanup of the snapshot
		cmd.Env = append(os.Environ(), "LIBRARIUM_DUCKDB_PATH="+snapPath)
	}

	err := cmd.Run()
	rec.Completed = time.Now().UTC()
	rec.DurationSeconds = rec.Completed.Sub(started).Seconds()

	switch {
	case err == nil:
		rec.Status = StatusSuccess
		rec.Metrics = parseTrainingMetrics(stdout.String())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rec.Status = StatusTimeout
		rec.ErrorMessage = fmt.Sprintf("training timed out after %.1fs", rec.DurationSeconds)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			rec.Status = StatusFailed
			rec.ErrorMessage = fmt.Sprintf("training exited with code %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		} else {
			rec.Status = StatusError
			rec.ErrorMessage = err.Error()
		}
	}

	if err := r.history.Put(rec); err != nil {
		logging.Error().Err(err).Msg("recording training outcome")
	}
	metrics.RecordTrainingRun(rec.Status, rec.Completed.Sub(started))

	if rec.Status != StatusSuccess {
		logging.Error().Str("status", rec.Status).Str("error", rec.ErrorMessage).
			Float64("duration_seconds", rec.DurationSeconds).
			Msg("model training did not complete")
		return
	}

	logging.Info().
		Int("total_interactions", rec.Metrics.TotalInteractions).
		Int("total_users", rec.Metrics.TotalUsers).
		Int("total_books", rec.Metrics.TotalBooks).
		Float64("duration_seconds", rec.DurationSeconds).
		Msg("model training completed")

	r.reloadAndInvalidate()
	if r.onSuccess != nil {
		r.onSuccess()
	}
}

// reloadAndInvalidate swaps in the new model artifacts and flushes
// every cached recommendation built against the old ones.
func (r *Runner) reloadAndInvalidate() {
	for _, rl := range r.reloaders {
		if err := rl.Reload(); err != nil {
			logging.Error().Err(err).Msg("reloading engine after training")
		}
	}
	if r.results == nil {
		return
	}
	removed := 0
	for _, pattern := range cachePatterns {
		n, err := r.results.DeletePattern(pattern)
		if err != nil {
			logging.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
			continue
		}
		removed += n
	}
	logging.Info().Int("entries", removed).Msg("recommendation caches flushed")
}

// parseTrainingMetrics pulls the summary figures out of the training
// binary's stdout. Missing or malformed lines are skipped.
func parseTrainingMetrics(stdout string) TrainingMetrics {
	var m TrainingMetrics
	for _, line := range strings.Split(stdout, "\n") {
		switch {
		case strings.Contains(line, "Total interactions:"):
			m.TotalInteractions = parseCountLine(line)
		case strings.Contains(line, "Total users:"):
			m.TotalUsers = parseCountLine(line)
		case strings.Contains(line, "Total books:"):
			m.TotalBooks = parseCountLine(line)
		case strings.Contains(line, "Training time:"):
			fields := strings.Fields(afterColon(line))
			if len(fields) > 0 {
				if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
					m.TrainingTimeSeconds = v
				}
			}
		}
	}
	return m
}

func parseCountLine(line string) int {
	raw := strings.ReplaceAll(afterColon(line), ",", "")
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

func afterColon(line string) string {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(rest)
}
