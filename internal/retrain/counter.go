// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
)

const counterKey = "counter:interactions"

type counterDoc struct {
	CurrentCount     int       `json:"current_count"`
	Threshold        int       `json:"threshold"`
	LastUpdated      time.Time `json:"last_updated"`
	LastReset        time.Time `json:"last_reset"`
	TotalRetrainings int       `json:"total_retrainings"`
	CreatedAt        time.Time `json:"created_at"`
}

// Stats is a point-in-time view of the counter.
type Stats struct {
	CurrentCount              int       `json:"current_count"`
	Threshold                 int       `json:"threshold"`
	InteractionsUntilTraining int       `json:"interactions_until_training"`
	TotalRetrainings          int       `json:"total_retrainings"`
	LastUpdated               time.Time `json:"last_updated"`
	LastReset                 time.Time `json:"last_reset"`
	CreatedAt                 time.Time `json:"created_at"`
	TrainingInProgress        bool      `json:"training_in_progress"`
}

// Counter tracks like/dislike interactions across all users and kicks
// off a training run whenever the count reaches the threshold. The
// count resets only when a run actually starts, so a trigger that
// loses the single-flight race is retried on the next interaction.
type Counter struct {
	db        *badger.DB
	runner    *Runner
	threshold int
	mu        sync.Mutex
}

// NewCounter wires the counter to the shared state database and the
// training runner.
func NewCounter(db *badger.DB, threshold int, runner *Runner) *Counter {
	c := &Counter{db: db, runner: runner, threshold: threshold}
	runner.onSuccess = c.recordRetraining
	return c
}

// Increment adds one interaction and triggers training at the
// threshold. It satisfies the interaction service's trigger contract.
func (c *Counter) Increment(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var triggerCount int
	err := c.mutate(func(doc *counterDoc) {
		doc.CurrentCount++
		doc.LastUpdated = time.Now().UTC()
		if doc.CurrentCount >= doc.Threshold {
			triggerCount = doc.CurrentCount
		}
	})
	if err != nil {
		return err
	}

	if triggerCount > 0 && c.runner.TryRun(triggerCount) {
		logging.Info().Int("count", triggerCount).Int("threshold", c.threshold).
			Msg("interaction threshold reached, training triggered")
		if err := c.reset(); err != nil {
			return err
		}
	}
	return nil
}

// Reset zeroes the counter without triggering training.
func (c *Counter) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reset()
}

// Status reports the current counter state.
func (c *Counter) Status(ctx context.Context) (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	until := doc.Threshold - doc.CurrentCount
	if until < 0 {
		until = 0
	}
	return &Stats{
		CurrentCount:              doc.CurrentCount,
		Threshold:                 doc.Threshold,
		InteractionsUntilTraining: until,
		TotalRetrainings:          doc.TotalRetrainings,
		LastUpdated:               doc.LastUpdated,
		LastReset:                 doc.LastReset,
		CreatedAt:                 doc.CreatedAt,
		TrainingInProgress:        c.runner.Running(),
	}, nil
}

func (c *Counter) reset() error {
	return c.mutate(func(doc *counterDoc) {
		doc.CurrentCount = 0
		doc.LastReset = time.Now().UTC()
	})
}

func (c *Counter) recordRetraining() {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.mutate(func(doc *counterDoc) {
		doc.TotalRetrainings++
	})
	if err != nil {
		logging.Warn().Err(err).Msg("recording retraining tally")
	}
}

func (c *Counter) load() (*counterDoc, error) {
	doc := c.newDoc()
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(counterKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, doc)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading interaction counter: %w", err)
	}
	return doc, nil
}

func (c *Counter) mutate(fn func(*counterDoc)) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		doc := c.newDoc()
		item, err := txn.Get([]byte(counterKey))
		if err == nil {
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, doc)
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		fn(doc)
		doc.Threshold = c.threshold

		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(counterKey), data); err != nil {
			return err
		}
		metrics.InteractionCounter.Set(float64(doc.CurrentCount))
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating interaction counter: %w", err)
	}
	return nil
}

func (c *Counter) newDoc() *counterDoc {
	now := time.Now().UTC()
	return &counterDoc{
		Threshold: c.threshold,
		LastReset: now,
		CreatedAt: now,
	}
}
