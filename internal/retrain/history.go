// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package retrain

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
)

const historyPrefix = "training:"

// Training run statuses recorded in the history store.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusTimeout    = "timeout"
	StatusError      = "error"
)

// TrainingMetrics holds the summary figures parsed from the training
// binary's stdout.
type TrainingMetrics struct {
	TotalInteractions   int     `json:"total_interactions,omitempty"`
	TotalUsers          int     `json:"total_users,omitempty"`
	TotalBooks          int     `json:"total_books,omitempty"`
	TrainingTimeSeconds float64 `json:"training_time_seconds,omitempty"`
}

// TrainingRecord is one retraining attempt, successful or not.
type TrainingRecord struct {
	ID              string          `json:"id"`
	TriggerCount    int             `json:"trigger_count"`
	Started         time.Time       `json:"training_started"`
	Completed       time.Time       `json:"training_completed,omitempty"`
	DurationSeconds float64         `json:"training_duration_seconds"`
	Status          string          `json:"training_status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Metrics         TrainingMetrics `json:"model_metrics"`
}

// History persists training records in the shared state database. Keys
// embed the start time so records iterate in chronological order.
type History struct {
	db *badger.DB
}

// NewHistory wraps the shared state database.
func NewHistory(db *badger.DB) *History {
	return &History{db: db}
}

func historyKey(rec *TrainingRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", historyPrefix, rec.Started.UnixNano(), rec.ID))
}

// Put writes or overwrites a training record.
func (h *History) Put(rec *TrainingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding training record: %w", err)
	}
	err = h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(rec), data)
	})
	if err != nil {
		return fmt.Errorf("storing training record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (h *History) Recent(limit int) ([]TrainingRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []TrainingRecord
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(historyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key in the prefix range.
		seek := append([]byte(historyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(historyPrefix)) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec TrainingRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading training history: %w", err)
	}
	return records, nil
}
