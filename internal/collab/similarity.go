// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package collab

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// simKeyPrefix namespaces similarity documents in the shared Badger
// store.
const simKeyPrefix = "similarity:"

// SimilarUsers is one user's ranked neighbor list. Users and Scores are
// aligned, sorted by descending similarity.
type SimilarUsers struct {
	Users  []string  `json:"similar_users"`
	Scores []float64 `json:"similarities"`
}

// SimilarityStore persists each user's top-K most similar users.
type SimilarityStore struct {
	db *badger.DB
}

// NewSimilarityStore creates a store over the shared Badger instance.
func NewSimilarityStore(db *badger.DB) *SimilarityStore {
	return &SimilarityStore{db: db}
}

// Get returns the neighbor list for a user, or nil if none is stored.
func (s *SimilarityStore) Get(userID string) (*SimilarUsers, error) {
	var doc SimilarUsers
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(simKeyPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get similarities for %s: %w", userID, err)
	}
	return &doc, nil
}

// ReplaceAll atomically-per-key rewrites the similarity table: stale
// entries for users absent from the new table are dropped.
func (s *SimilarityStore) ReplaceAll(table map[string]*SimilarUsers) error {
	// Collect existing keys first so the rewrite can drop stale users.
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(simKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, ok := table[string(key[len(prefix):])]; !ok {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan similarity table: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for userID, doc := range table {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal similarities for %s: %w", userID, err)
		}
		if err := wb.Set([]byte(simKeyPrefix+userID), data); err != nil {
			return err
		}
	}
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// ComputeSimilarities builds the top-K neighbor table from the trained
// model's user factors. Self-similarity is excluded.
func ComputeSimilarities(model *ALS, topK int) map[string]*SimilarUsers {
	users := model.Users()
	factors := make([][]float64, len(users))
	for i, u := range users {
		factors[i], _ = model.UserFactors(u)
	}

	table := make(map[string]*SimilarUsers, len(users))
	for i, u := range users {
		type scored struct {
			idx   int
			score float64
		}
		neighbors := make([]scored, 0, len(users)-1)
		for j := range users {
			if j == i {
				continue
			}
			neighbors = append(neighbors, scored{idx: j, score: cosine(factors[i], factors[j])})
		}
		sort.Slice(neighbors, func(a, b int) bool {
			return neighbors[a].score > neighbors[b].score
		})
		if len(neighbors) > topK {
			neighbors = neighbors[:topK]
		}

		doc := &SimilarUsers{
			Users:  make([]string, len(neighbors)),
			Scores: make([]float64, len(neighbors)),
		}
		for k, n := range neighbors {
			doc.Users[k] = users[n.idx]
			doc.Scores[k] = n.score
		}
		table[u] = doc
	}
	return table
}
