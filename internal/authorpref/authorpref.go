// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package authorpref maintains each user's author preference ranking as a
// single document in the shared Badger store, kept sorted by preference
// count so the top author is always the first entry.
package authorpref

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// keyPrefix namespaces preference documents in the shared Badger store.
const keyPrefix = "authorpref:"

// Author is one ranked entry in a user's preference list.
type Author struct {
	Name              string   `json:"author_name"`
	PreferenceCount   int      `json:"preference_count"`
	BooksLiked        []string `json:"books_liked"`
	BooksDisliked     []string `json:"books_disliked"`
	TotalInteractions int      `json:"total_interactions"`
}

// document is a user's full preference state, sorted by descending
// preference count.
type document struct {
	Authors     []Author  `json:"sorted_authors"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store reads and updates author preference documents.
type Store struct {
	db *badger.DB
}

// NewStore creates a store over the shared Badger instance.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// actionWeight maps an interaction action to its preference delta.
func actionWeight(action string) int {
	switch action {
	case "like":
		return 1
	case "dislike":
		return -1
	default:
		return 0
	}
}

// Update applies a recorded interaction to the user's ranking: likes
// increment the author's count, dislikes decrement it, and an author
// whose count reaches zero drops out of the list. Blank authors are
// ignored.
func (s *Store) Update(ctx context.Context, userID, author, action, bookTitle string) error {
	author = strings.TrimSpace(author)
	if author == "" {
		return nil
	}
	weight := actionWeight(action)
	if weight == 0 {
		return nil
	}

	return s.mutate(userID, func(doc *document) {
		now := time.Now().UTC()
		doc.LastUpdated = now
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}

		for i := range doc.Authors {
			a := &doc.Authors[i]
			if a.Name != author {
				continue
			}
			a.PreferenceCount += weight
			if a.PreferenceCount < 0 {
				a.PreferenceCount = 0
			}
			a.TotalInteractions++
			if weight > 0 {
				a.BooksLiked = appendUnique(a.BooksLiked, bookTitle)
			} else {
				a.BooksDisliked = appendUnique(a.BooksDisliked, bookTitle)
			}
			if a.PreferenceCount <= 0 {
				doc.Authors = append(doc.Authors[:i], doc.Authors[i+1:]...)
			}
			sortAuthors(doc.Authors)
			return
		}

		// New authors only enter the list on a positive signal.
		if weight > 0 {
			doc.Authors = append(doc.Authors, Author{
				Name:              author,
				PreferenceCount:   weight,
				BooksLiked:        []string{bookTitle},
				BooksDisliked:     []string{},
				TotalInteractions: 1,
			})
			sortAuthors(doc.Authors)
		}
	})
}

// Remove unwinds a previously applied interaction: the inverse delta is
// applied and the book is pulled from the matching list. Authors whose
// count reaches zero drop out.
func (s *Store) Remove(ctx context.Context, userID, author, action, bookTitle string) error {
	author = strings.TrimSpace(author)
	if author == "" {
		return nil
	}
	weight := -actionWeight(action)
	if weight == 0 {
		return nil
	}

	return s.mutate(userID, func(doc *document) {
		doc.LastUpdated = time.Now().UTC()
		for i := range doc.Authors {
			a := &doc.Authors[i]
			if a.Name != author {
				continue
			}
			a.PreferenceCount += weight
			a.TotalInteractions--
			if action == "like" {
				a.BooksLiked = removeString(a.BooksLiked, bookTitle)
			} else {
				a.BooksDisliked = removeString(a.BooksDisliked, bookTitle)
			}
			if a.PreferenceCount <= 0 {
				doc.Authors = append(doc.Authors[:i], doc.Authors[i+1:]...)
			}
			sortAuthors(doc.Authors)
			return
		}
	})
}

// TopAuthor returns the user's most preferred author, or "" when the
// list is empty.
func (s *Store) TopAuthor(ctx context.Context, userID string) (string, error) {
	doc, err := s.get(userID)
	if err != nil {
		return "", err
	}
	if doc == nil || len(doc.Authors) == 0 {
		return "", nil
	}
	return doc.Authors[0].Name, nil
}

// Top returns the user's ranked authors, at most limit entries. limit <=
// 0 returns them all.
func (s *Store) Top(ctx context.Context, userID string, limit int) ([]Author, error) {
	doc, err := s.get(userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return []Author{}, nil
	}
	authors := doc.Authors
	if limit > 0 && len(authors) > limit {
		authors = authors[:limit]
	}
	out := make([]Author, len(authors))
	copy(out, authors)
	return out, nil
}

// get loads a user's document, or nil when none exists.
func (s *Store) get(userID string) (*document, error) {
	var doc document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + userID))
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
		return nil, fmt.Errorf("get author preferences for %s: %w", userID, err)
	}
	return &doc, nil
}

// mutate runs a read-modify-write on a user's document inside one Badger
// transaction.
func (s *Store) mutate(userID string, fn func(*document)) error {
	key := []byte(keyPrefix + userID)
	err := s.db.Update(func(txn *badger.Txn) error {
		var doc document
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			// fresh document
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return err
			}
		}

		fn(&doc)

		data, err := json.Marshal(&doc)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("update author preferences for %s: %w", userID, err)
	}
	return nil
}

// sortAuthors keeps the ranking ordered by descending preference count,
// name as the tiebreak for stable output.
func sortAuthors(authors []Author) {
	sort.SliceStable(authors, func(i, j int) bool {
		if authors[i].PreferenceCount != authors[j].PreferenceCount {
			return authors[i].PreferenceCount > authors[j].PreferenceCount
		}
		return authors[i].Name < authors[j].Name
	})
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	for i, existing := range list {
		if existing == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
