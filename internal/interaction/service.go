// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package interaction

import (
	"context"
	"fmt"

	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
)

// AuthorAffinity maintains per-user author preference rankings.
type AuthorAffinity interface {
	TopAuthor(ctx context.Context, userID string) (string, error)
	Update(ctx context.Context, userID, author, action, bookTitle string) error
	Remove(ctx context.Context, userID, author, action, bookTitle string) error
}

// Trigger counts interactions toward the next retraining run.
type Trigger interface {
	Increment(ctx context.Context) error
}

// Invalidator removes cached results by glob pattern.
type Invalidator interface {
	DeletePattern(pattern string) (int, error)
}

// LanguageInvalidator drops memoized language detections for a user.
type LanguageInvalidator interface {
	Invalidate(userID string)
}

// userCachePrefixes are the per-user result caches flushed on every
// interaction. Author-based results are flushed separately, only when the
// user's top author actually changes.
var userCachePrefixes = []string{
	"recommendations",
	"content_based",
	"based_on_likes",
	"collaborative",
	"continue_reading",
}

// Service applies like/dislike feedback: it overwrites the stored
// interaction, keeps genre/author/language preferences consistent with the
// overwrite, invalidates the affected caches, and feeds the retraining
// counter.
type Service struct {
	store     *Store
	books     *catalog.Store
	authors   AuthorAffinity
	trigger   Trigger
	cache     Invalidator
	languages LanguageInvalidator
}

// NewService wires the interaction service.
func NewService(store *Store, books *catalog.Store, authors AuthorAffinity, trigger Trigger, cache Invalidator, languages LanguageInvalidator) *Service {
	return &Service{
		store:     store,
		books:     books,
		authors:   authors,
		trigger:   trigger,
		cache:     cache,
		languages: languages,
	}
}

// Like records a like for the book title.
func (s *Service) Like(ctx context.Context, userID, bookTitle string) error {
	return s.record(ctx, userID, bookTitle, ActionLike)
}

// Dislike records a dislike for the book title.
func (s *Service) Dislike(ctx context.Context, userID, bookTitle string) error {
	return s.record(ctx, userID, bookTitle, ActionDislike)
}

func (s *Service) record(ctx context.Context, userID, bookTitle, action string) error {
	book, err := s.books.GetByTitle(ctx, bookTitle)
	if err != nil {
		return fmt.Errorf("resolving book %q: %w", bookTitle, err)
	}
	author := firstAuthor(book)

	// The book's language becomes part of the user's language profile.
	if book.Language != "" {
		if err := s.store.AddUserLanguage(ctx, userID, book.Language); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("failed to record user language")
		} else if s.languages != nil {
			s.languages.Invalidate(userID)
		}
	}

	prev, err := s.store.Upsert(ctx, userID, book.Title, action)
	if err != nil {
		return err
	}
	if prev == action {
		// Repeating the same feedback is a no-op.
		return nil
	}

	if prev == "" {
		// Fresh interaction: genre deltas applied directly.
		if err := s.store.AddGenrePrefs(ctx, userID, book.Genres, action); err != nil {
			return err
		}
	} else {
		// Overwrite: undo the previous action's genre and author deltas.
		if err := s.store.RemoveGenrePrefs(ctx, userID, book.Genres, prev); err != nil {
			return err
		}
		if err := s.authors.Remove(ctx, userID, author, prev, book.Title); err != nil {
			return fmt.Errorf("undoing author preference: %w", err)
		}
	}

	changed, err := s.updateAuthorAffinity(ctx, userID, author, action, book.Title)
	if err != nil {
		// Author accounting failed; invalidate conservatively.
		logging.Warn().Err(err).Str("user_id", userID).Str("author", author).
			Msg("author affinity update failed")
		changed = true
	}

	s.invalidateUserCaches(userID, changed)
	metrics.InteractionsRecorded.WithLabelValues(action).Inc()

	if err := s.trigger.Increment(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to increment interaction counter")
	}
	return nil
}

// Remove deletes an interaction and unwinds its genre and author deltas.
func (s *Service) Remove(ctx context.Context, userID, bookTitle string) error {
	book, err := s.books.GetByTitle(ctx, bookTitle)
	if err != nil {
		return fmt.Errorf("resolving book %q: %w", bookTitle, err)
	}

	action, err := s.store.Get(ctx, userID, book.Title)
	if err != nil {
		return err
	}
	if action == "" {
		return nil
	}

	if _, err := s.store.Delete(ctx, userID, book.Title); err != nil {
		return err
	}
	if err := s.store.RemoveGenrePrefs(ctx, userID, book.Genres, action); err != nil {
		return err
	}
	if err := s.authors.Remove(ctx, userID, firstAuthor(book), action, book.Title); err != nil {
		return fmt.Errorf("undoing author preference: %w", err)
	}

	s.invalidateUserCaches(userID, true)
	return nil
}

// updateAuthorAffinity applies the author delta and reports whether the
// user's top author changed, which decides whether author-based caches are
// flushed.
func (s *Service) updateAuthorAffinity(ctx context.Context, userID, author, action, bookTitle string) (bool, error) {
	before, err := s.authors.TopAuthor(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := s.authors.Update(ctx, userID, author, action, bookTitle); err != nil {
		return false, err
	}
	after, err := s.authors.TopAuthor(ctx, userID)
	if err != nil {
		return false, err
	}
	return before != after, nil
}

func (s *Service) invalidateUserCaches(userID string, topAuthorChanged bool) {
	for _, prefix := range userCachePrefixes {
		pattern := prefix + ":user:" + userID + ":*"
		if _, err := s.cache.DeletePattern(pattern); err != nil {
			logging.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
		}
	}
	if topAuthorChanged {
		pattern := "best_from_author:user:" + userID + ":*"
		if _, err := s.cache.DeletePattern(pattern); err != nil {
			logging.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
		}
	}
}

func firstAuthor(book *catalog.Book) string {
	if len(book.Authors) == 0 {
		return ""
	}
	return book.Authors[0]
}
