// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package interaction records like/dislike feedback and maintains the
// per-user genre and language preferences derived from it.
package interaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/librarium/internal/database"
	"github.com/tomtom215/librarium/internal/metrics"
)

// Interaction actions.
const (
	ActionLike    = "like"
	ActionDislike = "dislike"
)

// Interaction is one user's feedback on one book. A user has at most one
// interaction per book title; repeated feedback overwrites in place.
type Interaction struct {
	UserID    string    `json:"user_id"`
	BookTitle string    `json:"book_title"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenreCount is a genre preference tally for one user.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// BookStats holds like/dislike totals for a book.
type BookStats struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

// Store provides access to the interactions, genre_prefs, and
// user_languages tables.
type Store struct {
	db *sql.DB
}

// NewStore creates an interaction store over the shared database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db.Conn()}
}

// Get returns the user's current action for a book title, or "" when no
// interaction exists.
func (s *Store) Get(ctx context.Context, userID, bookTitle string) (string, error) {
	start := time.Now()
	var action string
	err := s.db.QueryRowContext(ctx,
		`SELECT action FROM interactions WHERE user_id = ? AND book_title = ?`,
		userID, bookTitle).Scan(&action)
	metrics.RecordDBQuery("select", "interactions", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading interaction: %w", err)
	}
	return action, nil
}

// Upsert records an interaction, overwriting any previous action for the
// same (user, title) pair. It returns the previous action ("" if none).
func (s *Store) Upsert(ctx context.Context, userID, bookTitle, action string) (string, error) {
	prev, err := s.Get(ctx, userID, bookTitle)
	if err != nil {
		return "", err
	}

	start := time.Now()
	now := time.Now().UTC()
	if prev == "" {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO interactions (user_id, book_title, action, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			userID, bookTitle, action, now, now)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE interactions SET action = ?, updated_at = ?
			 WHERE user_id = ? AND book_title = ?`,
			action, now, userID, bookTitle)
	}
	metrics.RecordDBQuery("upsert", "interactions", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("recording interaction: %w", err)
	}
	return prev, nil
}

// Delete removes an interaction. Returns true when a row was removed.
func (s *Store) Delete(ctx context.Context, userID, bookTitle string) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM interactions WHERE user_id = ? AND book_title = ?`,
		userID, bookTitle)
	metrics.RecordDBQuery("delete", "interactions", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("deleting interaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting interaction: %w", err)
	}
	return n > 0, nil
}

// ListByUser returns a user's interactions, most recent first. An empty
// action returns all actions; limit <= 0 means no limit.
func (s *Store) ListByUser(ctx context.Context, userID, action string, limit int) ([]Interaction, error) {
	query := `SELECT user_id, book_title, action, created_at, updated_at
	          FROM interactions WHERE user_id = ?`
	args := []interface{}{userID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY updated_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "interactions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.UserID, &in.BookTitle, &in.Action, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// LikedTitles returns the titles a user has liked, most recent first.
func (s *Store) LikedTitles(ctx context.Context, userID string) ([]string, error) {
	likes, err := s.ListByUser(ctx, userID, ActionLike, 0)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(likes))
	for i, in := range likes {
		titles[i] = in.BookTitle
	}
	return titles, nil
}

// InteractedTitles returns every title the user has interacted with,
// regardless of action.
func (s *Store) InteractedTitles(ctx context.Context, userID string) ([]string, error) {
	all, err := s.ListByUser(ctx, userID, "", 0)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(all))
	for i, in := range all {
		titles[i] = in.BookTitle
	}
	return titles, nil
}

// CountByUser counts a user's interactions, optionally filtered by action.
func (s *Store) CountByUser(ctx context.Context, userID, action string) (int, error) {
	query := `SELECT count(*) FROM interactions WHERE user_id = ?`
	args := []interface{}{userID}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}

	start := time.Now()
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	metrics.RecordDBQuery("count", "interactions", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("counting interactions: %w", err)
	}
	return n, nil
}

// CountAll counts every interaction in the system.
func (s *Store) CountAll(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM interactions`).Scan(&n)
	metrics.RecordDBQuery("count", "interactions", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("counting interactions: %w", err)
	}
	return n, nil
}

// Stats returns like/dislike totals for a book title.
func (s *Store) Stats(ctx context.Context, bookTitle string) (BookStats, error) {
	start := time.Now()
	var stats BookStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE action = 'like'),
			count(*) FILTER (WHERE action = 'dislike')
		FROM interactions WHERE book_title = ?`, bookTitle).
		Scan(&stats.Likes, &stats.Dislikes)
	metrics.RecordDBQuery("count", "interactions", time.Since(start), err)
	if err != nil {
		return BookStats{}, fmt.Errorf("counting book stats: %w", err)
	}
	return stats, nil
}

// ActionsForTitles returns the user's action per title for the given
// titles, omitting titles without an interaction.
func (s *Store) ActionsForTitles(ctx context.Context, userID string, titles []string) (map[string]string, error) {
	if len(titles) == 0 {
		return map[string]string{}, nil
	}
	args := make([]interface{}, 0, len(titles)+1)
	args = append(args, userID)
	for _, t := range titles {
		args = append(args, t)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_title, action FROM interactions
		 WHERE user_id = ? AND book_title IN (`+placeholders(len(titles))+`)`, args...)
	metrics.RecordDBQuery("select", "interactions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("batch reading interactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(titles))
	for rows.Next() {
		var title, action string
		if err := rows.Scan(&title, &action); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		out[title] = action
	}
	return out, rows.Err()
}

// All streams every interaction, oldest first, for model training.
func (s *Store) All(ctx context.Context) ([]Interaction, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, book_title, action, created_at, updated_at
		 FROM interactions ORDER BY updated_at`)
	metrics.RecordDBQuery("select", "interactions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("listing all interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.UserID, &in.BookTitle, &in.Action, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// AddGenrePrefs increments the per-genre counter for an action.
func (s *Store) AddGenrePrefs(ctx context.Context, userID string, genres []string, action string) error {
	for _, genre := range genres {
		genre = strings.TrimSpace(genre)
		if genre == "" {
			continue
		}
		start := time.Now()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO genre_prefs (user_id, genre, action, count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT (user_id, genre, action) DO UPDATE SET count = count + 1`,
			userID, genre, action)
		metrics.RecordDBQuery("upsert", "genre_prefs", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("adding genre preference %q: %w", genre, err)
		}
	}
	return nil
}

// RemoveGenrePrefs decrements per-genre counters, deleting rows that reach
// zero.
func (s *Store) RemoveGenrePrefs(ctx context.Context, userID string, genres []string, action string) error {
	for _, genre := range genres {
		genre = strings.TrimSpace(genre)
		if genre == "" {
			continue
		}
		start := time.Now()
		_, err := s.db.ExecContext(ctx, `
			UPDATE genre_prefs SET count = count - 1
			WHERE user_id = ? AND genre = ? AND action = ?`,
			userID, genre, action)
		if err == nil {
			_, err = s.db.ExecContext(ctx, `
				DELETE FROM genre_prefs
				WHERE user_id = ? AND genre = ? AND action = ? AND count <= 0`,
				userID, genre, action)
		}
		metrics.RecordDBQuery("update", "genre_prefs", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("removing genre preference %q: %w", genre, err)
		}
	}
	return nil
}

// TopGenres returns a user's most counted genres for an action.
func (s *Store) TopGenres(ctx context.Context, userID, action string, limit int) ([]GenreCount, error) {
	if limit <= 0 {
		limit = 10
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT genre, count FROM genre_prefs
		WHERE user_id = ? AND action = ?
		ORDER BY count DESC, genre LIMIT ?`, userID, action, limit)
	metrics.RecordDBQuery("select", "genre_prefs", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("listing top genres: %w", err)
	}
	defer rows.Close()

	var out []GenreCount
	for rows.Next() {
		var gc GenreCount
		if err := rows.Scan(&gc.Genre, &gc.Count); err != nil {
			return nil, fmt.Errorf("scanning genre preference: %w", err)
		}
		out = append(out, gc)
	}
	return out, rows.Err()
}

// UserLanguages returns the user's recorded languages, oldest first.
func (s *Store) UserLanguages(ctx context.Context, userID string) ([]string, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT language FROM user_languages WHERE user_id = ? ORDER BY added_at`, userID)
	metrics.RecordDBQuery("select", "user_languages", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("listing user languages: %w", err)
	}
	defer rows.Close()

	var langs []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("scanning user language: %w", err)
		}
		langs = append(langs, lang)
	}
	return langs, rows.Err()
}

// AddUserLanguage records a language for a user, ignoring duplicates.
func (s *Store) AddUserLanguage(ctx context.Context, userID, lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return nil
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_languages (user_id, language, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, language) DO NOTHING`,
		userID, lang, time.Now().UTC())
	metrics.RecordDBQuery("upsert", "user_languages", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("adding user language: %w", err)
	}
	return nil
}

// Users returns the distinct user ids with at least one interaction.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM interactions ORDER BY user_id`)
	metrics.RecordDBQuery("select", "interactions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
