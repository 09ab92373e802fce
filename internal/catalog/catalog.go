// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package catalog stores and queries the book catalog.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/librarium/internal/database"
	"github.com/tomtom215/librarium/internal/metrics"
)

// ErrNotFound is returned when a book does not exist.
var ErrNotFound = errors.New("book not found")

// Book is a catalog entry. Authors and Genres are stored JSON-encoded.
type Book struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Genres          []string `json:"genres"`
	Summary         string   `json:"summary"`
	Year            int      `json:"year"`
	Language        string   `json:"language"`
	StarRating      float64  `json:"star_rating"`
	NumRatings      int      `json:"num_ratings"`
	PopularityScore float64  `json:"popularity_score"`
}

// Eligible reports whether the book can participate in content-based
// training: it needs a summary and a language.
func (b *Book) Eligible() bool {
	return strings.TrimSpace(b.Summary) != "" && strings.TrimSpace(b.Language) != ""
}

// Store provides access to the books table.
type Store struct {
	db *sql.DB
}

// NewStore creates a catalog store over the shared database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db.Conn()}
}

const bookColumns = `id, title, authors, genres, summary, year, language, star_rating, num_ratings, popularity_score`

const eligibleWhere = `summary <> '' AND language <> ''`

// Upsert inserts or replaces a book by id.
func (s *Store) Upsert(ctx context.Context, book *Book) error {
	start := time.Now()
	authors, err := json.Marshal(book.Authors)
	if err != nil {
		return fmt.Errorf("encoding authors: %w", err)
	}
	genres, err := json.Marshal(book.Genres)
	if err != nil {
		return fmt.Errorf("encoding genres: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, string(authors), string(genres), book.Summary,
		book.Year, strings.ToLower(strings.TrimSpace(book.Language)),
		book.StarRating, book.NumRatings, book.PopularityScore)
	metrics.RecordDBQuery("upsert", "books", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("upserting book %s: %w", book.ID, err)
	}
	return nil
}

// GetByID fetches one book by id.
func (s *Store) GetByID(ctx context.Context, id string) (*Book, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	book, err := scanBook(row)
	metrics.RecordDBQuery("select", "books", time.Since(start), ignoreNotFound(err))
	return book, err
}

// GetByTitle fetches one book by exact title, case-insensitively.
func (s *Store) GetByTitle(ctx context.Context, title string) (*Book, error) {
	start := time.Now()
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE lower(title) = lower(?) LIMIT 1`, title)
	book, err := scanBook(row)
	metrics.RecordDBQuery("select", "books", time.Since(start), ignoreNotFound(err))
	return book, err
}

// GetByIDs fetches books for the given ids, preserving input order. Missing
// ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]*Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	books, err := s.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id IN (`+placeholders(len(ids))+`)`,
		toArgs(ids)...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	ordered := make([]*Book, 0, len(books))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
		}
	}
	return ordered, nil
}

// GetByTitles fetches books matching the given titles case-insensitively.
func (s *Store) GetByTitles(ctx context.Context, titles []string) ([]*Book, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(titles))
	for i, t := range titles {
		lowered[i] = strings.ToLower(t)
	}
	return s.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books WHERE lower(title) IN (`+placeholders(len(lowered))+`)`,
		toArgs(lowered)...)
}

// SearchByPrefix finds books whose title starts with the given prefix,
// case-insensitively, most popular first.
func (s *Store) SearchByPrefix(ctx context.Context, prefix string, limit int) ([]*Book, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := strings.ToLower(prefix) + "%"
	return s.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books
		 WHERE lower(title) LIKE ?
		 ORDER BY popularity_score DESC LIMIT ?`, pattern, limit)
}

// Popular returns the most popular books, optionally restricted to
// languages matching any of userLangs (exact lowercase match; synonym-aware
// filtering happens in the engines).
func (s *Store) Popular(ctx context.Context, langs []string, limit int) ([]*Book, error) {
	if limit <= 0 {
		limit = 20
	}
	if len(langs) == 0 {
		return s.queryBooks(ctx,
			`SELECT `+bookColumns+` FROM books ORDER BY popularity_score DESC LIMIT ?`, limit)
	}
	lowered := make([]string, len(langs))
	for i, l := range langs {
		lowered[i] = strings.ToLower(l)
	}
	args := append(toArgs(lowered), limit)
	return s.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books
		 WHERE language IN (`+placeholders(len(lowered))+`)
		 ORDER BY popularity_score DESC LIMIT ?`, args...)
}

// ByAuthor returns the author's books, most popular first. Authors are
// stored as a JSON array, so the match is on the quoted name inside it.
func (s *Store) ByAuthor(ctx context.Context, author string, limit int) ([]*Book, error) {
	if limit <= 0 {
		limit = 20
	}
	encoded, err := json.Marshal(author)
	if err != nil {
		return nil, fmt.Errorf("encoding author: %w", err)
	}
	pattern := "%" + string(encoded) + "%"
	return s.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books
		 WHERE authors LIKE ?
		 ORDER BY popularity_score DESC LIMIT ?`, pattern, limit)
}

// Sample returns up to n random eligible books for pipeline fitting.
func (s *Store) Sample(ctx context.Context, n int) ([]*Book, error) {
	return s.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books
		 WHERE `+eligibleWhere+`
		 ORDER BY random() LIMIT ?`, n)
}

// CountEligible counts books that qualify for content-based training.
func (s *Store) CountEligible(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM books WHERE `+eligibleWhere).Scan(&n)
	metrics.RecordDBQuery("count", "books", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("counting eligible books: %w", err)
	}
	return n, nil
}

// Count counts all books.
func (s *Store) Count(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM books`).Scan(&n)
	metrics.RecordDBQuery("count", "books", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("counting books: %w", err)
	}
	return n, nil
}

// StreamEligible iterates all eligible books in id-ordered chunks, calling
// fn for each chunk. Iteration stops on the first error from fn. Chunks are
// fetched by keyset pagination so memory stays bounded by chunkSize.
func (s *Store) StreamEligible(ctx context.Context, chunkSize int, fn func([]*Book) error) error {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	lastID := ""
	for {
		chunk, err := s.queryBooks(ctx,
			`SELECT `+bookColumns+` FROM books
			 WHERE `+eligibleWhere+` AND id > ?
			 ORDER BY id LIMIT ?`, lastID, chunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		lastID = chunk[len(chunk)-1].ID
		if len(chunk) < chunkSize {
			return nil
		}
	}
}

// LanguagesForTitles resolves book titles to languages for the language
// detector. Titles without a catalog entry or language resolve to english.
func (s *Store) LanguagesForTitles(ctx context.Context, titles []string) ([]string, error) {
	books, err := s.GetByTitles(ctx, titles)
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]string, len(books))
	for _, b := range books {
		byTitle[strings.ToLower(b.Title)] = b.Language
	}
	langs := make([]string, len(titles))
	for i, t := range titles {
		lang := byTitle[strings.ToLower(t)]
		if lang == "" {
			lang = "english"
		}
		langs[i] = lang
	}
	return langs, nil
}

// Languages returns the distinct normalized languages present in the
// catalog.
func (s *Store) Languages(ctx context.Context) ([]string, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT language FROM books WHERE language <> '' ORDER BY language`)
	metrics.RecordDBQuery("select", "books", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("listing languages: %w", err)
	}
	defer rows.Close()

	var langs []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("scanning language: %w", err)
		}
		langs = append(langs, lang)
	}
	return langs, rows.Err()
}

func (s *Store) queryBooks(ctx context.Context, query string, args ...interface{}) ([]*Book, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "books", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(row rowScanner) (*Book, error) {
	var (
		b           Book
		authorsJSON string
		genresJSON  string
	)
	err := row.Scan(&b.ID, &b.Title, &authorsJSON, &genresJSON, &b.Summary,
		&b.Year, &b.Language, &b.StarRating, &b.NumRatings, &b.PopularityScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning book: %w", err)
	}
	if err := json.Unmarshal([]byte(authorsJSON), &b.Authors); err != nil {
		return nil, fmt.Errorf("decoding authors for %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(genresJSON), &b.Genres); err != nil {
		return nil, fmt.Errorf("decoding genres for %s: %w", b.ID, err)
	}
	return &b, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ss []string) []interface{} {
	args := make([]interface{}, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
