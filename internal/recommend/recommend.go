// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package recommend serves the catalog-driven recommendation paths that
// need no trained model: unread books by the user's favorite author,
// popularity-ranked books filtered to the user's languages, and the next
// installment of series the user started.
package recommend

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/librarium/internal/authorpref"
	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/interaction"
	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
	"github.com/tomtom215/librarium/internal/series"
)

const (
	methodAuthor   = "best_from_author"
	methodPopular  = "popular_books"
	methodContinue = "continue_reading"
)

// maxSeriesLookups caps how many liked books a continue-reading query
// sends to the series collaborator.
const maxSeriesLookups = 20

// AuthorSource exposes a user's ranked author preferences.
type AuthorSource interface {
	Top(ctx context.Context, userID string, limit int) ([]authorpref.Author, error)
}

// AuthorRecommendation is one unread book by the user's top author.
type AuthorRecommendation struct {
	BookID              string   `json:"id"`
	Title               string   `json:"title"`
	Authors             []string `json:"authors"`
	Genres              []string `json:"genres"`
	Summary             string   `json:"summary,omitempty"`
	Language            string   `json:"language"`
	Year                int      `json:"year"`
	StarRating          float64  `json:"star_rating"`
	NumRatings          int      `json:"num_ratings"`
	RecommendationScore float64  `json:"recommendation_score"`
	Algorithm           string   `json:"algorithm"`
	Confidence          float64  `json:"confidence"`
	Reason              string   `json:"reason"`
}

// AuthorResult is the response of a best-from-author query.
type AuthorResult struct {
	Recommendations       []AuthorRecommendation `json:"recommendations"`
	Count                 int                    `json:"count"`
	BestAuthor            string                 `json:"best_author,omitempty"`
	AuthorPreferenceCount int                    `json:"author_preference_count,omitempty"`
	BooksLikedByAuthor    int                    `json:"books_liked_by_author,omitempty"`
	Explanation           string                 `json:"explanation,omitempty"`
	Message               string                 `json:"message,omitempty"`
}

// SourceBook names the liked book a series recommendation came from.
type SourceBook struct {
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
}

// SeriesRecommendation is the next installment of a series the user
// started.
type SeriesRecommendation struct {
	OriginalBook       SourceBook      `json:"original_book"`
	NextBook           series.NextBook `json:"next_book"`
	SeriesName         string          `json:"series_name"`
	Attribution        string          `json:"attribution"`
	Confidence         float64         `json:"confidence_score"`
	VerificationStatus string          `json:"verification_status,omitempty"`
}

// Service answers the model-free recommendation queries.
type Service struct {
	books    *catalog.Store
	inter    *interaction.Store
	authors  AuthorSource
	detector *language.Detector
	series   series.Detector // nil when detection is disabled
	results  *cache.Cache
}

// NewService wires the catalog-driven recommendation paths. A nil
// seriesDetector disables continue-reading.
func NewService(
	books *catalog.Store,
	inter *interaction.Store,
	authors AuthorSource,
	detector *language.Detector,
	seriesDetector series.Detector,
	results *cache.Cache,
) *Service {
	return &Service{
		books:    books,
		inter:    inter,
		authors:  authors,
		detector: detector,
		series:   seriesDetector,
		results:  results,
	}
}

// BestFromAuthor recommends unread books by the author the user likes
// most. A user without ranked authors gets an empty result with a
// message instead of an error.
func (s *Service) BestFromAuthor(ctx context.Context, userID string, limit int) (*AuthorResult, error) {
	start := time.Now()

	key := cache.GenerateUserKey(methodAuthor, userID, map[string]interface{}{"limit": limit})
	if cached, ok := s.results.Get(key); ok {
		if res, ok := cached.(*AuthorResult); ok {
			metrics.RecordRecommendation(methodAuthor, "ok", time.Since(start))
			return res, nil
		}
	}

	ranked, err := s.authors.Top(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		metrics.RecordRecommendation(methodAuthor, "empty", time.Since(start))
		return &AuthorResult{
			Recommendations: []AuthorRecommendation{},
			Message:         "Like some books to discover your favorite authors!",
		}, nil
	}
	best := ranked[0]

	interacted, err := s.inter.InteractedTitles(ctx, userID)
	if err != nil {
		return nil, err
	}
	interactedSet := titleSet(interacted)

	books, err := s.books.ByAuthor(ctx, best.Name, limit*2)
	if err != nil {
		return nil, err
	}

	baseScore := math.Min(float64(best.PreferenceCount)/10.0, 1.0)
	recs := make([]AuthorRecommendation, 0, limit)
	for _, b := range books {
		if interactedSet[strings.ToLower(b.Title)] {
			continue
		}
		boost := 0.0
		if b.StarRating > 4.0 {
			boost += 0.1
		}
		if b.NumRatings > 1000 {
			boost += 0.05
		}
		recs = append(recs, AuthorRecommendation{
			BookID:              b.ID,
			Title:               b.Title,
			Authors:             b.Authors,
			Genres:              b.Genres,
			Summary:             b.Summary,
			Language:            b.Language,
			Year:                b.Year,
			StarRating:          b.StarRating,
			NumRatings:          b.NumRatings,
			RecommendationScore: (baseScore + boost) * 100,
			Algorithm:           methodAuthor,
			Confidence:          math.Min(baseScore+0.2, 1.0),
			Reason:              "Because you loved other books by " + best.Name,
		})
		if len(recs) >= limit {
			break
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].RecommendationScore > recs[j].RecommendationScore
	})

	res := &AuthorResult{
		Recommendations:       recs,
		Count:                 len(recs),
		BestAuthor:            best.Name,
		AuthorPreferenceCount: best.PreferenceCount,
		BooksLikedByAuthor:    len(best.BooksLiked),
	}
	if len(recs) == 0 {
		res.Message = "No unread books found by " + best.Name + ". Try exploring more books!"
		metrics.RecordRecommendation(methodAuthor, "empty", time.Since(start))
		return res, nil
	}
	res.Explanation = "Based on your love for " + best.Name

	s.results.Set(key, res)
	metrics.RecordRecommendation(methodAuthor, "ok", time.Since(start))
	return res, nil
}

// Popular returns the most popular books in the user's detected
// languages, falling back to the unfiltered ranking when the filter
// matches nothing.
func (s *Service) Popular(ctx context.Context, userID string, limit int) ([]*catalog.Book, error) {
	start := time.Now()

	key := cache.GenerateUserKey(methodPopular, userID, map[string]interface{}{"limit": limit})
	if cached, ok := s.results.Get(key); ok {
		if books, ok := cached.([]*catalog.Book); ok {
			metrics.RecordRecommendation(methodPopular, "ok", time.Since(start))
			return books, nil
		}
	}

	langs := s.detector.Detect(ctx, userID, language.DefaultMaxLanguages)
	books, err := s.books.Popular(ctx, langs, limit)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 && len(langs) > 0 {
		books, err = s.books.Popular(ctx, nil, limit)
		if err != nil {
			return nil, err
		}
	}
	if books == nil {
		books = []*catalog.Book{}
	}

	if len(books) > 0 {
		s.results.Set(key, books)
	}
	metrics.RecordRecommendation(methodPopular, booksOutcome(books), time.Since(start))
	return books, nil
}

// ContinueReading finds the next installment for series among the
// user's liked books, most popular likes first. Returns series.ErrDisabled
// when no detector is configured.
func (s *Service) ContinueReading(ctx context.Context, userID string, limit int) ([]SeriesRecommendation, error) {
	start := time.Now()
	if s.series == nil {
		return nil, series.ErrDisabled
	}

	key := cache.GenerateUserKey(methodContinue, userID, map[string]interface{}{"limit": limit})
	if cached, ok := s.results.Get(key); ok {
		if recs, ok := cached.([]SeriesRecommendation); ok {
			metrics.RecordRecommendation(methodContinue, "ok", time.Since(start))
			return recs, nil
		}
	}

	likedTitles, err := s.inter.LikedTitles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(likedTitles) == 0 {
		metrics.RecordRecommendation(methodContinue, "empty", time.Since(start))
		return []SeriesRecommendation{}, nil
	}
	likedSet := titleSet(likedTitles)

	candidates := s.lookupOrder(ctx, likedTitles)

	recs := make([]SeriesRecommendation, 0, limit)
	for _, c := range candidates {
		if len(recs) >= limit {
			break
		}
		info, err := s.series.Lookup(ctx, c.title, c.author)
		if err != nil {
			logging.Warn().Err(err).Str("title", c.title).Msg("series lookup during continue-reading")
			continue
		}
		if info == nil || info.NextBook == nil || info.NextBook.Title == "" {
			continue
		}
		next := *info.NextBook
		if likedSet[strings.ToLower(next.Title)] || duplicateTitle(recs, next.Title) {
			continue
		}
		recs = append(recs, SeriesRecommendation{
			OriginalBook:       SourceBook{Title: c.title, Author: c.author},
			NextBook:           next,
			SeriesName:         info.SeriesName,
			Attribution:        "Next book for: " + c.title,
			Confidence:         info.Confidence,
			VerificationStatus: info.VerificationStatus,
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Confidence > recs[j].Confidence
	})

	if len(recs) > 0 {
		s.results.Set(key, recs)
	}
	metrics.RecordRecommendation(methodContinue, seriesOutcome(recs), time.Since(start))
	return recs, nil
}

type lookupCandidate struct {
	title      string
	author     string
	popularity float64
}

// lookupOrder resolves liked titles against the catalog and orders them
// most popular first, so well-known series resolve before the lookup cap
// is spent. Titles without a catalog entry sort last.
func (s *Service) lookupOrder(ctx context.Context, likedTitles []string) []lookupCandidate {
	known, err := s.books.GetByTitles(ctx, likedTitles)
	if err != nil {
		logging.Warn().Err(err).Msg("resolving liked books for continue-reading")
	}
	byTitle := make(map[string]*catalog.Book, len(known))
	for _, b := range known {
		byTitle[strings.ToLower(b.Title)] = b
	}

	candidates := make([]lookupCandidate, 0, len(likedTitles))
	for _, title := range likedTitles {
		c := lookupCandidate{title: title}
		if b, ok := byTitle[strings.ToLower(title)]; ok {
			c.title = b.Title
			c.popularity = b.PopularityScore
			if len(b.Authors) > 0 {
				c.author = b.Authors[0]
			}
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].popularity > candidates[j].popularity
	})
	if len(candidates) > maxSeriesLookups {
		candidates = candidates[:maxSeriesLookups]
	}
	return candidates
}

// duplicateTitle reports whether a title is already recommended, treating
// containment as the same book ("Catching Fire" vs "The Hunger Games:
// Catching Fire").
func duplicateTitle(recs []SeriesRecommendation, title string) bool {
	normalized := strings.ToLower(strings.TrimSpace(title))
	for _, r := range recs {
		existing := strings.ToLower(strings.TrimSpace(r.NextBook.Title))
		if existing == normalized ||
			strings.Contains(existing, normalized) || strings.Contains(normalized, existing) {
			return true
		}
	}
	return false
}

func titleSet(titles []string) map[string]bool {
	set := make(map[string]bool, len(titles))
	for _, t := range titles {
		set[strings.ToLower(t)] = true
	}
	return set
}

func booksOutcome(books []*catalog.Book) string {
	if len(books) == 0 {
		return "empty"
	}
	return "ok"
}

func seriesOutcome(recs []SeriesRecommendation) string {
	if len(recs) == 0 {
		return "empty"
	}
	return "ok"
}
