// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package content implements the content-based recommendation engine:
// books are embedded through the feature pipeline and served from
// per-language vector indices. Queries anchor either on a single recently
// liked book or on an averaged preference profile of everything the user
// liked, nudged away from what they disliked.
package content

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/feature"
	"github.com/tomtom215/librarium/internal/interaction"
	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
	"github.com/tomtom215/librarium/internal/modelstore"
	"github.com/tomtom215/librarium/internal/vectorindex"
)

// ErrNotReady is returned when no trained pipeline has been loaded yet.
var ErrNotReady = errors.New("content: model not trained")

// pipelineArtifact is the modelstore name for the fitted feature pipeline.
const pipelineArtifact = "pipeline"

// dislikeNudge scales how far the preference profile is pushed away from
// the dislike profile.
const dislikeNudge = 0.3

const (
	methodSimilar = "content_based"
	methodProfile = "based_on_likes"
)

// Recommendation is a single scored suggestion.
type Recommendation struct {
	BookID              string   `json:"id"`
	Title               string   `json:"title"`
	Authors             []string `json:"authors"`
	Genres              []string `json:"genres"`
	Summary             string   `json:"summary,omitempty"`
	Language            string   `json:"language"`
	StarRating          float64  `json:"star_rating"`
	NumRatings          int      `json:"num_ratings"`
	SimilarityScore     float64  `json:"similarity_score"`
	RecommendationScore float64  `json:"recommendation_score"`
	Algorithm           string   `json:"algorithm"`
	BasedOn             string   `json:"based_on,omitempty"`
	Confidence          float64  `json:"confidence"`
}

// ProfileResult is the response of a preference-profile query.
type ProfileResult struct {
	Recommendations    []Recommendation `json:"recommendations"`
	Count              int              `json:"count"`
	Explanation        string           `json:"explanation"`
	LikedBooksAnalyzed int              `json:"liked_books_analyzed"`
	SearchLanguages    []string         `json:"search_languages"`
}

// Engine answers content-based queries against the loaded model.
type Engine struct {
	cfg      config.ContentConfig
	books    *catalog.Store
	inter    *interaction.Store
	detector *language.Detector
	indices  *vectorindex.Manager
	store    *modelstore.Store
	results  *cache.Cache
	vectors  *cache.VectorCache

	mu       sync.RWMutex
	pipeline *feature.Pipeline
}

// NewEngine creates an engine. Call LoadPipeline (or Reload after
// training) before serving queries.
func NewEngine(
	cfg config.ContentConfig,
	books *catalog.Store,
	inter *interaction.Store,
	detector *language.Detector,
	indices *vectorindex.Manager,
	store *modelstore.Store,
	results *cache.Cache,
) *Engine {
	return &Engine{
		cfg:      cfg,
		books:    books,
		inter:    inter,
		detector: detector,
		indices:  indices,
		store:    store,
		results:  results,
		vectors:  cache.NewVectorCache(cfg.VectorCacheSize, cfg.VectorCacheEvict),
	}
}

// LoadPipeline loads the latest fitted pipeline from the artifact store.
func (e *Engine) LoadPipeline() error {
	var p feature.Pipeline
	if _, err := e.store.Load(pipelineArtifact, 0, &p); err != nil {
		return err
	}
	e.mu.Lock()
	e.pipeline = &p
	e.mu.Unlock()
	return nil
}

// Ready reports whether a pipeline is loaded.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pipeline != nil
}

// Reload picks up freshly trained artifacts: the pipeline is re-read, the
// loaded language indices are re-loaded at their new versions, and the
// per-book vector cache is dropped.
func (e *Engine) Reload() error {
	if err := e.LoadPipeline(); err != nil {
		return err
	}
	langs := e.indices.Languages()
	if len(langs) == 0 {
		langs = []string{language.DefaultLanguage}
	}
	if err := e.indices.Load(langs); err != nil {
		return err
	}
	e.vectors.Clear()
	logging.Info().Strs("languages", langs).Msg("Content model reloaded")
	return nil
}

// SimilarToRecent recommends books similar to the user's most recent
// like. With alternative set, a random earlier like from the recent
// window anchors the query instead, giving a second angle on the same
// history. An empty slice with no error means the user has nothing to
// anchor on.
func (e *Engine) SimilarToRecent(ctx context.Context, userID string, limit int, alternative bool) ([]Recommendation, error) {
	start := time.Now()
	if !e.Ready() {
		metrics.RecordRecommendation(methodSimilar, "degraded", time.Since(start))
		return nil, ErrNotReady
	}

	key := cache.GenerateUserKey(methodSimilar, userID, map[string]interface{}{
		"limit": limit, "alternative": alternative,
	})
	if cached, ok := e.results.Get(key); ok {
		if recs, ok := cached.([]Recommendation); ok {
			metrics.RecordRecommendation(methodSimilar, "ok", time.Since(start))
			return recs, nil
		}
	}

	langs := e.detector.Detect(ctx, userID, language.DefaultMaxLanguages)
	e.indices.Ensure(langs)

	anchor, err := e.anchorBook(ctx, userID, alternative)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		logging.Debug().Str("user_id", userID).Msg("No recent liked book to anchor on")
		metrics.RecordRecommendation(methodSimilar, "empty", time.Since(start))
		return []Recommendation{}, nil
	}

	vec, err := e.vectorFor(anchor)
	if err != nil {
		return nil, err
	}

	interacted, err := e.inter.InteractedTitles(ctx, userID)
	if err != nil {
		return nil, err
	}
	interactedSet := toSet(interacted)

	hits, err := e.indices.Search(anchor.Language, vec, limit+len(interacted))
	if err != nil {
		if errors.Is(err, vectorindex.ErrNoIndex) {
			metrics.RecordRecommendation(methodSimilar, "degraded", time.Since(start))
			return []Recommendation{}, nil
		}
		return nil, err
	}

	candidates, err := e.fetchHits(ctx, hits, anchor.ID)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, limit)
	for _, h := range hits {
		if h.BookID == anchor.ID {
			continue
		}
		book, ok := candidates[h.BookID]
		if !ok || interactedSet[book.Title] {
			continue
		}
		rec := newRecommendation(book, float64(h.Score), methodSimilar)
		rec.BasedOn = anchor.Title
		recs = append(recs, rec)
		if len(recs) >= limit {
			break
		}
	}

	e.results.Set(key, recs)
	metrics.RecordRecommendation(methodSimilar, outcomeFor(recs), time.Since(start))
	return recs, nil
}

// FromProfile recommends from the averaged profile of every book the
// user liked, pushed away from the dislike profile when one exists.
func (e *Engine) FromProfile(ctx context.Context, userID string, limit int) (*ProfileResult, error) {
	start := time.Now()
	if !e.Ready() {
		metrics.RecordRecommendation(methodProfile, "degraded", time.Since(start))
		return nil, ErrNotReady
	}

	key := cache.GenerateUserKey(methodProfile, userID, map[string]interface{}{"limit": limit})
	if cached, ok := e.results.Get(key); ok {
		if res, ok := cached.(*ProfileResult); ok {
			metrics.RecordRecommendation(methodProfile, "ok", time.Since(start))
			return res, nil
		}
	}

	langs := e.detector.Detect(ctx, userID, language.DefaultMaxLanguages)
	e.indices.Ensure(langs)

	likedTitles, err := e.inter.LikedTitles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(likedTitles) == 0 {
		metrics.RecordRecommendation(methodProfile, "empty", time.Since(start))
		return &ProfileResult{
			Recommendations: []Recommendation{},
			Explanation:     "No liked books found to analyze",
		}, nil
	}

	likedBooks, err := e.books.GetByTitles(ctx, likedTitles)
	if err != nil {
		return nil, err
	}
	profile, analyzed, err := e.meanVector(likedBooks)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		metrics.RecordRecommendation(methodProfile, "empty", time.Since(start))
		return &ProfileResult{
			Recommendations: []Recommendation{},
			Explanation:     "Could not process liked books for content analysis",
		}, nil
	}

	dislikedCount, err := e.applyDislikes(ctx, userID, profile)
	if err != nil {
		return nil, err
	}

	likedIDs := make(map[string]bool, len(likedBooks))
	for _, b := range likedBooks {
		likedIDs[b.ID] = true
	}

	if len(langs) == 0 {
		langs = []string{language.DefaultLanguage}
	}

	var hits []vectorindex.Hit
	for _, lang := range langs {
		if !e.indices.Has(lang) {
			continue
		}
		langHits, err := e.indices.Search(lang, profile, limit*3)
		if err != nil {
			return nil, err
		}
		for _, h := range langHits {
			if !likedIDs[h.BookID] {
				hits = append(hits, h)
			}
		}
	}
	sortHits(hits)
	if len(hits) > limit*2 {
		hits = hits[:limit*2]
	}

	candidates, err := e.fetchHits(ctx, hits, "")
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0, limit)
	seen := make(map[string]bool)
	for _, h := range hits {
		if len(recs) >= limit {
			break
		}
		book, ok := candidates[h.BookID]
		if !ok || seen[h.BookID] {
			continue
		}
		seen[h.BookID] = true
		recs = append(recs, newRecommendation(book, float64(h.Score), methodProfile))
	}

	explanation := "Based on content analysis of " + strconv.Itoa(analyzed) + " books you liked"
	if dislikedCount > 0 {
		explanation += " and " + strconv.Itoa(dislikedCount) + " books you disliked"
	}

	res := &ProfileResult{
		Recommendations:    recs,
		Count:              len(recs),
		Explanation:        explanation,
		LikedBooksAnalyzed: analyzed,
		SearchLanguages:    langs,
	}
	e.results.Set(key, res)
	metrics.RecordRecommendation(methodProfile, outcomeFor(recs), time.Since(start))
	return res, nil
}

// anchorBook picks the query anchor: the most recent like, or with
// alternative set a random other like from the recent window. A user
// with at most one like always anchors on the most recent.
func (e *Engine) anchorBook(ctx context.Context, userID string, alternative bool) (*catalog.Book, error) {
	likes, err := e.inter.ListByUser(ctx, userID, interaction.ActionLike, e.cfg.RecentLikesWindow)
	if err != nil {
		return nil, err
	}
	if len(likes) == 0 {
		return nil, nil
	}

	title := likes[0].BookTitle
	if alternative && len(likes) > 1 {
		title = likes[1+rand.Intn(len(likes)-1)].BookTitle //nolint:gosec // anchor choice is not security sensitive
	}

	book, err := e.books.GetByTitle(ctx, title)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil
	}
	return book, err
}

// vectorFor embeds a book, serving repeated lookups from the bounded
// vector cache.
func (e *Engine) vectorFor(b *catalog.Book) ([]float32, error) {
	if vec, ok := e.vectors.Get(b.ID); ok {
		return vec, nil
	}

	e.mu.RLock()
	p := e.pipeline
	e.mu.RUnlock()
	if p == nil {
		return nil, ErrNotReady
	}

	vec, err := p.Transform(b)
	if err != nil {
		return nil, err
	}
	e.vectors.Put(b.ID, vec)
	return vec, nil
}

// meanVector embeds the books and returns their normalized mean along
// with how many books contributed.
func (e *Engine) meanVector(books []*catalog.Book) ([]float32, int, error) {
	var sum []float64
	count := 0
	for _, b := range books {
		vec, err := e.vectorFor(b)
		if err != nil {
			return nil, 0, err
		}
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		for i, x := range vec {
			sum[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil, 0, nil
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return normalize(sum), count, nil
}

// applyDislikes nudges the profile away from the mean dislike vector and
// renormalizes. Returns how many disliked books were found.
func (e *Engine) applyDislikes(ctx context.Context, userID string, profile []float32) (int, error) {
	disliked, err := e.inter.ListByUser(ctx, userID, interaction.ActionDislike, 0)
	if err != nil {
		return 0, err
	}
	if len(disliked) == 0 {
		return 0, nil
	}

	titles := make([]string, len(disliked))
	for i, d := range disliked {
		titles[i] = d.BookTitle
	}
	books, err := e.books.GetByTitles(ctx, titles)
	if err != nil {
		return 0, err
	}
	dislikeProfile, count, err := e.meanVector(books)
	if err != nil {
		return 0, err
	}
	if dislikeProfile == nil {
		return 0, nil
	}

	adjusted := make([]float64, len(profile))
	for i := range profile {
		diff := float64(profile[i]) - float64(dislikeProfile[i])
		adjusted[i] = float64(profile[i]) + diff*dislikeNudge
	}
	copy(profile, normalize(adjusted))
	return count, nil
}

// fetchHits batch-loads the hit books, skipping skipID.
func (e *Engine) fetchHits(ctx context.Context, hits []vectorindex.Hit, skipID string) (map[string]*catalog.Book, error) {
	ids := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if h.BookID == skipID || seen[h.BookID] {
			continue
		}
		seen[h.BookID] = true
		ids = append(ids, h.BookID)
	}

	books, err := e.books.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*catalog.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	return byID, nil
}

func newRecommendation(b *catalog.Book, score float64, algorithm string) Recommendation {
	return Recommendation{
		BookID:              b.ID,
		Title:               b.Title,
		Authors:             b.Authors,
		Genres:              b.Genres,
		Summary:             b.Summary,
		Language:            b.Language,
		StarRating:          b.StarRating,
		NumRatings:          b.NumRatings,
		SimilarityScore:     score,
		RecommendationScore: score * 100,
		Algorithm:           algorithm,
		Confidence:          math.Min(score, 1.0),
	}
}

func outcomeFor(recs []Recommendation) string {
	if len(recs) == 0 {
		return "empty"
	}
	return "ok"
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func sortHits(hits []vectorindex.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}

func normalize(v []float64) []float32 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}
