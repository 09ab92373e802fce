// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package collab

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/interaction"
	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
	"github.com/tomtom215/librarium/internal/modelstore"
)

// ErrNotTrained is returned when no collaborative model exists yet.
var ErrNotTrained = errors.New("collab: model not trained")

// Artifact names in the modelstore. The similarity table is persisted
// alongside the factorization so an out-of-process trainer can hand it
// over without touching the server's state database.
const (
	alsArtifact  = "als"
	simsArtifact = "similarities"
)

const methodCollab = "collaborative"

// Recommendation is a single suggestion from the user-based cascade.
type Recommendation struct {
	BookID          string   `json:"id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Genres          []string `json:"genres"`
	Language        string   `json:"language"`
	StarRating      float64  `json:"star_rating"`
	NumRatings      int      `json:"num_ratings"`
	PopularityScore float64  `json:"popularity_score"`
	UserSimilarity  float64  `json:"user_similarity"`
	Algorithm       string   `json:"algorithm"`
}

// TrainStats summarizes a collaborative training run.
type TrainStats struct {
	Interactions int
	Users        int
	Books        int
	Duration     time.Duration
}

// Engine serves user-based collaborative recommendations. Candidates come
// from the liked books of the user's nearest neighbors, walked in
// similarity order until the request is filled.
type Engine struct {
	cfg      config.CollabConfig
	inter    *interaction.Store
	books    *catalog.Store
	sims     *SimilarityStore
	store    *modelstore.Store
	results  *cache.Cache
	detector *language.Detector

	mu    sync.RWMutex
	model *ALS
}

// NewEngine creates an engine. The model is loaded lazily from the
// artifact store on first use, or installed by Train.
func NewEngine(
	cfg config.CollabConfig,
	inter *interaction.Store,
	books *catalog.Store,
	sims *SimilarityStore,
	store *modelstore.Store,
	results *cache.Cache,
	detector *language.Detector,
) *Engine {
	return &Engine{
		cfg:      cfg,
		inter:    inter,
		books:    books,
		sims:     sims,
		store:    store,
		results:  results,
		detector: detector,
	}
}

// alsConfig maps the config section onto the model hyperparameters.
func alsConfig(cfg config.CollabConfig) ALSConfig {
	return ALSConfig{
		Factors:        cfg.Factors,
		Iterations:     cfg.Iterations,
		Regularization: cfg.Regularization,
		Alpha:          cfg.Alpha,
		NumWorkers:     cfg.NumWorkers,
	}
}

// TrainResult carries the outcome of one training run.
type TrainResult struct {
	Model *ALS
	Table map[string]*SimilarUsers
	Stats *TrainStats
}

// TrainModel fits the factorization on every stored interaction and
// persists the model and similarity-table artifacts. It touches only
// the interaction store and the artifact directory, so the standalone
// trainer binary can call it without the server's state database.
func TrainModel(ctx context.Context, cfg config.CollabConfig, inter *interaction.Store, store *modelstore.Store) (*TrainResult, error) {
	start := time.Now()

	all, err := inter.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotTrained
	}

	ratings := make([]Rating, 0, len(all))
	for _, in := range all {
		weight := 1.0
		switch in.Action {
		case interaction.ActionLike:
			weight = cfg.LikeWeight
		case interaction.ActionDislike:
			weight = cfg.DislikeWeight
		}
		ratings = append(ratings, Rating{UserID: in.UserID, BookTitle: in.BookTitle, Weight: weight})
	}

	model := NewALS(alsConfig(cfg))
	if err := model.Train(ctx, ratings); err != nil {
		return nil, err
	}

	if _, err := store.Save(alsArtifact, model.State()); err != nil {
		return nil, err
	}
	table := ComputeSimilarities(model, cfg.TopKSimilar)
	if _, err := store.Save(simsArtifact, table); err != nil {
		return nil, err
	}

	users, books := model.Counts()
	return &TrainResult{
		Model: model,
		Table: table,
		Stats: &TrainStats{
			Interactions: len(ratings),
			Users:        users,
			Books:        books,
			Duration:     time.Since(start),
		},
	}, nil
}

// Train refits the factorization on every stored interaction, persists
// the model, rebuilds the similarity table, and swaps the new model in.
func (e *Engine) Train(ctx context.Context) (*TrainStats, error) {
	result, err := TrainModel(ctx, e.cfg, e.inter, e.store)
	if err != nil {
		return nil, err
	}
	if err := e.sims.ReplaceAll(result.Table); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.model = result.Model
	e.mu.Unlock()

	stats := result.Stats
	logging.Info().
		Int("interactions", stats.Interactions).
		Int("users", stats.Users).
		Int("books", stats.Books).
		Dur("duration", stats.Duration).
		Msg("Collaborative model trained")
	return stats, nil
}

// Reload replaces the in-memory model with the latest persisted one
// and installs the persisted similarity table, if any, into the state
// database.
func (e *Engine) Reload() error {
	var st ALSState
	if _, err := e.store.Load(alsArtifact, 0, &st); err != nil {
		return err
	}

	var table map[string]*SimilarUsers
	if _, ok := e.store.LatestVersion(simsArtifact); ok {
		if _, err := e.store.Load(simsArtifact, 0, &table); err != nil {
			logging.Warn().Err(err).Msg("Similarity artifact unreadable, keeping current table")
		} else if err := e.sims.ReplaceAll(table); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.model = FromState(alsConfig(e.cfg), &st)
	e.mu.Unlock()
	return nil
}

// currentModel returns the loaded model, lazily reading the persisted
// artifact the first time.
func (e *Engine) currentModel() (*ALS, error) {
	e.mu.RLock()
	m := e.model
	e.mu.RUnlock()
	if m != nil {
		return m, nil
	}
	if _, ok := e.store.LatestVersion(alsArtifact); !ok {
		return nil, ErrNotTrained
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model, nil
}

// Recommend walks the user's neighbors in similarity order and collects
// their liked books the user has not interacted with, most popular
// first, skipping books in languages the user cannot read. A user absent
// from the model with recorded interactions triggers a synchronous
// retrain so first recommendations arrive on the request that needs
// them.
func (e *Engine) Recommend(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	start := time.Now()

	key := cache.GenerateUserKey(methodCollab, userID, map[string]interface{}{"limit": limit})
	if cached, ok := e.results.Get(key); ok {
		if recs, ok := cached.([]Recommendation); ok {
			metrics.RecordRecommendation(methodCollab, "ok", time.Since(start))
			return recs, nil
		}
	}

	model, err := e.currentModel()
	if err != nil {
		metrics.RecordRecommendation(methodCollab, "degraded", time.Since(start))
		return nil, err
	}

	if !model.HasUser(userID) {
		retrained, err := e.retrainForNewUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !retrained {
			metrics.RecordRecommendation(methodCollab, "empty", time.Since(start))
			return []Recommendation{}, nil
		}
		model, err = e.currentModel()
		if err != nil {
			return nil, err
		}
		if !model.HasUser(userID) {
			metrics.RecordRecommendation(methodCollab, "empty", time.Since(start))
			return []Recommendation{}, nil
		}
	}

	neighbors, err := e.sims.Get(userID)
	if err != nil {
		return nil, err
	}
	if neighbors == nil {
		metrics.RecordRecommendation(methodCollab, "empty", time.Since(start))
		return []Recommendation{}, nil
	}

	interacted, err := e.inter.InteractedTitles(ctx, userID)
	if err != nil {
		return nil, err
	}
	interactedSet := make(map[string]bool, len(interacted))
	for _, t := range interacted {
		interactedSet[t] = true
	}

	userLangs := e.detector.Detect(ctx, userID, language.DefaultMaxLanguages)

	recs := make([]Recommendation, 0, limit)
	seen := make(map[string]bool)
	for i, neighbor := range neighbors.Users {
		if len(recs) >= limit {
			break
		}
		score := neighbors.Scores[i]
		if score < e.cfg.SimilarityFloor {
			continue
		}
		batch, err := e.candidatesFrom(ctx, neighbor, score, interactedSet, seen, userLangs, limit-len(recs))
		if err != nil {
			return nil, err
		}
		recs = append(recs, batch...)
	}

	e.results.Set(key, recs)
	outcome := "ok"
	if len(recs) == 0 {
		outcome = "empty"
	}
	metrics.RecordRecommendation(methodCollab, outcome, time.Since(start))
	return recs, nil
}

// candidatesFrom collects up to want books from one neighbor's likes.
func (e *Engine) candidatesFrom(
	ctx context.Context,
	neighborID string,
	similarity float64,
	interacted, seen map[string]bool,
	userLangs []string,
	want int,
) ([]Recommendation, error) {
	likes, err := e.inter.ListByUser(ctx, neighborID, interaction.ActionLike, e.cfg.LikesPerUserCap)
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(likes))
	for _, l := range likes {
		if !interacted[l.BookTitle] {
			titles = append(titles, l.BookTitle)
		}
	}
	books, err := e.books.GetByTitles(ctx, titles)
	if err != nil {
		return nil, err
	}
	sort.Slice(books, func(i, j int) bool {
		return books[i].PopularityScore > books[j].PopularityScore
	})

	out := make([]Recommendation, 0, want)
	for _, b := range books {
		if len(out) >= want {
			break
		}
		if seen[b.ID] {
			continue
		}
		if !language.MatchAny(b.Language, userLangs) {
			continue
		}
		seen[b.ID] = true
		out = append(out, Recommendation{
			BookID:          b.ID,
			Title:           b.Title,
			Authors:         b.Authors,
			Genres:          b.Genres,
			Language:        b.Language,
			StarRating:      b.StarRating,
			NumRatings:      b.NumRatings,
			PopularityScore: b.PopularityScore,
			UserSimilarity:  similarity,
			Algorithm:       "collaborative_ubcf",
		})
	}
	return out, nil
}

// retrainForNewUser refits the model when a user with interactions is
// missing from it. A user with no interactions cannot be placed in the
// factorization, so no retrain happens.
func (e *Engine) retrainForNewUser(ctx context.Context, userID string) (bool, error) {
	count, err := e.inter.CountByUser(ctx, userID, "")
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	logging.Info().Str("user_id", userID).Msg("Retraining collaborative model for new user")
	if _, err := e.Train(ctx); err != nil {
		return false, err
	}
	return true, nil
}
