// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/librarium/internal/authorpref"
	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/collab"
	"github.com/tomtom215/librarium/internal/content"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/recommend"
	"github.com/tomtom215/librarium/internal/retrain"
	"github.com/tomtom215/librarium/internal/series"
	"github.com/tomtom215/librarium/internal/validation"
)

const defaultLimit = 10

// InteractionService records and undoes user feedback.
type InteractionService interface {
	Like(ctx context.Context, userID, bookTitle string) error
	Dislike(ctx context.Context, userID, bookTitle string) error
	Remove(ctx context.Context, userID, bookTitle string) error
}

// AuthorStore lists per-user author preference rankings.
type AuthorStore interface {
	Top(ctx context.Context, userID string, limit int) ([]authorpref.Author, error)
}

// Handler holds the wired engines and stores behind the HTTP surface.
type Handler struct {
	interactions InteractionService
	contentEng   *content.Engine
	collabEng    *collab.Engine
	recommender  *recommend.Service
	authors      AuthorStore
	counter      *retrain.Counter
	history      *retrain.History
	series       series.Detector // nil when detection is disabled
	maxLimit     int
}

type interactionRequest struct {
	UserID    string `json:"user_id" validate:"required,notblank,max=256"`
	BookTitle string `json:"book_title" validate:"required,notblank,max=1024"`
}

func (h *Handler) decodeInteraction(w http.ResponseWriter, r *http.Request) (*interactionRequest, bool) {
	rw := NewResponseWriter(w, r)
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return nil, false
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.BadRequest(verr.Message())
		return nil, false
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.BookTitle = strings.TrimSpace(req.BookTitle)
	return &req, true
}

// Like records a like interaction.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeInteraction(w, r)
	if !ok {
		return
	}
	h.recordInteraction(w, r, req, "like")
}

// Dislike records a dislike interaction.
func (h *Handler) Dislike(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeInteraction(w, r)
	if !ok {
		return
	}
	h.recordInteraction(w, r, req, "dislike")
}

// RemoveInteraction undoes a previous like or dislike.
func (h *Handler) RemoveInteraction(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeInteraction(w, r)
	if !ok {
		return
	}
	rw := NewResponseWriter(w, r)
	err := h.interactions.Remove(r.Context(), req.UserID, req.BookTitle)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			rw.NotFound("Book not found")
			return
		}
		logging.Error().Err(err).Str("user_id", req.UserID).Msg("removing interaction")
		rw.InternalError("Could not remove interaction")
		return
	}
	rw.Success(map[string]string{
		"message":    "Interaction removed",
		"book_title": req.BookTitle,
	})
}

func (h *Handler) recordInteraction(w http.ResponseWriter, r *http.Request, req *interactionRequest, action string) {
	rw := NewResponseWriter(w, r)

	var err error
	if action == "like" {
		err = h.interactions.Like(r.Context(), req.UserID, req.BookTitle)
	} else {
		err = h.interactions.Dislike(r.Context(), req.UserID, req.BookTitle)
	}
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			rw.NotFound("Book not found")
			return
		}
		logging.Error().Err(err).Str("user_id", req.UserID).
			Str("action", action).Msg("recording interaction")
		rw.InternalError("Could not record interaction")
		return
	}
	rw.Success(map[string]string{
		"message":    "Book " + action + "d",
		"book_title": req.BookTitle,
		"action":     action,
	})
}

// ContentRecommendations serves single-anchor content-based
// recommendations. ?alternative=true picks a random recent like as the
// anchor instead of the most recent one.
func (h *Handler) ContentRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := h.userID(rw, r)
	if !ok {
		return
	}
	limit := h.limit(r)
	alternative := r.URL.Query().Get("alternative") == "true"

	recs, err := h.contentEng.SimilarToRecent(r.Context(), userID, limit, alternative)
	if err != nil {
		if errors.Is(err, content.ErrNotReady) {
			rw.ServiceUnavailable("Recommendation model not trained yet")
			return
		}
		logging.Error().Err(err).Str("user_id", userID).Msg("content recommendations")
		rw.InternalError("Could not compute recommendations")
		return
	}
	rw.Success(map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// ProfileRecommendations serves taste-profile recommendations built
// from everything the user liked and disliked.
func (h *Handler) ProfileRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := h.userID(rw, r)
	if !ok {
		return
	}

	result, err := h.contentEng.FromProfile(r.Context(), userID, h.limit(r))
	if err != nil {
		if errors.Is(err, content.ErrNotReady) {
			rw.ServiceUnavailable("Recommendation model not trained yet")
			return
		}
		logging.Error().Err(err).Str("user_id", userID).Msg("profile recommendations")
		rw.InternalError("Could not compute recommendations")
		return
	}
	rw.Success(result)
}

// CollaborativeRecommendations serves user-based collaborative
// filtering recommendations.
func (h *Handler) CollaborativeRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := h.userID(rw, r)
	if !ok {
		return
	}

	recs, err := h.collabEng.Recommend(r.Context(), userID, h.limit(r))
	if err != nil {
		if errors.Is(err, collab.ErrNotTrained) {
			rw.ServiceUnavailable("Collaborative model not trained yet")
			return
		}
		logging.Error().Err(err).Str("user_id", userID).Msg("collaborative recommendations")
		rw.InternalError("Could not compute recommendations")
		return
	}
	rw.Success(map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// BestFromAuthor recommends unread books by the user's favorite author.
func (h *Handler) BestFromAuthor(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := h.userID(rw, r)
	if !ok {
		return
	}

	result, err := h.recommender.BestFromAuthor(r.Context(), userID, h.limit(r))
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("best-from-author recommendations")
		rw.InternalError("Could not compute recommendations")
		return
	}
	rw.Success(result)
}

// PopularBooks lists the most popular books in the user's languages.
func (h *Handler) PopularBooks(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := h.userID(rw, r)
	if !ok {
		return
	}

	books, err := h.recommender.Popular(r.Context(), userID, h.limit(r))
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("popular books")
		rw.InternalError("Could not list popular books")
		return
	}
	rw.Success(map[string]interface{}{
		"books": books,
		"count": len(books),
	})
}

// ContinueReading recommends the next installment of series the user
// started.
func (h *Handler) ContinueReading(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := h.userID(rw, r)
	if !ok {
		return
	}

	recs, err := h.recommender.ContinueReading(r.Context(), userID, h.limit(r))
	if err != nil {
		if errors.Is(err, series.ErrDisabled) {
			rw.ServiceUnavailable("Series detection is disabled")
			return
		}
		logging.Error().Err(err).Str("user_id", userID).Msg("continue-reading recommendations")
		rw.InternalError("Could not compute recommendations")
		return
	}
	rw.Success(map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// TopAuthors lists the user's preferred authors, best first.
func (h *Handler) TopAuthors(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := h.userID(rw, r)
	if !ok {
		return
	}

	authors, err := h.authors.Top(r.Context(), userID, h.limit(r))
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("listing top authors")
		rw.InternalError("Could not list authors")
		return
	}
	rw.Success(map[string]interface{}{
		"authors": authors,
		"count":   len(authors),
	})
}

// CounterStatus reports the retraining counter and recent runs.
func (h *Handler) CounterStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	stats, err := h.counter.Status(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("reading counter status")
		rw.InternalError("Could not read counter")
		return
	}
	recent, err := h.history.Recent(5)
	if err != nil {
		logging.Warn().Err(err).Msg("reading training history")
	}
	rw.Success(map[string]interface{}{
		"counter":          stats,
		"recent_trainings": recent,
	})
}

// CounterReset zeroes the retraining counter.
func (h *Handler) CounterReset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	before, err := h.counter.Status(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("reading counter before reset")
		rw.InternalError("Could not read counter")
		return
	}
	if err := h.counter.Reset(r.Context()); err != nil {
		logging.Error().Err(err).Msg("resetting counter")
		rw.InternalError("Could not reset counter")
		return
	}
	rw.Success(map[string]interface{}{
		"message":        "Counter reset",
		"previous_count": before.CurrentCount,
		"new_count":      0,
	})
}

// TrainingHistory lists past training runs, newest first.
func (h *Handler) TrainingHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := h.limit(r)
	if limit > 50 {
		limit = 50
	}
	records, err := h.history.Recent(limit)
	if err != nil {
		logging.Error().Err(err).Msg("reading training history")
		rw.InternalError("Could not read training history")
		return
	}
	rw.Success(map[string]interface{}{
		"training_history": records,
		"count":            len(records),
	})
}

// SeriesLookup asks the series collaborator about one book.
func (h *Handler) SeriesLookup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.series == nil {
		rw.ServiceUnavailable("Series detection is disabled")
		return
	}
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		rw.BadRequest("title is required")
		return
	}
	author := strings.TrimSpace(r.URL.Query().Get("author"))

	info, err := h.series.Lookup(r.Context(), title, author)
	if err != nil {
		logging.Error().Err(err).Str("title", title).Msg("series lookup")
		rw.InternalError("Series lookup failed")
		return
	}
	if info == nil {
		rw.Success(map[string]interface{}{"is_series": false})
		return
	}
	rw.Success(info)
}

// Health reports readiness of the recommendation engines.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":        "ok",
		"content_ready": h.contentEng.Ready(),
	})
}

func (h *Handler) userID(rw *ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		rw.BadRequest("user_id is required")
		return "", false
	}
	return userID, true
}

func (h *Handler) limit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		return h.maxLimit
	}
	return limit
}
