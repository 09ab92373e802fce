// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/librarium/internal/collab"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/content"
	"github.com/tomtom215/librarium/internal/recommend"
	"github.com/tomtom215/librarium/internal/retrain"
	"github.com/tomtom215/librarium/internal/series"
)

// Router builds the HTTP handler for the service.
type Router struct {
	cfg     config.APIConfig
	handler *Handler
}

// NewRouter wires the handler dependencies.
func NewRouter(
	cfg config.APIConfig,
	interactions InteractionService,
	contentEng *content.Engine,
	collabEng *collab.Engine,
	recommender *recommend.Service,
	authors AuthorStore,
	counter *retrain.Counter,
	history *retrain.History,
	seriesDetector series.Detector,
) *Router {
	return &Router{
		cfg: cfg,
		handler: &Handler{
			interactions: interactions,
			contentEng:   contentEng,
			collabEng:    collabEng,
			recommender:  recommender,
			authors:      authors,
			counter:      counter,
			history:      history,
			series:       seriesDetector,
			maxLimit:     cfg.MaxLimit,
		},
	}
}

// Setup assembles the route tree with the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		r.Use(RequestMetrics())

		r.Route("/books", func(r chi.Router) {
			r.Post("/like", router.handler.Like)
			r.Post("/dislike", router.handler.Dislike)
			r.Delete("/interaction", router.handler.RemoveInteraction)
			r.Get("/popular", router.handler.PopularBooks)
		})

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/content", router.handler.ContentRecommendations)
			r.Get("/profile", router.handler.ProfileRecommendations)
			r.Get("/collaborative", router.handler.CollaborativeRecommendations)
			r.Get("/best-from-author", router.handler.BestFromAuthor)
			r.Get("/continue-reading", router.handler.ContinueReading)
		})

		r.Get("/authors/top", router.handler.TopAuthors)
		r.Get("/series", router.handler.SeriesLookup)

		r.Route("/counter", func(r chi.Router) {
			r.Get("/", router.handler.CounterStatus)
			r.Post("/reset", router.handler.CounterReset)
			r.Get("/history", router.handler.TrainingHistory)
		})

		r.Get("/health", router.handler.Health)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
