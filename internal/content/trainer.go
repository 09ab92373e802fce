// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/feature"
	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/modelstore"
	"github.com/tomtom215/librarium/internal/vectorindex"
)

// ErrNoEligibleBooks is returned when the catalog has nothing to train
// on: a book needs both a summary and a language to be indexed.
var ErrNoEligibleBooks = errors.New("content: no eligible books to train on")

// TrainStats summarizes a training run.
type TrainStats struct {
	Books     int
	Languages int
	Duration  time.Duration
}

// Trainer fits the feature pipeline and rebuilds the per-language vector
// indices. Training happens in two phases: the pipeline is fitted on a
// random sample, then every eligible book is streamed through it in
// chunks so the full catalog never sits in memory at once.
type Trainer struct {
	cfg     config.ContentConfig
	books   *catalog.Store
	store   *modelstore.Store
	indices *vectorindex.Manager
}

// NewTrainer creates a trainer writing artifacts through the given store
// and installing finished indices into the manager.
func NewTrainer(cfg config.ContentConfig, books *catalog.Store, store *modelstore.Store, indices *vectorindex.Manager) *Trainer {
	return &Trainer{cfg: cfg, books: books, store: store, indices: indices}
}

// ShouldRetrain reports whether the artifact store is missing a usable
// model: no fitted pipeline, or no language index at all.
func (t *Trainer) ShouldRetrain() bool {
	if _, ok := t.store.LatestVersion(pipelineArtifact); !ok {
		return true
	}
	for _, name := range t.store.Names() {
		if strings.HasPrefix(name, "index_") {
			return false
		}
	}
	return true
}

// Train runs a full training pass and returns its stats.
func (t *Trainer) Train(ctx context.Context) (*TrainStats, error) {
	start := time.Now()

	eligible, err := t.books.CountEligible(ctx)
	if err != nil {
		return nil, err
	}
	if eligible == 0 {
		return nil, ErrNoEligibleBooks
	}
	logging.Info().Int("eligible_books", eligible).Msg("Starting content model training")

	pipeline, err := t.fitPipeline(ctx)
	if err != nil {
		return nil, err
	}

	byLang, total, err := t.embedAll(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	// Build every index in memory before persisting anything. A failure
	// anywhere up to here leaves the previous pipeline and indices
	// untouched, so a crashed run never serves a half-updated model.
	built := make(map[string]vectorindex.Index, len(byLang))
	for lang, staged := range byLang {
		idx, err := vectorindex.Build(staged.vectors, pipeline.Dimensions(), t.cfg.FlatThreshold, t.cfg.NProbe)
		if err != nil {
			return nil, fmt.Errorf("build %s index: %w", lang, err)
		}
		built[lang] = idx
		logging.Info().Str("language", lang).Int("vectors", idx.Len()).Msg("Language index built")
	}

	if _, err := t.store.Save(pipelineArtifact, pipeline); err != nil {
		return nil, fmt.Errorf("persist pipeline: %w", err)
	}
	for lang, idx := range built {
		if err := t.indices.Set(lang, idx, byLang[lang].ids); err != nil {
			return nil, err
		}
	}

	stats := &TrainStats{
		Books:     total,
		Languages: len(byLang),
		Duration:  time.Since(start),
	}
	logging.Info().
		Int("books", stats.Books).
		Int("languages", stats.Languages).
		Dur("duration", stats.Duration).
		Msg("Content model training complete")
	return stats, nil
}

// fitPipeline fits all feature stages on a random sample. The fitted
// pipeline stays in memory; Train persists it only after every index
// has been built.
func (t *Trainer) fitPipeline(ctx context.Context) (*feature.Pipeline, error) {
	sample, err := t.books.Sample(ctx, t.cfg.SampleSize)
	if err != nil {
		return nil, err
	}
	if len(sample) == 0 {
		return nil, ErrNoEligibleBooks
	}

	pipeline := feature.NewPipeline(feature.DefaultVocabularySize, t.cfg.Dimensions)
	pipeline.Fit(sample)
	logging.Info().Int("sample_size", len(sample)).Msg("Feature pipeline fitted")
	return pipeline, nil
}

// staging accumulates vectors per language during the streaming phase.
type staging struct {
	ids     []string
	vectors [][]float32
}

// embedAll streams every eligible book through the pipeline in chunks,
// grouping the vectors by language.
func (t *Trainer) embedAll(ctx context.Context, pipeline *feature.Pipeline) (map[string]*staging, int, error) {
	byLang := make(map[string]*staging)
	total := 0

	err := t.books.StreamEligible(ctx, t.cfg.ChunkSize, func(chunk []*catalog.Book) error {
		vectors, err := pipeline.TransformBatch(chunk)
		if err != nil {
			return err
		}
		for i, b := range chunk {
			lang := language.Normalize(b.Language)
			if lang == "" {
				lang = language.DefaultLanguage
			}
			st := byLang[lang]
			if st == nil {
				st = &staging{}
				byLang[lang] = st
			}
			st.ids = append(st.ids, b.ID)
			st.vectors = append(st.vectors, vectors[i])
		}
		total += len(chunk)
		logging.Debug().Int("processed", total).Msg("Embedded book chunk")
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return byLang, total, nil
}
