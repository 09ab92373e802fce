// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package vectorindex

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
	"github.com/tomtom215/librarium/internal/modelstore"
)

// ErrNoIndex is returned when neither the requested language nor the
// default-language fallback has a loaded index.
var ErrNoIndex = errors.New("vectorindex: no index loaded for language")

// Hit pairs a book ID with its similarity score.
type Hit struct {
	BookID string
	Score  float32
}

// languageIndex is a searchable index plus the book IDs aligned by
// position.
type languageIndex struct {
	index Index
	ids   []string
}

// snapshot is the persisted form of a language index.
type snapshot struct {
	Index *State
	IDs   []string
}

// Manager holds the per-language indices and answers similarity queries.
// Languages are loaded selectively; queries for an unloaded language fall
// back to the default language.
type Manager struct {
	mu      sync.RWMutex
	store   *modelstore.Store
	indices map[string]*languageIndex
}

// NewManager creates a manager backed by the given artifact store. No
// indices are loaded until Load or Set is called.
func NewManager(store *modelstore.Store) *Manager {
	return &Manager{
		store:   store,
		indices: make(map[string]*languageIndex),
	}
}

// artifactName maps a language to its artifact name.
func artifactName(lang string) string {
	return "index_" + strings.ToLower(strings.TrimSpace(lang))
}

// Load loads the indices for the given languages from the artifact store,
// replacing any currently loaded set. A language whose artifact is
// missing or unreadable is skipped with a warning rather than failing the
// whole load.
func (m *Manager) Load(languages []string) error {
	loaded := make(map[string]*languageIndex)
	for _, lang := range languages {
		lang = language.Normalize(lang)
		if lang == "" {
			continue
		}
		li, err := m.loadOne(lang)
		if err != nil {
			logging.Warn().Err(err).Str("language", lang).Msg("Skipping unloadable vector index")
			continue
		}
		loaded[lang] = li
	}
	if len(loaded) == 0 {
		return fmt.Errorf("vectorindex: none of %d requested language indices could be loaded", len(languages))
	}

	m.mu.Lock()
	m.indices = loaded
	m.mu.Unlock()

	for lang, li := range loaded {
		metrics.IndexSize.WithLabelValues(lang).Set(float64(li.index.Len()))
		logging.Info().Str("language", lang).Int("vectors", li.index.Len()).Msg("Vector index loaded")
	}
	return nil
}

// Ensure loads any of the given languages that are not yet in memory,
// leaving already-loaded indices in place. Missing artifacts are skipped.
func (m *Manager) Ensure(languages []string) {
	for _, lang := range languages {
		lang = language.Normalize(lang)
		if lang == "" || m.Has(lang) {
			continue
		}
		li, err := m.loadOne(lang)
		if err != nil {
			logging.Debug().Err(err).Str("language", lang).Msg("No vector index for language")
			continue
		}
		m.mu.Lock()
		m.indices[lang] = li
		m.mu.Unlock()
		metrics.IndexSize.WithLabelValues(lang).Set(float64(li.index.Len()))
	}
}

// loadOne loads and validates a single language index.
func (m *Manager) loadOne(lang string) (*languageIndex, error) {
	var snap snapshot
	if _, err := m.store.Load(artifactName(lang), 0, &snap); err != nil {
		return nil, err
	}
	idx, err := FromState(snap.Index)
	if err != nil {
		return nil, err
	}
	if len(snap.IDs) != idx.Len() {
		return nil, fmt.Errorf("vectorindex: %s has %d ids for %d vectors", lang, len(snap.IDs), idx.Len())
	}
	return &languageIndex{index: idx, ids: snap.IDs}, nil
}

// Set installs an index for a language and persists it to the artifact
// store.
func (m *Manager) Set(lang string, idx Index, ids []string) error {
	lang = language.Normalize(lang)
	if len(ids) != idx.Len() {
		return fmt.Errorf("vectorindex: %d ids for %d vectors", len(ids), idx.Len())
	}

	if _, err := m.store.Save(artifactName(lang), snapshot{Index: idx.State(), IDs: ids}); err != nil {
		return fmt.Errorf("persist %s index: %w", lang, err)
	}

	m.mu.Lock()
	m.indices[lang] = &languageIndex{index: idx, ids: ids}
	m.mu.Unlock()

	metrics.IndexSize.WithLabelValues(lang).Set(float64(idx.Len()))
	return nil
}

// Extend appends vectors to a loaded language index and persists the
// grown index. Positions already assigned never move.
func (m *Manager) Extend(lang string, ids []string, vectors [][]float32) error {
	lang = language.Normalize(lang)
	if len(ids) != len(vectors) {
		return fmt.Errorf("vectorindex: %d ids for %d vectors", len(ids), len(vectors))
	}

	m.mu.Lock()
	li, ok := m.indices[lang]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoIndex, lang)
	}
	if err := li.index.Add(vectors); err != nil {
		m.mu.Unlock()
		return err
	}
	li.ids = append(li.ids, ids...)
	snap := snapshot{Index: li.index.State(), IDs: li.ids}
	m.mu.Unlock()

	if _, err := m.store.Save(artifactName(lang), snap); err != nil {
		return fmt.Errorf("persist %s index: %w", lang, err)
	}
	metrics.IndexSize.WithLabelValues(lang).Set(float64(len(snap.IDs)))
	return nil
}

// Search queries the index for lang, falling back to the default
// language when lang has no loaded index.
func (m *Manager) Search(lang string, query []float32, topK int) ([]Hit, error) {
	m.mu.RLock()
	li, ok := m.indices[language.Normalize(lang)]
	if !ok {
		li, ok = m.indices[language.DefaultLanguage]
	}
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, lang)
	}

	results, err := li.index.Search(query, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{BookID: li.ids[r.Position], Score: r.Score}
	}
	return hits, nil
}

// Has reports whether an index is loaded for the language.
func (m *Manager) Has(lang string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.indices[language.Normalize(lang)]
	return ok
}

// Languages returns the languages with a loaded index.
func (m *Manager) Languages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	langs := make([]string, 0, len(m.indices))
	for lang := range m.indices {
		langs = append(langs, lang)
	}
	return langs
}

// Size returns the vector count for a loaded language, or 0.
func (m *Manager) Size(lang string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if li, ok := m.indices[language.Normalize(lang)]; ok {
		return li.index.Len()
	}
	return 0
}
