// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package vectorindex

import (
	"fmt"
	"sort"
	"sync"
)

// Flat performs exhaustive inner-product search. Suitable for small
// collections where exact results are cheap.
type Flat struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
}

// NewFlat creates an empty flat index for vectors of the given width.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Add appends vectors at the next positions.
func (f *Flat) Add(vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), f.dim)
		}
		cp := make([]float32, len(v))
		copy(cp, v)
		f.vectors = append(f.vectors, cp)
	}
	return nil
}

// Search scores every vector against query and returns the topK.
func (f *Flat) Search(query []float32, topK int) ([]SearchResult, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]SearchResult, 0, len(f.vectors))
	for pos, vec := range f.vectors {
		results = append(results, SearchResult{Position: pos, Score: dot(query, vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Len returns the number of vectors in the index.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dim returns the vector width.
func (f *Flat) Dim() int {
	return f.dim
}

// State returns a serializable snapshot.
func (f *Flat) State() *State {
	f.mu.RLock()
	defer f.mu.RUnlock()

	vectors := make([][]float32, len(f.vectors))
	copy(vectors, f.vectors)
	return &State{Kind: kindFlat, Dim: f.dim, Vectors: vectors}
}
