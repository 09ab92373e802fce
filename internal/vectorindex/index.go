// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package vectorindex provides nearest neighbor search over book feature
// vectors by inner product. Vectors are L2-normalized upstream, so inner
// product and cosine similarity coincide.
//
// Small collections use exact search; larger ones use an inverted-file
// index (coarse k-means quantizer, probe the closest cells). Indices are
// append-only: positions assigned to vectors never change, so callers can
// keep ID slices aligned by position.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
)

// SearchResult pairs a vector position with its inner-product score.
type SearchResult struct {
	Position int
	Score    float32
}

// Index is a searchable collection of fixed-width vectors. Implementations
// are safe for concurrent use.
type Index interface {
	// Add appends vectors, assigning them the next positions.
	Add(vectors [][]float32) error

	// Search returns the topK highest-scoring positions for query, sorted
	// by descending score. Fewer results are returned if the index holds
	// fewer vectors.
	Search(query []float32, topK int) ([]SearchResult, error)

	// Len returns the number of vectors in the index.
	Len() int

	// Dim returns the vector width.
	Dim() int

	// State returns a serializable snapshot for persistence.
	State() *State
}

// ErrDimensionMismatch is returned when a vector's width does not match
// the index.
var ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")

const (
	// minLists is the floor for the number of IVF cells.
	minLists = 10

	// DefaultNProbe is how many cells an IVF search visits by default.
	DefaultNProbe = 8
)

// Build constructs an index over the given vectors: exact search below
// flatThreshold vectors, IVF above it with nlist = max(floor(sqrt(n)),
// minLists).
func Build(vectors [][]float32, dim, flatThreshold, nprobe int) (Index, error) {
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
		}
	}

	if len(vectors) < flatThreshold {
		idx := NewFlat(dim)
		if err := idx.Add(vectors); err != nil {
			return nil, err
		}
		return idx, nil
	}

	nlist := int(math.Sqrt(float64(len(vectors))))
	if nlist < minLists {
		nlist = minLists
	}
	return buildIVF(vectors, dim, nlist, nprobe)
}

// State is the serializable form of an index. Kind selects the
// implementation; the IVF fields are empty for flat indices.
type State struct {
	Kind      string
	Dim       int
	Vectors   [][]float32
	Centroids [][]float32
	Lists     [][]int32
	NProbe    int
}

const (
	kindFlat = "flat"
	kindIVF  = "ivfflat"
)

// FromState reconstructs an index from a snapshot.
func FromState(st *State) (Index, error) {
	switch st.Kind {
	case kindFlat:
		idx := NewFlat(st.Dim)
		if err := idx.Add(st.Vectors); err != nil {
			return nil, err
		}
		return idx, nil
	case kindIVF:
		return ivfFromState(st)
	default:
		return nil, fmt.Errorf("vectorindex: unknown index kind %q", st.Kind)
	}
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
