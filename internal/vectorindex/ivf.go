// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package vectorindex

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// kmeansIterations bounds the coarse quantizer training loop.
const kmeansIterations = 15

// IVFFlat is an inverted-file index: vectors are partitioned into cells
// by a k-means coarse quantizer, and a search visits only the nprobe cells
// whose centroids score highest against the query.
type IVFFlat struct {
	mu        sync.RWMutex
	dim       int
	nprobe    int
	vectors   [][]float32
	centroids [][]float32
	lists     [][]int32
}

// buildIVF trains the coarse quantizer on the vectors and assigns each to
// its closest cell.
func buildIVF(vectors [][]float32, dim, nlist, nprobe int) (*IVFFlat, error) {
	if nprobe <= 0 {
		nprobe = DefaultNProbe
	}
	if nlist > len(vectors) {
		nlist = len(vectors)
	}

	idx := &IVFFlat{
		dim:       dim,
		nprobe:    nprobe,
		centroids: kmeans(vectors, dim, nlist),
	}
	idx.lists = make([][]int32, len(idx.centroids))
	for pos, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		idx.vectors = append(idx.vectors, cp)
		cell := idx.closestCentroid(v)
		idx.lists[cell] = append(idx.lists[cell], int32(pos))
	}
	return idx, nil
}

// ivfFromState reconstructs an IVF index from a snapshot.
func ivfFromState(st *State) (*IVFFlat, error) {
	nprobe := st.NProbe
	if nprobe <= 0 {
		nprobe = DefaultNProbe
	}
	if len(st.Centroids) == 0 {
		return nil, fmt.Errorf("vectorindex: ivf snapshot has no centroids")
	}
	if len(st.Lists) != len(st.Centroids) {
		return nil, fmt.Errorf("vectorindex: ivf snapshot has %d lists for %d centroids",
			len(st.Lists), len(st.Centroids))
	}
	return &IVFFlat{
		dim:       st.Dim,
		nprobe:    nprobe,
		vectors:   st.Vectors,
		centroids: st.Centroids,
		lists:     st.Lists,
	}, nil
}

// Add appends vectors, assigning each to its closest existing cell. The
// quantizer is not retrained; a full rebuild happens at the next training
// run.
func (ix *IVFFlat) Add(vectors [][]float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), ix.dim)
		}
		cp := make([]float32, len(v))
		copy(cp, v)
		pos := int32(len(ix.vectors))
		ix.vectors = append(ix.vectors, cp)
		cell := ix.closestCentroid(v)
		ix.lists[cell] = append(ix.lists[cell], pos)
	}
	return nil
}

// Search visits the nprobe closest cells and returns the topK scores.
func (ix *IVFFlat) Search(query []float32, topK int) ([]SearchResult, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type cellScore struct {
		cell  int
		score float32
	}
	cells := make([]cellScore, len(ix.centroids))
	for i, c := range ix.centroids {
		cells[i] = cellScore{cell: i, score: dot(query, c)}
	}
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].score > cells[j].score
	})

	nprobe := ix.nprobe
	if nprobe > len(cells) {
		nprobe = len(cells)
	}

	var results []SearchResult
	for _, cs := range cells[:nprobe] {
		for _, pos := range ix.lists[cs.cell] {
			results = append(results, SearchResult{
				Position: int(pos),
				Score:    dot(query, ix.vectors[pos]),
			})
		}
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
func (ix *IVFFlat) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Dim returns the vector width.
func (ix *IVFFlat) Dim() int {
	return ix.dim
}

// State returns a serializable snapshot.
func (ix *IVFFlat) State() *State {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	st := &State{
		Kind:      kindIVF,
		Dim:       ix.dim,
		NProbe:    ix.nprobe,
		Vectors:   make([][]float32, len(ix.vectors)),
		Centroids: make([][]float32, len(ix.centroids)),
		Lists:     make([][]int32, len(ix.lists)),
	}
	copy(st.Vectors, ix.vectors)
	copy(st.Centroids, ix.centroids)
	for i, l := range ix.lists {
		cp := make([]int32, len(l))
		copy(cp, l)
		st.Lists[i] = cp
	}
	return st
}

// closestCentroid returns the cell whose centroid scores highest against v.
func (ix *IVFFlat) closestCentroid(v []float32) int {
	best := 0
	bestScore := dot(v, ix.centroids[0])
	for i := 1; i < len(ix.centroids); i++ {
		if s := dot(v, ix.centroids[i]); s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best
}

// kmeans runs Lloyd's algorithm with a fixed seed so index builds are
// reproducible. Cells that end an iteration empty keep their previous
// centroid.
func kmeans(vectors [][]float32, dim, k int) [][]float32 {
	rng := rand.New(rand.NewSource(1))

	centroids := make([][]float32, k)
	perm := rng.Perm(len(vectors))
	for i := 0; i < k; i++ {
		c := make([]float32, dim)
		copy(c, vectors[perm[i]])
		centroids[i] = c
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := 0
			bestScore := dot(v, centroids[0])
			for c := 1; c < k; c++ {
				if s := dot(v, centroids[c]); s > bestScore {
					best = c
					bestScore = s
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}
	return centroids
}
