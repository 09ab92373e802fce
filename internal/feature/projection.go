// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package feature

import (
	"hash/fnv"
	"math/rand"
)

// projectionTargets is how many output dimensions each input feature maps
// to. Keeping the projection this sparse lets transform cost scale with
// the number of non-zero input features rather than the output width.
const projectionTargets = 4

// RandomProjection is a fitted sparse random projection. Each input
// feature is deterministically assigned projectionTargets output
// dimensions with ±0.5 signs, derived from Seed and the feature index, so
// the same seed always yields the same map. Fields are exported for gob.
type RandomProjection struct {
	InputDim  int
	OutputDim int
	Seed      int64
}

// NewRandomProjection creates a projection into outputDim dimensions.
func NewRandomProjection(outputDim int, seed int64) *RandomProjection {
	return &RandomProjection{OutputDim: outputDim, Seed: seed}
}

// Fit records the input width. The projection itself is a pure function
// of Seed, so no matrix is materialized.
func (p *RandomProjection) Fit(inputDim int) {
	p.InputDim = inputDim
}

// Transform projects a sparse vector into a dense output vector.
func (p *RandomProjection) Transform(idx []int, val []float64) []float64 {
	out := make([]float64, p.OutputDim)
	for k, j := range idx {
		targets, signs := p.featureTargets(j)
		for t := 0; t < projectionTargets; t++ {
			out[targets[t]] += signs[t] * val[k]
		}
	}
	return out
}

// featureTargets derives the output dimensions and signs for input
// feature j.
func (p *RandomProjection) featureTargets(j int) ([projectionTargets]int, [projectionTargets]float64) {
	h := fnv.New64a()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(p.Seed >> (8 * i))
		buf[8+i] = byte(int64(j) >> (8 * i))
	}
	h.Write(buf[:])
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	var targets [projectionTargets]int
	var signs [projectionTargets]float64
	for t := 0; t < projectionTargets; t++ {
		targets[t] = rng.Intn(p.OutputDim)
		if rng.Intn(2) == 0 {
			signs[t] = 0.5
		} else {
			signs[t] = -0.5
		}
	}
	return targets, signs
}
