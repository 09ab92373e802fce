// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package vectorindex

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/tomtom215/librarium/internal/modelstore"
)

// unitVectors generates n random L2-normalized vectors.
func unitVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		var norm float64
		for d := range v {
			x := rng.NormFloat64()
			v[d] = float32(x)
			norm += x * x
		}
		norm = math.Sqrt(norm)
		for d := range v {
			v[d] = float32(float64(v[d]) / norm)
		}
		out[i] = v
	}
	return out
}

func TestBuildSelectsKind(t *testing.T) {
	small, err := Build(unitVectors(50, 8, 1), 8, 1000, DefaultNProbe)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := small.(*Flat); !ok {
		t.Errorf("small collection built %T, want *Flat", small)
	}

	large, err := Build(unitVectors(1200, 8, 2), 8, 1000, DefaultNProbe)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := large.(*IVFFlat); !ok {
		t.Errorf("large collection built %T, want *IVFFlat", large)
	}
}

func TestFlatExactSearch(t *testing.T) {
	vectors := unitVectors(100, 16, 3)
	idx, err := Build(vectors, 16, 1000, DefaultNProbe)
	if err != nil {
		t.Fatal(err)
	}

	// Querying with a stored vector must return it first with score ~1.
	results, err := idx.Search(vectors[42], 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if results[0].Position != 42 {
		t.Errorf("top position = %d, want 42", results[0].Position)
	}
	if math.Abs(float64(results[0].Score)-1) > 1e-5 {
		t.Errorf("top score = %f, want ~1", results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted at %d", i)
		}
	}
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := NewFlat(8)
	if err := idx.Add([][]float32{make([]float32, 4)}); err == nil {
		t.Error("Add() with wrong width succeeded")
	}
	if _, err := idx.Search(make([]float32, 4), 3); err == nil {
		t.Error("Search() with wrong width succeeded")
	}
}

func TestIVFRecall(t *testing.T) {
	vectors := unitVectors(2000, 16, 4)
	ivf, err := Build(vectors, 16, 1000, DefaultNProbe)
	if err != nil {
		t.Fatal(err)
	}
	flat := NewFlat(16)
	if err := flat.Add(vectors); err != nil {
		t.Fatal(err)
	}

	// IVF should find the exact top-1 for most stored-vector queries.
	hits := 0
	const trials = 50
	for q := 0; q < trials; q++ {
		results, err := ivf.Search(vectors[q*17], 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) == 1 && results[0].Position == q*17 {
			hits++
		}
	}
	if hits < trials*8/10 {
		t.Errorf("top-1 recall %d/%d, want >= %d", hits, trials, trials*8/10)
	}
}

func TestIVFAppendAfterBuild(t *testing.T) {
	vectors := unitVectors(1500, 8, 5)
	idx, err := Build(vectors, 8, 1000, DefaultNProbe)
	if err != nil {
		t.Fatal(err)
	}

	extra := unitVectors(10, 8, 6)
	if err := idx.Add(extra); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if idx.Len() != 1510 {
		t.Fatalf("Len() = %d, want 1510", idx.Len())
	}

	results, err := idx.Search(extra[0], 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Position != 1500 {
		t.Errorf("appended vector not found at position 1500: %+v", results)
	}
}

func TestStateRoundTrip(t *testing.T) {
	for _, n := range []int{100, 1500} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			vectors := unitVectors(n, 8, 7)
			idx, err := Build(vectors, 8, 1000, DefaultNProbe)
			if err != nil {
				t.Fatal(err)
			}

			restored, err := FromState(idx.State())
			if err != nil {
				t.Fatalf("FromState() error: %v", err)
			}
			if restored.Len() != idx.Len() {
				t.Fatalf("Len() = %d, want %d", restored.Len(), idx.Len())
			}

			a, err := idx.Search(vectors[3], 5)
			if err != nil {
				t.Fatal(err)
			}
			b, err := restored.Search(vectors[3], 5)
			if err != nil {
				t.Fatal(err)
			}
			if len(a) != len(b) {
				t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
			}
			for i := range a {
				if a[i] != b[i] {
					t.Errorf("result %d differs: %+v vs %+v", i, a[i], b[i])
				}
			}
		})
	}
}

func TestManagerSetSearchFallback(t *testing.T) {
	store, err := modelstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store)

	vectors := unitVectors(20, 8, 8)
	idx := NewFlat(8)
	if err := idx.Add(vectors); err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("book-%d", i)
	}
	if err := m.Set("english", idx, ids); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	hits, err := m.Search("english", vectors[4], 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if hits[0].BookID != "book-4" {
		t.Errorf("top hit = %s, want book-4", hits[0].BookID)
	}

	// Unloaded language falls back to the default language index.
	hits, err = m.Search("klingon", vectors[4], 3)
	if err != nil {
		t.Fatalf("fallback Search() error: %v", err)
	}
	if hits[0].BookID != "book-4" {
		t.Errorf("fallback top hit = %s, want book-4", hits[0].BookID)
	}
}

func TestManagerSearchNoIndex(t *testing.T) {
	store, err := modelstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store)
	if _, err := m.Search("english", make([]float32, 8), 3); err == nil {
		t.Fatal("Search() with nothing loaded succeeded")
	}
}

func TestManagerLoadPersisted(t *testing.T) {
	dir := t.TempDir()
	store, err := modelstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	vectors := unitVectors(10, 8, 9)
	idx := NewFlat(8)
	if err := idx.Add(vectors); err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("b%d", i)
	}
	writer := NewManager(store)
	if err := writer.Set("french", idx, ids); err != nil {
		t.Fatal(err)
	}

	reopenedStore, err := modelstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	reader := NewManager(reopenedStore)
	// Missing languages are skipped; french loads.
	if err := reader.Load([]string{"french", "german"}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reader.Has("french") {
		t.Error("french index not loaded")
	}
	if reader.Has("german") {
		t.Error("german index unexpectedly loaded")
	}
	if reader.Size("french") != 10 {
		t.Errorf("Size(french) = %d, want 10", reader.Size("french"))
	}
}

func TestManagerExtend(t *testing.T) {
	store, err := modelstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store)

	vectors := unitVectors(5, 8, 10)
	idx := NewFlat(8)
	if err := idx.Add(vectors); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("english", idx, []string{"a", "b", "c", "d", "e"}); err != nil {
		t.Fatal(err)
	}

	extra := unitVectors(2, 8, 11)
	if err := m.Extend("english", []string{"f", "g"}, extra); err != nil {
		t.Fatalf("Extend() error: %v", err)
	}
	if m.Size("english") != 7 {
		t.Fatalf("Size = %d, want 7", m.Size("english"))
	}

	hits, err := m.Search("english", extra[1], 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].BookID != "g" {
		t.Errorf("top hit = %s, want g", hits[0].BookID)
	}
}
