// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package feature

import (
	"math"
	"testing"

	"github.com/tomtom215/librarium/internal/catalog"
)

func TestTFIDFVocabularyCap(t *testing.T) {
	v := NewTFIDFVectorizer(2)
	v.Fit([]string{
		"dragons dragons dragons castle",
		"dragons castle knight",
		"knight sword",
	})
	if v.Dim() != 2 {
		t.Fatalf("Dim() = %d, want 2", v.Dim())
	}
	// dragons (4) and knight/castle tie at 2; castle wins alphabetically.
	for _, term := range []string{"dragons", "castle"} {
		if _, ok := v.Vocabulary[term]; !ok {
			t.Errorf("vocabulary missing %q", term)
		}
	}
}

func TestTFIDFStopWordsAndShortTokens(t *testing.T) {
	v := NewTFIDFVectorizer(100)
	v.Fit([]string{"the a of x dragons"})
	if v.Dim() != 1 {
		t.Fatalf("Dim() = %d, want 1 (only dragons)", v.Dim())
	}
}

func TestTFIDFTransformNormalized(t *testing.T) {
	v := NewTFIDFVectorizer(100)
	v.Fit([]string{"dragons castle", "dragons knight", "castle moat"})

	var idx []int
	var val []float64
	v.TransformInto("dragons castle dragons", 0, &idx, &val)
	if len(idx) != 2 {
		t.Fatalf("got %d entries, want 2", len(idx))
	}
	var norm float64
	for _, x := range val {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("squared norm = %f, want 1", norm)
	}
}

func TestTFIDFTransformUnknownTerms(t *testing.T) {
	v := NewTFIDFVectorizer(100)
	v.Fit([]string{"dragons"})
	var idx []int
	var val []float64
	v.TransformInto("spaceship laser", 5, &idx, &val)
	if len(idx) != 0 {
		t.Errorf("got %d entries for unknown terms, want 0", len(idx))
	}
}

func TestMultiLabelEncoder(t *testing.T) {
	e := NewMultiLabelEncoder(2.0)
	e.Fit([][]string{{"Fantasy", "adventure"}, {"mystery"}})
	if e.Dim() != 3 {
		t.Fatalf("Dim() = %d, want 3", e.Dim())
	}

	var idx []int
	var val []float64
	e.TransformInto([]string{"fantasy", "unknown-genre"}, 10, &idx, &val)
	if len(idx) != 1 {
		t.Fatalf("got %d entries, want 1", len(idx))
	}
	if val[0] != 2.0 {
		t.Errorf("weight = %f, want 2.0", val[0])
	}
	if idx[0] < 10 || idx[0] >= 13 {
		t.Errorf("index %d outside offset block", idx[0])
	}
}

func TestCategoryEncoderUnknownIgnored(t *testing.T) {
	e := NewCategoryEncoder(2.0)
	e.Fit([]string{"ursula k. le guin", "frank herbert"})

	var idx []int
	var val []float64
	e.TransformInto("someone new", 0, &idx, &val)
	if len(idx) != 0 {
		t.Fatalf("unknown author produced %d entries, want 0", len(idx))
	}

	e.TransformInto("Frank Herbert", 0, &idx, &val)
	if len(idx) != 1 || val[0] != 2.0 {
		t.Errorf("known author: idx=%v val=%v", idx, val)
	}
}

func TestMinMaxScaler(t *testing.T) {
	tests := []struct {
		name string
		fit  []float64
		in   float64
		want float64
	}{
		{"midpoint", []float64{1900, 2000}, 1950, 0.5},
		{"min", []float64{1900, 2000}, 1900, 0},
		{"max", []float64{1900, 2000}, 2000, 1},
		{"clamped below", []float64{1900, 2000}, 1800, 0},
		{"clamped above", []float64{1900, 2000}, 2100, 1},
		{"degenerate range", []float64{1950, 1950}, 1950, 0},
		{"unfitted", nil, 1950, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s MinMaxScaler
			s.Fit(tt.fit)
			if got := s.Transform(tt.in); got != tt.want {
				t.Errorf("Transform(%f) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}

func TestRandomProjectionDeterministic(t *testing.T) {
	a := NewRandomProjection(32, 42)
	a.Fit(1000)
	b := NewRandomProjection(32, 42)
	b.Fit(1000)

	idx := []int{3, 17, 999}
	val := []float64{0.5, 0.25, 1.0}
	va := a.Transform(idx, val)
	vb := b.Transform(idx, val)
	for i := range va {
		if va[i] != vb[i] {
			t.Fatalf("dim %d differs: %f vs %f", i, va[i], vb[i])
		}
	}
}

func TestRandomProjectionSeedChangesMap(t *testing.T) {
	a := NewRandomProjection(32, 1)
	b := NewRandomProjection(32, 2)
	idx := []int{0, 1, 2}
	val := []float64{1, 1, 1}
	va := a.Transform(idx, val)
	vb := b.Transform(idx, val)
	same := true
	for i := range va {
		if va[i] != vb[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical projections")
	}
}

func testBooks() []*catalog.Book {
	return []*catalog.Book{
		{
			Title:   "Dune",
			Authors: []string{"Frank Herbert"},
			Genres:  []string{"science fiction"},
			Summary: "Desert planet politics and giant sandworms.",
			Year:    1965,
		},
		{
			Title:   "A Wizard of Earthsea",
			Authors: []string{"Ursula K. Le Guin"},
			Genres:  []string{"fantasy"},
			Summary: "A young wizard learns the true names of things.",
			Year:    1968,
		},
		{
			Title:   "Emma",
			Authors: []string{"Jane Austen"},
			Genres:  []string{"romance", "classic"},
			Summary: "Matchmaking in a small English village.",
			Year:    1815,
		},
	}
}

func TestPipelineFitTransform(t *testing.T) {
	p := NewPipeline(100, 32)
	books := testBooks()
	p.Fit(books)

	vec, err := p.Transform(books[0])
	if err != nil {
		t.Fatalf("Transform() error: %v", err)
	}
	if len(vec) != 32 {
		t.Fatalf("len(vec) = %d, want 32", len(vec))
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("squared norm = %f, want 1", norm)
	}
}

func TestPipelineNotFitted(t *testing.T) {
	p := NewPipeline(100, 32)
	if _, err := p.Transform(testBooks()[0]); err != ErrNotFitted {
		t.Fatalf("err = %v, want ErrNotFitted", err)
	}
}

func TestPipelineMissingFields(t *testing.T) {
	p := NewPipeline(100, 32)
	p.Fit(testBooks())

	vec, err := p.Transform(&catalog.Book{Title: "Untitled Draft"})
	if err != nil {
		t.Fatalf("Transform() error: %v", err)
	}
	if len(vec) != 32 {
		t.Fatalf("len(vec) = %d, want 32", len(vec))
	}
}

func TestPipelineBatchOrder(t *testing.T) {
	p := NewPipeline(100, 32)
	books := testBooks()
	p.Fit(books)

	batch, err := p.TransformBatch(books)
	if err != nil {
		t.Fatalf("TransformBatch() error: %v", err)
	}
	if len(batch) != len(books) {
		t.Fatalf("len(batch) = %d, want %d", len(batch), len(books))
	}
	for i, b := range books {
		single, err := p.Transform(b)
		if err != nil {
			t.Fatal(err)
		}
		for d := range single {
			if batch[i][d] != single[d] {
				t.Fatalf("book %d dim %d: batch %f vs single %f", i, d, batch[i][d], single[d])
			}
		}
	}
}
