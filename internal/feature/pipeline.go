// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package feature

import (
	"errors"
	"math"
	"strings"

	"github.com/tomtom215/librarium/internal/catalog"
)

// ErrNotFitted is returned when Transform is called before Fit.
var ErrNotFitted = errors.New("feature: pipeline not fitted")

// Pipeline is the fitted book feature pipeline: tf-idf over the summary,
// weighted genre and author one-hots, a scaled year column, and a random
// projection down to Dimensions. Fields are exported for gob.
type Pipeline struct {
	Text       *TFIDFVectorizer
	Genres     *MultiLabelEncoder
	Author     *CategoryEncoder
	Year       *MinMaxScaler
	Projection *RandomProjection
	Fitted     bool
}

const (
	genreWeight  = 2.0
	authorWeight = 2.0

	// projectionSeed keeps incremental index extension consistent with
	// the vectors produced at fit time.
	projectionSeed = 42
)

// NewPipeline creates an unfitted pipeline projecting into dims
// dimensions.
func NewPipeline(vocabSize, dims int) *Pipeline {
	return &Pipeline{
		Text:       NewTFIDFVectorizer(vocabSize),
		Genres:     NewMultiLabelEncoder(genreWeight),
		Author:     NewCategoryEncoder(authorWeight),
		Year:       &MinMaxScaler{},
		Projection: NewRandomProjection(dims, projectionSeed),
	}
}

// Fit fits every stage on the sample. Books with missing fields fit as
// empty values.
func (p *Pipeline) Fit(books []*catalog.Book) {
	docs := make([]string, len(books))
	genres := make([][]string, len(books))
	authors := make([]string, len(books))
	years := make([]float64, 0, len(books))
	for i, b := range books {
		docs[i] = bookText(b)
		genres[i] = b.Genres
		authors[i] = joinAuthors(b.Authors)
		if b.Year > 0 {
			years = append(years, float64(b.Year))
		}
	}

	p.Text.Fit(docs)
	p.Genres.Fit(genres)
	p.Author.Fit(authors)
	p.Year.Fit(years)
	p.Projection.Fit(p.Text.Dim() + p.Genres.Dim() + p.Author.Dim() + 1)
	p.Fitted = true
}

// Dimensions returns the width of the output vectors.
func (p *Pipeline) Dimensions() int {
	return p.Projection.OutputDim
}

// Transform produces the L2-normalized feature vector for one book.
func (p *Pipeline) Transform(b *catalog.Book) ([]float32, error) {
	if !p.Fitted {
		return nil, ErrNotFitted
	}

	var idx []int
	var val []float64

	base := 0
	p.Text.TransformInto(bookText(b), base, &idx, &val)
	base += p.Text.Dim()
	p.Genres.TransformInto(b.Genres, base, &idx, &val)
	base += p.Genres.Dim()
	p.Author.TransformInto(joinAuthors(b.Authors), base, &idx, &val)
	base += p.Author.Dim()
	if b.Year > 0 {
		if y := p.Year.Transform(float64(b.Year)); y != 0 {
			idx = append(idx, base)
			val = append(val, y)
		}
	}

	dense := p.Projection.Transform(idx, val)
	return normalize32(dense), nil
}

// TransformBatch transforms a chunk of books in input order.
func (p *Pipeline) TransformBatch(books []*catalog.Book) ([][]float32, error) {
	out := make([][]float32, len(books))
	for i, b := range books {
		vec, err := p.Transform(b)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// bookText is the document fed to the tf-idf stage.
func bookText(b *catalog.Book) string {
	return b.Summary
}

// joinAuthors builds the categorical author value.
func joinAuthors(authors []string) string {
	return strings.Join(authors, ", ")
}

// normalize32 L2-normalizes and converts to float32. An all-zero vector
// is returned unchanged.
func normalize32(v []float64) []float32 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}
