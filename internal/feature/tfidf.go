// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package feature turns catalog books into fixed-width feature vectors: a
// tf-idf text block, weighted genre and author blocks, a scaled year
// column, and a fitted random projection down to the target dimension.
package feature

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultVocabularySize caps the tf-idf vocabulary.
const DefaultVocabularySize = 10000

// TFIDFVectorizer is a fitted tf-idf text vectorizer. Terms are ranked by
// corpus frequency at fit time and the vocabulary capped at MaxFeatures.
// Fields are exported for gob persistence.
type TFIDFVectorizer struct {
	MaxFeatures int
	Vocabulary  map[string]int
	IDF         []float64
}

// NewTFIDFVectorizer creates an unfitted vectorizer.
func NewTFIDFVectorizer(maxFeatures int) *TFIDFVectorizer {
	if maxFeatures <= 0 {
		maxFeatures = DefaultVocabularySize
	}
	return &TFIDFVectorizer{MaxFeatures: maxFeatures}
}

// Fit builds the vocabulary and idf weights from the documents.
func (v *TFIDFVectorizer) Fit(docs []string) {
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			tf[term]++
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	// Rank by total corpus frequency and keep the top MaxFeatures; the
	// alphabetical tiebreak keeps fitting deterministic.
	terms := make([]string, 0, len(tf))
	for term := range tf {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if tf[terms[i]] != tf[terms[j]] {
			return tf[terms[i]] > tf[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	nDocs := float64(len(docs))
	v.Vocabulary = make(map[string]int, len(terms))
	v.IDF = make([]float64, len(terms))
	for i, term := range terms {
		v.Vocabulary[term] = i
		v.IDF[i] = math.Log((1+nDocs)/(1+float64(df[term]))) + 1
	}
}

// Dim returns the width of the text block.
func (v *TFIDFVectorizer) Dim() int {
	return len(v.IDF)
}

// TransformInto appends the L2-normalized tf-idf entries for doc, with
// feature indices offset by base.
func (v *TFIDFVectorizer) TransformInto(doc string, base int, idx *[]int, val *[]float64) {
	counts := make(map[int]int)
	for _, term := range tokenize(doc) {
		if i, ok := v.Vocabulary[term]; ok {
			counts[i]++
		}
	}
	if len(counts) == 0 {
		return
	}

	indices := make([]int, 0, len(counts))
	for i := range counts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var norm float64
	weights := make([]float64, len(indices))
	for k, i := range indices {
		w := float64(counts[i]) * v.IDF[i]
		weights[k] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}

	for k, i := range indices {
		*idx = append(*idx, base+i)
		*val = append(*val, weights[k]/norm)
	}
}

// tokenize lowercases and splits on non-alphanumerics, dropping stop words
// and single-character tokens.
func tokenize(doc string) []string {
	fields := strings.FieldsFunc(strings.ToLower(doc), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// stopWords is the English stop-word list applied before vocabulary
// construction.
var stopWords = func() map[string]bool {
	list := []string{
		"a", "about", "above", "after", "again", "against", "all", "also", "am",
		"an", "and", "any", "are", "as", "at", "be", "because", "been", "before",
		"being", "below", "between", "both", "but", "by", "can", "cannot",
		"could", "did", "do", "does", "doing", "down", "during", "each", "few",
		"for", "from", "further", "had", "has", "have", "having", "he", "her",
		"here", "hers", "herself", "him", "himself", "his", "how", "i", "if",
		"in", "into", "is", "it", "its", "itself", "just", "me", "more", "most",
		"my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
		"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own",
		"same", "she", "should", "so", "some", "such", "than", "that", "the",
		"their", "theirs", "them", "themselves", "then", "there", "these",
		"they", "this", "those", "through", "to", "too", "under", "until", "up",
		"very", "was", "we", "were", "what", "when", "where", "which", "while",
		"who", "whom", "why", "will", "with", "would", "you", "your", "yours",
		"yourself", "yourselves",
	}
	m := make(map[string]bool, len(list))
	for _, w := range list {
		m[w] = true
	}
	return m
}()
