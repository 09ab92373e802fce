// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package feature

import (
	"sort"
	"strings"
)

// MultiLabelEncoder one-hot encodes sets of labels (genres). Labels unseen
// at fit time are ignored at transform time. Fields are exported for gob.
type MultiLabelEncoder struct {
	Classes map[string]int
	Weight  float64
}

// NewMultiLabelEncoder creates an unfitted encoder applying weight to each
// set bit.
func NewMultiLabelEncoder(weight float64) *MultiLabelEncoder {
	return &MultiLabelEncoder{Weight: weight}
}

// Fit collects the label universe from the given label sets.
func (e *MultiLabelEncoder) Fit(labelSets [][]string) {
	seen := make(map[string]bool)
	for _, labels := range labelSets {
		for _, l := range labels {
			l = strings.ToLower(strings.TrimSpace(l))
			if l != "" {
				seen[l] = true
			}
		}
	}
	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	e.Classes = make(map[string]int, len(classes))
	for i, l := range classes {
		e.Classes[l] = i
	}
}

// Dim returns the width of the encoded block.
func (e *MultiLabelEncoder) Dim() int {
	return len(e.Classes)
}

// TransformInto appends the weighted one-hot entries for labels, offset by
// base.
func (e *MultiLabelEncoder) TransformInto(labels []string, base int, idx *[]int, val *[]float64) {
	set := make(map[int]bool)
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if i, ok := e.Classes[l]; ok {
			set[i] = true
		}
	}
	indices := make([]int, 0, len(set))
	for i := range set {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		*idx = append(*idx, base+i)
		*val = append(*val, e.Weight)
	}
}

// CategoryEncoder one-hot encodes a single categorical value (the joined
// author string). Unknown values produce no output. Fields are exported
// for gob.
type CategoryEncoder struct {
	Classes map[string]int
	Weight  float64
}

// NewCategoryEncoder creates an unfitted encoder.
func NewCategoryEncoder(weight float64) *CategoryEncoder {
	return &CategoryEncoder{Weight: weight}
}

// Fit collects the category universe.
func (e *CategoryEncoder) Fit(values []string) {
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			seen[v] = true
		}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	e.Classes = make(map[string]int, len(classes))
	for i, v := range classes {
		e.Classes[v] = i
	}
}

// Dim returns the width of the encoded block.
func (e *CategoryEncoder) Dim() int {
	return len(e.Classes)
}

// TransformInto appends the weighted one-hot entry for value, offset by
// base. Values not seen during Fit are skipped.
func (e *CategoryEncoder) TransformInto(value string, base int, idx *[]int, val *[]float64) {
	value = strings.ToLower(strings.TrimSpace(value))
	if i, ok := e.Classes[value]; ok {
		*idx = append(*idx, base+i)
		*val = append(*val, e.Weight)
	}
}

// MinMaxScaler scales a numeric column into [0, 1]. A degenerate range
// (min == max, or nothing fitted) maps every value to 0. Fields are
// exported for gob.
type MinMaxScaler struct {
	Min    float64
	Max    float64
	Fitted bool
}

// Fit records the observed range.
func (s *MinMaxScaler) Fit(values []float64) {
	if len(values) == 0 {
		return
	}
	s.Min, s.Max = values[0], values[0]
	for _, v := range values[1:] {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Fitted = true
}

// Transform scales a single value.
func (s *MinMaxScaler) Transform(v float64) float64 {
	if !s.Fitted || s.Max == s.Min {
		return 0
	}
	scaled := (v - s.Min) / (s.Max - s.Min)
	if scaled < 0 {
		return 0
	}
	if scaled > 1 {
		return 1
	}
	return scaled
}
