// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package series resolves whether a book belongs to a series and what
// the next installment is, by asking an external collaborator service.
// The cached wrapper shields the collaborator with a circuit breaker
// and a rate limiter, and remembers negative answers briefly.
package series

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
)

// ErrDisabled is returned when series detection is switched off.
var ErrDisabled = errors.New("series: detection disabled")

// NextBook describes the next installment in a series.
type NextBook struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Description   string `json:"description,omitempty"`
	OrderInSeries int    `json:"order_in_series,omitempty"`
}

// Info is the collaborator's answer for one book.
type Info struct {
	IsSeries           bool      `json:"is_series"`
	SeriesName         string    `json:"series_name,omitempty"`
	NextBook           *NextBook `json:"next_book,omitempty"`
	Confidence         float64   `json:"confidence,omitempty"`
	VerificationStatus string    `json:"verification_status,omitempty"`
}

// Detector answers series lookups. A nil Info with a nil error means
// the book is not known to be part of a series.
type Detector interface {
	Lookup(ctx context.Context, title, author string) (*Info, error)
}

// HTTPDetector queries the collaborator service over HTTP.
type HTTPDetector struct {
	client  *http.Client
	baseURL string
}

// NewHTTPDetector builds a detector for the given collaborator URL.
func NewHTTPDetector(baseURL string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Lookup asks the collaborator about one book. A 404 is a clean miss.
func (d *HTTPDetector) Lookup(ctx context.Context, title, author string) (*Info, error) {
	q := url.Values{}
	q.Set("title", title)
	if author != "" {
		q.Set("author", author)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building series request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("series lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("series lookup: unexpected status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding series response: %w", err)
	}
	if !info.IsSeries {
		return nil, nil
	}
	return &info, nil
}
