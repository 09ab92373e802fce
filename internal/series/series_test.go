// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package series

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/config"
)

const duneAnswer = `{
	"is_series": true,
	"series_name": "Dune Chronicles",
	"next_book": {"title": "Dune Messiah", "author": "Frank Herbert", "order_in_series": 2},
	"confidence": 0.95,
	"verification_status": "verified"
}`

func testSeriesConfig() config.SeriesConfig {
	return config.SeriesConfig{
		Enabled:        true,
		Timeout:        5 * time.Second,
		RatePerSecond:  100,
		RateBurst:      100,
		BreakerMaxFail: 3,
		CacheTTL:       time.Hour,
	}
}

func newResultsCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(time.Hour, time.Hour, 1000)
	t.Cleanup(c.Stop)
	return c
}

func TestHTTPDetectorLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("title") {
		case "Dune":
			w.Write([]byte(duneAnswer))
		case "Standalone":
			w.Write([]byte(`{"is_series": false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, 5*time.Second)
	ctx := context.Background()

	info, err := d.Lookup(ctx, "Dune", "Frank Herbert")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil || info.SeriesName != "Dune Chronicles" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.NextBook == nil || info.NextBook.Title != "Dune Messiah" {
		t.Errorf("next book wrong: %+v", info.NextBook)
	}

	// Both "not a series" and 404 resolve to a clean miss.
	for _, title := range []string{"Standalone", "Unknown"} {
		info, err := d.Lookup(ctx, title, "")
		if err != nil {
			t.Fatalf("%s: %v", title, err)
		}
		if info != nil {
			t.Errorf("%s: got %+v, want nil", title, info)
		}
	}
}

func TestHTTPDetectorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL, 5*time.Second)
	if _, err := d.Lookup(context.Background(), "Dune", ""); err == nil {
		t.Error("expected error on 500")
	}
}

func TestCachedDetectorCachesHits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(duneAnswer))
	}))
	defer srv.Close()

	d := NewCachedDetector(testSeriesConfig(), NewHTTPDetector(srv.URL, 5*time.Second), newResultsCache(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := d.Lookup(ctx, "Dune", "Frank Herbert")
		if err != nil {
			t.Fatal(err)
		}
		if info == nil || !info.IsSeries {
			t.Fatalf("call %d: unexpected info %+v", i, info)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", calls.Load())
	}
}

func TestCachedDetectorCachesMisses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewCachedDetector(testSeriesConfig(), NewHTTPDetector(srv.URL, 5*time.Second), newResultsCache(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := d.Lookup(ctx, "Unknown", "")
		if err != nil {
			t.Fatal(err)
		}
		if info != nil {
			t.Fatalf("call %d: got %+v, want nil", i, info)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream called %d times for cached miss, want 1", calls.Load())
	}
}

func TestCachedDetectorBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewCachedDetector(testSeriesConfig(), NewHTTPDetector(srv.URL, 5*time.Second), newResultsCache(t))
	ctx := context.Background()

	// Distinct titles bypass the result cache; after three consecutive
	// failures the breaker opens and upstream is no longer contacted.
	titles := []string{"a", "b", "c", "d", "e"}
	for _, title := range titles {
		info, err := d.Lookup(ctx, title, "")
		if err != nil {
			t.Fatalf("%s: unexpected hard error %v", title, err)
		}
		if info != nil {
			t.Fatalf("%s: got %+v, want nil", title, info)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("upstream called %d times, want 3 before breaker opened", calls.Load())
	}
}

func TestCachedDetectorRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(duneAnswer))
	}))
	defer srv.Close()

	cfg := testSeriesConfig()
	cfg.RatePerSecond = 0.001
	cfg.RateBurst = 1
	d := NewCachedDetector(cfg, NewHTTPDetector(srv.URL, 5*time.Second), newResultsCache(t))
	ctx := context.Background()

	if _, err := d.Lookup(ctx, "first", ""); err != nil {
		t.Fatal(err)
	}
	// Budget exhausted, second distinct lookup degrades without an error.
	info, err := d.Lookup(ctx, "second", "")
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Errorf("rate-limited lookup returned %+v, want nil", info)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", calls.Load())
	}
}
