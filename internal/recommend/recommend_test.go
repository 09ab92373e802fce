// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package recommend

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/librarium/internal/authorpref"
	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/database"
	"github.com/tomtom215/librarium/internal/interaction"
	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/series"
	"github.com/tomtom215/librarium/internal/state"
)

type fixture struct {
	svc     *Service
	books   *catalog.Store
	inter   *interaction.Store
	authors *authorpref.Store
	results *cache.Cache
}

func newFixture(t *testing.T, detector series.Detector) *fixture {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	badgerDB, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening badger: %v", err)
	}
	t.Cleanup(func() { _ = badgerDB.Close() })

	books := catalog.NewStore(db)
	inter := interaction.NewStore(db)
	authors := authorpref.NewStore(badgerDB)
	langs := language.NewDetector(inter, inter, books)

	results := cache.New(time.Minute, time.Minute, 1000)
	t.Cleanup(results.Stop)

	return &fixture{
		svc:     NewService(books, inter, authors, langs, detector, results),
		books:   books,
		inter:   inter,
		authors: authors,
		results: results,
	}
}

func (f *fixture) seedBook(t *testing.T, id, title, author string, popularity float64) {
	t.Helper()
	err := f.books.Upsert(context.Background(), &catalog.Book{
		ID:              id,
		Title:           title,
		Authors:         []string{author},
		Genres:          []string{"fantasy"},
		Summary:         "A young mage studies ancient spells in a fallen kingdom.",
		Year:            1990,
		Language:        "english",
		StarRating:      4.5,
		NumRatings:      2000,
		PopularityScore: popularity,
	})
	if err != nil {
		t.Fatalf("seeding book: %v", err)
	}
}

func (f *fixture) like(t *testing.T, userID, title, author string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.inter.Upsert(ctx, userID, title, interaction.ActionLike); err != nil {
		t.Fatalf("liking %s: %v", title, err)
	}
	if err := f.authors.Update(ctx, userID, author, "like", title); err != nil {
		t.Fatalf("updating author preference: %v", err)
	}
}

func TestBestFromAuthorNoPreferences(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.BestFromAuthor(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("BestFromAuthor() error: %v", err)
	}
	if res.Count != 0 || res.Message == "" {
		t.Errorf("expected empty result with message, got %+v", res)
	}
}

func TestBestFromAuthorSkipsInteracted(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "b1", "The Tower", "A. Mage", 3)
	f.seedBook(t, "b2", "The Spire", "A. Mage", 2)
	f.seedBook(t, "b3", "The Vault", "A. Mage", 1)
	f.seedBook(t, "b4", "Other Shores", "B. Sage", 5)
	f.like(t, "u1", "The Tower", "A. Mage")

	res, err := f.svc.BestFromAuthor(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("BestFromAuthor() error: %v", err)
	}
	if res.BestAuthor != "A. Mage" {
		t.Errorf("BestAuthor = %q, want A. Mage", res.BestAuthor)
	}
	if res.Count != 2 {
		t.Fatalf("Count = %d, want 2", res.Count)
	}
	for _, rec := range res.Recommendations {
		if rec.Title == "The Tower" {
			t.Error("liked book recommended back")
		}
		if rec.Title == "Other Shores" {
			t.Error("book by a different author recommended")
		}
		if rec.Reason == "" || rec.Algorithm != "best_from_author" {
			t.Errorf("unexpected rec fields: %+v", rec)
		}
	}
}

func TestBestFromAuthorCached(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "b1", "The Tower", "A. Mage", 3)
	f.seedBook(t, "b2", "The Spire", "A. Mage", 2)
	f.like(t, "u1", "The Tower", "A. Mage")
	ctx := context.Background()

	if _, err := f.svc.BestFromAuthor(ctx, "u1", 5); err != nil {
		t.Fatal(err)
	}
	key := cache.GenerateUserKey("best_from_author", "u1", map[string]interface{}{"limit": 5})
	if _, ok := f.results.Get(key); !ok {
		t.Error("result not cached under the user key")
	}
}

func TestPopularRanksByScore(t *testing.T) {
	f := newFixture(t, nil)
	f.seedBook(t, "b1", "The Tower", "A. Mage", 3)
	f.seedBook(t, "b2", "The Spire", "B. Sage", 9)
	ctx := context.Background()

	books, err := f.svc.Popular(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Popular() error: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("got %d books, want 2", len(books))
	}
	if books[0].Title != "The Spire" {
		t.Errorf("first book = %q, want most popular first", books[0].Title)
	}
}

type fakeSeriesDetector struct {
	infos   map[string]*series.Info
	lookups int
	err     error
}

func (d *fakeSeriesDetector) Lookup(_ context.Context, title, _ string) (*series.Info, error) {
	d.lookups++
	if d.err != nil {
		return nil, d.err
	}
	return d.infos[strings.ToLower(title)], nil
}

func TestContinueReadingDisabled(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ContinueReading(context.Background(), "u1", 3)
	if !errors.Is(err, series.ErrDisabled) {
		t.Fatalf("err = %v, want series.ErrDisabled", err)
	}
}

func TestContinueReadingNoLikes(t *testing.T) {
	f := newFixture(t, &fakeSeriesDetector{})

	recs, err := f.svc.ContinueReading(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("ContinueReading() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations for user with no likes", len(recs))
	}
}

func TestContinueReadingFindsNextBook(t *testing.T) {
	detector := &fakeSeriesDetector{infos: map[string]*series.Info{
		"the tower": {
			IsSeries:   true,
			SeriesName: "Tower Cycle",
			NextBook:   &series.NextBook{Title: "The Spire", Author: "A. Mage", OrderInSeries: 2},
			Confidence: 0.9,
		},
	}}
	f := newFixture(t, detector)
	f.seedBook(t, "b1", "The Tower", "A. Mage", 3)
	f.seedBook(t, "b2", "Standalone", "B. Sage", 1)
	f.like(t, "u1", "The Tower", "A. Mage")
	f.like(t, "u1", "Standalone", "B. Sage")

	recs, err := f.svc.ContinueReading(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("ContinueReading() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	rec := recs[0]
	if rec.NextBook.Title != "The Spire" || rec.SeriesName != "Tower Cycle" {
		t.Errorf("unexpected recommendation: %+v", rec)
	}
	if rec.OriginalBook.Title != "The Tower" {
		t.Errorf("OriginalBook = %q, want The Tower", rec.OriginalBook.Title)
	}
	// The more popular like is looked up first.
	if detector.lookups == 0 {
		t.Fatal("detector never consulted")
	}
}

func TestContinueReadingSkipsAlreadyLikedNextBook(t *testing.T) {
	detector := &fakeSeriesDetector{infos: map[string]*series.Info{
		"the tower": {
			IsSeries:   true,
			SeriesName: "Tower Cycle",
			NextBook:   &series.NextBook{Title: "The Spire", Author: "A. Mage"},
			Confidence: 0.9,
		},
	}}
	f := newFixture(t, detector)
	f.seedBook(t, "b1", "The Tower", "A. Mage", 3)
	f.seedBook(t, "b2", "The Spire", "A. Mage", 2)
	f.like(t, "u1", "The Tower", "A. Mage")
	f.like(t, "u1", "The Spire", "A. Mage")

	recs, err := f.svc.ContinueReading(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("ContinueReading() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recommended a book the user already liked: %+v", recs)
	}
}

func TestContinueReadingToleratesLookupErrors(t *testing.T) {
	detector := &fakeSeriesDetector{err: errors.New("collaborator down")}
	f := newFixture(t, detector)
	f.seedBook(t, "b1", "The Tower", "A. Mage", 3)
	f.like(t, "u1", "The Tower", "A. Mage")

	recs, err := f.svc.ContinueReading(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("ContinueReading() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations despite failing lookups", len(recs))
	}
}

func TestDuplicateTitle(t *testing.T) {
	recs := []SeriesRecommendation{
		{NextBook: series.NextBook{Title: "The Hunger Games: Catching Fire"}},
	}
	if !duplicateTitle(recs, "Catching Fire") {
		t.Error("contained title not treated as duplicate")
	}
	if duplicateTitle(recs, "Mockingjay") {
		t.Error("distinct title treated as duplicate")
	}
}
