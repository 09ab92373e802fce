// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package content

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/catalog"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/database"
	"github.com/tomtom215/librarium/internal/interaction"
	"github.com/tomtom215/librarium/internal/language"
	"github.com/tomtom215/librarium/internal/modelstore"
	"github.com/tomtom215/librarium/internal/vectorindex"
)

func testContentConfig() config.ContentConfig {
	return config.ContentConfig{
		SampleSize:        500,
		ChunkSize:         10,
		VectorCacheSize:   100,
		VectorCacheEvict:  10,
		RecentLikesWindow: 20,
		FlatThreshold:     1000,
		NProbe:            8,
		Dimensions:        32,
	}
}

type fixture struct {
	engine  *Engine
	trainer *Trainer
	books   *catalog.Store
	inter   *interaction.Store
	indices *vectorindex.Manager
}

func newFixture(t *testing.T) *fixture {
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

	books := catalog.NewStore(db)
	inter := interaction.NewStore(db)

	store, err := modelstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("opening model store: %v", err)
	}
	indices := vectorindex.NewManager(store)
	detector := language.NewDetector(inter, inter, books)

	results := cache.New(time.Minute, time.Minute, 1000)
	t.Cleanup(results.Stop)

	cfg := testContentConfig()
	return &fixture{
		engine:  NewEngine(cfg, books, inter, detector, indices, store, results),
		trainer: NewTrainer(cfg, books, store, indices),
		books:   books,
		inter:   inter,
		indices: indices,
	}
}

// seedCatalog inserts n english books across a few genres and authors so
// similarity has something to distinguish.
func seedCatalog(t *testing.T, f *fixture, n int) []*catalog.Book {
	t.Helper()
	ctx := context.Background()

	genres := [][]string{
		{"science fiction"}, {"fantasy"}, {"romance"}, {"mystery"},
	}
	summaries := []string{
		"A starship crew explores distant planets and alien empires across the galaxy.",
		"A young mage studies ancient spells, dragons, and the old towers of a fallen kingdom.",
		"Two strangers meet in a small seaside town and slowly fall in love over one summer.",
		"A weary detective untangles a murder hidden behind the walls of a quiet manor.",
	}

	out := make([]*catalog.Book, 0, n)
	for i := 0; i < n; i++ {
		k := i % len(genres)
		b := &catalog.Book{
			ID:       fmt.Sprintf("b%03d", i),
			Title:    fmt.Sprintf("Book %03d", i),
			Authors:  []string{fmt.Sprintf("Author %d", k)},
			Genres:   genres[k],
			Summary:  summaries[k] + fmt.Sprintf(" Edition %d.", i),
			Year:     1950 + i,
			Language: "english",
		}
		if err := f.books.Upsert(ctx, b); err != nil {
			t.Fatalf("seeding book: %v", err)
		}
		out = append(out, b)
	}
	return out
}

func trainFixture(t *testing.T, f *fixture) {
	t.Helper()
	stats, err := f.trainer.Train(context.Background())
	if err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if stats.Books == 0 || stats.Languages == 0 {
		t.Fatalf("empty training stats: %+v", stats)
	}
	if err := f.engine.LoadPipeline(); err != nil {
		t.Fatalf("LoadPipeline() error: %v", err)
	}
}

func like(t *testing.T, f *fixture, userID, title string) {
	t.Helper()
	if _, err := f.inter.Upsert(context.Background(), userID, title, interaction.ActionLike); err != nil {
		t.Fatalf("liking %s: %v", title, err)
	}
}

func TestTrainerShouldRetrain(t *testing.T) {
	f := newFixture(t)
	if !f.trainer.ShouldRetrain() {
		t.Error("ShouldRetrain() = false with empty artifact store")
	}

	seedCatalog(t, f, 20)
	trainFixture(t, f)

	if f.trainer.ShouldRetrain() {
		t.Error("ShouldRetrain() = true after training")
	}
}

func TestTrainEmptyCatalog(t *testing.T) {
	f := newFixture(t)
	if _, err := f.trainer.Train(context.Background()); err != ErrNoEligibleBooks {
		t.Fatalf("Train() error = %v, want ErrNoEligibleBooks", err)
	}
}

func TestTrainBuildsLanguageIndex(t *testing.T) {
	f := newFixture(t)
	seedCatalog(t, f, 25)

	stats, err := f.trainer.Train(context.Background())
	if err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if stats.Books != 25 {
		t.Errorf("stats.Books = %d, want 25", stats.Books)
	}
	if f.indices.Size("english") != 25 {
		t.Errorf("index size = %d, want 25", f.indices.Size("english"))
	}
}

func TestFitPipelineDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	seedCatalog(t, f, 20)

	// Fitting stages the pipeline in memory only; nothing may reach the
	// artifact store until every index has been built, so a run that
	// dies mid-stream leaves the previous model fully intact.
	pipeline, err := f.trainer.fitPipeline(context.Background())
	if err != nil {
		t.Fatalf("fitPipeline() error: %v", err)
	}
	if pipeline == nil {
		t.Fatal("fitPipeline() returned nil pipeline")
	}
	if _, ok := f.trainer.store.LatestVersion(pipelineArtifact); ok {
		t.Error("pipeline artifact persisted before index build")
	}
	if names := f.trainer.store.Names(); len(names) != 0 {
		t.Errorf("artifacts written during fit: %v", names)
	}
}

func TestTrainPublishesAllArtifacts(t *testing.T) {
	f := newFixture(t)
	seedCatalog(t, f, 20)

	if _, err := f.trainer.Train(context.Background()); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if _, ok := f.trainer.store.LatestVersion(pipelineArtifact); !ok {
		t.Error("pipeline artifact missing after training")
	}
	if _, ok := f.trainer.store.LatestVersion("index_english"); !ok {
		t.Error("english index artifact missing after training")
	}
}

func TestSimilarToRecentNotReady(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.SimilarToRecent(context.Background(), "u1", 5, false); err != ErrNotReady {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestSimilarToRecentNoLikes(t *testing.T) {
	f := newFixture(t)
	seedCatalog(t, f, 20)
	trainFixture(t, f)

	recs, err := f.engine.SimilarToRecent(context.Background(), "u1", 5, false)
	if err != nil {
		t.Fatalf("SimilarToRecent() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d recommendations for user with no likes", len(recs))
	}
}

func TestSimilarToRecent(t *testing.T) {
	f := newFixture(t)
	books := seedCatalog(t, f, 40)
	trainFixture(t, f)

	anchor := books[0] // science fiction
	like(t, f, "u1", anchor.Title)

	recs, err := f.engine.SimilarToRecent(context.Background(), "u1", 5, false)
	if err != nil {
		t.Fatalf("SimilarToRecent() error: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("no recommendations")
	}
	if len(recs) > 5 {
		t.Fatalf("got %d recommendations, want <= 5", len(recs))
	}
	for _, r := range recs {
		if r.BookID == anchor.ID {
			t.Errorf("anchor book %s recommended back", anchor.ID)
		}
		if r.Title == anchor.Title {
			t.Errorf("interacted title %s recommended", r.Title)
		}
		if r.BasedOn != anchor.Title {
			t.Errorf("BasedOn = %q, want %q", r.BasedOn, anchor.Title)
		}
		if r.Confidence > 1.0 {
			t.Errorf("confidence %f > 1", r.Confidence)
		}
		if r.Algorithm != "content_based" {
			t.Errorf("algorithm = %q", r.Algorithm)
		}
	}

	// The nearest neighbors of a science fiction anchor should mostly
	// share its genre.
	sciFi := 0
	for _, r := range recs {
		if len(r.Genres) > 0 && r.Genres[0] == "science fiction" {
			sciFi++
		}
	}
	if sciFi < len(recs)/2 {
		t.Errorf("only %d/%d neighbors share the anchor genre", sciFi, len(recs))
	}
}

func TestSimilarToRecentAlternativeAnchor(t *testing.T) {
	f := newFixture(t)
	books := seedCatalog(t, f, 40)
	trainFixture(t, f)

	// Single like: alternative falls back to the most recent.
	like(t, f, "u1", books[0].Title)
	recs, err := f.engine.SimilarToRecent(context.Background(), "u1", 5, true)
	if err != nil {
		t.Fatalf("SimilarToRecent(alternative) error: %v", err)
	}
	for _, r := range recs {
		if r.BasedOn != books[0].Title {
			t.Errorf("BasedOn = %q, want %q", r.BasedOn, books[0].Title)
		}
	}

	// With more likes the alternative anchor is never the most recent.
	like(t, f, "u2", books[1].Title)
	like(t, f, "u2", books[2].Title)
	like(t, f, "u2", books[3].Title)
	for i := 0; i < 5; i++ {
		recs, err := f.engine.SimilarToRecent(context.Background(), "u2", 3, true)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range recs {
			if r.BasedOn == books[3].Title {
				t.Fatalf("alternative anchored on the most recent like %q", books[3].Title)
			}
		}
		// Anchor choice is random; drop the cached result between calls.
		if _, err := f.engine.results.DeletePattern("content_based:user:u2:*"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFromProfileNoLikes(t *testing.T) {
	f := newFixture(t)
	seedCatalog(t, f, 20)
	trainFixture(t, f)

	res, err := f.engine.FromProfile(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("FromProfile() error: %v", err)
	}
	if res.Count != 0 || !strings.Contains(res.Explanation, "No liked books") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestFromProfile(t *testing.T) {
	f := newFixture(t)
	books := seedCatalog(t, f, 40)
	trainFixture(t, f)

	like(t, f, "u1", books[0].Title) // science fiction
	like(t, f, "u1", books[4].Title) // science fiction

	res, err := f.engine.FromProfile(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("FromProfile() error: %v", err)
	}
	if res.Count == 0 {
		t.Fatal("no recommendations")
	}
	if res.LikedBooksAnalyzed != 2 {
		t.Errorf("LikedBooksAnalyzed = %d, want 2", res.LikedBooksAnalyzed)
	}
	if !strings.Contains(res.Explanation, "2 books you liked") {
		t.Errorf("Explanation = %q", res.Explanation)
	}
	for _, r := range res.Recommendations {
		if r.BookID == books[0].ID || r.BookID == books[4].ID {
			t.Errorf("liked book %s recommended back", r.BookID)
		}
	}
}

func TestFromProfileWithDislikes(t *testing.T) {
	f := newFixture(t)
	books := seedCatalog(t, f, 40)
	trainFixture(t, f)

	ctx := context.Background()
	like(t, f, "u1", books[0].Title)
	if _, err := f.inter.Upsert(ctx, "u1", books[2].Title, interaction.ActionDislike); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.FromProfile(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("FromProfile() error: %v", err)
	}
	if !strings.Contains(res.Explanation, "1 books you disliked") {
		t.Errorf("Explanation = %q", res.Explanation)
	}
}

func TestResultCaching(t *testing.T) {
	f := newFixture(t)
	books := seedCatalog(t, f, 30)
	trainFixture(t, f)
	like(t, f, "u1", books[0].Title)

	ctx := context.Background()
	first, err := f.engine.SimilarToRecent(ctx, "u1", 5, false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.engine.SimilarToRecent(ctx, "u1", 5, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("cached result differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].BookID != second[i].BookID {
			t.Errorf("cached result %d differs: %s vs %s", i, first[i].BookID, second[i].BookID)
		}
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	seedCatalog(t, f, 20)
	trainFixture(t, f)

	// A second training run writes new artifact versions; Reload must
	// pick them up without error.
	if _, err := f.trainer.Train(context.Background()); err != nil {
		t.Fatalf("retrain error: %v", err)
	}
	if err := f.engine.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if !f.engine.Ready() {
		t.Error("engine not ready after reload")
	}
}
