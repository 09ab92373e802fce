// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package interaction

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/librarium/internal/catalog"
)

type fakeAffinity struct {
	top     string
	nextTop string
	updates []string
	removes []string
}

func (f *fakeAffinity) TopAuthor(context.Context, string) (string, error) {
	top := f.top
	f.top = f.nextTop
	return top, nil
}

func (f *fakeAffinity) Update(_ context.Context, _, author, action, _ string) error {
	f.updates = append(f.updates, author+"/"+action)
	return nil
}

func (f *fakeAffinity) Remove(_ context.Context, _, author, action, _ string) error {
	f.removes = append(f.removes, author+"/"+action)
	return nil
}

type fakeTrigger struct{ increments int }

func (f *fakeTrigger) Increment(context.Context) error {
	f.increments++
	return nil
}

type fakeCache struct{ patterns []string }

func (f *fakeCache) DeletePattern(pattern string) (int, error) {
	f.patterns = append(f.patterns, pattern)
	return 0, nil
}

type fakeLangs struct{ invalidated []string }

func (f *fakeLangs) Invalidate(userID string) {
	f.invalidated = append(f.invalidated, userID)
}

type serviceFixture struct {
	svc      *Service
	store    *Store
	affinity *fakeAffinity
	trigger  *fakeTrigger
	cache    *fakeCache
	langs    *fakeLangs
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := newTestDB(t)
	books := catalog.NewStore(db)
	store := NewStore(db)

	ctx := context.Background()
	seed := []*catalog.Book{
		{
			ID: "b1", Title: "Dune", Authors: []string{"Frank Herbert"},
			Genres: []string{"scifi", "classic"}, Summary: "spice", Language: "english",
		},
		{
			ID: "b2", Title: "Emma", Authors: []string{"Jane Austen"},
			Genres: []string{"romance"}, Summary: "regency", Language: "english",
		},
	}
	for _, b := range seed {
		if err := books.Upsert(ctx, b); err != nil {
			t.Fatalf("seeding catalog: %v", err)
		}
	}

	f := &serviceFixture{
		store:    store,
		affinity: &fakeAffinity{},
		trigger:  &fakeTrigger{},
		cache:    &fakeCache{},
		langs:    &fakeLangs{},
	}
	f.svc = NewService(store, books, f.affinity, f.trigger, f.cache, f.langs)
	return f
}

func TestLikeNewBook(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.svc.Like(ctx, "u1", "Dune"); err != nil {
		t.Fatalf("Like: %v", err)
	}

	if action, _ := f.store.Get(ctx, "u1", "Dune"); action != ActionLike {
		t.Errorf("stored action = %q, want like", action)
	}

	top, err := f.store.TopGenres(ctx, "u1", ActionLike, 10)
	if err != nil {
		t.Fatalf("TopGenres: %v", err)
	}
	if len(top) != 2 {
		t.Errorf("genre prefs = %+v, want scifi and classic", top)
	}

	langs, _ := f.store.UserLanguages(ctx, "u1")
	if len(langs) != 1 || langs[0] != "english" {
		t.Errorf("user languages = %v, want [english]", langs)
	}

	if len(f.affinity.updates) != 1 || f.affinity.updates[0] != "Frank Herbert/like" {
		t.Errorf("affinity updates = %v", f.affinity.updates)
	}
	if f.trigger.increments != 1 {
		t.Errorf("trigger incremented %d times, want 1", f.trigger.increments)
	}
}

func TestRepeatedLikeIsNoOp(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.svc.Like(ctx, "u1", "Dune"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Like(ctx, "u1", "Dune"); err != nil {
		t.Fatal(err)
	}

	if f.trigger.increments != 1 {
		t.Errorf("repeat like incremented the counter: %d", f.trigger.increments)
	}
	top, _ := f.store.TopGenres(ctx, "u1", ActionLike, 10)
	for _, g := range top {
		if g.Count != 1 {
			t.Errorf("genre %s counted %d times, want 1", g.Genre, g.Count)
		}
	}
}

func TestDislikeOverwritesLike(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.svc.Like(ctx, "u1", "Dune"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Dislike(ctx, "u1", "Dune"); err != nil {
		t.Fatal(err)
	}

	if action, _ := f.store.Get(ctx, "u1", "Dune"); action != ActionDislike {
		t.Errorf("action = %q, want dislike", action)
	}

	// Like-side genre deltas were undone.
	likeGenres, _ := f.store.TopGenres(ctx, "u1", ActionLike, 10)
	if len(likeGenres) != 0 {
		t.Errorf("liked genres not undone: %+v", likeGenres)
	}

	// The prior like's author delta was removed before the dislike delta
	// was applied.
	if len(f.affinity.removes) != 1 || f.affinity.removes[0] != "Frank Herbert/like" {
		t.Errorf("affinity removes = %v", f.affinity.removes)
	}
	if len(f.affinity.updates) != 2 || f.affinity.updates[1] != "Frank Herbert/dislike" {
		t.Errorf("affinity updates = %v", f.affinity.updates)
	}

	if f.trigger.increments != 2 {
		t.Errorf("trigger incremented %d times, want 2", f.trigger.increments)
	}
}

func TestCacheInvalidationGating(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Top author unchanged by this interaction.
	f.affinity.top = "Frank Herbert"
	f.affinity.nextTop = "Frank Herbert"

	if err := f.svc.Like(ctx, "u1", "Dune"); err != nil {
		t.Fatal(err)
	}

	for _, p := range f.cache.patterns {
		if p == "best_from_author:user:u1:*" {
			t.Error("author cache flushed although top author did not change")
		}
	}

	found := false
	for _, p := range f.cache.patterns {
		if p == "recommendations:user:u1:*" {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendation caches not flushed: %v", f.cache.patterns)
	}
}

func TestCacheInvalidationOnTopAuthorChange(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.affinity.top = "Jane Austen"
	f.affinity.nextTop = "Frank Herbert"

	if err := f.svc.Like(ctx, "u1", "Dune"); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, p := range f.cache.patterns {
		if p == "best_from_author:user:u1:*" {
			found = true
		}
	}
	if !found {
		t.Errorf("author cache not flushed on top-author change: %v", f.cache.patterns)
	}
}

func TestLikeUnknownBook(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.Like(context.Background(), "u1", "No Such Book")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected catalog.ErrNotFound, got %v", err)
	}
	if f.trigger.increments != 0 {
		t.Error("failed like must not touch the counter")
	}
}

func TestRemoveInteraction(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.svc.Like(ctx, "u1", "Dune"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Remove(ctx, "u1", "Dune"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if action, _ := f.store.Get(ctx, "u1", "Dune"); action != "" {
		t.Errorf("interaction still present: %q", action)
	}
	likeGenres, _ := f.store.TopGenres(ctx, "u1", ActionLike, 10)
	if len(likeGenres) != 0 {
		t.Errorf("genre deltas not unwound: %+v", likeGenres)
	}
	if len(f.affinity.removes) != 1 || f.affinity.removes[0] != "Frank Herbert/like" {
		t.Errorf("affinity removes = %v", f.affinity.removes)
	}
}
