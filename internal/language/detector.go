// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package language

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/librarium/internal/logging"
)

// DefaultMaxLanguages bounds how many languages detection returns.
const DefaultMaxLanguages = 3

// minLanguageThreshold is the minimum number of liked books in a language
// before it counts as a preference.
const minLanguageThreshold = 2

// ProfileStore reads explicitly declared user languages.
type ProfileStore interface {
	UserLanguages(ctx context.Context, userID string) ([]string, error)
}

// LikesSource lists the titles a user has liked.
type LikesSource interface {
	LikedTitles(ctx context.Context, userID string) ([]string, error)
}

// BookLanguageSource resolves titles to book languages. Unknown titles
// resolve to the default language.
type BookLanguageSource interface {
	LanguagesForTitles(ctx context.Context, titles []string) ([]string, error)
}

// Detector determines a user's preferred languages: declared profile
// languages win; otherwise the languages of their liked books are counted
// and the most frequent ones kept. Results are memoized until invalidated.
type Detector struct {
	profiles ProfileStore
	likes    LikesSource
	books    BookLanguageSource

	mu    sync.RWMutex
	cache map[string][]string
}

// NewDetector creates a Detector over the given sources.
func NewDetector(profiles ProfileStore, likes LikesSource, books BookLanguageSource) *Detector {
	return &Detector{
		profiles: profiles,
		likes:    likes,
		books:    books,
		cache:    make(map[string][]string),
	}
}

// Detect returns up to maxLanguages preferred languages for the user. It
// never fails: on any error it falls back to the default language.
func (d *Detector) Detect(ctx context.Context, userID string, maxLanguages int) []string {
	if maxLanguages <= 0 {
		maxLanguages = DefaultMaxLanguages
	}

	cacheKey := fmt.Sprintf("%s:%d", userID, maxLanguages)
	d.mu.RLock()
	if langs, ok := d.cache[cacheKey]; ok {
		d.mu.RUnlock()
		return langs
	}
	d.mu.RUnlock()

	langs, err := d.detect(ctx, userID, maxLanguages)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("language detection failed, using default")
		return []string{DefaultLanguage}
	}

	d.mu.Lock()
	d.cache[cacheKey] = langs
	d.mu.Unlock()
	return langs
}

func (d *Detector) detect(ctx context.Context, userID string, maxLanguages int) ([]string, error) {
	// Declared profile languages take priority over history.
	if declared, err := d.profiles.UserLanguages(ctx, userID); err == nil {
		clean := cleanLanguages(declared, maxLanguages)
		if len(clean) > 0 {
			return clean, nil
		}
	}

	titles, err := d.likes.LikedTitles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing liked titles: %w", err)
	}
	if len(titles) == 0 {
		return []string{DefaultLanguage}, nil
	}

	bookLangs, err := d.books.LanguagesForTitles(ctx, titles)
	if err != nil {
		return nil, fmt.Errorf("resolving book languages: %w", err)
	}

	counts := make(map[string]int)
	for _, lang := range bookLangs {
		lang = Normalize(lang)
		if lang == "" {
			lang = DefaultLanguage
		}
		counts[lang]++
	}

	// A language needs a minimum number of liked books to count; the
	// default language always qualifies.
	ranked := make([]string, 0, len(counts))
	for lang, n := range counts {
		if n >= minLanguageThreshold || lang == DefaultLanguage {
			ranked = append(ranked, lang)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if len(ranked) == 0 {
		return []string{DefaultLanguage}, nil
	}
	if len(ranked) > maxLanguages {
		ranked = ranked[:maxLanguages]
	}
	return ranked, nil
}

// Invalidate drops cached detections for a user, or for everyone when
// userID is empty. Called after new interactions land.
func (d *Detector) Invalidate(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if userID == "" {
		d.cache = make(map[string][]string)
		return
	}
	for key := range d.cache {
		if strings.HasPrefix(key, userID+":") {
			delete(d.cache, key)
		}
	}
}

func cleanLanguages(langs []string, maxLanguages int) []string {
	if len(langs) > maxLanguages {
		langs = langs[:maxLanguages]
	}
	seen := make(map[string]bool, len(langs))
	clean := make([]string, 0, len(langs))
	for _, lang := range langs {
		lang = Normalize(lang)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		clean = append(clean, lang)
	}
	return clean
}
