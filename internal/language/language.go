// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package language normalizes and matches book languages, and detects a
// user's preferred languages from profile data or reading history.
package language

import "strings"

// DefaultLanguage is the fallback used whenever no language can be
// determined.
const DefaultLanguage = "english"

// synonyms maps a canonical language name to the spellings, ISO codes, and
// native names it should match. Catalog data is user-contributed, so the
// same language arrives in many forms.
var synonyms = map[string][]string{
	"english":    {"en", "eng", "en-us", "en-gb", "english"},
	"spanish":    {"es", "esp", "español", "castellano", "es-es", "es-mx", "spanish"},
	"french":     {"fr", "français", "francais", "fr-fr", "french"},
	"german":     {"de", "deutsch", "german", "de-de"},
	"italian":    {"it", "italiano", "it-it", "italian"},
	"portuguese": {"pt", "português", "portugues", "pt-br", "pt-pt", "portuguese"},
	"chinese":    {"zh", "chinese", "mandarin", "zh-cn", "zh-tw"},
	"japanese":   {"ja", "japanese", "jp", "ja-jp"},
	"korean":     {"ko", "korean", "kr", "ko-kr"},
	"russian":    {"ru", "russian", "русский", "ru-ru"},
	"arabic":     {"ar", "arabic", "العربية", "ar-sa", "عربي", "عربية"},
	"hindi":      {"hi", "hindi", "हिन्दी", "hi-in"},
}

// Normalize lowercases and trims a language name.
func Normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// Match reports whether a book's language satisfies a user preference.
// Inputs are normalized, then compared exactly, by substring containment in
// either direction, and finally through the synonym table.
func Match(bookLang, userLang string) bool {
	bookLang = Normalize(bookLang)
	userLang = Normalize(userLang)

	if bookLang == userLang {
		return true
	}
	if bookLang == "" || userLang == "" {
		return false
	}
	if strings.Contains(bookLang, userLang) || strings.Contains(userLang, bookLang) {
		return true
	}

	for canonical, alts := range synonyms {
		bookIn := bookLang == canonical || contains(alts, bookLang)
		userIn := userLang == canonical || contains(alts, userLang)
		if bookIn && userIn {
			return true
		}
	}
	return false
}

// MatchAny reports whether the book language satisfies any of the user's
// preferred languages. An empty preference list matches everything.
func MatchAny(bookLang string, userLangs []string) bool {
	if len(userLangs) == 0 {
		return true
	}
	for _, ul := range userLangs {
		if Match(bookLang, ul) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
