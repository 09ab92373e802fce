// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package modelstore

import (
	"os"
	"path/filepath"
	"testing"
)

type sampleModel struct {
	Vectors map[string][]float32
	Count   int
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	in := sampleModel{
		Vectors: map[string][]float32{"dune": {0.1, 0.9}},
		Count:   1,
	}
	meta, err := s.Save("als", in)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if meta.Version != 1 {
		t.Errorf("Version = %d, want 1", meta.Version)
	}
	if meta.Checksum == "" {
		t.Error("Checksum is empty")
	}

	var out sampleModel
	loaded, err := s.Load("als", 0, &out)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Version != 1 {
		t.Errorf("loaded Version = %d, want 1", loaded.Version)
	}
	if out.Count != 1 || len(out.Vectors["dune"]) != 2 {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestVersionsIncrement(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		meta, err := s.Save("pipeline", sampleModel{Count: i})
		if err != nil {
			t.Fatalf("Save() #%d error: %v", i, err)
		}
		if meta.Version != i {
			t.Fatalf("Version = %d, want %d", meta.Version, i)
		}
	}

	var out sampleModel
	if _, err := s.Load("pipeline", 0, &out); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if out.Count != 3 {
		t.Errorf("latest Count = %d, want 3", out.Count)
	}

	if _, err := s.Load("pipeline", 2, &out); err != nil {
		t.Fatalf("Load(v2) error: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("v2 Count = %d, want 2", out.Count)
	}
}

func TestScanOnReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save("index_english", sampleModel{Count: 7}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save("index_english", sampleModel{Count: 8}); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	version, ok := reopened.LatestVersion("index_english")
	if !ok || version != 2 {
		t.Fatalf("LatestVersion = %d, %v; want 2, true", version, ok)
	}

	var out sampleModel
	if _, err := reopened.Load("index_english", 0, &out); err != nil {
		t.Fatalf("Load() after reopen error: %v", err)
	}
	if out.Count != 8 {
		t.Errorf("Count = %d, want 8", out.Count)
	}
}

func TestLoadSeesVersionsFromOtherStore(t *testing.T) {
	dir := t.TempDir()

	server, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := server.Save("als", sampleModel{Count: 1}); err != nil {
		t.Fatal(err)
	}

	// Simulate the trainer binary writing a newer version through its
	// own Store over the same directory.
	trainer, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := trainer.Save("als", sampleModel{Count: 2}); err != nil {
		t.Fatal(err)
	}

	version, ok := server.LatestVersion("als")
	if !ok || version != 2 {
		t.Fatalf("LatestVersion = %d, %v; want 2, true", version, ok)
	}

	var out sampleModel
	loaded, err := server.Load("als", 0, &out)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Version != 2 {
		t.Errorf("loaded Version = %d, want 2", loaded.Version)
	}
	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}
}

func TestLoadMissing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var out sampleModel
	if _, err := s.Load("absent", 0, &out); err == nil {
		t.Fatal("Load() of missing artifact succeeded")
	}
}

func TestCorruptedFileRejected(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save("als", sampleModel{Count: 1}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "als_v1.gob.gz")
	if err := os.WriteFile(path, []byte("not a model"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out sampleModel
	if _, err := s.Load("als", 1, &out); err == nil {
		t.Fatal("Load() of corrupted artifact succeeded")
	}
}

func TestPruneKeepsLatest(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Save("als", sampleModel{Count: i}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Prune("als", 2); err != nil {
		t.Fatalf("Prune() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d files after prune, want 2", len(entries))
	}

	var out sampleModel
	if _, err := s.Load("als", 0, &out); err != nil {
		t.Fatalf("Load() latest after prune error: %v", err)
	}
	if out.Count != 3 {
		t.Errorf("Count = %d, want 3", out.Count)
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		version int
	}{
		{"als_v1.gob.gz", "als", 1},
		{"index_english_v12.gob.gz", "index_english", 12},
		{"pipeline_v3.gob.gz", "pipeline", 3},
		{"noversion.gob.gz", "", 0},
		{"als_v1.gob", "", 0},
		{"random.txt", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, version := parseFilename(tt.in)
			if name != tt.name || version != tt.version {
				t.Errorf("parseFilename(%q) = %q, %d; want %q, %d",
					tt.in, name, version, tt.name, tt.version)
			}
		})
	}
}
