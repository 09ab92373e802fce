// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package modelstore provides persistence for trained recommendation
// artifacts: the feature pipeline, per-language vector indices, and the
// collaborative model.
//
// Artifacts are serialized with gob, gzip-compressed, and stored with
// metadata including version, timestamp, and a SHA-256 checksum so a
// truncated or corrupted file is rejected at load time rather than
// producing a silently broken model. Writes go through a temp file and
// rename, so readers never observe a partial artifact.
package modelstore

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Metadata describes a stored artifact.
type Metadata struct {
	// Name is the artifact name (e.g. "pipeline", "index_english", "als").
	Name string `json:"name"`

	// Version is the artifact version (monotonically increasing).
	Version int `json:"version"`

	// SavedAt is when the artifact was written.
	SavedAt time.Time `json:"saved_at"`

	// Checksum is the SHA-256 checksum of the uncompressed gob data.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed artifact size in bytes.
	SizeBytes int64 `json:"size_bytes"`
}

// storedFile is the on-disk format for artifact files.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// Store manages artifact persistence under a single directory.
type Store struct {
	baseDir string
	mu      sync.RWMutex

	// latest version per artifact name
	versions map[string]int
}

// New creates an artifact store at the given directory, scanning it for
// existing artifacts.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for model storage
		return nil, fmt.Errorf("create model directory: %w", err)
	}

	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string]int),
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan existing artifacts: %w", err)
	}
	return s, nil
}

// scan records the latest version per artifact from existing files.
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, version := parseFilename(entry.Name())
		if name == "" {
			continue
		}
		if current, ok := s.versions[name]; !ok || version > current {
			s.versions[name] = version
		}
	}
	return nil
}

// parseFilename extracts artifact name and version from a filename like
// "als_v3.gob.gz".
func parseFilename(filename string) (name string, version int) {
	const suffix = ".gob.gz"
	if len(filename) <= len(suffix) || filename[len(filename)-len(suffix):] != suffix {
		return "", 0
	}
	stem := filename[:len(filename)-len(suffix)]

	lastVIdx := -1
	for i := len(stem) - 1; i >= 1; i-- {
		if stem[i] == 'v' && stem[i-1] == '_' {
			lastVIdx = i - 1
			break
		}
	}
	if lastVIdx < 0 {
		return "", 0
	}
	if _, err := fmt.Sscanf(stem[lastVIdx+2:], "%d", &version); err != nil {
		return "", 0
	}
	return stem[:lastVIdx], version
}

// Save stores an artifact as the next version and returns its metadata.
func (s *Store) Save(name string, data interface{}) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	raw := buf.Bytes()

	hash := sha256.Sum256(raw)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress %s: %w", name, err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	// Rescan so the next version never collides with a file written by
	// another process over the same directory.
	_ = s.scan() //nolint:errcheck // fall back to versions already recorded
	version := s.versions[name] + 1
	meta := Metadata{
		Name:      name,
		Version:   version,
		SavedAt:   time.Now(),
		Checksum:  hex.EncodeToString(hash[:]),
		SizeBytes: int64(compressed.Len()),
	}

	sf := storedFile{Metadata: meta, CompressedData: compressed.Bytes()}
	if err := s.writeFile(s.artifactPath(name, version), &sf); err != nil {
		return nil, err
	}

	s.versions[name] = version
	return &meta, nil
}

// writeFile writes the artifact through a temp file and rename.
func (s *Store) writeFile(path string, sf *storedFile) error {
	tmp, err := os.CreateTemp(s.baseDir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() //nolint:errcheck // best-effort cleanup on failure

	if err := gob.NewEncoder(tmp).Encode(sf); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("write artifact file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish artifact file: %w", err)
	}
	return nil
}

// Load loads an artifact by name into target. If version is 0, the
// directory is rescanned and the latest version is loaded, so versions
// written by another process (the trainer binary) are picked up. The
// stored checksum is verified before decoding.
func (s *Store) Load(name string, version int, target interface{}) (*Metadata, error) {
	if version == 0 {
		var ok bool
		version, ok = s.latest(name)
		if !ok {
			return nil, fmt.Errorf("no artifact found for %s", name)
		}
	}

	f, err := os.Open(s.artifactPath(name, version)) //nolint:gosec // path is constructed from trusted name parameter
	if err != nil {
		return nil, fmt.Errorf("open artifact file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read artifact file: %w", err)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", name, err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Metadata.Checksum {
		return nil, fmt.Errorf("checksum mismatch for %s v%d: expected %s, got %s",
			name, version, sf.Metadata.Checksum, checksum)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &sf.Metadata, nil
}

// LatestVersion returns the latest version number for an artifact,
// rescanning the directory so versions saved by another process are
// reported.
func (s *Store) LatestVersion(name string) (int, bool) {
	return s.latest(name)
}

// latest rescans the directory and resolves the newest version for
// name. Scanning only raises recorded versions, so a concurrent Save
// is never regressed.
func (s *Store) latest(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.scan() //nolint:errcheck // fall back to versions already recorded
	version, ok := s.versions[name]
	return version, ok
}

// Names returns the artifact names present in the store, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prune removes old versions of an artifact, keeping the latest
// keepVersions.
func (s *Store) Prune(name string, keepVersions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepVersions < 1 {
		keepVersions = 1
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		entryName, v := parseFilename(entry.Name())
		if entryName == name {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	for i := keepVersions; i < len(versions); i++ {
		_ = os.Remove(s.artifactPath(name, versions[i])) //nolint:errcheck // best-effort cleanup of old versions
	}
	return nil
}

// artifactPath returns the file path for an artifact version.
func (s *Store) artifactPath(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d.gob.gz", name, version))
}
