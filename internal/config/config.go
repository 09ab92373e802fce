// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package config holds the application configuration, loaded with layered
// precedence: built-in defaults, then an optional YAML file, then
// LIBRARIUM_-prefixed environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	State    StateConfig    `koanf:"state"`
	Models   ModelConfig    `koanf:"models"`
	Cache    CacheConfig    `koanf:"cache"`
	Content  ContentConfig  `koanf:"content"`
	Collab   CollabConfig   `koanf:"collab"`
	Retrain  RetrainConfig  `koanf:"retrain"`
	Series   SeriesConfig   `koanf:"series"`
	Logging  LoggingConfig  `koanf:"logging"`
	API      APIConfig      `koanf:"api"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig configures the DuckDB catalog and interaction stores.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// StateConfig configures the Badger store that holds author preferences,
// the interaction counter, the user-similarity table, and training history.
type StateConfig struct {
	Dir string `koanf:"dir"`
}

// ModelConfig locates trained artifacts on disk.
type ModelConfig struct {
	Dir      string `koanf:"dir"`       // pipeline + ALS artifacts
	IndexDir string `koanf:"index_dir"` // per-language vector indices
}

// CacheConfig configures the in-memory TTL result cache.
type CacheConfig struct {
	DefaultTTL      time.Duration `koanf:"default_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	MaxEntries      int           `koanf:"max_entries"`
}

// ContentConfig tunes the content-based engine.
type ContentConfig struct {
	SampleSize        int `koanf:"sample_size"` // fit-phase random sample
	ChunkSize         int `koanf:"chunk_size"`  // stream-phase batch size
	VectorCacheSize   int `koanf:"vector_cache_size"`
	VectorCacheEvict  int `koanf:"vector_cache_evict"`
	RecentLikesWindow int `koanf:"recent_likes_window"` // alternative-anchor pool
	FlatThreshold     int `koanf:"flat_threshold"`      // flat vs ivfflat cutover
	NProbe            int `koanf:"nprobe"`
	Dimensions        int `koanf:"dimensions"`
}

// CollabConfig tunes ALS and the similar-user cascade.
type CollabConfig struct {
	Factors         int     `koanf:"factors"`
	Iterations      int     `koanf:"iterations"`
	Regularization  float64 `koanf:"regularization"`
	Alpha           float64 `koanf:"alpha"`
	NumWorkers      int     `koanf:"num_workers"` // 0 = runtime.NumCPU()
	TopKSimilar     int     `koanf:"top_k_similar"`
	SimilarityFloor float64 `koanf:"similarity_floor"`
	LikeWeight      float64 `koanf:"like_weight"`
	DislikeWeight   float64 `koanf:"dislike_weight"`
	LikesPerUserCap int     `koanf:"likes_per_user_cap"`
}

// RetrainConfig configures the counter-driven retraining trigger.
type RetrainConfig struct {
	Threshold int           `koanf:"threshold"`
	Timeout   time.Duration `koanf:"timeout"`
	Command   string        `koanf:"command"` // path to the training binary
}

// SeriesConfig configures the external series-detection collaborator.
type SeriesConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	RatePerSecond  float64       `koanf:"rate_per_second"`
	RateBurst      int           `koanf:"rate_burst"`
	BreakerMaxFail uint32        `koanf:"breaker_max_fail"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// APIConfig configures request limits on the HTTP surface.
type APIConfig struct {
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	MaxLimit        int           `koanf:"max_limit"` // largest allowed ?limit=
}

// Validate checks cross-field consistency. Called by Load; exported so tests
// can exercise hand-built configs.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}
	if c.Models.Dir == "" || c.Models.IndexDir == "" {
		return fmt.Errorf("models.dir and models.index_dir are required")
	}
	if c.Content.Dimensions <= 0 {
		return fmt.Errorf("content.dimensions must be positive, got %d", c.Content.Dimensions)
	}
	if c.Content.VectorCacheEvict > c.Content.VectorCacheSize {
		return fmt.Errorf("content.vector_cache_evict (%d) exceeds content.vector_cache_size (%d)",
			c.Content.VectorCacheEvict, c.Content.VectorCacheSize)
	}
	if c.Collab.Factors <= 0 || c.Collab.Iterations <= 0 {
		return fmt.Errorf("collab.factors and collab.iterations must be positive")
	}
	if c.Collab.SimilarityFloor < -1 || c.Collab.SimilarityFloor > 1 {
		return fmt.Errorf("collab.similarity_floor must be in [-1,1], got %f", c.Collab.SimilarityFloor)
	}
	if c.Retrain.Threshold <= 0 {
		return fmt.Errorf("retrain.threshold must be positive, got %d", c.Retrain.Threshold)
	}
	if c.Retrain.Timeout <= 0 {
		return fmt.Errorf("retrain.timeout must be positive")
	}
	if c.Series.Enabled && c.Series.URL == "" {
		return fmt.Errorf("series.url is required when series detection is enabled")
	}
	return nil
}
