// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/librarium/config.yaml",
	"/etc/librarium/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix is the prefix shared by all environment overrides.
const EnvPrefix = "LIBRARIUM_"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8290,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/librarium.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		State: StateConfig{
			Dir: "/data/state",
		},
		Models: ModelConfig{
			Dir:      "/data/models",
			IndexDir: "/data/models/indices",
		},
		Cache: CacheConfig{
			DefaultTTL:      time.Hour,
			CleanupInterval: 5 * time.Minute,
			MaxEntries:      10000,
		},
		Content: ContentConfig{
			SampleSize:        50000,
			ChunkSize:         10000,
			VectorCacheSize:   1000,
			VectorCacheEvict:  100,
			RecentLikesWindow: 20,
			FlatThreshold:     1000,
			NProbe:            8,
			Dimensions:        256,
		},
		Collab: CollabConfig{
			Factors:         64,
			Iterations:      50,
			Regularization:  0.1,
			Alpha:           40.0,
			NumWorkers:      0, // 0 = use runtime.NumCPU()
			TopKSimilar:     10,
			SimilarityFloor: 0.5,
			LikeWeight:      3.0,
			DislikeWeight:   0.1,
			LikesPerUserCap: 100,
		},
		Retrain: RetrainConfig{
			Threshold: 10,
			Timeout:   600 * time.Second,
			Command:   "/usr/local/bin/librarium-train",
		},
		Series: SeriesConfig{
			Enabled:        false,
			URL:            "",
			Timeout:        10 * time.Second,
			RatePerSecond:  2.0,
			RateBurst:      4,
			BreakerMaxFail: 5,
			CacheTTL:       15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		API: APIConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			MaxLimit:        100,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults (struct above)
//  2. Optional YAML config file
//  3. LIBRARIUM_-prefixed environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps LIBRARIUM_* variable names onto config paths.
// Unknown variables are dropped so that unrelated environment noise
// cannot leak into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	envMappings := map[string]string{
		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Storage
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",
		"state_dir":         "state.dir",
		"model_dir":         "models.dir",
		"index_dir":         "models.index_dir",

		// Cache
		"cache_default_ttl":      "cache.default_ttl",
		"cache_cleanup_interval": "cache.cleanup_interval",
		"cache_max_entries":      "cache.max_entries",

		// Content engine
		"content_sample_size":         "content.sample_size",
		"content_chunk_size":          "content.chunk_size",
		"content_vector_cache_size":   "content.vector_cache_size",
		"content_vector_cache_evict":  "content.vector_cache_evict",
		"content_recent_likes_window": "content.recent_likes_window",
		"content_flat_threshold":      "content.flat_threshold",
		"content_nprobe":              "content.nprobe",
		"content_dimensions":          "content.dimensions",

		// Collaborative engine
		"collab_factors":            "collab.factors",
		"collab_iterations":         "collab.iterations",
		"collab_regularization":     "collab.regularization",
		"collab_alpha":              "collab.alpha",
		"collab_workers":            "collab.num_workers",
		"collab_top_k_similar":      "collab.top_k_similar",
		"collab_similarity_floor":   "collab.similarity_floor",
		"collab_like_weight":        "collab.like_weight",
		"collab_dislike_weight":     "collab.dislike_weight",
		"collab_likes_per_user_cap": "collab.likes_per_user_cap",

		// Retraining trigger
		"retrain_threshold": "retrain.threshold",
		"retrain_timeout":   "retrain.timeout",
		"retrain_command":   "retrain.command",

		// Series detection
		"series_enabled":          "series.enabled",
		"series_url":              "series.url",
		"series_timeout":          "series.timeout",
		"series_rate_per_second":  "series.rate_per_second",
		"series_rate_burst":       "series.rate_burst",
		"series_breaker_max_fail": "series.breaker_max_fail",
		"series_cache_ttl":        "series.cache_ttl",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// API
		"api_rate_limit_reqs":   "api.rate_limit_reqs",
		"api_rate_limit_window": "api.rate_limit_window",
		"api_max_limit":         "api.max_limit",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
