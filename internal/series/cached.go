// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package series

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/librarium/internal/cache"
	"github.com/tomtom215/librarium/internal/config"
	"github.com/tomtom215/librarium/internal/logging"
	"github.com/tomtom215/librarium/internal/metrics"
)

const breakerCooldown = 30 * time.Second

// negativeTTL bounds how long a miss or an upstream failure is
// remembered, so transient collaborator problems heal quickly.
const negativeTTL = 15 * time.Minute

// cachedAnswer distinguishes "cached miss" from "never asked".
type cachedAnswer struct {
	info *Info
}

// CachedDetector wraps a Detector with a result cache, a circuit
// breaker and a rate limiter. When the collaborator is unreachable or
// rate-limited, lookups degrade to "no series information".
type CachedDetector struct {
	inner    Detector
	results  *cache.Cache
	breaker  *gobreaker.CircuitBreaker[*Info]
	limiter  *rate.Limiter
	cacheTTL time.Duration
}

// NewCachedDetector wires the resilience layers around inner.
func NewCachedDetector(cfg config.SeriesConfig, inner Detector, results *cache.Cache) *CachedDetector {
	maxFail := cfg.BreakerMaxFail
	if maxFail == 0 {
		maxFail = 5
	}
	breaker := gobreaker.NewCircuitBreaker[*Info](gobreaker.Settings{
		Name:    "series-detector",
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFail
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("series detector breaker state changed")
		},
	})

	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &CachedDetector{
		inner:    inner,
		results:  results,
		breaker:  breaker,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		cacheTTL: cfg.CacheTTL,
	}
}

// Lookup resolves series info for one book, consulting the cache
// first. Failures are soft: the caller gets nil info, never an error
// from the resilience machinery itself.
func (d *CachedDetector) Lookup(ctx context.Context, title, author string) (*Info, error) {
	key := cache.GenerateKey("series", map[string]string{"title": title, "author": author})

	if cached, ok := d.results.Get(key); ok {
		if ans, ok := cached.(cachedAnswer); ok {
			return ans.info, nil
		}
	}

	if !d.limiter.Allow() {
		metrics.SeriesLookups.WithLabelValues("rejected").Inc()
		return nil, nil
	}

	info, err := d.breaker.Execute(func() (*Info, error) {
		return d.inner.Lookup(ctx, title, author)
	})
	if err != nil {
		metrics.SeriesLookups.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("title", title).Msg("series lookup failed")
		d.results.SetWithTTL(key, cachedAnswer{}, negativeTTL)
		return nil, nil
	}

	if info == nil {
		metrics.SeriesLookups.WithLabelValues("miss").Inc()
		d.results.SetWithTTL(key, cachedAnswer{}, negativeTTL)
		return nil, nil
	}

	metrics.SeriesLookups.WithLabelValues("ok").Inc()
	d.results.SetWithTTL(key, cachedAnswer{info: info}, d.cacheTTL)
	return info, nil
}
