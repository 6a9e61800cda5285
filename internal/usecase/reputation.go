package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maliciousMarker = "malicious"

// DefaultReputationTTL is how long a positive verdict stays cached.
const DefaultReputationTTL = 10 * time.Minute

// CachedReputation fronts a ReputationChecker with a cache of positive
// verdicts. Negative verdicts are never cached and cache failures are
// ignored, so the checker's fail-open behavior is unchanged.
type CachedReputation struct {
	checker ReputationChecker
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
	policy  retryPolicy
	group   singleflight.Group
}

// NewCachedReputation wraps checker. A nil cache only deduplicates
// concurrent lookups.
func NewCachedReputation(checker ReputationChecker, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedReputation {
	if ttl <= 0 {
		ttl = DefaultReputationTTL
	}
	return &CachedReputation{
		checker: checker,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.Named("reputation_cache"),
		policy: retryPolicy{
			attempts:       2,
			initialBackoff: 20 * time.Millisecond,
			maxBackoff:     100 * time.Millisecond,
		},
	}
}

// CheckMalicious implements ReputationChecker.
func (c *CachedReputation) CheckMalicious(ctx context.Context, url string) bool {
	key := reputationKey(url)
	if c.cache != nil {
		var cached string
		err := withCacheRetry(ctx, c.policy, c.logger, "", "cache.get.reputation", func() error {
			v, err := c.cache.Get(ctx, key)
			cached = v
			return err
		})
		switch {
		case err == nil && cached == maliciousMarker:
			return true
		case err != nil && !IsCacheMiss(err):
			c.logger.Warn("reputation cache read failed", zap.Error(err))
		}
	}

	// The shared lookup must not die with whichever caller started it.
	lookupCtx := context.WithoutCancel(ctx)
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		return c.checker.CheckMalicious(lookupCtx, url), nil
	})
	malicious, _ := v.(bool)
	if malicious {
		c.MarkMalicious(ctx, url)
	}
	return malicious
}

// MarkMalicious records a positive verdict for url.
func (c *CachedReputation) MarkMalicious(ctx context.Context, url string) {
	if c.cache == nil {
		return
	}
	err := withCacheRetry(ctx, c.policy, c.logger, "", "cache.set.reputation", func() error {
		return c.cache.Set(ctx, reputationKey(url), maliciousMarker, c.ttl)
	})
	if err != nil {
		c.logger.Warn("reputation cache write failed", zap.Error(err))
	}
}

func reputationKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return "reputation:" + hex.EncodeToString(sum[:])
}
