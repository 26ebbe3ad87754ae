package redis

import (
	"context"
	"errors"
	"time"

	"github.com/classtrack/attendance-ledger/internal/domain/attendance"
	"github.com/classtrack/attendance-ledger/internal/domain/shared"
)

// SummaryCache implements attendance.SummaryCache on top of Cache.
//
// Summaries are JSON values keyed by subject under PrefixSummary. A stale
// entry is harmless: mutations invalidate, and the TTL bounds staleness when
// an invalidation is lost.
type SummaryCache struct {
	cache *Cache
}

// NewSummaryCache creates a Redis-backed summary cache.
func NewSummaryCache(cache *Cache) *SummaryCache {
	return &SummaryCache{cache: cache}
}

func summaryKey(subjectID string) string {
	return PrefixSummary + subjectID
}

// Get returns the cached summary or shared.ErrCacheMiss.
func (c *SummaryCache) Get(ctx context.Context, subjectID string) (*attendance.Summary, error) {
	var summary attendance.Summary
	if err := c.cache.Get(ctx, summaryKey(subjectID), &summary); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrCacheMiss
		}
		return nil, err
	}
	return &summary, nil
}

// Set stores the summary with the given TTL. A zero TTL falls back to
// TTLSummaryCache.
func (c *SummaryCache) Set(ctx context.Context, summary attendance.Summary, ttl time.Duration) error {
	if ttl == 0 {
		ttl = TTLSummaryCache
	}
	return c.cache.Set(ctx, summaryKey(summary.SubjectID), summary, ttl)
}

// Invalidate drops the subject's cached summary.
func (c *SummaryCache) Invalidate(ctx context.Context, subjectID string) error {
	return c.cache.Delete(ctx, summaryKey(subjectID))
}
