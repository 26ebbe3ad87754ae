package redis

import (
	"context"
	"time"

	"github.com/classtrack/attendance-ledger/pkg/timeutil"
)

// DigestDeduper marks dates a reminder digest was sent for. Backed by SetNX
// so concurrent workers agree on who sends.
type DigestDeduper struct {
	cache *Cache
}

// NewDigestDeduper creates a Redis-backed digest deduper.
func NewDigestDeduper(cache *Cache) *DigestDeduper {
	return &DigestDeduper{cache: cache}
}

// MarkSent records the date and returns false when it was already marked.
func (d *DigestDeduper) MarkSent(ctx context.Context, date time.Time) (bool, error) {
	return d.cache.SetNX(ctx, digestKey(date), "1", TTLDigestDedup)
}

// digestKey builds the dedup key for a date, truncated to day granularity.
func digestKey(date time.Time) string {
	return PrefixDigest + timeutil.FormatDateStr(timeutil.DayOf(date))
}
