package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDigestKey_DayGranularity(t *testing.T) {
	morning := time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 1, 6, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "classtrack:digest:2025-01-06", digestKey(morning))
	assert.Equal(t, digestKey(morning), digestKey(evening), "same day maps to the same key")
	assert.NotEqual(t, digestKey(morning), digestKey(morning.AddDate(0, 0, 1)))
}
