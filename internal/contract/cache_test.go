package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListingCache(t *testing.T) {
	cache := NewListingCache(time.Minute)
	defer cache.Close()

	_, ok := cache.Get("claims::10")
	assert.False(t, ok)

	cache.Set("claims::10", []ClaimView{{Claim: Claim{ID: 1}}})
	cache.Set("organizations::10", []Organization{})

	value, ok := cache.Get("claims::10")
	assert.True(t, ok)
	assert.Len(t, value.([]ClaimView), 1)

	cache.DeleteByPrefix("claims:")
	_, ok = cache.Get("claims::10")
	assert.False(t, ok)
	_, ok = cache.Get("organizations::10")
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)

	cache.Close()
}

func TestListingCacheExpiry(t *testing.T) {
	cache := NewListingCache(20 * time.Millisecond)
	defer cache.Close()

	cache.Set("organizations::10", []Organization{})
	time.Sleep(40 * time.Millisecond)

	_, ok := cache.Get("organizations::10")
	assert.False(t, ok)

	cache.removeExpired()
	assert.Equal(t, 0, cache.Stats().Size)
}
