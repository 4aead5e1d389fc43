package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetAndETag(t *testing.T) {
	c := New(true)
	defer c.Close()

	etag := c.Set(PrefixRaces+"2026", []byte(`{"races":[]}`), TTLRaces)
	data, got, ok := c.Get(PrefixRaces + "2026")
	require.True(t, ok)
	assert.Equal(t, `{"races":[]}`, string(data))
	assert.Equal(t, etag, got)
	assert.Equal(t, ComputeETag([]byte(`{"races":[]}`)), etag)
}

func TestExpiredEntryMisses(t *testing.T) {
	c := New(true)
	defer c.Close()
	c.Set("k", []byte("v"), -time.Second)
	_, _, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDisabledCacheStoresNothing(t *testing.T) {
	c := New(false)
	etag := c.Set("k", []byte("v"), time.Minute)
	assert.NotEmpty(t, etag)
	_, _, ok := c.Get("k")
	assert.False(t, ok)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(true)
	defer c.Close()
	c.Set(PrefixMarkets+"r1", []byte("a"), TTLMarkets)
	c.Set(PrefixMarkets+"r2", []byte("b"), TTLMarkets)
	c.Set(PrefixRaces+"all", []byte("c"), TTLRaces)

	assert.Equal(t, 2, c.InvalidatePrefix(PrefixMarkets))
	_, _, ok := c.Get(PrefixRaces + "all")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats()["total_keys"])
}

func TestCheckETagMatch(t *testing.T) {
	assert.False(t, CheckETagMatch("", `W/"a"`))
	assert.True(t, CheckETagMatch("*", `W/"a"`))
	assert.True(t, CheckETagMatch(`W/"b", W/"a"`, `W/"a"`))
	assert.False(t, CheckETagMatch(`W/"b"`, `W/"a"`))
}
