package compressed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type PseudoCache struct {
	cache map[string][]byte
}

func (c *PseudoCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, ok := c.cache[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found", key)
	}
	return b, nil
}

func (c *PseudoCache) Set(ctx context.Context, key string, content []byte, duration time.Duration) error {
	c.cache[key] = content
	return nil
}

const data = `[{"id":"KPdPb7SBRyq1lFeqsQzwQQ","label":"test-linux1804-64/opt-mochitest-plain-1","result":"testfailed","classification":"not classified"},{"id":"KPdPb7SBRyq1lFeqsQzwQQ","label":"test-linux1804-64/opt-mochitest-plain-1","result":"success"}]`

func TestPseudoCache(t *testing.T) {
	pseudo := &PseudoCache{cache: make(map[string][]byte)}
	cache, err := NewCompressedCache(pseudo)
	require.NoError(t, err)

	err = cache.Set(context.TODO(), "testKey", []byte(data), time.Hour)
	require.NoError(t, err)

	_, stored := pseudo.cache[cachePrefix+"testKey"]
	assert.True(t, stored, "value should be stored under the compressed prefix")

	cacheData, err := cache.Get(context.TODO(), "testKey")
	require.NoError(t, err)
	assert.Equal(t, data, string(cacheData))
}

func TestEmptyValueIsNotStored(t *testing.T) {
	pseudo := &PseudoCache{cache: make(map[string][]byte)}
	cache, err := NewCompressedCache(pseudo)
	require.NoError(t, err)

	require.NoError(t, cache.Set(context.TODO(), "empty", nil, time.Hour))
	assert.Empty(t, pseudo.cache)
}

func TestCorruptItem(t *testing.T) {
	pseudo := &PseudoCache{cache: make(map[string][]byte)}
	cache, err := NewCompressedCache(pseudo)
	require.NoError(t, err)

	pseudo.cache[cachePrefix+"short"] = []byte("tiny")
	_, err = cache.Get(context.TODO(), "short")
	assert.Error(t, err)

	compressed, checksum, err := compress([]byte(data))
	require.NoError(t, err)
	checksum[0] ^= 0xff
	pseudo.cache[cachePrefix+"bad"] = append(compressed, checksum[:]...)
	_, err = cache.Get(context.TODO(), "bad")
	assert.EqualError(t, err, "check sum validation did not match")
}

func TestCompression(t *testing.T) {
	compressed, checksum, err := compress([]byte(data))
	require.NoError(t, err)
	require.NotNil(t, compressed)

	uncompressed, err := uncompress(compressed, checksum)
	require.NoError(t, err)
	assert.Equal(t, data, string(uncompressed))
}
