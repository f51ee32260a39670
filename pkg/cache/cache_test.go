package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apicache "github.com/openshift/culprit/pkg/apis/cache"
)

type pseudoCache struct {
	cache map[string][]byte
	ttl   map[string]time.Duration
}

func newPseudoCache() *pseudoCache {
	return &pseudoCache{cache: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (c *pseudoCache) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := c.cache[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return b, nil
}

func (c *pseudoCache) Set(_ context.Context, key string, content []byte, duration time.Duration) error {
	c.cache[key] = content
	c.ttl[key] = duration
	return nil
}

type payload struct {
	Names []string
}

func TestGetOrGenerate(t *testing.T) {
	ctx := context.Background()
	c := newPseudoCache()
	calls := 0
	gen := func() (payload, error) {
		calls++
		return payload{Names: []string{"a", "b"}}, nil
	}

	got, err := GetOrGenerate(ctx, c, apicache.RequestOptions{Retention: time.Hour}, "k", gen)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Names)
	assert.Equal(t, time.Hour, c.ttl["k"])

	got, err = GetOrGenerate(ctx, c, apicache.RequestOptions{}, "k", gen)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Names)
	assert.Equal(t, 1, calls, "second call should be served from cache")

	_, err = GetOrGenerate(ctx, c, apicache.RequestOptions{ForceRefresh: true}, "k", gen)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGetOrGenerateErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c := newPseudoCache()
	_, err := GetOrGenerate(ctx, c, apicache.RequestOptions{}, "k", func() (payload, error) {
		return payload{}, errors.New("boom")
	})
	require.Error(t, err)
	assert.Empty(t, c.cache)
}

func TestGetOrGenerateNilCache(t *testing.T) {
	got, err := GetOrGenerate(context.Background(), nil, apicache.RequestOptions{}, "k", func() (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestLookupUndecodable(t *testing.T) {
	c := newPseudoCache()
	c.cache["k"] = []byte("not json")
	_, ok := Lookup[payload](context.Background(), c, "k")
	assert.False(t, ok)
}
