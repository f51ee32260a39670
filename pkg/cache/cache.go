// Package cache contains helpers on top of the cache.Cache interface. The backends live
// in the sub packages.
package cache

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openshift/culprit/pkg/apis/cache"
	"github.com/openshift/culprit/pkg/metrics"
)

var defaultRetention = 24 * time.Hour

// GetOrGenerate returns the cached value for key, or runs generateFn and stores its
// result. A nil cache always generates. Cache failures never fail the request.
func GetOrGenerate[T any](ctx context.Context, c cache.Cache, opts cache.RequestOptions, key string, generateFn func() (T, error)) (T, error) {
	if key == "" {
		var zero T
		panic("you cannot use empty string as a cache key for " + reflect.TypeOf(zero).String())
	}

	if c == nil {
		return generateFn()
	}

	if !opts.ForceRefresh {
		if cr, ok := Lookup[T](ctx, c, key); ok {
			log.WithField("key", key).Debug("cache hit")
			return cr, nil
		}
		log.Debugf("cache miss for cache key: %s", key)
	}

	result, err := generateFn()
	if err != nil {
		return result, err
	}
	Store(ctx, c, opts, key, result)
	return result, nil
}

// Store marshals value and writes it to the cache, logging failures.
func Store(ctx context.Context, c cache.Cache, opts cache.RequestOptions, key string, value any) {
	if c == nil {
		return
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	b, err := json.Marshal(value)
	if err != nil {
		log.WithError(err).Warnf("couldn't marshal cache item %s", key)
		return
	}
	if err := c.Set(ctx, key, b, retention); err != nil {
		log.WithError(err).Warningf("couldn't persist new item to cache")
		return
	}
	log.Debugf("cache set for cache key: %s", key)
}

// Lookup decodes a cached value. The boolean is false on a miss or a decode failure.
func Lookup[T any](ctx context.Context, c cache.Cache, key string) (T, bool) {
	var cr T
	if c == nil {
		return cr, false
	}
	res, err := c.Get(ctx, key)
	if err != nil || res == nil {
		metrics.CacheRequests.WithLabelValues(metrics.CacheMiss).Inc()
		return cr, false
	}
	if err := json.Unmarshal(res, &cr); err != nil {
		metrics.CacheRequests.WithLabelValues(metrics.CacheError).Inc()
		log.WithError(err).Warnf("discarding undecodable cache item %s", key)
		return cr, false
	}
	metrics.CacheRequests.WithLabelValues(metrics.CacheHit).Inc()
	return cr, true
}
