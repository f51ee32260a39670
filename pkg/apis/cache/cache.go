package cache

import (
	"context"
	"time"
)

// Cache is an opaque key/value store. Get returns an error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, content []byte, duration time.Duration) error
}

type RequestOptions struct {
	ForceRefresh bool
	// Retention is how long generated values are kept.
	Retention time.Duration
}
