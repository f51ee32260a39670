package redis

import (
	"context"
	"time"

	r "gopkg.in/redis.v5"
)

const prefix = "_CULPRIT_"

type Cache struct {
	client *r.Client
}

func NewRedisCache(url string) (*Cache, error) {
	var opts *r.Options
	var err error

	if opts, err = r.ParseURL(url); err != nil {
		return nil, err
	}

	return &Cache{
		client: r.NewClient(opts),
	}, nil
}

// redis.v5 has no context support, the context is only checked before the call.
func (c Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.client.Get(prefix + key).Bytes()
}

func (c Cache) Set(ctx context.Context, key string, content []byte, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.Set(prefix+key, content, duration).Err()
}
