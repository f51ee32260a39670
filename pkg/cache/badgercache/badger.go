// Package badgercache is a local cache on top of badger, either on disk or in memory.
// Entries expire through badger's own TTL support.
package badgercache

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrMiss is returned by Get for absent or expired keys.
var ErrMiss = errors.New("badger cache miss")

type Cache struct {
	db *badger.DB
}

type logger struct {
	entry *log.Entry
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l logger) Warningf(format string, args ...interface{}) {
	l.entry.Warningf(format, args...)
}

func (l logger) Infof(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l logger) Debugf(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// NewBadgerCache opens a cache stored under dir. An empty dir keeps everything in memory.
func NewBadgerCache(dir string) (*Cache, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithNumVersionsToKeep(1).
		WithLogger(logger{entry: log.WithField("cache", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger cache")
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	return value, err
}

func (c *Cache) Set(ctx context.Context, key string, content []byte, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), content)
		if duration > 0 {
			e = e.WithTTL(duration)
		}
		return txn.SetEntry(e)
	})
}

// RunGC reclaims space from expired entries until ctx is done. It is a no-op for in
// memory caches.
func (c *Cache) RunGC(ctx context.Context, interval time.Duration) {
	if c.db.Opts().InMemory {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for c.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
