package flags

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/openshift/culprit/pkg/apis/cache"
	"github.com/openshift/culprit/pkg/bigquery"
	"github.com/openshift/culprit/pkg/cache/badgercache"
	"github.com/openshift/culprit/pkg/cache/bigquerycache"
	"github.com/openshift/culprit/pkg/cache/compressed"
	"github.com/openshift/culprit/pkg/cache/redis"
	"github.com/openshift/culprit/pkg/cache/s3cache"
)

const (
	CacheNone     = "none"
	CacheRedis    = "redis"
	CacheBadger   = "badger"
	CacheS3       = "s3"
	CacheBigQuery = "bigquery"
)

// CacheFlags holds caching configuration information for culprit.
type CacheFlags struct {
	Backend   string
	RedisURL  string
	BadgerDir string
	Compress  bool
	S3        s3cache.Config

	BigQueryReadOnly bool
	BigQueryExpiry   time.Duration
}

func NewCacheFlags() *CacheFlags {
	f := &CacheFlags{
		Backend:        CacheNone,
		RedisURL:       os.Getenv("REDIS_URL"),
		BigQueryExpiry: 7 * 24 * time.Hour,
	}
	if f.RedisURL != "" {
		f.Backend = CacheRedis
	}
	return f
}

func (f *CacheFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Backend, "cache", f.Backend, "Cache backend: {none,redis,badger,s3,bigquery}")
	fs.StringVar(&f.RedisURL, "redis-url", f.RedisURL, "Redis URL for caching")
	fs.StringVar(&f.BadgerDir, "badger-dir", f.BadgerDir, "Directory of the badger cache; in memory when empty")
	fs.BoolVar(&f.Compress, "cache-compress", f.Compress, "Gzip values before storing them in redis, badger or s3")

	fs.StringVar(&f.S3.Bucket, "s3-bucket", f.S3.Bucket, "S3 bucket for caching")
	fs.StringVar(&f.S3.Prefix, "s3-prefix", f.S3.Prefix, "Key prefix inside the S3 bucket")
	fs.StringVar(&f.S3.Region, "s3-region", f.S3.Region, "S3 region (default us-east-1)")
	fs.StringVar(&f.S3.EndpointURL, "s3-endpoint", f.S3.EndpointURL, "Endpoint of an S3 compatible store")
	fs.BoolVar(&f.S3.ForcePathStyle, "s3-force-path-style", f.S3.ForcePathStyle, "Use path style S3 addressing")
	f.S3.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	f.S3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	fs.BoolVar(&f.BigQueryReadOnly, "bigquery-cache-read-only", f.BigQueryReadOnly, "Never write to the BigQuery cache table")
	fs.DurationVar(&f.BigQueryExpiry, "bigquery-cache-expiry", f.BigQueryExpiry, "Oldest BigQuery cache entries considered")
}

func (f *CacheFlags) Validate() error {
	switch f.Backend {
	case CacheNone, CacheBadger, CacheBigQuery:
	case CacheRedis:
		if f.RedisURL == "" {
			return errors.New("--redis-url is required for the redis cache")
		}
	case CacheS3:
		if f.S3.Bucket == "" {
			return errors.New("--s3-bucket is required for the s3 cache")
		}
	default:
		return errors.Errorf("unknown cache backend %q", f.Backend)
	}
	return nil
}

// GetCacheClient returns nil when caching is off. The bigquery backend needs bqc, which
// may itself carry a warm cache.
func (f *CacheFlags) GetCacheClient(bqc *bigquery.Client) (cache.Cache, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var c cache.Cache
	var err error
	switch f.Backend {
	case CacheNone:
		return nil, nil
	case CacheRedis:
		c, err = redis.NewRedisCache(f.RedisURL)
	case CacheBadger:
		c, err = badgercache.NewBadgerCache(f.BadgerDir)
	case CacheS3:
		c, err = s3cache.NewS3Cache(f.S3)
	case CacheBigQuery:
		if bqc == nil {
			return nil, errors.New("the bigquery cache needs a bigquery client")
		}
		// already compressed
		return bigquerycache.NewBigQueryCache(bqc, f.BigQueryExpiry, f.BigQueryReadOnly)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "couldn't open %s cache", f.Backend)
	}
	if f.Compress {
		return compressed.NewCompressedCache(c)
	}
	return c, nil
}

// RunMaintenance runs background upkeep of the cache until ctx is done.
func RunMaintenance(ctx context.Context, c cache.Cache) {
	if cc, ok := c.(*compressed.Cache); ok {
		c = cc.Cache
	}
	if bc, ok := c.(*badgercache.Cache); ok {
		go bc.RunGC(ctx, 5*time.Minute)
	}
}
