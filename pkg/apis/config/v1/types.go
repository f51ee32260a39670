package v1

import "time"

// Source names, used to order the data sources.
const (
	SourceLocal      = "local"
	SourceDB         = "db"
	SourceBigQuery   = "bigquery"
	SourceGCS        = "gcs"
	SourceTreeherder = "treeherder"
	SourceHgmo       = "hgmo"
)

const (
	DefaultMaxDepth       = 20
	DefaultConcurrency    = 8
	DefaultCacheRetention = 7 * 24 * time.Hour
	DefaultRateLimit      = 5.0
)

type CulpritConfig struct {
	// MaxDepth bounds every window walk, in pushes.
	MaxDepth int `yaml:"maxDepth"`

	// Tier drops tasks with a higher tier. Zero keeps every task.
	Tier int `yaml:"tier,omitempty"`

	// Concurrency bounds the parallel task fetches of a window prefetch.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Sources lists the data sources in priority order.
	Sources []string `yaml:"sources"`

	Cache      CacheConfig    `yaml:"cache,omitempty"`
	Treeherder EndpointConfig `yaml:"treeherder,omitempty"`
	Hgmo       EndpointConfig `yaml:"hgmo,omitempty"`
	GCS        GCSConfig      `yaml:"gcs,omitempty"`
	Local      LocalConfig    `yaml:"local,omitempty"`

	// Repos maps branches to their repository path on the VCS host, when they differ.
	Repos map[string]string `yaml:"repos,omitempty"`
}

type CacheConfig struct {
	// Retention is how long fetched push tasks are kept.
	Retention time.Duration `yaml:"retention,omitempty"`
}

type EndpointConfig struct {
	URL string `yaml:"url,omitempty"`

	// RateLimit is in requests per second. Negative disables the limiter.
	RateLimit float64 `yaml:"rateLimit,omitempty"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

type LocalConfig struct {
	// Fixture is a YAML file of pushes and tasks.
	Fixture string `yaml:"fixture,omitempty"`
}

// Default returns the configuration used without a config file: the public CI services.
func Default() *CulpritConfig {
	c := &CulpritConfig{
		Sources: []string{SourceTreeherder, SourceHgmo},
	}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset values.
func (c *CulpritConfig) ApplyDefaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Cache.Retention <= 0 {
		c.Cache.Retention = DefaultCacheRetention
	}
	if c.Treeherder.RateLimit == 0 {
		c.Treeherder.RateLimit = DefaultRateLimit
	}
	if c.Hgmo.RateLimit == 0 {
		c.Hgmo.RateLimit = DefaultRateLimit
	}
}
