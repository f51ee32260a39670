package flags

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
	"github.com/openshift/culprit/pkg/datasource/hgmo"
)

const fixture = `
branch: autoland
pushes:
  - id: 1
    revs: [0123456789abcdef0123456789abcdef01234567]
    date: 2024-03-01T00:00:00Z
    tasks:
      - id: t1
        label: build-linux
        result: success
`

func TestGetHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pushes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	config := configv1.Default()
	config.Repos = map[string]string{"try": "try"}
	sf := &SourceFlags{Fixture: path}
	sf.Apply(config)
	assert.Equal(t, []string{configv1.SourceLocal}, config.Sources)

	h, err := GetHandler(context.Background(), config, SourceDeps{})
	require.NoError(t, err)
	assert.Equal(t, []string{"local"}, h.Sources())

	tasks, err := h.PushTasks(context.Background(), "autoland", "0123456789ab")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "build-linux", tasks[0].Label)

	config.Sources = []string{configv1.SourceLocal, configv1.SourceTreeherder, configv1.SourceHgmo}
	h, err = GetHandler(context.Background(), config, SourceDeps{})
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "treeherder", "hgmo"}, h.Sources())
}

func TestGetHandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
	}{
		{name: "none", sources: nil},
		{name: "unknown", sources: []string{"ftp"}},
		{name: "local without fixture", sources: []string{configv1.SourceLocal}},
		{name: "db without flags", sources: []string{configv1.SourceDB}},
		{name: "bigquery without client", sources: []string{configv1.SourceBigQuery}},
		{name: "gcs without bucket", sources: []string{configv1.SourceGCS}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := configv1.Default()
			config.Sources = tc.sources
			_, err := GetHandler(context.Background(), config, SourceDeps{})
			assert.Error(t, err)
		})
	}
}

func TestHgmoRepos(t *testing.T) {
	config := configv1.Default()
	config.Repos = map[string]string{"try": "try"}
	src, err := newSource(context.Background(), configv1.SourceHgmo, config, SourceDeps{})
	require.NoError(t, err)
	repos := src.(*hgmo.Source).Repos
	assert.Equal(t, "try", repos["try"])
	assert.Equal(t, "integration/autoland", repos["autoland"])
}

func TestAnalysisFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := NewAnalysisFlags()
	f.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--tier", "2", "--kind", "group"}))
	require.NoError(t, f.Validate())

	config := configv1.Default()
	config.MaxDepth = 7
	f.Apply(config)
	assert.Equal(t, 7, config.MaxDepth, "unset flags keep the config value")
	assert.Equal(t, 2, config.Tier)

	kind, err := f.RunnableKind()
	require.NoError(t, err)
	assert.Equal(t, v1.KindGroup, kind)

	f.Kind = "suite"
	assert.Error(t, f.Validate())
	f.Kind = "label"
	f.MaxDepth = 0
	assert.Error(t, f.Validate())
}

func TestCacheFlags(t *testing.T) {
	f := NewCacheFlags()
	f.Backend = CacheNone
	c, err := f.GetCacheClient(nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	f.Backend = CacheBadger
	f.Compress = true
	c, err = f.GetCacheClient(nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NoError(t, c.Set(context.Background(), "k", []byte("value"), 0))
	got, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	for _, backend := range []string{CacheRedis, CacheS3, "memcached"} {
		f := NewCacheFlags()
		f.Backend = backend
		f.RedisURL = ""
		assert.Error(t, f.Validate(), backend)
	}

	f = NewCacheFlags()
	f.Backend = CacheBigQuery
	_, err = f.GetCacheClient(nil)
	assert.Error(t, err)
}
