package flags

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
	"github.com/openshift/culprit/pkg/bigquery"
	"github.com/openshift/culprit/pkg/datasource"
	"github.com/openshift/culprit/pkg/datasource/bqsource"
	"github.com/openshift/culprit/pkg/datasource/dbsource"
	"github.com/openshift/culprit/pkg/datasource/gcssource"
	"github.com/openshift/culprit/pkg/datasource/hgmo"
	"github.com/openshift/culprit/pkg/datasource/localsource"
	"github.com/openshift/culprit/pkg/datasource/restclient"
	"github.com/openshift/culprit/pkg/datasource/treeherder"
)

// SourceFlags override the data sources of the config file.
type SourceFlags struct {
	Sources       []string
	Fixture       string
	TreeherderURL string
	HgmoURL       string
}

func NewSourceFlags() *SourceFlags {
	return &SourceFlags{}
}

func (f *SourceFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.Sources, "sources", f.Sources,
		"Data sources in priority order: {local,db,bigquery,gcs,treeherder,hgmo}")
	fs.StringVar(&f.Fixture, "fixture", f.Fixture, "YAML fixture for the local source")
	fs.StringVar(&f.TreeherderURL, "treeherder-url", f.TreeherderURL, "Treeherder base URL")
	fs.StringVar(&f.HgmoURL, "hgmo-url", f.HgmoURL, "hg.mozilla.org base URL")
}

// Apply copies the flags that were set into config.
func (f *SourceFlags) Apply(config *configv1.CulpritConfig) {
	if len(f.Sources) > 0 {
		config.Sources = f.Sources
	}
	if f.Fixture != "" {
		config.Local.Fixture = f.Fixture
		if len(f.Sources) == 0 {
			config.Sources = []string{configv1.SourceLocal}
		}
	}
	if f.TreeherderURL != "" {
		config.Treeherder.URL = f.TreeherderURL
	}
	if f.HgmoURL != "" {
		config.Hgmo.URL = f.HgmoURL
	}
}

// SourceDeps are the clients some sources need. They are only used when the source is
// configured.
type SourceDeps struct {
	DBFlags     *DatabaseFlags
	BigQuery    *bigquery.Client
	GoogleFlags *GoogleCloudFlags
}

// GetHandler builds the data handler with the configured sources, in order.
func GetHandler(ctx context.Context, config *configv1.CulpritConfig, deps SourceDeps) (*datasource.Handler, error) {
	if len(config.Sources) == 0 {
		return nil, errors.New("no data sources configured")
	}
	var sources []datasource.Source
	for _, name := range config.Sources {
		src, err := newSource(ctx, name, config, deps)
		if err != nil {
			return nil, errors.WithMessagef(err, "couldn't set up %s source", name)
		}
		sources = append(sources, src)
	}
	h := datasource.NewHandler(sources...)
	log.WithField("sources", h.Sources()).Debug("data handler ready")
	return h, nil
}

func newSource(ctx context.Context, name string, config *configv1.CulpritConfig, deps SourceDeps) (datasource.Source, error) {
	switch name {
	case configv1.SourceLocal:
		if config.Local.Fixture == "" {
			return nil, errors.New("the local source needs a fixture")
		}
		return localsource.Load(config.Local.Fixture)
	case configv1.SourceDB:
		if deps.DBFlags == nil {
			return nil, errors.New("no database configured")
		}
		dbc, err := deps.DBFlags.GetDBClient()
		if err != nil {
			return nil, err
		}
		return dbsource.New(dbc), nil
	case configv1.SourceBigQuery:
		if deps.BigQuery == nil {
			return nil, errors.New("no bigquery project configured")
		}
		return bqsource.New(deps.BigQuery), nil
	case configv1.SourceGCS:
		bucket, prefix := config.GCS.Bucket, config.GCS.Prefix
		credentials := ""
		if deps.GoogleFlags != nil {
			credentials = deps.GoogleFlags.ServiceAccountCredentialFile
			if deps.GoogleFlags.StorageBucket != "" {
				bucket, prefix = deps.GoogleFlags.StorageBucket, deps.GoogleFlags.StoragePrefix
			}
		}
		if bucket == "" {
			return nil, errors.New("the gcs source needs a bucket")
		}
		client, err := gcssource.NewClient(ctx, credentials)
		if err != nil {
			return nil, err
		}
		return gcssource.New(client, bucket, prefix), nil
	case configv1.SourceTreeherder:
		return treeherder.New(restClient(config.Treeherder, treeherder.DefaultURL)), nil
	case configv1.SourceHgmo:
		src := hgmo.New(restClient(config.Hgmo, hgmo.DefaultURL))
		for branch, repo := range config.Repos {
			src.Repos[branch] = repo
		}
		return src, nil
	default:
		return nil, errors.Errorf("unknown data source %q", name)
	}
}

func restClient(endpoint configv1.EndpointConfig, defaultURL string) *restclient.Client {
	u := endpoint.URL
	if u == "" {
		u = defaultURL
	}
	burst := int(endpoint.RateLimit)
	return restclient.New(u, restclient.WithRateLimit(endpoint.RateLimit, burst))
}
