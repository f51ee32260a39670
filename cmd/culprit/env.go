package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/openshift/culprit/pkg/apis/cache"
	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
	"github.com/openshift/culprit/pkg/bigquery"
	"github.com/openshift/culprit/pkg/bigquery/bqlabel"
	"github.com/openshift/culprit/pkg/datasource"
	"github.com/openshift/culprit/pkg/flags"
	"github.com/openshift/culprit/pkg/flags/configflags"
	"github.com/openshift/culprit/pkg/push"
)

// EnvFlags are the flags of every command that reads push data.
type EnvFlags struct {
	ConfigFlags      *configflags.ConfigFlags
	SourceFlags      *flags.SourceFlags
	CacheFlags       *flags.CacheFlags
	DBFlags          *flags.DatabaseFlags
	BigQueryFlags    *flags.BigQueryFlags
	GoogleCloudFlags *flags.GoogleCloudFlags
	AnalysisFlags    *flags.AnalysisFlags
}

func NewEnvFlags() *EnvFlags {
	return &EnvFlags{
		ConfigFlags:      configflags.NewConfigFlags(),
		SourceFlags:      flags.NewSourceFlags(),
		CacheFlags:       flags.NewCacheFlags(),
		DBFlags:          flags.NewDatabaseFlags(),
		BigQueryFlags:    flags.NewBigQueryFlags(),
		GoogleCloudFlags: flags.NewGoogleCloudFlags(),
		AnalysisFlags:    flags.NewAnalysisFlags(),
	}
}

func (f *EnvFlags) BindFlags(fs *pflag.FlagSet) {
	f.ConfigFlags.BindFlags(fs)
	f.SourceFlags.BindFlags(fs)
	f.CacheFlags.BindFlags(fs)
	f.DBFlags.BindFlags(fs)
	f.BigQueryFlags.BindFlags(fs)
	f.GoogleCloudFlags.BindFlags(fs)
	f.AnalysisFlags.BindFlags(fs)
}

func (f *EnvFlags) Validate() error {
	if err := f.CacheFlags.Validate(); err != nil {
		return err
	}
	return f.AnalysisFlags.Validate()
}

// Env is what a command needs to classify pushes.
type Env struct {
	Config *configv1.CulpritConfig
	Data   *datasource.Handler
	Cache  cache.Cache
}

// Registry returns a push registry over the env data.
func (e *Env) Registry(forceRefresh bool) *push.Registry {
	return push.NewRegistry(e.Data, push.Options{
		Tier:  e.Config.Tier,
		Cache: e.Cache,
		CacheOptions: cache.RequestOptions{
			ForceRefresh: forceRefresh,
			Retention:    e.Config.Cache.Retention,
		},
	})
}

func (f *EnvFlags) GetEnv(ctx context.Context, command string, env bqlabel.EnvValue) (*Env, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.WithMessage(err, "error validating options")
	}

	config, err := f.ConfigFlags.GetConfig()
	if err != nil {
		return nil, err
	}
	f.SourceFlags.Apply(config)
	f.AnalysisFlags.Apply(config)

	var bqc *bigquery.Client
	if f.BigQueryFlags.Enabled() {
		host, _ := os.Hostname()
		bqc, err = f.BigQueryFlags.GetBigQueryClient(ctx, nil, f.GoogleCloudFlags.ServiceAccountCredentialFile, bqlabel.Context{
			App:         bqlabel.AppCulprit,
			Command:     command,
			Environment: env,
			Host:        host,
			Operator:    os.Getenv("USER"),
		})
		if err != nil {
			return nil, errors.WithMessage(err, "couldn't get bigquery client")
		}
	}

	cacheClient, err := f.CacheFlags.GetCacheClient(bqc)
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't get cache client")
	}

	data, err := flags.GetHandler(ctx, config, flags.SourceDeps{
		DBFlags:     f.DBFlags,
		BigQuery:    bqc,
		GoogleFlags: f.GoogleCloudFlags,
	})
	if err != nil {
		return nil, err
	}

	return &Env{Config: config, Data: data, Cache: cacheClient}, nil
}
