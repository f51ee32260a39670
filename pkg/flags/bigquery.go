package flags

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/openshift/culprit/pkg/apis/cache"
	bqcachedclient "github.com/openshift/culprit/pkg/bigquery"
	"github.com/openshift/culprit/pkg/bigquery/bqlabel"
)

// BigQueryFlags holds the project and dataset of the warehouse tables.
type BigQueryFlags struct {
	BigQueryProject string
	BigQueryDataset string
}

func NewBigQueryFlags() *BigQueryFlags {
	return &BigQueryFlags{}
}

func (f *BigQueryFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.BigQueryProject, "bigquery-project", f.BigQueryProject, "BigQuery project to use")
	fs.StringVar(&f.BigQueryDataset, "bigquery-dataset", "ci_results", "Dataset to use")
}

func (f *BigQueryFlags) Enabled() bool {
	return f.BigQueryProject != ""
}

// GetBigQueryClient returns a client whose queries are labeled with labels. Application
// default credentials are used when no credential file is given.
func (f *BigQueryFlags) GetBigQueryClient(ctx context.Context, cacheClient cache.Cache, googleServiceAccountCredentialFile string, labels bqlabel.Context) (*bqcachedclient.Client, error) {
	c, err := bqcachedclient.New(ctx, googleServiceAccountCredentialFile, f.BigQueryProject, f.BigQueryDataset, cacheClient)
	if err != nil {
		return nil, err
	}
	c.Labels = labels
	return c, nil
}
