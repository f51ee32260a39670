package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/openshift/culprit/pkg/apis/cache"
	"github.com/openshift/culprit/pkg/bigquery/bqlabel"
)

type Client struct {
	BQ      *bigquery.Client
	Cache   cache.Cache
	Dataset string
	// Labels are attached to every query built with Query.
	Labels bqlabel.Context
}

func New(ctx context.Context, credentialFile, project, dataset string, c cache.Cache) (*Client, error) {
	var opts []option.ClientOption
	if credentialFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialFile))
	}
	bqc, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, err
	}
	// Enable Storage API usage for fetching data
	err = bqc.EnableStorageReadClient(ctx, opts...)
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't enable storage API")
	}

	return &Client{
		BQ:      bqc,
		Cache:   c,
		Dataset: dataset,
	}, nil
}

// Table returns the fully qualified name of a table in the client dataset.
func (c *Client) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", c.BQ.Project(), c.Dataset, name)
}

// Query returns a labeled query.
func (c *Client) Query(name bqlabel.QueryValue, sql string) *bigquery.Query {
	q := c.BQ.Query(sql)
	c.Labels.WithQuery(name).ApplyLabels(q)
	return q
}

// LoggedRead is a wrapper around the bigquery Read method that logs the query being executed
func LoggedRead(ctx context.Context, q *bigquery.Query) (*bigquery.RowIterator, error) {
	log.Debugf("Querying BQ with Parameters: %v\n%v", q.Parameters, q.QueryConfig.Q)
	return q.Read(ctx)
}
