package bigquerycache

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	uuid2 "github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/openshift/culprit/pkg/apis/cache"
	bqclient "github.com/openshift/culprit/pkg/bigquery"
	"github.com/openshift/culprit/pkg/bigquery/bqlabel"
	"github.com/openshift/culprit/pkg/cache/compressed"
)

// https://cloud.google.com/bigquery/quotas#streaming_inserts
// Maximum row size and HTTP request size are both 10 MB.
const (
	cachedTable     = "cached_data"
	partitionColumn = "modified_time"
	chunkSize       = 7000000 // ~7MB to stay under the max row limit
)

// Cache keeps entries in a partitioned table, split over rows of at most chunkSize
// bytes. The client warm cache, when set, is consulted first and refilled on reads.
type Cache struct {
	client     *bqclient.Client
	readOnly   bool
	expiration time.Duration
}

func NewBigQueryCache(client *bqclient.Client, expiration time.Duration, readOnly bool) (cache.Cache, error) {
	c := &Cache{
		client:     client,
		readOnly:   readOnly,
		expiration: expiration,
	}

	return &compressed.Cache{Cache: c}, nil
}

type CacheRecord struct {
	Key        string    `bigquery:"key"`
	UUID       string    `bigquery:"uuid"`
	Modified   time.Time `bigquery:"modified_time"`
	Expiration time.Time `bigquery:"expiration"`
	Data       []byte    `bigquery:"data"`
	ChunkIndex int       `bigquery:"chunk_index"`
}

func (c Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.client.Cache != nil {
		data, err := c.client.Cache.Get(ctx, key)
		if err != nil {
			log.Debugf("Failure retrieving %s from warm cache %v", key, err)
		} else if data != nil {
			return data, nil
		}
	}

	before := time.Now()
	defer func(key string, before time.Time) {
		log.Debugf("BigQuery Cache Get completed in %s for %s", time.Since(before), key)
	}(key, before)

	// find the newest live upload of key first, so only its chunks are read
	now := time.Now()
	query := c.client.Query(bqlabel.CacheLookup, fmt.Sprintf(`
		SELECT modified_time, expiration, uuid FROM %s
		WHERE %s > @oldest AND expiration > @now AND key = @key
		ORDER BY %s DESC LIMIT 1`, c.client.Table(cachedTable), partitionColumn, partitionColumn))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "oldest", Value: now.Add(-c.expiration)},
		{Name: "now", Value: now},
		{Name: "key", Value: key},
	}

	it, err := bqclient.LoggedRead(ctx, query)
	if err != nil {
		return nil, err
	}
	metadataRecord := CacheRecord{}
	if err := it.Next(&metadataRecord); err != nil {
		return nil, err
	}

	// an exact match on modified_time does not work, so allow some grace around it
	query = c.client.Query(bqlabel.CacheLookup, fmt.Sprintf(`
		SELECT * FROM %s
		WHERE %s > @from AND %s < @to AND key = @key AND uuid = @uuid
		ORDER BY chunk_index ASC`, c.client.Table(cachedTable), partitionColumn, partitionColumn))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "from", Value: metadataRecord.Modified.Add(-5 * time.Second)},
		{Name: "to", Value: metadataRecord.Modified.Add(5 * time.Second)},
		{Name: "key", Value: key},
		{Name: "uuid", Value: metadataRecord.UUID},
	}

	it, err = bqclient.LoggedRead(ctx, query)
	if err != nil {
		return nil, err
	}
	var records [][]byte
	for {
		record := CacheRecord{}
		err = it.Next(&record)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record.Data)
	}

	data := unchunk(records)

	// the exact retention is unknown here, so the warm cache keeps it until the row expires
	if data != nil && c.client.Cache != nil {
		if err := c.client.Cache.Set(ctx, key, data, time.Until(metadataRecord.Expiration)); err != nil {
			log.WithError(err).Warn("Error updating warm cache during get")
		}
	}

	return data, nil
}

func (c Cache) Set(ctx context.Context, key string, content []byte, duration time.Duration) error {
	if c.client.Cache != nil {
		if err := c.client.Cache.Set(ctx, key, content, duration); err != nil {
			log.WithError(err).Errorf("Failure setting %s for warm cache", key)
		}
	}

	if c.readOnly {
		log.Debugf("Set called in readonly mode for: %s", key)
		return nil
	}
	before := time.Now()
	defer func(key string, before time.Time) {
		log.Debugf("BigQuery Cache Set completed in %s for %s", time.Since(before), key)
	}(key, before)

	i := c.client.BQ.Dataset(c.client.Dataset).Table(cachedTable).Inserter()
	records := records(key, content, time.Now(), duration, uuid2.New().String())
	for _, record := range records {
		if err := i.Put(ctx, bigquery.ValueSaver(record)); err != nil {
			return errors.Wrapf(err, "inserting chunk %d of %s", record.ChunkIndex, key)
		}
	}
	return nil
}

func records(key string, content []byte, modified time.Time, duration time.Duration, uuid string) []*CacheRecord {
	chunks := chunk(content, chunkSize)
	out := make([]*CacheRecord, 0, len(chunks))
	for index, data := range chunks {
		out = append(out, &CacheRecord{
			Key:        key,
			UUID:       uuid,
			Modified:   modified,
			Expiration: modified.Add(duration),
			Data:       data,
			ChunkIndex: index,
		})
	}
	return out
}

// Save implements the ValueSaver interface.
func (c *CacheRecord) Save() (row map[string]bigquery.Value, insertID string, err error) {
	row = make(map[string]bigquery.Value, 6)

	row["key"] = c.Key
	row["modified_time"] = c.Modified
	row["data"] = c.Data
	row["expiration"] = c.Expiration
	row["chunk_index"] = c.ChunkIndex
	row["uuid"] = c.UUID

	return row, fmt.Sprintf("%s-%d", c.UUID, c.ChunkIndex), nil
}

func chunk(value []byte, maxChunk int) [][]byte {
	var ret [][]byte
	max := len(value)

	for i := 0; i < max; i += maxChunk {
		end := i + maxChunk

		if end > max {
			end = max
		}

		ret = append(ret, value[i:end])
	}

	return ret
}

func unchunk(chunked [][]byte) []byte {
	var ret []byte

	for _, chunk := range chunked {
		ret = append(ret, chunk...)
	}

	return ret
}
