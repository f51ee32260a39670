// Package s3cache stores cache entries as objects in an S3 compatible bucket. The expiry
// is kept in the object metadata since bucket lifecycle rules only work in whole days.
package s3cache

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const expiresMetadata = "culprit-expires"

// ErrMiss is returned by Get for absent or expired keys.
var ErrMiss = errors.New("s3 cache miss")

// Config describes the bucket. Requests are anonymous without static credentials.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	EndpointURL     string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Cache struct {
	client objectAPI
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Cache(cfg Config) (*Cache, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 cache needs a bucket")
	}
	client := s3.New(s3.Options{}, func(o *s3.Options) {
		o.Region = "us-east-1"
		if cfg.Region != "" {
			o.Region = cfg.Region
		}
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		}
	})
	return &Cache{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, now: time.Now}, nil
}

func (c *Cache) objectKey(key string) string {
	return path.Join(c.prefix, key)
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMiss
		}
		return nil, errors.Wrapf(err, "getting object %q", key)
	}
	defer func() { _ = out.Body.Close() }()

	if expires, ok := out.Metadata[expiresMetadata]; ok {
		t, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			log.WithError(err).Warnf("ignoring s3 cache object %s with a bad expiry", key)
			return nil, ErrMiss
		}
		if c.now().After(t) {
			return nil, ErrMiss
		}
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading object %q", key)
	}
	return data, nil
}

func (c *Cache) Set(ctx context.Context, key string, content []byte, duration time.Duration) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.objectKey(key)),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/octet-stream"),
	}
	if duration > 0 {
		in.Metadata = map[string]string{expiresMetadata: c.now().Add(duration).UTC().Format(time.RFC3339)}
	}
	if _, err := c.client.PutObject(ctx, in); err != nil {
		return errors.Wrapf(err, "putting object %q", key)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	// some S3 compatible stores only report it in the message
	return strings.Contains(err.Error(), "NoSuchKey")
}
