// Package gcssource reads task results archived as JSON artifacts in a GCS bucket. Each
// push has one object, <prefix>/<branch>/<shortrev>/tasks.json, holding an array of tasks.
package gcssource

import (
	"context"
	"encoding/json"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

const (
	Name = "gcs"

	tasksObject = "tasks.json"
)

// objectReader opens an object by name. storage returns storage.ErrObjectNotExist for
// missing objects.
type objectReader interface {
	NewReader(ctx context.Context, name string) (io.ReadCloser, error)
}

type bucketReader struct {
	bkt *storage.BucketHandle
}

func (b bucketReader) NewReader(ctx context.Context, name string) (io.ReadCloser, error) {
	obj := b.bkt.Object(name)
	// pin the generation so a concurrent upload does not hand us a cached older copy
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, err
	}
	return obj.Generation(attrs.Generation).NewReader(ctx)
}

type Source struct {
	objects objectReader
	prefix  string
}

// NewClient builds a storage client, from a service account file when one is given and
// from application default credentials otherwise.
func NewClient(ctx context.Context, credentialFile string) (*storage.Client, error) {
	if credentialFile != "" {
		return storage.NewClient(ctx, option.WithCredentialsFile(credentialFile))
	}
	return storage.NewClient(ctx)
}

func New(client *storage.Client, bucket, prefix string) *Source {
	return &Source{objects: bucketReader{bkt: client.Bucket(bucket)}, prefix: prefix}
}

func (s *Source) Name() string {
	return Name
}

func (s *Source) objectPath(branch, rev string) string {
	return path.Join(s.prefix, branch, v1.ShortRev(rev), tasksObject)
}

func (s *Source) PushTasks(ctx context.Context, branch, rev string) ([]v1.Task, error) {
	name := s.objectPath(branch, rev)
	r, err := s.objects.NewReader(ctx, name)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "no artifact %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	defer r.Close()

	var tasks []v1.Task
	if err := json.NewDecoder(r).Decode(&tasks); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", name)
	}
	log.WithFields(log.Fields{"object": name, "tasks": len(tasks)}).Debug("read task artifact")
	return tasks, nil
}
