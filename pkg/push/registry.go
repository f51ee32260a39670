// Package push models pushes on a CI branch. Pushes are created through a Registry, which
// shares one *Push per branch and revision so lazily fetched data is fetched once per
// process.
package push

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	apicache "github.com/openshift/culprit/pkg/apis/cache"
	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

// Data is the data layer a registry reads from. datasource.Handler implements it.
type Data interface {
	PushTasks(ctx context.Context, branch, rev string) ([]v1.Task, error)
	PushTaskClassifications(ctx context.Context, branch, rev string) (map[string]v1.TaskClassification, error)
	PushInfo(ctx context.Context, branch, rev string) (*v1.PushInfo, error)
	PushByID(ctx context.Context, branch string, id int) (*v1.PushInfo, error)
	BackedOutRevs(ctx context.Context, branch, ref string) ([]string, error)
}

type Options struct {
	// Tier drops tasks with a higher tier. Zero keeps every task.
	Tier int
	// Cache stores the tasks of finalized pushes. Optional.
	Cache apicache.Cache
	// CacheOptions control retention and forced refreshes of cached tasks.
	CacheOptions apicache.RequestOptions
}

type Registry struct {
	data Data
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	byRev map[string]*Push
	byID  map[string]*Push
	group singleflight.Group
}

func NewRegistry(data Data, opts Options) *Registry {
	return &Registry{
		data:  data,
		opts:  opts,
		now:   time.Now,
		byRev: map[string]*Push{},
		byID:  map[string]*Push{},
	}
}

func revKey(branch, rev string) string {
	return branch + "/" + v1.ShortRev(rev)
}

func idKey(branch string, id int) string {
	return branch + "#" + strconv.Itoa(id)
}

// Get returns the push of rev on branch. Unknown revisions return an error wrapping
// ErrPushNotFound.
func (r *Registry) Get(ctx context.Context, branch, rev string) (*Push, error) {
	key := revKey(branch, rev)
	r.mu.Lock()
	p, ok := r.byRev[key]
	r.mu.Unlock()
	if ok {
		return p, nil
	}

	v, err, _ := r.group.Do("rev:"+key, func() (interface{}, error) {
		info, err := r.data.PushInfo(ctx, branch, rev)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving %s on %s", rev, branch)
		}
		return r.intern(branch, info), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Push), nil
}

// GetByID returns the push with the given push id on branch.
func (r *Registry) GetByID(ctx context.Context, branch string, id int) (*Push, error) {
	key := idKey(branch, id)
	r.mu.Lock()
	p, ok := r.byID[key]
	r.mu.Unlock()
	if ok {
		return p, nil
	}

	v, err, _ := r.group.Do("id:"+key, func() (interface{}, error) {
		info, err := r.data.PushByID(ctx, branch, id)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving push %d on %s", id, branch)
		}
		return r.intern(branch, info), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Push), nil
}

// intern returns the registered push for info, registering it on first sight.
func (r *Registry) intern(branch string, info *v1.PushInfo) *Push {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Branch == "" {
		info.Branch = branch
	}
	if p, ok := r.byID[idKey(info.Branch, info.ID)]; ok {
		return p
	}

	p := newPush(r, *info)
	r.byID[idKey(info.Branch, info.ID)] = p
	for _, rev := range info.Revs {
		r.byRev[revKey(info.Branch, rev)] = p
	}
	log.WithFields(log.Fields{"branch": info.Branch, "id": info.ID, "rev": v1.ShortRev(info.Rev())}).Debug("registered push")
	return p
}

// Len is the number of registered pushes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
