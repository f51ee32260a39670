package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/cache"
	"github.com/openshift/culprit/pkg/runnable"
)

// finalizedAfter is how old a push must be before its results are considered final.
const finalizedAfter = 24 * time.Hour

// Push is one push on a branch. Its identity fields are immutable; tasks, summaries and
// neighbors are fetched on first use and frozen once fetched. Failed fetches are retried
// on the next call.
type Push struct {
	info     v1.PushInfo
	registry *Registry

	tasksMu sync.Mutex
	tasks   []v1.Task
	fetched bool

	summariesMu sync.Mutex
	summaries   map[v1.RunnableKind]map[v1.Runnable]*runnable.Summary

	parentMu       sync.Mutex
	parent         *Push
	parentResolved bool

	childMu sync.Mutex
	child   *Push

	backoutMu sync.Mutex
	backsOut  map[string]bool
}

func newPush(r *Registry, info v1.PushInfo) *Push {
	return &Push{
		info:      info,
		registry:  r,
		summaries: map[v1.RunnableKind]map[v1.Runnable]*runnable.Summary{},
		backsOut:  map[string]bool{},
	}
}

func (p *Push) ID() int { return p.info.ID }

func (p *Push) Branch() string { return p.info.Branch }

// Rev is the head revision of the push.
func (p *Push) Rev() string { return p.info.Rev() }

func (p *Push) Revs() []string { return append([]string(nil), p.info.Revs...) }

func (p *Push) Date() time.Time { return p.info.Date }

func (p *Push) Author() string { return p.info.Author }

func (p *Push) BackedOutBy() string { return p.info.BackedOutBy }

func (p *Push) Bugs() []string { return append([]string(nil), p.info.Bugs...) }

func (p *Push) Info() v1.PushInfo { return p.info }

func (p *Push) String() string {
	return fmt.Sprintf("%s@%s", p.info.Branch, v1.ShortRev(p.Rev()))
}

func (p *Push) IsBackedOut() bool {
	return p.info.BackedOutBy != ""
}

// Contains is true when rev is one of the revisions of the push.
func (p *Push) Contains(rev string) bool {
	for _, r := range p.info.Revs {
		if v1.SameRev(r, rev) {
			return true
		}
	}
	return false
}

func (p *Push) cacheKey() string {
	return fmt.Sprintf("%s/%s/tasks", p.info.Branch, p.Rev())
}

// IsFinalized is true once the push is old enough that no more results are expected.
func (p *Push) IsFinalized() bool {
	return p.registry.now().Sub(p.info.Date) > finalizedAfter
}

// Tasks returns the tasks of the push with their classifications merged in. Tasks above
// the configured tier are dropped. The tasks of finalized pushes go through the cache.
func (p *Push) Tasks(ctx context.Context) ([]v1.Task, error) {
	p.tasksMu.Lock()
	defer p.tasksMu.Unlock()
	if p.fetched {
		return p.tasks, nil
	}

	var tasks []v1.Task
	var err error
	if p.IsFinalized() {
		opts := p.registry.opts
		tasks, err = cache.GetOrGenerate(ctx, opts.Cache, opts.CacheOptions, p.cacheKey(), func() ([]v1.Task, error) {
			return p.fetchTasks(ctx)
		})
	} else {
		tasks, err = p.fetchTasks(ctx)
	}
	if err != nil {
		return nil, err
	}
	p.tasks, p.fetched = tasks, true
	return p.tasks, nil
}

func (p *Push) fetchTasks(ctx context.Context) ([]v1.Task, error) {
	start := time.Now()
	data := p.registry.data
	raw, err := data.PushTasks(ctx, p.info.Branch, p.Rev())
	if err != nil {
		return nil, errors.Wrapf(err, "fetching tasks of %s", p)
	}
	classes, err := data.PushTaskClassifications(ctx, p.info.Branch, p.Rev())
	if err != nil {
		return nil, errors.Wrapf(err, "fetching classifications of %s", p)
	}

	tier := p.registry.opts.Tier
	tasks := make([]v1.Task, 0, len(raw))
	for _, t := range raw {
		if tier > 0 && t.Tier > tier {
			continue
		}
		if c, ok := classes[t.ID]; ok {
			t.Classification = c.Classification
			t.ClassificationNote = c.Note
		}
		tasks = append(tasks, t)
	}

	log.WithFields(log.Fields{
		"push":    p.String(),
		"tasks":   len(tasks),
		"skipped": len(raw) - len(tasks),
	}).Debugf("fetched tasks in %s", time.Since(start))
	return tasks, nil
}

// Runnables returns the summary of every runnable of kind on the push.
func (p *Push) Runnables(ctx context.Context, kind v1.RunnableKind) (map[v1.Runnable]*runnable.Summary, error) {
	p.summariesMu.Lock()
	defer p.summariesMu.Unlock()
	if s, ok := p.summaries[kind]; ok {
		return s, nil
	}

	tasks, err := p.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	s, err := runnable.Build(tasks, runnable.ExtractorFor(kind))
	if err != nil {
		return nil, errors.Wrapf(err, "summarizing %s", p)
	}
	p.summaries[kind] = s
	return s, nil
}

// Summary returns the summary of r on the push, or nil when r has no results here.
func (p *Push) Summary(ctx context.Context, r v1.Runnable) (*runnable.Summary, error) {
	all, err := p.Runnables(ctx, r.Kind)
	if err != nil {
		return nil, err
	}
	return all[r], nil
}

// Duration is the total runtime of the tasks of the push, in whole hours.
func (p *Push) Duration(ctx context.Context) (int, error) {
	tasks, err := p.Tasks(ctx)
	if err != nil {
		return 0, err
	}
	var total time.Duration
	for _, t := range tasks {
		total += t.Duration
	}
	return int(total / time.Hour), nil
}

// Parent returns the previous push on the branch, or nil at the start of history.
func (p *Push) Parent(ctx context.Context) (*Push, error) {
	p.parentMu.Lock()
	defer p.parentMu.Unlock()
	if p.parentResolved {
		return p.parent, nil
	}
	if p.info.ID <= 1 {
		p.parentResolved = true
		return nil, nil
	}

	parent, err := p.neighbor(ctx, p.info.ID-1)
	if err != nil {
		return nil, err
	}
	p.parent, p.parentResolved = parent, true
	return parent, nil
}

// Child returns the next push on the branch, or nil if there is none yet. A missing
// child is not memoized since the branch tip moves.
func (p *Push) Child(ctx context.Context) (*Push, error) {
	p.childMu.Lock()
	defer p.childMu.Unlock()
	if p.child != nil {
		return p.child, nil
	}

	child, err := p.neighbor(ctx, p.info.ID+1)
	if err != nil {
		return nil, err
	}
	p.child = child
	return child, nil
}

func (p *Push) neighbor(ctx context.Context, id int) (*Push, error) {
	n, err := p.registry.GetByID(ctx, p.info.Branch, id)
	if errors.Is(err, v1.ErrPushNotFound) {
		return nil, nil
	}
	return n, err
}

// BacksOut reports whether the commit ref backs out this push, either because it is the
// recorded backout or because the data layer lists one of the push revisions as backed
// out by ref.
func (p *Push) BacksOut(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}
	if v1.SameRev(ref, p.info.BackedOutBy) {
		return true, nil
	}

	short := v1.ShortRev(ref)
	p.backoutMu.Lock()
	defer p.backoutMu.Unlock()
	if v, ok := p.backsOut[short]; ok {
		return v, nil
	}

	revs, err := p.registry.data.BackedOutRevs(ctx, p.info.Branch, ref)
	if err != nil && !errors.Is(err, v1.ErrPushNotFound) {
		return false, errors.Wrapf(err, "resolving backout %s", short)
	}
	backsOut := false
	for _, rev := range revs {
		if p.Contains(rev) {
			backsOut = true
			break
		}
	}
	p.backsOut[short] = backsOut
	return backsOut, nil
}

// BacksOutAny is true when one of refs backs out this push.
func (p *Push) BacksOutAny(ctx context.Context, refs []string) (bool, error) {
	for _, ref := range refs {
		ok, err := p.BacksOut(ctx, ref)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
