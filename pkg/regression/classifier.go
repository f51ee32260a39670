// Package regression decides which runnables of a push are regressions caused by it.
//
// A runnable is a candidate when it fails on the push without being classified as an
// intermittent or infrastructure problem, or when a failure on the push or a later one was
// classified as fixed by the backout of the push. Each candidate gets a distance: the
// number of neighboring pushes that could equally be blamed, penalized when the push was
// never backed out and when the failure is intermittent. Candidates an ancestor explains
// better are dropped, and the rest within MaxDepth are regressions.
package regression

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	configv1 "github.com/openshift/culprit/pkg/apis/config/v1"
	"github.com/openshift/culprit/pkg/metrics"
	"github.com/openshift/culprit/pkg/push"
	"github.com/openshift/culprit/pkg/runnable"
)

// Candidate is a runnable that may have been regressed by a push.
type Candidate struct {
	Runnable v1.Runnable
	// Summary is the summary in which the failure was observed.
	Summary *runnable.Summary
	// Forward is the number of child hops to the push where the failure was observed.
	Forward int
}

// Distance is the outcome of the distance computation for one candidate.
type Distance struct {
	Forward  int `json:"forward"`
	Backward int `json:"backward"`
	// Base is Forward+Backward, or zero when the failure was classified as fixed by the
	// backout of the push.
	Base  int `json:"base"`
	Total int `json:"total"`
	// Defined is false when no ancestor within MaxDepth ran the runnable.
	Defined bool `json:"defined"`
}

type pushKind struct {
	push *push.Push
	kind v1.RunnableKind
}

type verdictKey struct {
	push     *push.Push
	runnable v1.Runnable
}

// Classifier computes regressions. It memoizes candidates, distances and regressions per
// push, so one classifier should be used per snapshot of the data.
type Classifier struct {
	MaxDepth int

	mu          sync.Mutex
	candidates  map[pushKind]map[v1.Runnable]Candidate
	distances   map[verdictKey]Distance
	regressions map[pushKind]map[v1.Runnable]int
}

func NewClassifier(maxDepth int) *Classifier {
	if maxDepth < 0 {
		maxDepth = configv1.DefaultMaxDepth
	}
	return &Classifier{
		MaxDepth:    maxDepth,
		candidates:  map[pushKind]map[v1.Runnable]Candidate{},
		distances:   map[verdictKey]Distance{},
		regressions: map[pushKind]map[v1.Runnable]int{},
	}
}

// CandidateRegressions returns the candidates of p for kind.
func (c *Classifier) CandidateRegressions(ctx context.Context, p *push.Push, kind v1.RunnableKind) (sets.Set[v1.Runnable], error) {
	cands, err := c.candidateMap(ctx, p, kind)
	if err != nil {
		return nil, err
	}
	out := sets.New[v1.Runnable]()
	for r := range cands {
		out.Insert(r)
	}
	return out, nil
}

// Regressions maps each regression of p to its total distance. The map belongs to the
// caller.
func (c *Classifier) Regressions(ctx context.Context, p *push.Push, kind v1.RunnableKind) (map[v1.Runnable]int, error) {
	regs, err := c.regressionMap(ctx, p, kind)
	if err != nil {
		return nil, err
	}
	out := make(map[v1.Runnable]int, len(regs))
	for r, total := range regs {
		out[r] = total
	}
	return out, nil
}

// regressionMap is the memoized form of Regressions. Callers must not modify the result.
func (c *Classifier) regressionMap(ctx context.Context, p *push.Push, kind v1.RunnableKind) (map[v1.Runnable]int, error) {
	key := pushKind{push: p, kind: kind}
	c.mu.Lock()
	cached, ok := c.regressions[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	start := time.Now()
	cands, err := c.candidateMap(ctx, p, kind)
	if err != nil {
		return nil, err
	}

	out := map[v1.Runnable]int{}
	for _, r := range sortedRunnables(cands) {
		d, err := c.distance(ctx, p, cands[r])
		if err != nil {
			return nil, err
		}
		if !d.Defined || d.Total > c.MaxDepth {
			metrics.Verdicts.WithLabelValues(string(kind), metrics.VerdictTooFar).Inc()
			continue
		}

		owned, err := c.ancestorOwns(ctx, p, r)
		if err != nil {
			return nil, err
		}
		switch owned {
		case ownedByAncestor:
			metrics.Verdicts.WithLabelValues(string(kind), metrics.VerdictAttributed).Inc()
			continue
		case ownerUnknown:
			metrics.Verdicts.WithLabelValues(string(kind), metrics.VerdictUnresolved).Inc()
			continue
		}

		out[r] = d.Total
		verdict := metrics.VerdictPossible
		if d.Total == 0 {
			verdict = metrics.VerdictLikely
		}
		metrics.Verdicts.WithLabelValues(string(kind), verdict).Inc()
	}

	metrics.ClassifyDuration.WithLabelValues(string(kind)).Observe(float64(time.Since(start).Milliseconds()))
	log.WithFields(log.Fields{
		"push":        p.String(),
		"kind":        kind,
		"candidates":  len(cands),
		"regressions": len(out),
	}).Debugf("classified in %s", time.Since(start))

	c.mu.Lock()
	c.regressions[key] = out
	c.mu.Unlock()
	return out, nil
}

// LikelyRegressions are the regressions with a total distance of zero.
func (c *Classifier) LikelyRegressions(ctx context.Context, p *push.Push, kind v1.RunnableKind) (sets.Set[v1.Runnable], error) {
	return c.filter(ctx, p, kind, func(total int) bool { return total == 0 })
}

// PossibleRegressions are the regressions with a positive total distance.
func (c *Classifier) PossibleRegressions(ctx context.Context, p *push.Push, kind v1.RunnableKind) (sets.Set[v1.Runnable], error) {
	return c.filter(ctx, p, kind, func(total int) bool { return total > 0 })
}

func (c *Classifier) filter(ctx context.Context, p *push.Push, kind v1.RunnableKind, keep func(int) bool) (sets.Set[v1.Runnable], error) {
	regs, err := c.regressionMap(ctx, p, kind)
	if err != nil {
		return nil, err
	}
	out := sets.New[v1.Runnable]()
	for r, total := range regs {
		if keep(total) {
			out.Insert(r)
		}
	}
	return out, nil
}

// candidateMap computes the candidates of p. Failures on p itself come first; failures on
// descendants only count when classified as fixed by the backout of p.
func (c *Classifier) candidateMap(ctx context.Context, p *push.Push, kind v1.RunnableKind) (map[v1.Runnable]Candidate, error) {
	key := pushKind{push: p, kind: kind}
	c.mu.Lock()
	cached, ok := c.candidates[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	own, err := p.Runnables(ctx, kind)
	if err != nil {
		return nil, err
	}

	cands := map[v1.Runnable]Candidate{}
	for r, s := range own {
		if !s.Failing() {
			continue
		}
		switch s.Classification {
		case v1.Unclassified:
			cands[r] = Candidate{Runnable: r, Summary: s}
		case v1.FixedByCommit:
			backsOut, err := p.BacksOutAny(ctx, s.BackoutRefs)
			if err != nil {
				return nil, err
			}
			if backsOut {
				cands[r] = Candidate{Runnable: r, Summary: s}
			}
		}
	}

	_, err = push.NewWindow(p, c.MaxDepth).Walk(ctx, push.Forward, func(hop int, child *push.Push) (bool, error) {
		summaries, err := child.Runnables(ctx, kind)
		if err != nil {
			return false, err
		}
		if p.IsBackedOut() && child.Contains(p.BackedOutBy()) {
			// failures after the backout cannot be blamed on p
			for r := range cands {
				if s, ok := summaries[r]; ok && s.Failing() && unexplained(s) {
					log.WithFields(log.Fields{"push": p.String(), "runnable": r.String()}).Debug("still failing on the backout, dropping candidate")
					delete(cands, r)
				}
			}
			return false, nil
		}
		for _, r := range sortedRunnables(summaries) {
			s := summaries[r]
			if _, ok := cands[r]; ok || s.Classification != v1.FixedByCommit {
				continue
			}
			backsOut, err := p.BacksOutAny(ctx, s.BackoutRefs)
			if err != nil {
				return false, err
			}
			if backsOut {
				cands[r] = Candidate{Runnable: r, Summary: s, Forward: hop}
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	for range cands {
		metrics.Verdicts.WithLabelValues(string(kind), metrics.VerdictCandidate).Inc()
	}
	c.mu.Lock()
	c.candidates[key] = cands
	c.mu.Unlock()
	return cands, nil
}

// distance computes the distance of a candidate of p.
func (c *Classifier) distance(ctx context.Context, p *push.Push, cand Candidate) (Distance, error) {
	key := verdictKey{push: p, runnable: cand.Runnable}
	c.mu.Lock()
	cached, ok := c.distances[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	d := Distance{Forward: cand.Forward}
	fixed, err := c.fixedByBackout(ctx, p, cand)
	if err != nil {
		return d, err
	}

	if fixed {
		d.Defined = true
	} else {
		found := false
		res, err := push.NewWindow(p, c.MaxDepth).Walk(ctx, push.Backward, func(hop int, a *push.Push) (bool, error) {
			s, err := a.Summary(ctx, cand.Runnable)
			if err != nil {
				return false, err
			}
			if s != nil && s.Ran() {
				found = true
				d.Backward = hop - 1
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return d, err
		}
		if !found && res.Exhausted {
			d.Backward = res.Visited
		}
		// an ancestor whose data is missing may have run it, so the distance is unknown
		d.Defined = found || res.Exhausted
		d.Base = d.Forward + d.Backward
		if !found && res.DataErr != nil {
			return d, nil
		}
	}

	d.Total = d.Base
	if !p.IsBackedOut() {
		d.Total *= 2
	}
	if cand.Summary.Intermittent() {
		d.Total *= 2
	}

	c.mu.Lock()
	c.distances[key] = d
	c.mu.Unlock()
	return d, nil
}

// fixedByBackout is true when a push within the window classified the candidate as fixed
// by a commit backing out p.
func (c *Classifier) fixedByBackout(ctx context.Context, p *push.Push, cand Candidate) (bool, error) {
	matches := func(s *runnable.Summary) (bool, error) {
		if s == nil || s.Classification != v1.FixedByCommit {
			return false, nil
		}
		return p.BacksOutAny(ctx, s.BackoutRefs)
	}

	if ok, err := matches(cand.Summary); ok || err != nil {
		return ok, err
	}
	own, err := p.Summary(ctx, cand.Runnable)
	if err != nil {
		return false, err
	}
	if ok, err := matches(own); ok || err != nil {
		return ok, err
	}

	found := false
	for _, dir := range []push.Direction{push.Forward, push.Backward} {
		_, err := push.NewWindow(p, c.MaxDepth).Walk(ctx, dir, func(_ int, other *push.Push) (bool, error) {
			s, err := other.Summary(ctx, cand.Runnable)
			if err != nil {
				return false, err
			}
			ok, err := matches(s)
			if err != nil {
				return false, err
			}
			found = ok
			return !ok, nil
		})
		if err != nil || found {
			return found, err
		}
	}
	return false, nil
}

type ownership int

const (
	ownedByP ownership = iota
	ownedByAncestor
	// ownerUnknown means an ancestor could not be evaluated, so the runnable may be its
	// regression.
	ownerUnknown
)

// ancestorOwns checks whether an ancestor within MaxDepth has r as a candidate within
// MaxDepth of it, so the failure is better explained by that ancestor.
func (c *Classifier) ancestorOwns(ctx context.Context, p *push.Push, r v1.Runnable) (ownership, error) {
	owned := ownedByP
	res, err := push.NewWindow(p, c.MaxDepth).Walk(ctx, push.Backward, func(_ int, a *push.Push) (bool, error) {
		cands, err := c.candidateMap(ctx, a, r.Kind)
		if err != nil {
			return false, err
		}
		cand, ok := cands[r]
		if !ok {
			return true, nil
		}
		d, err := c.distance(ctx, a, cand)
		if err != nil {
			return false, err
		}
		if d.Defined && d.Total <= c.MaxDepth {
			owned = ownedByAncestor
			log.WithFields(log.Fields{"push": p.String(), "ancestor": a.String(), "runnable": r.String()}).Debug("regression attributed to ancestor")
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return ownedByP, errors.Wrapf(err, "attributing %s", r)
	}
	if owned == ownedByP && res.DataErr != nil {
		log.WithError(res.DataErr).WithFields(log.Fields{"push": p.String(), "runnable": r.String()}).Warn("could not check ancestors, excluding runnable")
		return ownerUnknown, nil
	}
	return owned, nil
}

// unexplained is true when no classification explains the failures of s as unrelated to
// a push.
func unexplained(s *runnable.Summary) bool {
	return s.Classification == v1.Unclassified || s.Classification == v1.FixedByCommit
}

func sortedRunnables[V any](m map[v1.Runnable]V) []v1.Runnable {
	out := make([]v1.Runnable, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SortRunnables returns the runnables of s ordered by name.
func SortRunnables(s sets.Set[v1.Runnable]) []v1.Runnable {
	return sortedRunnables(s)
}
