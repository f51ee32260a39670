package push

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

const defaultPrefetchConcurrency = 8

type Direction int

const (
	Backward Direction = iota
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Window is the set of pushes within MaxDepth hops of Target in either direction. It is
// cheap to create and holds no state besides the pushes it was given.
type Window struct {
	Target   *Push
	MaxDepth int
}

func NewWindow(target *Push, maxDepth int) *Window {
	return &Window{Target: target, MaxDepth: maxDepth}
}

// WalkResult describes how a walk ended.
type WalkResult struct {
	// Visited is the number of pushes handed to the visitor.
	Visited int
	// Exhausted is set when the walk hit the end of history or a neighbor that could not
	// be resolved before MaxDepth hops.
	Exhausted bool
	// Stopped is set when the visitor ended the walk.
	Stopped bool
	// DataErr is the error of a visitor that could not read the data of a reachable push.
	// The walk ends there without being exhausted, since pushes further out exist.
	DataErr error
}

// VisitFunc is called with the hop count from the target, starting at 1. Returning false
// ends the walk. An error means the data of p could not be read.
type VisitFunc func(hop int, p *Push) (bool, error)

// Walk visits the pushes at hops 1..MaxDepth in dir, nearest first. An unresolvable
// neighbor ends the walk as exhausted and a visitor error ends it with DataErr set. Both
// are logged; only context errors are returned.
func (w *Window) Walk(ctx context.Context, dir Direction, visit VisitFunc) (WalkResult, error) {
	res := WalkResult{}
	cur := w.Target
	for hop := 1; hop <= w.MaxDepth; hop++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		logger := log.WithFields(log.Fields{
			"push":      w.Target.String(),
			"direction": dir.String(),
			"hop":       hop,
		})

		next, err := step(ctx, cur, dir)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			logger.WithError(err).Warn("push unreachable, treating direction as exhausted")
			res.Exhausted = true
			return res, nil
		}
		if next == nil {
			res.Exhausted = true
			return res, nil
		}

		more, err := visit(hop, next)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			logger.WithError(err).WithField("at", next.String()).Warn("push data unavailable, walk incomplete")
			res.DataErr = err
			return res, nil
		}
		res.Visited++
		if !more {
			res.Stopped = true
			return res, nil
		}
		cur = next
	}
	return res, nil
}

func step(ctx context.Context, p *Push, dir Direction) (*Push, error) {
	if dir == Forward {
		return p.Child(ctx)
	}
	return p.Parent(ctx)
}

// Pushes returns the reachable pushes in dir, nearest first.
func (w *Window) Pushes(ctx context.Context, dir Direction) ([]*Push, error) {
	var out []*Push
	_, err := w.Walk(ctx, dir, func(_ int, p *Push) (bool, error) {
		out = append(out, p)
		return true, nil
	})
	return out, err
}

// Prefetch resolves the window and fetches the runnables of kind on every push in it
// concurrently. Pushes that fail to fetch are logged and left for the walk to handle.
func (w *Window) Prefetch(ctx context.Context, kind v1.RunnableKind, concurrency int) error {
	if concurrency <= 0 {
		concurrency = defaultPrefetchConcurrency
	}

	pushes := []*Push{w.Target}
	for _, dir := range []Direction{Backward, Forward} {
		ps, err := w.Pushes(ctx, dir)
		if err != nil {
			return err
		}
		pushes = append(pushes, ps...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, p := range pushes {
		p := p
		g.Go(func() error {
			if _, err := p.Runnables(gctx, kind); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.WithError(err).WithField("push", p.String()).Warn("prefetch failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"push": w.Target.String(), "pushes": len(pushes), "kind": kind}).Debug("prefetched window")
	return nil
}
