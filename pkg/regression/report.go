package regression

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/push"
	"github.com/openshift/culprit/pkg/runnable"
)

// Verdict is one regression with the data it was decided on.
type Verdict struct {
	Runnable v1.Runnable     `json:"runnable"`
	Status   runnable.Status `json:"status"`
	Distance Distance        `json:"distance"`
	Likely   bool            `json:"likely"`
	// TotalDuration and MedianDuration are the runtimes of the runnable where the failure
	// was observed, across retriggers.
	TotalDuration  time.Duration `json:"total_duration"`
	MedianDuration time.Duration `json:"median_duration"`
}

// Report is the full classification of one push for one runnable kind. DurationHours is
// the total runtime of the tasks of the push, in whole hours.
type Report struct {
	Push           v1.PushInfo     `json:"push"`
	Kind           v1.RunnableKind `json:"kind"`
	MaxDepth       int             `json:"max_depth"`
	DurationHours  int             `json:"duration_hours"`
	Candidates     []v1.Runnable   `json:"candidates"`
	Regressions    []Verdict       `json:"regressions"`
	Likely         []v1.Runnable   `json:"likely"`
	Possible       []v1.Runnable   `json:"possible"`
	BustageFixedBy string          `json:"bustage_fixed_by,omitempty"`
}

// Analyze prefetches the window of p and classifies it.
func (c *Classifier) Analyze(ctx context.Context, p *push.Push, kind v1.RunnableKind, concurrency int) (*Report, error) {
	// ancestors evaluate their own windows, so prefetch twice the depth backwards
	if err := push.NewWindow(p, 2*c.MaxDepth).Prefetch(ctx, kind, concurrency); err != nil {
		return nil, err
	}

	cands, err := c.candidateMap(ctx, p, kind)
	if err != nil {
		return nil, err
	}
	regs, err := c.regressionMap(ctx, p, kind)
	if err != nil {
		return nil, err
	}
	hours, err := p.Duration(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Push:       p.Info(),
		Kind:       kind,
		MaxDepth:      c.MaxDepth,
		DurationHours: hours,
		Candidates:    sortedRunnables(cands),
	}
	for _, r := range sortedRunnables(regs) {
		d, err := c.distance(ctx, p, cands[r])
		if err != nil {
			return nil, err
		}
		s := cands[r].Summary
		v := Verdict{
			Runnable:       r,
			Status:         s.Status,
			Distance:       d,
			Likely:         regs[r] == 0,
			TotalDuration:  s.TotalDuration(),
			MedianDuration: s.MedianDuration(),
		}
		report.Regressions = append(report.Regressions, v)
		if v.Likely {
			report.Likely = append(report.Likely, r)
		} else {
			report.Possible = append(report.Possible, r)
		}
	}

	report.BustageFixedBy, err = c.BustageFixedBy(ctx, p)
	if err != nil {
		return nil, errors.WithMessage(err, "bustage fix detection")
	}
	return report, nil
}

// BustageFixedBy returns the revision of the push that fixed the bustage of p without
// backing it out, or "" if there is none. The fix is the first child within MaxDepth that
// shares a bug with p and on which one of the candidates of p passes again.
func (c *Classifier) BustageFixedBy(ctx context.Context, p *push.Push) (string, error) {
	if p.IsBackedOut() {
		return "", nil
	}
	bugs := sets.New(p.Bugs()...)
	if bugs.Len() == 0 {
		return "", nil
	}

	for _, kind := range []v1.RunnableKind{v1.KindLabel, v1.KindGroup} {
		cands, err := c.CandidateRegressions(ctx, p, kind)
		if err != nil {
			return "", err
		}
		if cands.Len() == 0 {
			continue
		}

		fix := ""
		_, err = push.NewWindow(p, c.MaxDepth).Walk(ctx, push.Forward, func(_ int, child *push.Push) (bool, error) {
			if !bugs.HasAny(child.Bugs()...) {
				return true, nil
			}
			summaries, err := child.Runnables(ctx, kind)
			if err != nil {
				return false, err
			}
			for r := range cands {
				if s, ok := summaries[r]; ok && s.Status == runnable.StatusPass {
					fix = child.Rev()
					return false, nil
				}
			}
			return true, nil
		})
		if err != nil {
			return "", err
		}
		if fix != "" {
			return fix, nil
		}
	}
	return "", nil
}
