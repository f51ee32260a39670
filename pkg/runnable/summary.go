// Package runnable reduces the raw results of a push into one summary per runnable.
package runnable

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

// Status is the rolled up status of a runnable across retriggers.
type Status string

const (
	StatusPass         Status = "pass"
	StatusFail         Status = "fail"
	StatusIntermittent Status = "intermittent"
	// StatusSkip means none of the results produced an outcome.
	StatusSkip Status = "skip"
)

// Summary is the status and classification of one runnable on one push.
type Summary struct {
	Runnable       v1.Runnable       `json:"runnable"`
	Status         Status            `json:"status"`
	Classification v1.Classification `json:"classification"`
	// BackoutRefs are the distinct revisions referenced by fixed by commit results, sorted.
	BackoutRefs []string        `json:"backout_refs,omitempty"`
	Durations   []time.Duration `json:"durations"`
}

// Summarize reduces results into a summary. The reduction does not depend on the order
// of results.
func Summarize(r v1.Runnable, results []v1.Result) (*Summary, error) {
	if len(results) == 0 {
		return nil, errors.Wrapf(v1.ErrInvalidResultSet, "summarizing %s", r)
	}

	var passed, failed bool
	classification := v1.Unclassified
	refs := map[string]struct{}{}
	durations := make([]time.Duration, 0, len(results))

	for _, res := range results {
		durations = append(durations, res.Duration)

		switch {
		case res.Status.Failed():
			failed = true
		case res.Status == v1.ResultPass:
			passed = true
		}

		if res.Classification.Dominates(classification) {
			classification = res.Classification
		}
		if res.Classification == v1.FixedByCommit && res.BackoutRef != "" {
			refs[v1.ShortRev(res.BackoutRef)] = struct{}{}
		}
	}

	s := &Summary{
		Runnable:       r,
		Classification: classification,
		Durations:      durations,
	}
	switch {
	case passed && failed:
		s.Status = StatusIntermittent
	case failed:
		s.Status = StatusFail
	case passed:
		s.Status = StatusPass
	default:
		s.Status = StatusSkip
	}

	for ref := range refs {
		s.BackoutRefs = append(s.BackoutRefs, ref)
	}
	sort.Strings(s.BackoutRefs)
	sort.Slice(s.Durations, func(i, j int) bool { return s.Durations[i] < s.Durations[j] })

	return s, nil
}

// Failing is true for FAIL and INTERMITTENT.
func (s *Summary) Failing() bool {
	return s.Status == StatusFail || s.Status == StatusIntermittent
}

// Ran is true when at least one result produced an outcome.
func (s *Summary) Ran() bool {
	return s.Status != StatusSkip
}

func (s *Summary) Intermittent() bool {
	return s.Status == StatusIntermittent
}

func (s *Summary) TotalDuration() time.Duration {
	var total time.Duration
	for _, d := range s.Durations {
		total += d
	}
	return total
}

func (s *Summary) MedianDuration() time.Duration {
	data := make(stats.Float64Data, 0, len(s.Durations))
	for _, d := range s.Durations {
		data = append(data, float64(d))
	}
	median, err := data.Median()
	if err != nil {
		return 0
	}
	return time.Duration(median)
}
