// Package v1 contains the types shared by the data sources, the push model and the
// regression classifier.
package v1

import (
	"strings"
	"time"
)

// ResultStatus is the outcome of a single execution of a runnable.
type ResultStatus string

const (
	ResultPass      ResultStatus = "pass"
	ResultFail      ResultStatus = "fail"
	ResultException ResultStatus = "exception"
	ResultSkip      ResultStatus = "skip"
)

// Failed is true for outcomes that vote as a failure.
func (s ResultStatus) Failed() bool {
	return s == ResultFail || s == ResultException
}

// ParseResultStatus normalizes the result strings used by the upstream CI systems.
func ParseResultStatus(s string) ResultStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "passed", "success", "ok":
		return ResultPass
	case "fail", "failed", "testfailed", "busted":
		return ResultFail
	case "exception":
		return ResultException
	default:
		// canceled, superseded, retry, unscheduled and anything unknown did not
		// produce a usable outcome.
		return ResultSkip
	}
}

// Classification is the human or automated annotation attached to a failure.
type Classification string

const (
	Unclassified      Classification = "not classified"
	FixedByCommit     Classification = "fixed by commit"
	KnownIntermittent Classification = "intermittent"
	Infra             Classification = "infra"
	ExpectedFail      Classification = "expected fail"
)

// ParseClassification maps upstream classification names to a Classification.
func ParseClassification(s string) Classification {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed by commit":
		return FixedByCommit
	case "intermittent", "autoclassified intermittent", "intermittent needs filing":
		return KnownIntermittent
	case "infra":
		return Infra
	case "expected fail":
		return ExpectedFail
	default:
		return Unclassified
	}
}

// rank orders classifications by dominance when summarizing retriggers.
func (c Classification) rank() int {
	switch c {
	case KnownIntermittent:
		return 4
	case Infra:
		return 3
	case ExpectedFail:
		return 2
	case FixedByCommit:
		return 1
	default:
		return 0
	}
}

// Dominates reports whether c wins over other in a summary.
func (c Classification) Dominates(other Classification) bool {
	return c.rank() > other.rank()
}

// Result is a single execution outcome of a runnable on a push.
type Result struct {
	Status         ResultStatus   `json:"status" yaml:"status"`
	Duration       time.Duration  `json:"duration" yaml:"duration"`
	Classification Classification `json:"classification" yaml:"classification"`
	// BackoutRef is the revision referenced by a fixed by commit classification.
	BackoutRef string `json:"backout_ref,omitempty" yaml:"backoutRef,omitempty"`
}

type RunnableKind string

const (
	KindLabel RunnableKind = "label"
	KindGroup RunnableKind = "group"
)

// ParseRunnableKind returns false for unknown kinds.
func ParseRunnableKind(s string) (RunnableKind, bool) {
	switch RunnableKind(strings.ToLower(s)) {
	case KindLabel:
		return KindLabel, true
	case KindGroup:
		return KindGroup, true
	}
	return "", false
}

// Runnable is the unit regressions are computed against: a task label or a test group.
type Runnable struct {
	Kind RunnableKind `json:"kind"`
	Name string       `json:"name"`
}

func (r Runnable) String() string {
	return string(r.Kind) + ":" + r.Name
}

// GroupResult is the outcome of one test group (manifest) within a test task.
type GroupResult struct {
	Group    string        `json:"group" yaml:"group"`
	OK       bool          `json:"ok" yaml:"ok"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Task is a raw task as returned by the data sources, before it is split into
// per-runnable results.
type Task struct {
	ID                 string            `json:"id" yaml:"id"`
	Label              string            `json:"label" yaml:"label"`
	State              string            `json:"state,omitempty" yaml:"state,omitempty"`
	Result             string            `json:"result" yaml:"result"`
	Duration           time.Duration     `json:"duration" yaml:"duration"`
	Classification     string            `json:"classification,omitempty" yaml:"classification,omitempty"`
	ClassificationNote string            `json:"classification_note,omitempty" yaml:"classificationNote,omitempty"`
	Tier               int               `json:"tier,omitempty" yaml:"tier,omitempty"`
	Tags               map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Groups             []GroupResult     `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// TestsGrouped is true for tasks whose chunking is not stable across pushes. Such tasks
// cannot be compared by label.
func (t Task) TestsGrouped() bool {
	return t.Tags["tests_grouped"] == "1"
}

// TaskClassification is the classification data of a task, as returned by the
// classification contract.
type TaskClassification struct {
	Classification string `json:"classification" yaml:"classification"`
	Note           string `json:"note,omitempty" yaml:"note,omitempty"`
}

// PushInfo is the VCS level description of a push.
type PushInfo struct {
	ID     int       `json:"id" yaml:"id"`
	Branch string    `json:"branch" yaml:"branch"`
	Revs   []string  `json:"revs" yaml:"revs"`
	Date   time.Time `json:"date" yaml:"date"`
	Author string    `json:"author,omitempty" yaml:"author,omitempty"`
	// BackedOutBy is the revision that backed out this push, if any.
	BackedOutBy string   `json:"backedoutby,omitempty" yaml:"backedoutby,omitempty"`
	Bugs        []string `json:"bugs,omitempty" yaml:"bugs,omitempty"`
}

// Rev is the head revision of the push.
func (p PushInfo) Rev() string {
	if len(p.Revs) == 0 {
		return ""
	}
	return p.Revs[0]
}

// ShortRev truncates a revision to the 12 character form used in classification notes.
func ShortRev(rev string) string {
	rev = strings.TrimSpace(rev)
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// SameRev compares two revisions on their short form.
func SameRev(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return ShortRev(a) == ShortRev(b)
}
