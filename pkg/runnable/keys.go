package runnable

import (
	"strings"

	log "github.com/sirupsen/logrus"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

// KeyedResult is a result attributed to a runnable.
type KeyedResult struct {
	Runnable v1.Runnable
	Result   v1.Result
}

// KeyExtractor maps a raw task to the results it contributes to each runnable.
type KeyExtractor func(task v1.Task) []KeyedResult

// ExtractorFor returns the key extractor used for a runnable kind.
func ExtractorFor(kind v1.RunnableKind) KeyExtractor {
	if kind == v1.KindGroup {
		return GroupKey
	}
	return LabelKey
}

func taskResult(task v1.Task, status v1.ResultStatus, failed bool) v1.Result {
	res := v1.Result{Status: status, Duration: task.Duration, Classification: v1.Unclassified}
	if failed {
		res.Classification = v1.ParseClassification(task.Classification)
		if res.Classification == v1.FixedByCommit {
			res.BackoutRef = task.ClassificationNote
		}
	}
	return res
}

// LabelKey attributes the whole task to its label. Tasks with unstable test chunking
// are left out since the same label may run different tests on different pushes.
func LabelKey(task v1.Task) []KeyedResult {
	if task.Label == "" || task.TestsGrouped() {
		return nil
	}
	status := v1.ParseResultStatus(task.Result)
	return []KeyedResult{{
		Runnable: v1.Runnable{Kind: v1.KindLabel, Name: task.Label},
		Result:   taskResult(task, status, status.Failed()),
	}}
}

// GroupKey attributes each test group of a task separately. The task classification
// only applies to the groups that failed in it.
func GroupKey(task v1.Task) []KeyedResult {
	taskStatus := v1.ParseResultStatus(task.Result)
	wpt := isWPT(task.Label)
	out := make([]KeyedResult, 0, len(task.Groups))
	for _, g := range task.Groups {
		if wpt {
			if g.Group == "/" {
				continue
			}
			g.Group = wptGroup(g.Group)
		}
		if badGroup(g.Group) {
			log.WithField("task", task.ID).Warnf("skipping bad group name %q", g.Group)
			continue
		}
		status := v1.ResultPass
		if !g.OK {
			status = v1.ResultFail
		}
		res := taskResult(task, status, !g.OK && taskStatus.Failed())
		res.Duration = g.Duration
		out = append(out, KeyedResult{
			Runnable: v1.Runnable{Kind: v1.KindGroup, Name: g.Group},
			Result:   res,
		})
	}
	return out
}

func badGroup(group string) bool {
	return strings.TrimSpace(group) == "" ||
		strings.HasPrefix(group, "file://") ||
		strings.HasPrefix(group, "/") ||
		strings.HasPrefix(group, "Z:") ||
		strings.Contains(group, "\\")
}

func isWPT(label string) bool {
	return strings.Contains(label, "web-platform-tests") ||
		strings.Contains(label, "test-verify-wpt") ||
		strings.Contains(label, "test-coverage-wpt")
}

// wptGroup maps a web-platform-tests group reported by its URL path to the directory
// holding it in the source tree.
func wptGroup(group string) string {
	switch {
	case strings.TrimSpace(group) == "":
		return group
	case strings.HasPrefix(group, "/_mozilla/"):
		return "testing/web-platform/mozilla/tests/" + strings.TrimPrefix(group, "/_mozilla/")
	case strings.HasPrefix(group, "/"):
		return "testing/web-platform/tests/" + strings.TrimPrefix(group, "/")
	}
	return group
}

// Build groups the results of tasks with extract and summarizes each runnable.
func Build(tasks []v1.Task, extract KeyExtractor) (map[v1.Runnable]*Summary, error) {
	grouped := map[v1.Runnable][]v1.Result{}
	for _, task := range tasks {
		for _, kr := range extract(task) {
			grouped[kr.Runnable] = append(grouped[kr.Runnable], kr.Result)
		}
	}

	summaries := make(map[v1.Runnable]*Summary, len(grouped))
	for r, results := range grouped {
		s, err := Summarize(r, results)
		if err != nil {
			return nil, err
		}
		summaries[r] = s
	}
	return summaries, nil
}
