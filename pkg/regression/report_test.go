package regression

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/push/pushtest"
	"github.com/openshift/culprit/pkg/runnable"
)

func bustageHistory(backedOutBy string, bugs ...string) []pushtest.Spec {
	return []pushtest.Spec{
		{Tasks: tasks(pushtest.Pass(label)), Bugs: []string{"100"}},
		{Tasks: tasks(pushtest.Fail(label)), Bugs: bugs, BackedOutBy: backedOutBy},
		{Tasks: tasks(pushtest.Fail(label)), Bugs: []string{"200"}},
		{Tasks: tasks(pushtest.Pass(label)), Bugs: []string{"100"}},
	}
}

func TestBustageFixedBy(t *testing.T) {
	tests := []struct {
		name  string
		specs []pushtest.Spec
		want  string
	}{
		{
			name:  "first child with the same bug where it passes",
			specs: bustageHistory("", "100"),
			want:  pushtest.Rev(4),
		},
		{
			name:  "backed out pushes are not bustage fixed",
			specs: bustageHistory(pushtest.Rev(3), "100"),
		},
		{
			name:  "no shared bug",
			specs: bustageHistory("", "300"),
		},
		{
			name:  "no bugs",
			specs: bustageHistory(""),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := registry(t, tc.specs...)
			got, err := NewClassifier(5).BustageFixedBy(context.Background(), get(t, r, 2))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAnalyze(t *testing.T) {
	r := registry(t, bustageHistory("", "100")...)
	report, err := NewClassifier(5).Analyze(context.Background(), get(t, r, 2), v1.KindLabel, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Push.ID)
	assert.Equal(t, v1.KindLabel, report.Kind)
	assert.Equal(t, 5, report.MaxDepth)
	assert.Equal(t, []v1.Runnable{target}, report.Candidates)
	assert.Equal(t, []Verdict{{
		Runnable: target,
		Status:   runnable.StatusFail,
		Distance: Distance{Defined: true},
		Likely:   true,

		TotalDuration:  time.Minute,
		MedianDuration: time.Minute,
	}}, report.Regressions)
	assert.Equal(t, 0, report.DurationHours)
	assert.Equal(t, []v1.Runnable{target}, report.Likely)
	assert.Empty(t, report.Possible)
	assert.Equal(t, pushtest.Rev(4), report.BustageFixedBy)
}

func TestAnalyzeDurations(t *testing.T) {
	slow := func(d time.Duration) v1.Task {
		task := pushtest.Fail(label)
		task.Duration = d
		return task
	}
	r := registry(t,
		pushtest.Spec{Tasks: tasks(pushtest.Pass(label))},
		pushtest.Spec{Tasks: tasks(slow(40*time.Minute), slow(50*time.Minute), slow(90*time.Minute)), BackedOutBy: pushtest.Rev(3)},
		pushtest.Spec{Tasks: other()},
	)
	report, err := NewClassifier(5).Analyze(context.Background(), get(t, r, 2), v1.KindLabel, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, report.DurationHours)
	require.Len(t, report.Regressions, 1)
	assert.Equal(t, 3*time.Hour, report.Regressions[0].TotalDuration)
	assert.Equal(t, 50*time.Minute, report.Regressions[0].MedianDuration)
}
