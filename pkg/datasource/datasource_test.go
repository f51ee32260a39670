package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

type fakeSource struct {
	name  string
	tasks []v1.Task
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) PushTasks(context.Context, string, string) ([]v1.Task, error) {
	f.calls++
	return f.tasks, f.err
}

// pushOnly implements a contract no other fake does.
type pushOnly struct{ err error }

func (p pushOnly) Name() string { return "pushonly" }

func (p pushOnly) PushInfo(context.Context, string, string) (*v1.PushInfo, error) {
	return nil, p.err
}

func (p pushOnly) PushByID(context.Context, string, int) (*v1.PushInfo, error) {
	return nil, p.err
}

func TestHandlerPriority(t *testing.T) {
	ctx := context.Background()
	tasks := []v1.Task{{ID: "1", Label: "build"}}

	tests := []struct {
		name      string
		sources   []*fakeSource
		wantTasks []v1.Task
		wantErr   error
		wantCalls []int
	}{
		{
			name: "first answer wins",
			sources: []*fakeSource{
				{name: "a", tasks: tasks},
				{name: "b", tasks: []v1.Task{{ID: "2"}}},
			},
			wantTasks: tasks,
			wantCalls: []int{1, 0},
		},
		{
			name: "not filled defers to the next source",
			sources: []*fakeSource{
				{name: "a", err: v1.ErrContractNotFilled},
				{name: "b", tasks: tasks},
			},
			wantTasks: tasks,
			wantCalls: []int{1, 1},
		},
		{
			name: "failure defers to the next source",
			sources: []*fakeSource{
				{name: "a", err: errors.New("connection refused")},
				{name: "b", tasks: tasks},
			},
			wantTasks: tasks,
			wantCalls: []int{1, 1},
		},
		{
			name: "every source missing the push",
			sources: []*fakeSource{
				{name: "a", err: v1.ErrPushNotFound},
				{name: "b", err: v1.ErrContractNotFilled},
				{name: "c", err: v1.ErrPushNotFound},
			},
			wantErr:   v1.ErrPushNotFound,
			wantCalls: []int{1, 1, 1},
		},
		{
			name: "missing and failing",
			sources: []*fakeSource{
				{name: "a", err: v1.ErrPushNotFound},
				{name: "b", err: errors.New("timeout")},
			},
			wantErr:   v1.ErrDataUnavailable,
			wantCalls: []int{1, 1},
		},
		{
			name: "nobody filled the contract",
			sources: []*fakeSource{
				{name: "a", err: v1.ErrContractNotFilled},
			},
			wantErr:   v1.ErrDataUnavailable,
			wantCalls: []int{1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var sources []Source
			for _, s := range tc.sources {
				sources = append(sources, s)
			}
			h := NewHandler(sources...)

			got, err := h.PushTasks(ctx, "autoland", "abc")
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.wantTasks, got)
			}
			for i, s := range tc.sources {
				assert.Equal(t, tc.wantCalls[i], s.calls, "calls to %s", s.name)
			}
		})
	}
}

func TestHandlerSkipsSourcesWithoutContract(t *testing.T) {
	ctx := context.Background()
	tasks := &fakeSource{name: "tasks", tasks: []v1.Task{{ID: "1"}}}
	h := NewHandler(pushOnly{err: v1.ErrPushNotFound}, tasks)

	got, err := h.PushTasks(ctx, "autoland", "abc")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = h.PushInfo(ctx, "autoland", "abc")
	assert.ErrorIs(t, err, v1.ErrPushNotFound)

	_, err = h.BackedOutRevs(ctx, "autoland", "abc")
	assert.ErrorIs(t, err, v1.ErrDataUnavailable)

	assert.Equal(t, []string{"pushonly", "tasks"}, h.Sources())
}

func TestHandlerOptionalClassifications(t *testing.T) {
	h := NewHandler(&fakeSource{name: "tasks"})
	got, err := h.PushTaskClassifications(context.Background(), "autoland", "abc")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHandlerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{name: "a"}
	_, err := NewHandler(src).PushTasks(ctx, "autoland", "abc")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.calls)
}
