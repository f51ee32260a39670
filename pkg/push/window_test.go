package push

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/push/pushtest"
)

func TestWalk(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newData(t, history(10)...), Options{})
	target, err := r.GetByID(ctx, pushtest.Branch, 5)
	require.NoError(t, err)

	tests := []struct {
		name     string
		maxDepth int
		dir      Direction
		stopAt   int
		wantIDs  []int
		want     WalkResult
	}{
		{
			name:     "backward within history",
			maxDepth: 3,
			dir:      Backward,
			wantIDs:  []int{4, 3, 2},
			want:     WalkResult{Visited: 3},
		},
		{
			name:     "backward hits the first push",
			maxDepth: 6,
			dir:      Backward,
			wantIDs:  []int{4, 3, 2, 1},
			want:     WalkResult{Visited: 4, Exhausted: true},
		},
		{
			name:     "forward hits the tip",
			maxDepth: 8,
			dir:      Forward,
			wantIDs:  []int{6, 7, 8, 9, 10},
			want:     WalkResult{Visited: 5, Exhausted: true},
		},
		{
			name:     "visitor stops",
			maxDepth: 5,
			dir:      Forward,
			stopAt:   2,
			wantIDs:  []int{6, 7},
			want:     WalkResult{Visited: 2, Stopped: true},
		},
		{
			name:     "zero depth",
			maxDepth: 0,
			dir:      Forward,
			want:     WalkResult{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ids []int
			res, err := NewWindow(target, tc.maxDepth).Walk(ctx, tc.dir, func(hop int, p *Push) (bool, error) {
				assert.Equal(t, len(ids)+1, hop)
				ids = append(ids, p.ID())
				return tc.stopAt == 0 || hop < tc.stopAt, nil
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantIDs, ids)
			assert.Equal(t, tc.want, res)
		})
	}
}

func TestWalkUnreachable(t *testing.T) {
	ctx := context.Background()
	data := newData(t, history(10)...)
	data.failID = 3
	r := NewRegistry(data, Options{})
	target, err := r.GetByID(ctx, pushtest.Branch, 6)
	require.NoError(t, err)

	pushes, err := NewWindow(target, 5).Pushes(ctx, Backward)
	require.NoError(t, err)
	require.Len(t, pushes, 2)
	assert.Equal(t, 4, pushes[1].ID())

	res, err := NewWindow(target, 5).Walk(ctx, Backward, func(int, *Push) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, WalkResult{Visited: 2, Exhausted: true}, res)
}

func TestWalkDataError(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newData(t, history(10)...), Options{})
	target, err := r.GetByID(ctx, pushtest.Branch, 6)
	require.NoError(t, err)

	missing := errors.New("artifact missing")
	res, err := NewWindow(target, 5).Walk(ctx, Backward, func(hop int, p *Push) (bool, error) {
		if hop == 2 {
			return true, missing
		}
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Visited)
	assert.False(t, res.Exhausted, "the push exists, only its data is missing")
	assert.ErrorIs(t, res.DataErr, missing)
}

func TestWalkCanceled(t *testing.T) {
	r := NewRegistry(newData(t, history(3)...), Options{})
	target, err := r.GetByID(context.Background(), pushtest.Branch, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewWindow(target, 2).Walk(ctx, Forward, func(int, *Push) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrefetch(t *testing.T) {
	ctx := context.Background()
	data := newData(t, history(9)...)
	r := NewRegistry(data, Options{})
	target, err := r.GetByID(ctx, pushtest.Branch, 5)
	require.NoError(t, err)

	require.NoError(t, NewWindow(target, 2).Prefetch(ctx, v1.KindLabel, 2))
	assert.Equal(t, 5, data.tasks)

	var fetched int32
	_, err = NewWindow(target, 2).Walk(ctx, Forward, func(_ int, p *Push) (bool, error) {
		_, err := p.Runnables(ctx, v1.KindLabel)
		atomic.AddInt32(&fetched, 1)
		return true, err
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetched)
	assert.Equal(t, 5, data.tasks, "prefetched pushes are not fetched again")
}
