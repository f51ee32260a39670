package dbsource

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/db"
	"github.com/openshift/culprit/pkg/push/pushtest"
)

func newDB(t *testing.T) *db.DB {
	dbc, err := db.New(db.DriverSQLite, filepath.Join(t.TempDir(), "culprit.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbc.Close() })
	require.NoError(t, dbc.UpdateSchema(context.Background()))
	return dbc
}

func TestSource(t *testing.T) {
	ctx := context.Background()
	dbc := newDB(t)

	fixture := pushtest.Fixture(time.Now(),
		pushtest.Spec{Tasks: []v1.Task{pushtest.Pass("build")}, Bugs: []string{"1"}},
		pushtest.Spec{
			Tasks: []v1.Task{
				pushtest.Classified("test-a", v1.FixedByCommit, pushtest.Rev(3)),
				{Label: "test-b", Result: "success", Groups: []v1.GroupResult{{Group: "a.ini", OK: true}}, Tags: map[string]string{"tests_grouped": "1"}},
			},
			BackedOutBy: pushtest.Rev(3),
		},
		pushtest.Spec{},
	)
	for _, p := range fixture.Pushes {
		require.NoError(t, dbc.StorePush(ctx, p.PushInfo, p.Tasks))
	}
	// storing again replaces the push
	require.NoError(t, dbc.StorePush(ctx, fixture.Pushes[1].PushInfo, fixture.Pushes[1].Tasks))

	s := New(dbc)

	info, err := s.PushInfo(ctx, pushtest.Branch, pushtest.Rev(2)[:12])
	require.NoError(t, err)
	assert.Equal(t, 2, info.ID)
	assert.Equal(t, pushtest.Rev(3), info.BackedOutBy)

	byID, err := s.PushByID(ctx, pushtest.Branch, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, byID.Bugs)
	assert.Equal(t, []string{pushtest.Rev(1)}, byID.Revs)

	tasks, err := s.PushTasks(ctx, pushtest.Branch, pushtest.Rev(2))
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "fixed by commit", tasks[0].Classification)
	assert.Equal(t, pushtest.Rev(3), tasks[0].ClassificationNote)
	assert.True(t, tasks[1].TestsGrouped())
	assert.Equal(t, []v1.GroupResult{{Group: "a.ini", OK: true}}, tasks[1].Groups)

	revs, err := s.BackedOutRevs(ctx, pushtest.Branch, pushtest.Rev(3))
	require.NoError(t, err)
	assert.Equal(t, []string{pushtest.Rev(2)}, revs)

	_, err = s.PushTaskClassifications(ctx, pushtest.Branch, pushtest.Rev(2))
	assert.ErrorIs(t, err, v1.ErrContractNotFilled)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(newDB(t))

	_, err := s.PushInfo(ctx, pushtest.Branch, "ffffffffffff")
	assert.ErrorIs(t, err, v1.ErrPushNotFound)
	_, err = s.PushByID(ctx, pushtest.Branch, 7)
	assert.ErrorIs(t, err, v1.ErrPushNotFound)
	_, err = s.PushTasks(ctx, pushtest.Branch, "ffffffffffff")
	assert.ErrorIs(t, err, v1.ErrPushNotFound)
}
