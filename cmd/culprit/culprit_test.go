package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/datasource/dbsource"
	"github.com/openshift/culprit/pkg/datasource/localsource"
	"github.com/openshift/culprit/pkg/db"
	"github.com/openshift/culprit/pkg/regression"
	"github.com/openshift/culprit/pkg/runnable"
)

const fixture = `
branch: autoland
pushes:
  - id: 1
    revs: [aaaaaaaaaaaa0000000000000000000000000000]
    date: 2024-03-01T00:00:00Z
    tasks:
      - id: t1
        label: test-linux-mochitest-1
        result: success
  - id: 2
    revs: [bbbbbbbbbbbb0000000000000000000000000000]
    date: 2024-03-01T01:00:00Z
    backedoutby: cccccccccccc0000000000000000000000000000
    tasks:
      - id: t2
        label: test-linux-mochitest-1
        result: testfailed
    classifications:
      t2:
        classification: fixed by commit
        note: cccccccccccc
`

func TestSeed(t *testing.T) {
	ctx := context.Background()
	src, err := localsource.Parse([]byte(fixture))
	require.NoError(t, err)

	dbc, err := db.New(db.DriverSQLite, filepath.Join(t.TempDir(), "culprit.db"), logger.Silent)
	require.NoError(t, err)
	defer dbc.Close()
	require.NoError(t, dbc.UpdateSchema(ctx))

	require.NoError(t, seed(ctx, dbc, src))
	// seeding twice replaces the pushes
	require.NoError(t, seed(ctx, dbc, src))

	stored := dbsource.New(dbc)
	tasks, err := stored.PushTasks(ctx, "autoland", "bbbbbbbbbbbb")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "fixed by commit", tasks[0].Classification)
	assert.Equal(t, "cccccccccccc", tasks[0].ClassificationNote)

	revs, err := stored.BackedOutRevs(ctx, "autoland", "cccccccccccc")
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbbbbbbbbbb0000000000000000000000000000"}, revs)
}

func TestWriteReport(t *testing.T) {
	report := &regression.Report{
		Push:          v1.PushInfo{ID: 2, Branch: "autoland", Revs: []string{"bbbbbbbbbbbb0000"}},
		Kind:          v1.KindLabel,
		DurationHours: 7,
		Regressions: []regression.Verdict{
			{Runnable: v1.Runnable{Kind: v1.KindLabel, Name: "test-a"}, Status: runnable.StatusFail, Likely: true, MedianDuration: 90 * time.Second},
			{Runnable: v1.Runnable{Kind: v1.KindLabel, Name: "test-b"}, Status: runnable.StatusIntermittent, Distance: regression.Distance{Total: 6, Defined: true}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "text", report))
	out := buf.String()
	assert.Contains(t, out, "push 2 on autoland (bbbbbbbbbbbb0000), 7h of tasks")
	assert.Regexp(t, `likely\s+0\s+fail\s+1m30s\s+test-a`, out)
	assert.Regexp(t, `possible\s+6\s+intermittent\s+0s\s+test-b`, out)

	buf.Reset()
	require.NoError(t, writeReport(&buf, "json", report))
	assert.Contains(t, buf.String(), `"likely": true`)

	assert.Error(t, writeReport(&buf, "xml", report))
}
