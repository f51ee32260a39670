package localsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

const fixture = `
branch: autoland
pushes:
- id: 10
  revs: [aaaaaaaaaaaa1111, aaaaaaaaaaaa2222]
  date: 2024-03-01T10:00:00Z
  backedoutby: bbbbbbbbbbbb0000
  bugs: ["1234"]
  tasks:
  - id: t1
    label: test-linux/opt-mochitest-1
    result: testfailed
    tier: 1
  classifications:
    t1:
      classification: fixed by commit
      note: bbbbbbbbbbbb
- id: 11
  revs: [bbbbbbbbbbbb0000]
  date: 2024-03-01T11:00:00Z
backouts:
  cccccccccccc: [dddddddddddd]
`

func TestParse(t *testing.T) {
	ctx := context.Background()
	s, err := Parse([]byte(fixture))
	require.NoError(t, err)

	info, err := s.PushInfo(ctx, "autoland", "aaaaaaaaaaaa1111ffff")
	require.NoError(t, err)
	assert.Equal(t, 10, info.ID)
	assert.Equal(t, "autoland", info.Branch)
	assert.Equal(t, []string{"1234"}, info.Bugs)

	byID, err := s.PushByID(ctx, "autoland", 11)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbbb0000", byID.Rev())

	tasks, err := s.PushTasks(ctx, "autoland", "aaaaaaaaaaaa2222")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].Tier)

	classes, err := s.PushTaskClassifications(ctx, "autoland", "aaaaaaaaaaaa1111")
	require.NoError(t, err)
	assert.Equal(t, "fixed by commit", classes["t1"].Classification)

	revs, err := s.BackedOutRevs(ctx, "autoland", "bbbbbbbbbbbb0000beef")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aaaaaaaaaaaa1111", "aaaaaaaaaaaa2222"}, revs)

	revs, err = s.BackedOutRevs(ctx, "autoland", "cccccccccccc")
	require.NoError(t, err)
	assert.Equal(t, []string{"dddddddddddd"}, revs)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s, err := Parse([]byte(fixture))
	require.NoError(t, err)

	_, err = s.PushByID(ctx, "autoland", 12)
	assert.ErrorIs(t, err, v1.ErrPushNotFound)
	_, err = s.PushInfo(ctx, "mozilla-central", "aaaaaaaaaaaa1111")
	assert.ErrorIs(t, err, v1.ErrPushNotFound)
}

func TestInvalidFixture(t *testing.T) {
	_, err := New(Fixture{Pushes: []FixturePush{{PushInfo: v1.PushInfo{ID: 1}}}})
	assert.Error(t, err)

	_, err = New(Fixture{Branch: "autoland", Pushes: []FixturePush{
		{PushInfo: v1.PushInfo{ID: 1, Revs: []string{"a"}}},
		{PushInfo: v1.PushInfo{ID: 1, Revs: []string{"b"}}},
	}})
	assert.Error(t, err)
}
