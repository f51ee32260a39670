// Package bqsource serves push data from warehouse tables, for deployments that export CI
// results to BigQuery instead of querying the CI systems directly.
package bqsource

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"google.golang.org/api/iterator"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	bqclient "github.com/openshift/culprit/pkg/bigquery"
	"github.com/openshift/culprit/pkg/bigquery/bqlabel"
)

const (
	Name = "bigquery"

	pushesTable = "pushes"
	tasksTable  = "tasks"
)

// PushRow is a row of the pushes table.
type PushRow struct {
	Branch      string              `bigquery:"branch"`
	PushID      int64               `bigquery:"push_id"`
	Revs        []string            `bigquery:"revs"`
	Date        time.Time           `bigquery:"date"`
	Author      bigquery.NullString `bigquery:"author"`
	BackedOutBy bigquery.NullString `bigquery:"backedoutby"`
	Bugs        []string            `bigquery:"bugs"`
}

// TaskRow is a row of the tasks table. Groups holds the group results as a JSON array.
type TaskRow struct {
	TaskID             string               `bigquery:"task_id"`
	Label              string               `bigquery:"label"`
	State              bigquery.NullString  `bigquery:"state"`
	Result             string               `bigquery:"result"`
	DurationSeconds    bigquery.NullFloat64 `bigquery:"duration_seconds"`
	Classification     bigquery.NullString  `bigquery:"classification"`
	ClassificationNote bigquery.NullString  `bigquery:"classification_note"`
	Tier               bigquery.NullInt64   `bigquery:"tier"`
	TestsGrouped       bigquery.NullBool    `bigquery:"tests_grouped"`
	Groups             bigquery.NullString  `bigquery:"groups"`
}

func (r PushRow) Info() v1.PushInfo {
	return v1.PushInfo{
		ID:          int(r.PushID),
		Branch:      r.Branch,
		Revs:        r.Revs,
		Date:        r.Date,
		Author:      r.Author.StringVal,
		BackedOutBy: r.BackedOutBy.StringVal,
		Bugs:        r.Bugs,
	}
}

func (r TaskRow) Task() v1.Task {
	t := v1.Task{
		ID:                 r.TaskID,
		Label:              r.Label,
		State:              r.State.StringVal,
		Result:             r.Result,
		Duration:           time.Duration(r.DurationSeconds.Float64 * float64(time.Second)),
		Classification:     r.Classification.StringVal,
		ClassificationNote: r.ClassificationNote.StringVal,
		Tier:               int(r.Tier.Int64),
	}
	if r.TestsGrouped.Valid && r.TestsGrouped.Bool {
		t.Tags = map[string]string{"tests_grouped": "1"}
	}
	if r.Groups.Valid {
		for _, g := range gjson.Parse(r.Groups.StringVal).Array() {
			t.Groups = append(t.Groups, v1.GroupResult{
				Group:    g.Get("group").String(),
				OK:       g.Get("ok").Bool(),
				Duration: time.Duration(g.Get("duration_seconds").Float() * float64(time.Second)),
			})
		}
	}
	return t
}

type Source struct {
	client *bqclient.Client
}

func New(client *bqclient.Client) *Source {
	return &Source{client: client}
}

func (s *Source) Name() string {
	return Name
}

func read[T any](ctx context.Context, q *bigquery.Query) ([]T, error) {
	it, err := bqclient.LoggedRead(ctx, q)
	if err != nil {
		return nil, err
	}
	var rows []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Source) pushes(ctx context.Context, name bqlabel.QueryValue, where string, params ...bigquery.QueryParameter) ([]PushRow, error) {
	q := s.client.Query(name, fmt.Sprintf(`
		SELECT branch, push_id, revs, date, author, backedoutby, bugs
		FROM %s
		WHERE branch = @branch AND %s
		ORDER BY push_id`, s.client.Table(pushesTable), where))
	q.Parameters = params
	return read[PushRow](ctx, q)
}

func (s *Source) PushInfo(ctx context.Context, branch, rev string) (*v1.PushInfo, error) {
	rows, err := s.pushes(ctx, bqlabel.PushInfo,
		"EXISTS (SELECT 1 FROM UNNEST(revs) AS r WHERE STARTS_WITH(r, @rev))",
		bigquery.QueryParameter{Name: "branch", Value: branch},
		bigquery.QueryParameter{Name: "rev", Value: v1.ShortRev(rev)},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "%s on %s", rev, branch)
	}
	info := rows[0].Info()
	return &info, nil
}

func (s *Source) PushByID(ctx context.Context, branch string, id int) (*v1.PushInfo, error) {
	rows, err := s.pushes(ctx, bqlabel.PushByID, "push_id = @id",
		bigquery.QueryParameter{Name: "branch", Value: branch},
		bigquery.QueryParameter{Name: "id", Value: id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "push id %d on %s", id, branch)
	}
	info := rows[0].Info()
	return &info, nil
}

func (s *Source) BackedOutRevs(ctx context.Context, branch, ref string) ([]string, error) {
	rows, err := s.pushes(ctx, bqlabel.Backouts, "STARTS_WITH(backedoutby, @ref)",
		bigquery.QueryParameter{Name: "branch", Value: branch},
		bigquery.QueryParameter{Name: "ref", Value: v1.ShortRev(ref)},
	)
	if err != nil {
		return nil, err
	}
	var revs []string
	for _, r := range rows {
		revs = append(revs, r.Revs...)
	}
	return revs, nil
}

func (s *Source) PushTasks(ctx context.Context, branch, rev string) ([]v1.Task, error) {
	q := s.client.Query(bqlabel.PushTasks, fmt.Sprintf(`
		SELECT task_id, label, state, result, duration_seconds, classification,
			classification_note, tier, tests_grouped, groups
		FROM %s
		WHERE branch = @branch AND STARTS_WITH(rev, @rev)
		ORDER BY task_id`, s.client.Table(tasksTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "branch", Value: branch},
		{Name: "rev", Value: v1.ShortRev(rev)},
	}
	rows, err := read[TaskRow](ctx, q)
	if err != nil {
		return nil, errors.WithMessage(err, "querying tasks")
	}
	if len(rows) == 0 {
		// an empty result cannot tell a missing push from one with no tasks exported yet
		return nil, errors.Wrapf(v1.ErrPushNotFound, "no tasks for %s on %s", rev, branch)
	}
	tasks := make([]v1.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.Task())
	}
	return tasks, nil
}
