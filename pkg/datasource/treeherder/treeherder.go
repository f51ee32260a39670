// Package treeherder reads the tasks of a push and their classifications from the
// Treeherder REST API.
package treeherder

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/datasource/restclient"
)

const (
	Name       = "treeherder"
	DefaultURL = "https://treeherder.mozilla.org"

	pageSize = 2000
)

// failureClassifications are the ids of the failure_classification table.
var failureClassifications = map[int64]string{
	1: "not classified",
	2: "fixed by commit",
	3: "expected fail",
	4: "intermittent",
	5: "infra",
	6: "intermittent needs filing",
	7: "autoclassified intermittent",
	8: "new failure not classified",
}

// Source fills the task and classification contracts.
type Source struct {
	client *restclient.Client
}

func New(client *restclient.Client) *Source {
	return &Source{client: client}
}

func (s *Source) Name() string {
	return Name
}

func (s *Source) pushID(ctx context.Context, branch, rev string) (int64, error) {
	res, err := s.client.Get(ctx, fmt.Sprintf("/api/project/%s/push/", branch), url.Values{"revision": []string{rev}})
	if err != nil {
		return 0, err
	}
	id := res.Get("results.0.id")
	if !id.Exists() {
		return 0, errors.Wrapf(v1.ErrPushNotFound, "%s on %s", rev, branch)
	}
	return id.Int(), nil
}

// PushTasks lists the jobs of the push. Only the last run of a retried task is kept.
func (s *Source) PushTasks(ctx context.Context, branch, rev string) ([]v1.Task, error) {
	id, err := s.pushID(ctx, branch, rev)
	if err != nil {
		return nil, err
	}

	var tasks []v1.Task
	index := map[string]int{}
	retries := map[string]int64{}
	for offset := 0; ; offset += pageSize {
		res, err := s.client.Get(ctx, "/api/jobs/", url.Values{
			"push_id": []string{strconv.FormatInt(id, 10)},
			"count":   []string{strconv.Itoa(pageSize)},
			"offset":  []string{strconv.Itoa(offset)},
		})
		if err != nil {
			return nil, errors.WithMessage(err, "listing jobs")
		}

		columns := map[string]int{}
		for i, name := range res.Get("job_property_names").Array() {
			columns[name.String()] = i
		}
		field := func(row gjson.Result, name string) gjson.Result {
			i, ok := columns[name]
			if !ok {
				return gjson.Result{}
			}
			return row.Get(strconv.Itoa(i))
		}

		rows := res.Get("results").Array()
		for _, row := range rows {
			taskID := field(row, "task_id").String()
			retry := field(row, "retry_id").Int()
			if prev, seen := retries[taskID]; seen && retry < prev {
				continue
			}
			retries[taskID] = retry

			task := v1.Task{
				ID:             taskID,
				Label:          field(row, "job_type_name").String(),
				State:          field(row, "state").String(),
				Result:         field(row, "result").String(),
				Classification: failureClassifications[field(row, "failure_classification_id").Int()],
				Tier:           int(field(row, "tier").Int()),
			}
			if start, end := field(row, "start_timestamp").Int(), field(row, "end_timestamp").Int(); end > start && start > 0 {
				task.Duration = time.Duration(end-start) * time.Second
			}

			if i, ok := index[taskID]; ok {
				tasks[i] = task
				continue
			}
			index[taskID] = len(tasks)
			tasks = append(tasks, task)
		}
		if len(rows) < pageSize {
			break
		}
	}

	log.WithFields(log.Fields{"branch": branch, "rev": v1.ShortRev(rev), "tasks": len(tasks)}).Debug("listed treeherder jobs")
	return tasks, nil
}

// PushTaskClassifications reads the classification notes of the push. Jobs without a note
// keep the classification PushTasks reported.
func (s *Source) PushTaskClassifications(ctx context.Context, branch, rev string) (map[string]v1.TaskClassification, error) {
	res, err := s.client.Get(ctx, fmt.Sprintf("/api/project/%s/note/push_notes/", branch), url.Values{
		"revision": []string{rev},
		"format":   []string{"json"},
	})
	if err != nil {
		return nil, err
	}

	out := map[string]v1.TaskClassification{}
	for _, note := range res.Array() {
		taskID := note.Get("job.task_id").String()
		if taskID == "" {
			continue
		}
		out[taskID] = v1.TaskClassification{
			Classification: note.Get("failure_classification_name").String(),
			Note:           note.Get("text").String(),
		}
	}
	return out, nil
}
