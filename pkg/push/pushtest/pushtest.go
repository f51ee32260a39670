// Package pushtest builds linear push histories backed by a local fixture, for tests.
package pushtest

import (
	"fmt"
	"time"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/datasource/localsource"
)

const Branch = "autoland"

// Rev is the head revision of push id. Revisions are distinct on their short form.
func Rev(id int) string {
	return fmt.Sprintf("%012d%s", id, "abcdef0123456789abcdef0123456789")[:40]
}

// Spec describes one push of a history. Pushes are numbered from 1 in order.
type Spec struct {
	BackedOutBy string
	Bugs        []string
	Tasks       []v1.Task
	// Age of the push. Zero means two days, old enough to be finalized.
	Age time.Duration
}

func Pass(label string) v1.Task {
	return v1.Task{Label: label, Result: "success", Duration: time.Minute}
}

func Fail(label string) v1.Task {
	return v1.Task{Label: label, Result: "testfailed", Duration: time.Minute}
}

// Classified is a failed task carrying a classification. note is the backout revision for
// fixed by commit.
func Classified(label string, c v1.Classification, note string) v1.Task {
	t := Fail(label)
	t.Classification = string(c)
	t.ClassificationNote = note
	return t
}

// Fixture returns the fixture for specs, relative to now.
func Fixture(now time.Time, specs ...Spec) localsource.Fixture {
	f := localsource.Fixture{Branch: Branch}
	for i, s := range specs {
		id := i + 1
		age := s.Age
		if age == 0 {
			age = 48 * time.Hour
		}
		tasks := make([]v1.Task, 0, len(s.Tasks))
		for j, t := range s.Tasks {
			if t.ID == "" {
				t.ID = fmt.Sprintf("task-%d-%d", id, j)
			}
			tasks = append(tasks, t)
		}
		f.Pushes = append(f.Pushes, localsource.FixturePush{
			PushInfo: v1.PushInfo{
				ID:          id,
				Branch:      Branch,
				Revs:        []string{Rev(id)},
				Date:        now.Add(-age).Add(time.Duration(id) * time.Minute),
				Author:      fmt.Sprintf("dev%d@example.com", id),
				BackedOutBy: s.BackedOutBy,
				Bugs:        s.Bugs,
			},
			Tasks: tasks,
		})
	}
	return f
}

// Source returns a local source serving specs.
func Source(now time.Time, specs ...Spec) (*localsource.Source, error) {
	return localsource.New(Fixture(now, specs...))
}
