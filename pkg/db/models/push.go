package models

import (
	"time"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

// Push is one push on a branch. Number is the push id on the branch, ID is the row id.
type Push struct {
	ID          uint      `json:"id" gorm:"primaryKey,column:id"`
	Branch      string    `json:"branch" gorm:"uniqueIndex:idx_push_branch_number;not null"`
	Number      int       `json:"number" gorm:"uniqueIndex:idx_push_branch_number;not null"`
	Date        time.Time `json:"date"`
	Author      string    `json:"author"`
	Revs        []string  `json:"revs" gorm:"serializer:json"`
	Bugs        []string  `json:"bugs" gorm:"serializer:json"`
	BackedOutBy string    `json:"backed_out_by"`
	// BackoutRef is the short form of BackedOutBy, indexed for backout lookups.
	BackoutRef string `json:"-" gorm:"index"`

	Revisions []PushRevision `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Tasks     []Task         `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (p Push) Info() v1.PushInfo {
	return v1.PushInfo{
		ID:          p.Number,
		Branch:      p.Branch,
		Revs:        p.Revs,
		Date:        p.Date,
		Author:      p.Author,
		BackedOutBy: p.BackedOutBy,
		Bugs:        p.Bugs,
	}
}

// PushRevision maps every revision of a push, in short form, to the push.
type PushRevision struct {
	ID       uint   `gorm:"primaryKey,column:id"`
	PushID   uint   `gorm:"index"`
	Branch   string `gorm:"uniqueIndex:idx_revision_branch_rev;not null"`
	ShortRev string `gorm:"uniqueIndex:idx_revision_branch_rev;not null"`
}

type Task struct {
	ID                 uint              `json:"id" gorm:"primaryKey,column:id"`
	PushID             uint              `json:"push_id" gorm:"index"`
	TaskID             string            `json:"task_id" gorm:"index"`
	Label              string            `json:"label"`
	State              string            `json:"state"`
	Result             string            `json:"result"`
	Duration           time.Duration     `json:"duration"`
	Classification     string            `json:"classification"`
	ClassificationNote string            `json:"classification_note"`
	Tier               int               `json:"tier"`
	Tags               map[string]string `json:"tags" gorm:"serializer:json"`
	Groups             []v1.GroupResult  `json:"groups" gorm:"serializer:json"`
}

func TaskFromAPI(pushID uint, t v1.Task) Task {
	return Task{
		PushID:             pushID,
		TaskID:             t.ID,
		Label:              t.Label,
		State:              t.State,
		Result:             t.Result,
		Duration:           t.Duration,
		Classification:     t.Classification,
		ClassificationNote: t.ClassificationNote,
		Tier:               t.Tier,
		Tags:               t.Tags,
		Groups:             t.Groups,
	}
}

func (t Task) API() v1.Task {
	return v1.Task{
		ID:                 t.TaskID,
		Label:              t.Label,
		State:              t.State,
		Result:             t.Result,
		Duration:           t.Duration,
		Classification:     t.Classification,
		ClassificationNote: t.ClassificationNote,
		Tier:               t.Tier,
		Tags:               t.Tags,
		Groups:             t.Groups,
	}
}
