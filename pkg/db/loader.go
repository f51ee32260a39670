package db

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/db/models"
)

// StorePush writes a push and its tasks, replacing any previous copy of the same push.
func (d *DB) StorePush(ctx context.Context, info v1.PushInfo, tasks []v1.Task) error {
	if info.Branch == "" || len(info.Revs) == 0 {
		return errors.Errorf("push %d needs a branch and at least one revision", info.ID)
	}

	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := models.Push{}
		res := tx.Where("branch = ? AND number = ?", info.Branch, info.ID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if err := tx.Where("push_id = ?", existing.ID).Delete(&models.Task{}).Error; err != nil {
				return err
			}
			if err := tx.Where("push_id = ?", existing.ID).Delete(&models.PushRevision{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		}

		p := models.Push{
			Branch:      info.Branch,
			Number:      info.ID,
			Date:        info.Date,
			Author:      info.Author,
			Revs:        info.Revs,
			Bugs:        info.Bugs,
			BackedOutBy: info.BackedOutBy,
			BackoutRef:  v1.ShortRev(info.BackedOutBy),
		}
		if err := tx.Create(&p).Error; err != nil {
			return errors.WithMessagef(err, "creating push %d", info.ID)
		}

		revisions := make([]models.PushRevision, 0, len(info.Revs))
		for _, rev := range info.Revs {
			revisions = append(revisions, models.PushRevision{PushID: p.ID, Branch: info.Branch, ShortRev: v1.ShortRev(rev)})
		}
		if err := tx.CreateInBatches(revisions, d.BatchSize).Error; err != nil {
			return errors.WithMessagef(err, "creating revisions of push %d", info.ID)
		}

		if len(tasks) > 0 {
			rows := make([]models.Task, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, models.TaskFromAPI(p.ID, t))
			}
			if err := tx.CreateInBatches(rows, d.BatchSize).Error; err != nil {
				return errors.WithMessagef(err, "creating tasks of push %d", info.ID)
			}
		}

		log.WithFields(log.Fields{"branch": info.Branch, "push": info.ID, "tasks": len(tasks)}).Debug("stored push")
		return nil
	})
}
