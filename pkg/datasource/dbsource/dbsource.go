// Package dbsource serves push data from the SQL store filled by the seed command or an
// external loader.
package dbsource

import (
	"context"

	"github.com/pkg/errors"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/db"
	"github.com/openshift/culprit/pkg/db/models"
)

const Name = "db"

type Source struct {
	dbc *db.DB
}

func New(dbc *db.DB) *Source {
	return &Source{dbc: dbc}
}

func (s *Source) Name() string {
	return Name
}

func (s *Source) push(ctx context.Context, branch, rev string) (*models.Push, error) {
	revision := models.PushRevision{}
	res := s.dbc.DB.WithContext(ctx).
		Where("branch = ? AND short_rev = ?", branch, v1.ShortRev(rev)).
		Limit(1).
		Find(&revision)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "%s on %s", rev, branch)
	}

	p := models.Push{}
	if err := s.dbc.DB.WithContext(ctx).First(&p, revision.PushID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Source) PushTasks(ctx context.Context, branch, rev string) ([]v1.Task, error) {
	p, err := s.push(ctx, branch, rev)
	if err != nil {
		return nil, err
	}

	var rows []models.Task
	if err := s.dbc.DB.WithContext(ctx).Where("push_id = ?", p.ID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.WithMessage(err, "listing tasks")
	}
	tasks := make([]v1.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.API())
	}
	return tasks, nil
}

// PushTaskClassifications is not filled: stored tasks already carry their classification.
func (s *Source) PushTaskClassifications(context.Context, string, string) (map[string]v1.TaskClassification, error) {
	return nil, v1.ErrContractNotFilled
}

func (s *Source) PushInfo(ctx context.Context, branch, rev string) (*v1.PushInfo, error) {
	p, err := s.push(ctx, branch, rev)
	if err != nil {
		return nil, err
	}
	info := p.Info()
	return &info, nil
}

func (s *Source) PushByID(ctx context.Context, branch string, id int) (*v1.PushInfo, error) {
	var pushes []models.Push
	if err := s.dbc.DB.WithContext(ctx).Where("branch = ? AND number = ?", branch, id).Limit(1).Find(&pushes).Error; err != nil {
		return nil, err
	}
	if len(pushes) == 0 {
		return nil, errors.Wrapf(v1.ErrPushNotFound, "push id %d on %s", id, branch)
	}
	info := pushes[0].Info()
	return &info, nil
}

func (s *Source) BackedOutRevs(ctx context.Context, branch, ref string) ([]string, error) {
	var pushes []models.Push
	if err := s.dbc.DB.WithContext(ctx).Where("branch = ? AND backout_ref = ?", branch, v1.ShortRev(ref)).Find(&pushes).Error; err != nil {
		return nil, err
	}
	var revs []string
	for _, p := range pushes {
		revs = append(revs, p.Revs...)
	}
	return revs, nil
}
