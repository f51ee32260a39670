// Package datasource resolves push data from an ordered list of sources. Each source fills
// some of the contracts below; the handler asks the sources that implement a contract in
// priority order and stops at the first answer.
package datasource

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
	"github.com/openshift/culprit/pkg/metrics"
)

const (
	ContractPushTasks       = "push_tasks"
	ContractClassifications = "push_task_classifications"
	ContractPushInfo        = "push_info"
	ContractPushByID        = "push_by_id"
	ContractBackouts        = "backouts"
)

// Source is a named data source.
type Source interface {
	Name() string
}

// TaskSource returns the raw tasks that ran on a push.
type TaskSource interface {
	Source
	PushTasks(ctx context.Context, branch, rev string) ([]v1.Task, error)
}

// ClassificationSource returns the classification of the tasks of a push, keyed by task id.
type ClassificationSource interface {
	Source
	PushTaskClassifications(ctx context.Context, branch, rev string) (map[string]v1.TaskClassification, error)
}

// PushSource resolves pushes by revision and by push id.
type PushSource interface {
	Source
	PushInfo(ctx context.Context, branch, rev string) (*v1.PushInfo, error)
	PushByID(ctx context.Context, branch string, id int) (*v1.PushInfo, error)
}

// BackoutSource lists the revisions backed out by the commit ref.
type BackoutSource interface {
	Source
	BackedOutRevs(ctx context.Context, branch, ref string) ([]string, error)
}

// Handler dispatches every contract to the configured sources.
type Handler struct {
	sources []Source
}

func NewHandler(sources ...Source) *Handler {
	return &Handler{sources: sources}
}

// Sources returns the source names in priority order.
func (h *Handler) Sources() []string {
	names := make([]string, 0, len(h.sources))
	for _, s := range h.sources {
		names = append(names, s.Name())
	}
	return names
}

func (h *Handler) PushTasks(ctx context.Context, branch, rev string) ([]v1.Task, error) {
	return query(ctx, h, ContractPushTasks, false, func(s TaskSource) ([]v1.Task, error) {
		return s.PushTasks(ctx, branch, rev)
	})
}

// PushTaskClassifications returns an empty map when no source implements the contract,
// in which case tasks keep the classification their task source reported.
func (h *Handler) PushTaskClassifications(ctx context.Context, branch, rev string) (map[string]v1.TaskClassification, error) {
	return query(ctx, h, ContractClassifications, true, func(s ClassificationSource) (map[string]v1.TaskClassification, error) {
		return s.PushTaskClassifications(ctx, branch, rev)
	})
}

func (h *Handler) PushInfo(ctx context.Context, branch, rev string) (*v1.PushInfo, error) {
	return query(ctx, h, ContractPushInfo, false, func(s PushSource) (*v1.PushInfo, error) {
		return s.PushInfo(ctx, branch, rev)
	})
}

func (h *Handler) PushByID(ctx context.Context, branch string, id int) (*v1.PushInfo, error) {
	return query(ctx, h, ContractPushByID, false, func(s PushSource) (*v1.PushInfo, error) {
		return s.PushByID(ctx, branch, id)
	})
}

func (h *Handler) BackedOutRevs(ctx context.Context, branch, ref string) ([]string, error) {
	return query(ctx, h, ContractBackouts, false, func(s BackoutSource) ([]string, error) {
		return s.BackedOutRevs(ctx, branch, ref)
	})
}

// query runs call against every source implementing S until one answers. When every
// source that was asked reported the push missing the result is ErrPushNotFound,
// otherwise ErrDataUnavailable.
func query[S Source, T any](ctx context.Context, h *Handler, contract string, optional bool, call func(S) (T, error)) (T, error) {
	var zero T
	var asked, notFound int
	var failures []string

	for _, src := range h.sources {
		s, ok := src.(S)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		start := time.Now()
		res, err := call(s)
		switch {
		case err == nil:
			metrics.ObserveSource(contract, src.Name(), metrics.OutcomeSuccess, start)
			return res, nil
		case errors.Is(err, v1.ErrContractNotFilled):
			metrics.ObserveSource(contract, src.Name(), metrics.OutcomeNotFilled, start)
			log.WithFields(log.Fields{"contract": contract, "source": src.Name()}).Debug("contract not filled, trying next source")
			continue
		case errors.Is(err, v1.ErrPushNotFound):
			metrics.ObserveSource(contract, src.Name(), metrics.OutcomeNotFound, start)
			asked++
			notFound++
		default:
			metrics.ObserveSource(contract, src.Name(), metrics.OutcomeError, start)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			log.WithError(err).WithFields(log.Fields{"contract": contract, "source": src.Name()}).Warn("source failed, trying next source")
			asked++
			failures = append(failures, src.Name()+": "+err.Error())
		}
	}

	if asked == 0 && len(failures) == 0 && optional {
		return zero, nil
	}
	if asked > 0 && notFound == asked {
		return zero, errors.Wrapf(v1.ErrPushNotFound, "%s", contract)
	}
	if len(failures) == 0 {
		return zero, errors.Wrapf(v1.ErrDataUnavailable, "%s: no source filled the contract", contract)
	}
	return zero, errors.Wrapf(v1.ErrDataUnavailable, "%s: %s", contract, strings.Join(failures, "; "))
}
