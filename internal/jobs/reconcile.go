package jobs

import (
	"context"
	"errors"
	"sort"

	"carousel/internal/domain"
	"carousel/internal/events"
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Checked   int
	Refreshed int
	Removed   int
	Failed    int
}

// Reconcile re-reads every mirrored job from the store. Entries the store no
// longer has are dropped; stale entries are overwritten and announced.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	all, err := s.mirror.All(ctx)
	if err != nil {
		return res, err
	}
	for i := range all {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		local := &all[i]
		res.Checked++
		remote, err := s.store.GetByID(ctx, local.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if err := s.mirror.Delete(ctx, local.ID); err != nil {
				res.Failed++
				continue
			}
			res.Removed++
			s.publisher.Publish(ctx, events.Event{Kind: events.KindDeleted, JobID: local.ID, UserID: local.UserID})
		case err != nil:
			res.Failed++
		case remote.UpdatedAt.Equal(local.UpdatedAt) && remote.Status == local.Status && remote.Progress == local.Progress:
		default:
			if err := s.mirror.Upsert(ctx, remote); err != nil {
				res.Failed++
				continue
			}
			res.Refreshed++
			s.publisher.Publish(ctx, events.JobEvent(events.KindUpdated, remote))
		}
	}
	s.logger.Info().
		Int("checked", res.Checked).
		Int("refreshed", res.Refreshed).
		Int("removed", res.Removed).
		Int("failed", res.Failed).
		Msg("jobs: mirror reconciled")
	return res, nil
}

func sortByCreated(jobs []domain.Job, order domain.ListOrder) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if order == domain.OrderOldestFirst {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
