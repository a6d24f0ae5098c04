package claim

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trashtotreasure/treasure/internal/store"
)

// reconcileWorkers bounds how many items are repaired at once.
const reconcileWorkers = 4

// ReconcileReport summarizes one Reconcile pass.
type ReconcileReport struct {
	Items    int   `json:"items"`
	Rejected int64 `json:"rejected"`
	Failed   int   `json:"failed"`
}

// Reconcile rejects pending requests left on items that can no longer be
// claimed through a request: Removed items, and Claimed items with an
// accepted request (every Claimed item with WithDirectClaimCascade). It
// repairs cascades that failed after their triggering change committed and
// is safe to run at any time.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	ids, err := store.ItemsOwingCascade(ctx, s.db, s.directClaimCascade)
	if err != nil {
		return nil, Internal("finding items to reconcile", err)
	}

	var rejected, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileWorkers)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := s.rejectPending(gctx, s.db, id, "", s.now())
			if err != nil {
				failed.Add(1)
				s.logger.Error("reconciling item", "item", id, "error", err)
				return nil
			}
			rejected.Add(n)
			s.metrics.Cascaded(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Internal("reconciling", err)
	}

	report := &ReconcileReport{Items: len(ids), Rejected: rejected.Load(), Failed: int(failed.Load())}
	if report.Items > 0 {
		s.logger.Info("reconciled", "items", report.Items, "rejected", report.Rejected, "failed", report.Failed)
	}
	return report, nil
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("periodic reconcile", "error", err)
			}
		}
	}
}
