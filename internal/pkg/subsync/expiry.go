package subsync

import (
	"context"
	"time"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/billing"
	metrics "github.com/ShahriarSojib/MarketHub/internal/pkg/metrics/counter"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/retry"
	"github.com/gofiber/fiber/v2/log"
)

// SweepExpired reconciles every locally ACTIVE subscription whose billing
// period lapsed without a webhook arriving. Rows with a Stripe linkage are
// re-fetched and reconciled; the processor stays the source of truth, so a
// subscription the processor still reports as active keeps its membership
// even though the locally known period lapsed. Rows without a linkage can
// never receive a webhook and are cancelled outright.
func (s *Synchronizer) SweepExpired(ctx context.Context) (billing.SyncSummary, error) {
	now := time.Now().UTC()
	expired, err := s.repo.ListExpiredActive(now)
	if err != nil {
		return billing.SyncSummary{}, err
	}
	if len(expired) == 0 {
		return billing.SyncSummary{}, nil
	}
	log.Infof("[SubSync] expiry sweep: %d locally expired subscriptions", len(expired))

	var summary billing.SyncSummary
	for i := range expired {
		sub := expired[i]
		summary.Processed++

		if !sub.HasExternalID() {
			if _, err := s.rec.ForceCancel(ctx, &sub); err != nil {
				summary.Errors++
				log.Errorf("[SubSync] expiry sweep: cancelling orphan subscription %d failed: %v", sub.ID, err)
				continue
			}
			summary.Updated++
			log.Infof("[SubSync] expiry sweep: subscription %d has no processor linkage, cancelled", sub.ID)
			continue
		}

		res, err := s.syncOne(ctx, sub.ExternalID())
		if err != nil {
			if retry.IsPermanent(err) {
				// Gone at the processor. Terminal locally as well.
				if _, cerr := s.rec.ForceCancel(ctx, &sub); cerr != nil {
					summary.Errors++
					log.Errorf("[SubSync] expiry sweep: cancelling vanished subscription %s failed: %v", sub.ExternalID(), cerr)
					continue
				}
				summary.Updated++
				log.Infof("[SubSync] expiry sweep: subscription %s no longer exists remotely, cancelled", sub.ExternalID())
				continue
			}
			summary.Errors++
			log.Errorf("[SubSync] expiry sweep: subscription %s failed: %v", sub.ExternalID(), err)
			continue
		}
		if res.Changed {
			summary.Updated++
		}
	}

	log.Infof("[SubSync] expiry sweep: done, processed=%d updated=%d errors=%d",
		summary.Processed, summary.Updated, summary.Errors)
	if err := metrics.AddSwept(summary.Updated); err != nil {
		log.Warnf("[SubSync] expiry sweep: counter update failed: %v", err)
	}
	return summary, nil
}
