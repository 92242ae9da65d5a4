package subsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/billing"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/limiter"
	metrics "github.com/ShahriarSojib/MarketHub/internal/pkg/metrics/counter"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/retry"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultBatchSize is how many subscriptions one sync page loads.
const DefaultBatchSize = 50

// Synchronizer is the polling counterpart to the webhook path: it pages
// through locally known subscriptions, re-fetches each from the processor
// and feeds the snapshot through the same reconciliation engine the
// webhooks use. One failing subscription never aborts the run.
type Synchronizer struct {
	repo      billing.Repository
	client    billing.ProcessorClient
	rec       *billing.Reconciler
	lim       *limiter.Limiter
	retryOpts retry.Options
	batchSize int
}

// NewSynchronizer creates a batch synchronizer. The limiter is shared
// process-wide so that sync, sweep and any manual triggers are throttled
// in aggregate against the processor API.
func NewSynchronizer(repo billing.Repository, client billing.ProcessorClient, rec *billing.Reconciler, lim *limiter.Limiter) *Synchronizer {
	return &Synchronizer{
		repo:      repo,
		client:    client,
		rec:       rec,
		lim:       lim,
		retryOpts: retry.DefaultOptions(),
		batchSize: DefaultBatchSize,
	}
}

// SyncAll reconciles every syncable subscription against the processor and
// returns the run summary. Processed counts attempts, Updated counts rows
// whose state actually changed, Errors counts items that failed after
// retries.
func (s *Synchronizer) SyncAll(ctx context.Context) (billing.SyncSummary, error) {
	runID := uuid.New().String()[:8]
	log.Infof("[SubSync] run %s: starting subscription sync", runID)

	var processed, updated, failed int64
	offset := 0
	for {
		page, err := s.repo.ListSyncable(offset, s.batchSize)
		if err != nil {
			return summaryOf(processed, updated, failed), err
		}
		if len(page) == 0 {
			break
		}

		var wg sync.WaitGroup
		for i := range page {
			sub := page[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				atomic.AddInt64(&processed, 1)
				res, err := s.syncOne(ctx, sub.ExternalID())
				if err != nil {
					atomic.AddInt64(&failed, 1)
					log.Errorf("[SubSync] run %s: subscription %s failed: %v", runID, sub.ExternalID(), err)
					return
				}
				if res.Changed {
					atomic.AddInt64(&updated, 1)
				}
			}()
		}
		wg.Wait()

		if len(page) < s.batchSize {
			break
		}
		offset += s.batchSize
	}

	summary := summaryOf(processed, updated, failed)
	log.Infof("[SubSync] run %s: done, processed=%d updated=%d errors=%d",
		runID, summary.Processed, summary.Updated, summary.Errors)
	if err := metrics.AddSyncRun(summary.Processed, summary.Updated, summary.Errors); err != nil {
		log.Warnf("[SubSync] run %s: counter update failed: %v", runID, err)
	}
	return summary, nil
}

// syncOne fetches one subscription through the limiter and reconciles it.
// The limiter slot is held across retries so a retrying item still counts
// against the outbound concurrency bound.
func (s *Synchronizer) syncOne(ctx context.Context, externalID string) (billing.ReconcileResult, error) {
	var result billing.ReconcileResult
	err := s.lim.Do(func() error {
		remote, err := retry.Execute(ctx, "fetch subscription "+externalID, func() (billing.RemoteSubscription, error) {
			return s.client.GetSubscription(ctx, externalID)
		}, s.retryOpts)
		if err != nil {
			return err
		}

		result, err = s.rec.Reconcile(ctx, remote)
		if errors.Is(err, billing.ErrNoUserMapping) || errors.Is(err, gorm.ErrRecordNotFound) {
			// The local row vanished between listing and reconciling.
			log.Warnf("[SubSync] subscription %s has no reconcilable local state, skipping", externalID)
			return nil
		}
		return err
	})
	return result, err
}

func summaryOf(processed, updated, failed int64) billing.SyncSummary {
	return billing.SyncSummary{
		Processed: int(processed),
		Updated:   int(updated),
		Errors:    int(failed),
	}
}
