package counter

import (
	"context"
	"strconv"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/cache"
)

const (
	webhookEventsKey = "billing:counters:webhook_events"
	syncRunsKey      = "billing:counters:sync_runs"
)

// Sync run counter fields.
const (
	FieldProcessed = "processed"
	FieldUpdated   = "updated"
	FieldErrors    = "errors"
	FieldRuns      = "runs"
	FieldSwept     = "swept"
)

// AddWebhookEvent increments the received counter for a webhook event type in Redis
func AddWebhookEvent(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookEventsKey, eventType, 1).Err()
}

// AddSyncRun accumulates the outcome of one sync or sweep run
func AddSyncRun(processed, updated, errors int) error {
	ctx := context.Background()
	rdb := cache.GetClient()
	pipe := rdb.Pipeline()
	pipe.HIncrBy(ctx, syncRunsKey, FieldRuns, 1)
	pipe.HIncrBy(ctx, syncRunsKey, FieldProcessed, int64(processed))
	pipe.HIncrBy(ctx, syncRunsKey, FieldUpdated, int64(updated))
	pipe.HIncrBy(ctx, syncRunsKey, FieldErrors, int64(errors))
	_, err := pipe.Exec(ctx)
	return err
}

// AddSwept increments the expiry sweep counter
func AddSwept(count int) error {
	if count == 0 {
		return nil
	}
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, syncRunsKey, FieldSwept, int64(count)).Err()
}

// GetWebhookEventCounts returns received webhook counts per event type
func GetWebhookEventCounts() (map[string]int64, error) {
	return readHash(webhookEventsKey)
}

// GetSyncRunCounts returns the accumulated sync run totals
func GetSyncRunCounts() (map[string]int64, error) {
	return readHash(syncRunsKey)
}

func readHash(key string) (map[string]int64, error) {
	ctx := context.Background()
	data, err := cache.GetClient().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
