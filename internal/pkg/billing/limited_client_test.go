package billing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/limiter"
)

// countingClient tracks the peak number of in-flight GetSubscription calls.
type countingClient struct {
	fakeClient
	inFlight int64
	peak     int64
}

func (c *countingClient) GetSubscription(ctx context.Context, id string) (RemoteSubscription, error) {
	cur := atomic.AddInt64(&c.inFlight, 1)
	defer atomic.AddInt64(&c.inFlight, -1)
	for {
		old := atomic.LoadInt64(&c.peak)
		if cur <= old || atomic.CompareAndSwapInt64(&c.peak, old, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return c.fakeClient.GetSubscription(ctx, id)
}

func TestDispatcherFetchesAreBoundedByLimiter(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(7)
	client := &countingClient{fakeClient: fakeClient{
		subs: map[string]RemoteSubscription{"sub_123": activeRemote("7")},
	}}
	d := NewDispatcher(repo, NewReconciler(repo), NewLimitedClient(client, limiter.New(2)), testWebhookSecret)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		payload := eventPayload(fmt.Sprintf("evt_%d", i), "invoice.payment_succeeded",
			fmt.Sprintf(`{"id": "in_%d", "subscription": "sub_123"}`, i))
		sig := signPayload(payload)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Handle(context.Background(), payload, sig))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&client.peak), int64(2),
		"event-driven fetches must honor the shared outbound bound")
}
