package billing

import (
	"context"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/limiter"
)

// limitedClient routes every outbound processor call through the shared
// concurrency limiter. The webhook dispatcher uses it so event-driven
// fetches and the batch jobs are throttled in aggregate. The batch
// synchronizer acquires its slot itself (held across retries), so it takes
// the unwrapped client and the same limiter instance.
type limitedClient struct {
	inner ProcessorClient
	lim   *limiter.Limiter
}

// NewLimitedClient wraps a processor client with the given limiter.
func NewLimitedClient(inner ProcessorClient, lim *limiter.Limiter) ProcessorClient {
	return &limitedClient{inner: inner, lim: lim}
}

func (c *limitedClient) GetSubscription(ctx context.Context, id string) (RemoteSubscription, error) {
	var out RemoteSubscription
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.GetSubscription(ctx, id)
		return err
	})
	return out, err
}

func (c *limitedClient) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	var out string
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.FindCustomerByEmail(ctx, email)
		return err
	})
	return out, err
}

func (c *limitedClient) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	var out string
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.CreateCustomer(ctx, email, name, metadata)
		return err
	})
	return out, err
}

func (c *limitedClient) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string, metadata map[string]string) (CheckoutSession, error) {
	var out CheckoutSession
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.CreateCheckoutSession(ctx, customerID, priceID, successURL, cancelURL, metadata)
		return err
	})
	return out, err
}

func (c *limitedClient) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return c.lim.Do(func() error {
		return c.inner.AttachPaymentMethod(ctx, customerID, paymentMethodID)
	})
}

func (c *limitedClient) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (RemoteSubscription, error) {
	var out RemoteSubscription
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.CreateSubscription(ctx, customerID, priceID, metadata)
		return err
	})
	return out, err
}

func (c *limitedClient) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (RemoteSubscription, error) {
	var out RemoteSubscription
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.SetCancelAtPeriodEnd(ctx, id, cancel)
		return err
	})
	return out, err
}

func (c *limitedClient) ChangeSubscriptionPrice(ctx context.Context, id, newPriceID string) (RemoteSubscription, error) {
	var out RemoteSubscription
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.ChangeSubscriptionPrice(ctx, id, newPriceID)
		return err
	})
	return out, err
}

func (c *limitedClient) CancelSubscription(ctx context.Context, id string) (RemoteSubscription, error) {
	var out RemoteSubscription
	err := c.lim.Do(func() error {
		var err error
		out, err = c.inner.CancelSubscription(ctx, id)
		return err
	})
	return out, err
}
