package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/env"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/retry"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/paymentmethod"
	"github.com/stripe/stripe-go/v79/subscription"
)

// ProcessorClient is the outbound interface to the payment processor. All
// calls are fallible network calls; invalid-request and not-found failures
// come back wrapped as retry.Permanent so callers' retry loops short-circuit.
type ProcessorClient interface {
	GetSubscription(ctx context.Context, id string) (RemoteSubscription, error)
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string, metadata map[string]string) (CheckoutSession, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (RemoteSubscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (RemoteSubscription, error)
	ChangeSubscriptionPrice(ctx context.Context, id, newPriceID string) (RemoteSubscription, error)
	CancelSubscription(ctx context.Context, id string) (RemoteSubscription, error)
}

type stripeClient struct{}

// NewStripeClientFromEnv configures the stripe-go global key and returns the
// processor client.
func NewStripeClientFromEnv() ProcessorClient {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &stripeClient{}
}

func (c *stripeClient) GetSubscription(ctx context.Context, id string) (RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")
	sub, err := subscription.Get(id, params)
	if err != nil {
		return RemoteSubscription{}, classifyStripeError(err)
	}
	return SnapshotFromStripe(sub), nil
}

func (c *stripeClient) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	iter := customer.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", classifyStripeError(err)
	}
	return "", nil
}

func (c *stripeClient) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return cust.ID, nil
}

func (c *stripeClient) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string, metadata map[string]string) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := session.New(params)
	if err != nil {
		return CheckoutSession{}, classifyStripeError(err)
	}
	return CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

func (c *stripeClient) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	attachParams := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attachParams.Context = ctx
	if _, err := paymentmethod.Attach(paymentMethodID, attachParams); err != nil {
		return classifyStripeError(err)
	}

	// Make it the default so renewal invoices charge it.
	custParams := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	custParams.Context = ctx
	if _, err := customer.Update(customerID, custParams); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

func (c *stripeClient) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	sub, err := subscription.New(params)
	if err != nil {
		return RemoteSubscription{}, classifyStripeError(err)
	}
	return SnapshotFromStripe(sub), nil
}

func (c *stripeClient) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx
	sub, err := subscription.Update(id, params)
	if err != nil {
		return RemoteSubscription{}, classifyStripeError(err)
	}
	return SnapshotFromStripe(sub), nil
}

func (c *stripeClient) ChangeSubscriptionPrice(ctx context.Context, id, newPriceID string) (RemoteSubscription, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := subscription.Get(id, getParams)
	if err != nil {
		return RemoteSubscription{}, classifyStripeError(err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return RemoteSubscription{}, retry.Permanent(fmt.Errorf("subscription %s has no items", id))
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
	}
	params.Context = ctx
	sub, err := subscription.Update(id, params)
	if err != nil {
		return RemoteSubscription{}, classifyStripeError(err)
	}
	return SnapshotFromStripe(sub), nil
}

func (c *stripeClient) CancelSubscription(ctx context.Context, id string) (RemoteSubscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := subscription.Cancel(id, params)
	if err != nil {
		return RemoteSubscription{}, classifyStripeError(err)
	}
	return SnapshotFromStripe(sub), nil
}

// SnapshotFromStripe converts an SDK subscription into the engine's snapshot
// struct.
func SnapshotFromStripe(sub *stripe.Subscription) RemoteSubscription {
	out := RemoteSubscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
		StartDate:          sub.StartDate,
		Metadata:           sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		out.PriceID = price.ID
		out.PriceNickname = price.Nickname
		out.UnitAmount = price.UnitAmount
		out.Currency = string(price.Currency)
	}
	return out
}

// classifyStripeError sorts a raw SDK error into the closed retryable /
// non-retryable classification at the boundary where it is first caught.
// Invalid-request and not-found errors will fail identically on every
// attempt, so they are marked permanent; everything else (timeouts, 5xx,
// rate limits) stays retryable.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeInvalidRequest || stripeErr.HTTPStatusCode == 404 {
			return retry.Permanent(err)
		}
	}
	return err
}
