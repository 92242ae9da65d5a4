package billing

import (
	"github.com/ShahriarSojib/MarketHub/app/models"
)

// RemoteSubscription is the processor-agnostic snapshot of a Stripe
// subscription consumed by the reconciliation engine. It decouples the
// engine's input contract from the SDK's own types: everything the engine
// reads has a named field here.
type RemoteSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart int64 // epoch seconds
	CurrentPeriodEnd   int64 // epoch seconds
	CancelAtPeriodEnd  bool
	CanceledAt         int64 // epoch seconds, 0 = not canceled
	StartDate          int64 // epoch seconds
	PriceID            string
	PriceNickname      string
	UnitAmount         int64 // minor units (cents)
	Currency           string
	Metadata           map[string]string
}

// UserID returns the owning local user id carried in the subscription
// metadata, or 0 if absent or malformed.
func (r RemoteSubscription) UserID() uint {
	raw, ok := r.Metadata["userId"]
	if !ok {
		return 0
	}
	var id uint64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0
		}
		id = id*10 + uint64(c-'0')
	}
	return uint(id)
}

// ReconcileResult reports what a reconciliation run did, for logging and
// counters.
type ReconcileResult struct {
	Changed        bool
	Created        bool
	PreviousStatus models.SubscriptionStatus
	NewStatus      models.SubscriptionStatus
}

// SyncSummary is the outcome of one batch sync or expiry sweep run.
// Processed counts attempts, Updated counts rows whose state actually
// changed, Errors counts items that failed after retries.
type SyncSummary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}

// CheckoutInput carries the caller-supplied parts of a checkout session.
type CheckoutInput struct {
	PriceID    string `json:"price_id"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// CheckoutSession is the created Stripe checkout session handed back to the
// frontend.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateSubscriptionInput creates a subscription directly against an
// existing payment method instead of going through hosted checkout.
type CreateSubscriptionInput struct {
	PriceID         string `json:"price_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// UpdateSubscriptionInput toggles cancel-at-period-end or moves the
// subscription to a different price. Exactly one of the fields is used.
type UpdateSubscriptionInput struct {
	CancelAtPeriodEnd *bool  `json:"cancel_at_period_end"`
	NewPriceID        string `json:"new_price_id"`
}
