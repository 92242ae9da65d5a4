package models

import "time"

// SubscriptionStatus is the local, coarse status vocabulary. The payment
// processor's finer-grained statuses are folded into these three values.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusInactive  SubscriptionStatus = "INACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

const (
	SubscriptionPlanMonthly   = "MONTHLY"
	SubscriptionPlanYearly    = "YEARLY"
	SubscriptionPlanFreeTrial = "FREE_TRIAL"
)

// Subscription mirrors one Stripe subscription for one user. A row is created
// either synchronously at checkout or lazily the first time a sync sees an
// unknown remote subscription. StripeSubscriptionID is written once and never
// changed; rows are never deleted, terminal state is CANCELLED.
type Subscription struct {
	ID                   uint               `gorm:"primaryKey" json:"id"`
	UserID               uint               `gorm:"not null;index" json:"user_id"`
	StripeCustomerID     string             `gorm:"type:varchar(191);index" json:"stripe_customer_id"`
	StripeSubscriptionID *string            `gorm:"type:varchar(191);uniqueIndex" json:"stripe_subscription_id,omitempty"`
	StripePriceID        string             `gorm:"type:varchar(191)" json:"stripe_price_id"`
	Plan                 string             `gorm:"type:varchar(20);default:'MONTHLY'" json:"plan"`
	Amount               float64            `gorm:"type:decimal(10,2);default:0" json:"amount"`
	Currency             string             `gorm:"type:varchar(10);default:'usd'" json:"currency"`
	Status               SubscriptionStatus `gorm:"type:varchar(20);not null;default:'INACTIVE';index" json:"status"`
	CurrentPeriodStart   time.Time          `gorm:"type:timestamp" json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `gorm:"type:timestamp;index" json:"current_period_end"`
	CancelAtPeriodEnd    bool               `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	StartDate            time.Time          `gorm:"type:timestamp" json:"start_date"`
	EndDate              time.Time          `gorm:"type:timestamp" json:"end_date"`
	CreatedAt            time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// HasExternalID reports whether this row is linked to a Stripe subscription.
func (s *Subscription) HasExternalID() bool {
	return s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}

// ExternalID returns the linked Stripe subscription id or "".
func (s *Subscription) ExternalID() string {
	if s.StripeSubscriptionID == nil {
		return ""
	}
	return *s.StripeSubscriptionID
}

// IsEntitling reports whether this subscription currently grants pro
// membership: locally ACTIVE and the billing period has not lapsed.
func (s *Subscription) IsEntitling(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && !s.CurrentPeriodEnd.Before(now)
}
