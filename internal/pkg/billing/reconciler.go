package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShahriarSojib/MarketHub/app/models"
	"gorm.io/gorm"
)

// ErrNoUserMapping is returned when a never-before-seen remote subscription
// carries no local user id in its metadata, so no local row can be created.
var ErrNoUserMapping = errors.New("remote subscription has no local user mapping")

// Reconciler brings local Subscription+User state into agreement with a
// remote snapshot. It is the only code path that mutates subscription rows;
// the webhook dispatcher and the periodic jobs both funnel through it, so
// one consistency algorithm applies regardless of trigger.
type Reconciler struct {
	repo Repository
	now  func() time.Time
}

// NewReconciler creates a reconciler on top of the given repository.
func NewReconciler(repo Repository) *Reconciler {
	return &Reconciler{repo: repo, now: time.Now}
}

// Reconcile applies one remote snapshot. It creates the local row on first
// sighting, short-circuits without a write when nothing changed, and
// otherwise updates subscription and owning user atomically. Storage errors
// propagate to the caller; the reconciler never retries, retry policy
// belongs to the caller's loop.
func (r *Reconciler) Reconcile(ctx context.Context, remote RemoteSubscription) (ReconcileResult, error) {
	_ = ctx
	if remote.ID == "" {
		return ReconcileResult{}, errors.New("remote snapshot is missing a subscription id")
	}

	mapped := MapStripeStatus(remote.Status)
	periodStart := time.Unix(remote.CurrentPeriodStart, 0).UTC()
	periodEnd := time.Unix(remote.CurrentPeriodEnd, 0).UTC()
	var canceledAt *time.Time
	if remote.CanceledAt > 0 {
		t := time.Unix(remote.CanceledAt, 0).UTC()
		canceledAt = &t
	}

	local, err := r.repo.GetSubscriptionByExternalID(remote.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ReconcileResult{}, fmt.Errorf("subscription lookup for %s failed: %w", remote.ID, err)
	}

	result := ReconcileResult{NewStatus: mapped}

	if local == nil {
		userID := remote.UserID()
		if userID == 0 {
			return ReconcileResult{}, ErrNoUserMapping
		}
		externalID := remote.ID
		startDate := periodStart
		if remote.StartDate > 0 {
			startDate = time.Unix(remote.StartDate, 0).UTC()
		}
		local = &models.Subscription{
			UserID:               userID,
			StripeCustomerID:     remote.CustomerID,
			StripeSubscriptionID: &externalID,
			StripePriceID:        remote.PriceID,
			Plan:                 PlanTypeFromNickname(remote.PriceNickname),
			Amount:               float64(remote.UnitAmount) / 100,
			Currency:             remote.Currency,
			Status:               mapped,
			CurrentPeriodStart:   periodStart,
			CurrentPeriodEnd:     periodEnd,
			CancelAtPeriodEnd:    remote.CancelAtPeriodEnd,
			CanceledAt:           canceledAt,
			StartDate:            startDate,
			EndDate:              periodEnd,
		}
		result.Created = true
		result.PreviousStatus = mapped
	} else {
		result.PreviousStatus = local.Status
		// Remote timestamps are epoch seconds; stored ones may carry
		// sub-second precision. Compare at second resolution.
		unchanged := local.Status == mapped &&
			local.CurrentPeriodStart.Unix() == periodStart.Unix() &&
			local.CurrentPeriodEnd.Unix() == periodEnd.Unix() &&
			local.CancelAtPeriodEnd == remote.CancelAtPeriodEnd &&
			timePtrEqual(local.CanceledAt, canceledAt)
		if unchanged {
			// Re-processing the same snapshot must not re-emit writes or
			// bump updated_at.
			return result, nil
		}

		local.Status = mapped
		local.CurrentPeriodStart = periodStart
		local.CurrentPeriodEnd = periodEnd
		local.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
		local.CanceledAt = canceledAt
		local.EndDate = periodEnd
		if remote.PriceID != "" {
			local.StripePriceID = remote.PriceID
		}
	}

	if err := r.repo.SaveReconciled(local, r.membershipFor(mapped, periodEnd)); err != nil {
		return ReconcileResult{}, fmt.Errorf("reconciled write for %s failed: %w", remote.ID, err)
	}

	result.Changed = true
	return result, nil
}

// ForceCancel transitions a subscription to the terminal CANCELLED state
// without consulting the remote processor. Used for subscription_deleted
// events (no ambiguity to map) and for expired rows that have no Stripe
// linkage and therefore can never receive a webhook.
func (r *Reconciler) ForceCancel(ctx context.Context, sub *models.Subscription) (ReconcileResult, error) {
	_ = ctx
	result := ReconcileResult{
		PreviousStatus: sub.Status,
		NewStatus:      models.SubscriptionStatusCancelled,
	}
	if sub.Status == models.SubscriptionStatusCancelled && sub.CanceledAt != nil {
		return result, nil
	}

	sub.Status = models.SubscriptionStatusCancelled
	if sub.CanceledAt == nil {
		now := r.now()
		sub.CanceledAt = &now
	}

	membership := UserMembership{
		IsProMember:        false,
		SubscriptionStatus: models.SubscriptionStatusCancelled,
		MembershipEnds:     r.now(),
	}
	if err := r.repo.SaveReconciled(sub, membership); err != nil {
		return ReconcileResult{}, fmt.Errorf("cancel write for subscription %d failed: %w", sub.ID, err)
	}

	result.Changed = true
	return result, nil
}

func (r *Reconciler) membershipFor(status models.SubscriptionStatus, periodEnd time.Time) UserMembership {
	isActive := status == models.SubscriptionStatusActive
	ends := r.now()
	if isActive {
		ends = periodEnd
	}
	return UserMembership{
		IsProMember:        isActive,
		SubscriptionStatus: status,
		MembershipEnds:     ends,
	}
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Unix() == b.Unix()
}
