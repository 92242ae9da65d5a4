package billing

import (
	"strings"

	"github.com/ShahriarSojib/MarketHub/app/models"
)

// MapStripeStatus folds Stripe's subscription status vocabulary into the
// local coarse enum. Total and case-insensitive: unknown statuses map to
// INACTIVE rather than erroring, so a new remote status degrades a user to
// non-paying instead of breaking the sync.
func MapStripeStatus(remoteStatus string) models.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(remoteStatus)) {
	case "active":
		return models.SubscriptionStatusActive
	case "canceled", "cancelled":
		return models.SubscriptionStatusCancelled
	default:
		// incomplete, incomplete_expired, past_due, unpaid and anything new
		return models.SubscriptionStatusInactive
	}
}

// PlanTypeFromNickname derives the local plan type from a Stripe price
// nickname. Monthly is the fallback for unnamed prices.
func PlanTypeFromNickname(nickname string) string {
	n := strings.ToLower(nickname)
	switch {
	case strings.Contains(n, "yearly"), strings.Contains(n, "annual"):
		return models.SubscriptionPlanYearly
	case strings.Contains(n, "trial"):
		return models.SubscriptionPlanFreeTrial
	default:
		return models.SubscriptionPlanMonthly
	}
}
