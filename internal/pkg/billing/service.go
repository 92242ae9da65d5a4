package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ShahriarSojib/MarketHub/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserBlocked          = errors.New("user account is blocked")
	ErrEmailNotVerified     = errors.New("email address not verified")
	ErrAlreadySubscribed    = errors.New("user already has an active subscription")
	ErrNoActiveSubscription = errors.New("user has no active subscription")
	ErrNoSubscription       = errors.New("user has no subscription")
)

// Service is the user-facing subscription API: checkout, direct creation,
// plan changes and cancellation. Every mutating call writes remote state
// first and then reconciles the local copy from the processor's response,
// so the local row is never ahead of the processor.
type Service struct {
	repo   Repository
	client ProcessorClient
	rec    *Reconciler
}

// NewService creates a subscription service.
func NewService(repo Repository, client ProcessorClient, rec *Reconciler) *Service {
	return &Service{repo: repo, client: client, rec: rec}
}

// NewServiceFromDB wires the service against the live Stripe API.
func NewServiceFromDB(db *gorm.DB) *Service {
	repo := NewRepository(db)
	client := NewStripeClientFromEnv()
	return NewService(repo, client, NewReconciler(repo))
}

// checkEligibility loads the user and rejects blocked or unverified
// accounts and users who already hold an active subscription.
func (s *Service) checkEligibility(userID uint) (*models.User, error) {
	user, err := s.repo.GetUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.IsBlocked() {
		return nil, ErrUserBlocked
	}
	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}

	if _, err := s.repo.GetActiveSubscriptionByUser(userID); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return user, nil
}

// ensureCustomer finds the user's Stripe customer by email or creates one.
func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	customerID, err := s.client.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		return "", fmt.Errorf("customer lookup failed: %w", err)
	}
	if customerID != "" {
		return customerID, nil
	}
	customerID, err = s.client.CreateCustomer(ctx, user.Email, user.Name, map[string]string{
		"userId": strconv.FormatUint(uint64(user.ID), 10),
	})
	if err != nil {
		return "", fmt.Errorf("customer creation failed: %w", err)
	}
	return customerID, nil
}

// CreateCheckoutSession starts a hosted checkout flow for the given price.
// The local user id travels in the session and subscription metadata so the
// completion webhook can attribute the subscription.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, input CheckoutInput) (CheckoutSession, error) {
	user, err := s.checkEligibility(userID)
	if err != nil {
		return CheckoutSession{}, err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return CheckoutSession{}, err
	}

	metadata := map[string]string{"userId": strconv.FormatUint(uint64(userID), 10)}
	sess, err := s.client.CreateCheckoutSession(ctx, customerID, input.PriceID, input.SuccessURL, input.CancelURL, metadata)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("checkout session creation failed: %w", err)
	}

	log.Infof("[Billing] created checkout session %s for user %d", sess.SessionID, userID)
	return sess, nil
}

// CreateSubscription creates a subscription directly against an attached
// payment method and reconciles the result into the local store.
func (s *Service) CreateSubscription(ctx context.Context, userID uint, input CreateSubscriptionInput) (*models.Subscription, error) {
	user, err := s.checkEligibility(userID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.client.AttachPaymentMethod(ctx, customerID, input.PaymentMethodID); err != nil {
		return nil, fmt.Errorf("payment method attach failed: %w", err)
	}

	metadata := map[string]string{"userId": strconv.FormatUint(uint64(userID), 10)}
	remote, err := s.client.CreateSubscription(ctx, customerID, input.PriceID, metadata)
	if err != nil {
		return nil, fmt.Errorf("subscription creation failed: %w", err)
	}

	if _, err := s.rec.Reconcile(ctx, remote); err != nil {
		return nil, err
	}
	log.Infof("[Billing] created subscription %s for user %d", remote.ID, userID)
	return s.repo.GetSubscriptionByExternalID(remote.ID)
}

// GetSubscription returns the user's most recent subscription.
func (s *Service) GetSubscription(userID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetLatestSubscriptionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	return sub, nil
}

// UpdateSubscription toggles cancel-at-period-end or moves the user's
// active subscription to a different price.
func (s *Service) UpdateSubscription(ctx context.Context, userID uint, input UpdateSubscriptionInput) (*models.Subscription, error) {
	sub, err := s.activeSubscription(userID)
	if err != nil {
		return nil, err
	}

	var remote RemoteSubscription
	switch {
	case input.CancelAtPeriodEnd != nil:
		remote, err = s.client.SetCancelAtPeriodEnd(ctx, sub.ExternalID(), *input.CancelAtPeriodEnd)
	case input.NewPriceID != "":
		remote, err = s.client.ChangeSubscriptionPrice(ctx, sub.ExternalID(), input.NewPriceID)
	default:
		return nil, errors.New("nothing to update")
	}
	if err != nil {
		return nil, fmt.Errorf("subscription update failed: %w", err)
	}

	if _, err := s.rec.Reconcile(ctx, remote); err != nil {
		return nil, err
	}
	return s.repo.GetSubscriptionByExternalID(remote.ID)
}

// CancelSubscription cancels the user's active subscription immediately.
func (s *Service) CancelSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	sub, err := s.activeSubscription(userID)
	if err != nil {
		return nil, err
	}

	remote, err := s.client.CancelSubscription(ctx, sub.ExternalID())
	if err != nil {
		return nil, fmt.Errorf("subscription cancellation failed: %w", err)
	}

	if _, err := s.rec.Reconcile(ctx, remote); err != nil {
		return nil, err
	}
	log.Infof("[Billing] cancelled subscription %s for user %d", remote.ID, userID)
	return s.repo.GetSubscriptionByExternalID(remote.ID)
}

func (s *Service) activeSubscription(userID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetActiveSubscriptionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	if !sub.HasExternalID() {
		return nil, ErrNoActiveSubscription
	}
	return sub, nil
}
