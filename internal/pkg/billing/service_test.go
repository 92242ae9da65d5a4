package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShahriarSojib/MarketHub/app/models"
)

func newTestService(repo *fakeRepo, client *fakeClient) *Service {
	return NewService(repo, client, NewReconciler(repo))
}

func TestCreateCheckoutSession(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(7)
	svc := newTestService(repo, &fakeClient{})

	sess, err := svc.CreateCheckoutSession(context.Background(), 7, CheckoutInput{
		PriceID:    "price_123",
		SuccessURL: "https://example.com/success",
		CancelURL:  "https://example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", sess.SessionID)
	assert.NotEmpty(t, sess.URL)
}

func TestCreateCheckoutSessionRejectsIneligibleUsers(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeClient{})
	input := CheckoutInput{PriceID: "price_123", SuccessURL: "https://example.com/s", CancelURL: "https://example.com/c"}

	_, err := svc.CreateCheckoutSession(context.Background(), 99, input)
	assert.ErrorIs(t, err, ErrUserNotFound)

	blocked := repo.addUser(1)
	blocked.Status = models.STATUS_BLOCKED
	_, err = svc.CreateCheckoutSession(context.Background(), 1, input)
	assert.ErrorIs(t, err, ErrUserBlocked)

	unverified := repo.addUser(2)
	unverified.IsEmailVerified = false
	_, err = svc.CreateCheckoutSession(context.Background(), 2, input)
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestCreateCheckoutSessionRejectsExistingSubscriber(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(7)
	rec := NewReconciler(repo)
	_, err := rec.Reconcile(context.Background(), activeRemote("7"))
	require.NoError(t, err)

	svc := newTestService(repo, &fakeClient{})
	_, err = svc.CreateCheckoutSession(context.Background(), 7, CheckoutInput{
		PriceID:    "price_123",
		SuccessURL: "https://example.com/s",
		CancelURL:  "https://example.com/c",
	})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestGetSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(7)
	svc := newTestService(repo, &fakeClient{})

	_, err := svc.GetSubscription(7)
	assert.ErrorIs(t, err, ErrNoSubscription)

	rec := NewReconciler(repo)
	_, err = rec.Reconcile(context.Background(), activeRemote("7"))
	require.NoError(t, err)

	sub, err := svc.GetSubscription(7)
	require.NoError(t, err)
	assert.Equal(t, "sub_123", sub.ExternalID())
}

func TestUpdateSubscriptionRequiresActiveSubscription(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(7)
	svc := newTestService(repo, &fakeClient{})

	cancel := true
	_, err := svc.UpdateSubscription(context.Background(), 7, UpdateSubscriptionInput{CancelAtPeriodEnd: &cancel})
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestCancelSubscription(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(7)
	rec := NewReconciler(repo)
	_, err := rec.Reconcile(context.Background(), activeRemote("7"))
	require.NoError(t, err)

	cancelled := activeRemote("7")
	cancelled.Status = "canceled"
	client := &fakeClient{}
	client.cancelResult = cancelled

	svc := newTestService(repo, client)
	sub, err := svc.CancelSubscription(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.False(t, user.IsProMember)
}
