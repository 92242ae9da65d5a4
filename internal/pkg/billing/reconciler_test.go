package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ShahriarSojib/MarketHub/app/models"
)

// fakeRepo is an in-memory Repository for reconciler and dispatcher tests.
// Some dispatcher tests deliver events concurrently, so access is
// mutex-guarded.
type fakeRepo struct {
	mu        sync.Mutex
	users     map[uint]*models.User
	subs      []*models.Subscription
	events    map[string]*models.WebhookEvent
	nextID    uint
	saveCalls int
	saveErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:  map[uint]*models.User{},
		events: map[string]*models.WebhookEvent{},
		nextID: 1,
	}
}

func (f *fakeRepo) addUser(id uint) *models.User {
	u := &models.User{ID: id, Name: "Test User", Email: "user@example.com", IsEmailVerified: true, Status: models.STATUS_ACTIVE}
	f.users[id] = u
	return u
}

func (f *fakeRepo) GetUser(id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeRepo) GetUserByEmail(email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetSubscriptionByExternalID(externalID string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ExternalID() == externalID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetActiveSubscriptionByUser(userID uint) (*models.Subscription, error) {
	for _, s := range f.subs {
		if s.UserID == userID && s.Status == models.SubscriptionStatusActive {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) GetLatestSubscriptionByUser(userID uint) (*models.Subscription, error) {
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].UserID == userID {
			return f.subs[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) ListSyncable(offset, limit int) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, s := range f.subs {
		if s.HasExternalID() {
			out = append(out, *s)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (f *fakeRepo) ListExpiredActive(now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, s := range f.subs {
		if s.Status == models.SubscriptionStatusActive && s.CurrentPeriodEnd.Before(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeRepo) SaveReconciled(sub *models.Subscription, membership UserMembership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saveCalls++

	if sub.ID == 0 {
		sub.ID = f.nextID
		f.nextID++
		copied := *sub
		f.subs = append(f.subs, &copied)
	} else {
		for i, s := range f.subs {
			if s.ID == sub.ID {
				copied := *sub
				f.subs[i] = &copied
			}
		}
	}

	if u, ok := f.users[sub.UserID]; ok {
		ends := membership.MembershipEnds
		u.IsProMember = membership.IsProMember
		u.SubscriptionStatus = string(membership.SubscriptionStatus)
		u.MembershipEnds = &ends
	}
	return nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.events[event.EventID]; ok {
		return false, stored, nil
	}
	event.ID = f.nextID
	f.nextID++
	f.events[event.EventID] = event
	return true, event, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

func activeRemote(userID string) RemoteSubscription {
	now := time.Now().UTC()
	return RemoteSubscription{
		ID:                 "sub_123",
		CustomerID:         "cus_123",
		Status:             "active",
		CurrentPeriodStart: now.Add(-24 * time.Hour).Unix(),
		CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
		StartDate:          now.Add(-24 * time.Hour).Unix(),
		PriceID:            "price_123",
		PriceNickname:      "Monthly Pro",
		UnitAmount:         999,
		Currency:           "usd",
		Metadata:           map[string]string{"userId": userID},
	}
}

func TestReconcileCreatesLocalRow(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(7)
	rec := NewReconciler(repo)

	res, err := rec.Reconcile(context.Background(), activeRemote("7"))
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.True(t, res.Changed)
	assert.Equal(t, models.SubscriptionStatusActive, res.NewStatus)

	sub, err := repo.GetSubscriptionByExternalID("sub_123")
	require.NoError(t, err)
	assert.Equal(t, uint(7), sub.UserID)
	assert.Equal(t, models.SubscriptionPlanMonthly, sub.Plan)
	assert.InDelta(t, 9.99, sub.Amount, 0.001)

	assert.True(t, user.IsProMember)
	assert.Equal(t, string(models.SubscriptionStatusActive), user.SubscriptionStatus)
	require.NotNil(t, user.MembershipEnds)
	assert.Equal(t, sub.CurrentPeriodEnd, user.MembershipEnds.UTC())
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser(7)
	rec := NewReconciler(repo)
	remote := activeRemote("7")

	_, err := rec.Reconcile(context.Background(), remote)
	require.NoError(t, err)
	require.Equal(t, 1, repo.saveCalls)

	res, err := rec.Reconcile(context.Background(), remote)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, repo.saveCalls, "identical snapshot must not re-emit a write")
}

func TestReconcileIgnoresSubsecondDrift(t *testing.T) {
	// Stored timestamps can carry nanosecond precision while remote
	// snapshots only have epoch seconds; that alone must not count as a
	// change.
	repo := newFakeRepo()
	repo.addUser(7)
	rec := NewReconciler(repo)
	remote := activeRemote("7")

	_, err := rec.Reconcile(context.Background(), remote)
	require.NoError(t, err)
	require.Equal(t, 1, repo.saveCalls)

	stored := repo.subs[0]
	stored.CurrentPeriodStart = stored.CurrentPeriodStart.Add(500 * time.Millisecond)
	stored.CurrentPeriodEnd = stored.CurrentPeriodEnd.Add(999 * time.Millisecond)

	res, err := rec.Reconcile(context.Background(), remote)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, repo.saveCalls)
}

func TestReconcilePaymentFailureDropsMembership(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(7)
	rec := NewReconciler(repo)
	remote := activeRemote("7")

	_, err := rec.Reconcile(context.Background(), remote)
	require.NoError(t, err)
	require.True(t, user.IsProMember)

	remote.Status = "past_due"
	res, err := rec.Reconcile(context.Background(), remote)
	require.NoError(t, err)

	assert.True(t, res.Changed)
	assert.Equal(t, models.SubscriptionStatusActive, res.PreviousStatus)
	assert.Equal(t, models.SubscriptionStatusInactive, res.NewStatus)
	assert.False(t, user.IsProMember)
}

func TestReconcileMembershipMatchesSubscription(t *testing.T) {
	// After any reconciliation the user's pro flag must agree with the
	// subscription row written in the same transaction.
	statuses := []string{"active", "past_due", "canceled", "unpaid", "weird_new_status"}

	for _, status := range statuses {
		repo := newFakeRepo()
		user := repo.addUser(7)
		rec := NewReconciler(repo)
		remote := activeRemote("7")
		remote.Status = status

		_, err := rec.Reconcile(context.Background(), remote)
		require.NoError(t, err, status)

		sub, err := repo.GetSubscriptionByExternalID("sub_123")
		require.NoError(t, err, status)

		wantPro := sub.Status == models.SubscriptionStatusActive && !sub.CurrentPeriodEnd.Before(time.Now().UTC())
		assert.Equal(t, wantPro, user.IsProMember, "status %s", status)
	}
}

func TestReconcileUnknownSubscriptionWithoutUserMapping(t *testing.T) {
	repo := newFakeRepo()
	rec := NewReconciler(repo)
	remote := activeRemote("7")
	remote.Metadata = nil

	_, err := rec.Reconcile(context.Background(), remote)
	assert.ErrorIs(t, err, ErrNoUserMapping)
	assert.Zero(t, repo.saveCalls)
}

func TestForceCancel(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(7)
	rec := NewReconciler(repo)

	_, err := rec.Reconcile(context.Background(), activeRemote("7"))
	require.NoError(t, err)
	sub, err := repo.GetSubscriptionByExternalID("sub_123")
	require.NoError(t, err)

	res, err := rec.ForceCancel(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.False(t, user.IsProMember)

	// Terminal state, repeated cancels are no-ops.
	saves := repo.saveCalls
	res, err = rec.ForceCancel(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, saves, repo.saveCalls)
}
