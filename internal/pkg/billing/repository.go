package billing

import (
	"time"

	"github.com/ShahriarSojib/MarketHub/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserMembership is the derived membership state written to the owning user
// alongside every subscription write.
type UserMembership struct {
	IsProMember        bool
	SubscriptionStatus models.SubscriptionStatus
	MembershipEnds     time.Time
}

// Repository provides the DB operations used by the billing core.
type Repository interface {
	GetUser(id uint) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetSubscriptionByExternalID(externalID string) (*models.Subscription, error)
	GetActiveSubscriptionByUser(userID uint) (*models.Subscription, error)
	GetLatestSubscriptionByUser(userID uint) (*models.Subscription, error)
	// ListSyncable pages through subscriptions that have a Stripe linkage,
	// oldest-checked-first so items that failed last round are retried
	// before fresher ones are re-checked.
	ListSyncable(offset, limit int) ([]models.Subscription, error)
	// ListExpiredActive returns locally ACTIVE subscriptions whose period
	// lapsed before now.
	ListExpiredActive(now time.Time) ([]models.Subscription, error)
	// SaveReconciled persists the subscription and the owning user's
	// membership fields in one transaction. Both commit or neither does.
	SaveReconciled(sub *models.Subscription, membership UserMembership) error
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetSubscriptionByExternalID(externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("stripe_subscription_id = ?", externalID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetActiveSubscriptionByUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetLatestSubscriptionByUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListSyncable(offset, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		// CANCELLED stays in the sweep: a remote subscription can be
		// resurrected and reconciliation is a no-op when nothing changed.
		Where("status IN ?", []models.SubscriptionStatus{
			models.SubscriptionStatusActive,
			models.SubscriptionStatusInactive,
			models.SubscriptionStatusCancelled,
		}).
		Where("stripe_subscription_id IS NOT NULL AND stripe_subscription_id != ''").
		Order("updated_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListExpiredActive(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND current_period_end < ?", models.SubscriptionStatusActive, now).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) SaveReconciled(sub *models.Subscription, membership UserMembership) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if sub.ID == 0 && sub.HasExternalID() {
			// First sighting: two concurrent reconciliations of the same
			// remote subscription must converge on one row.
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "stripe_subscription_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"status",
					"current_period_start",
					"current_period_end",
					"cancel_at_period_end",
					"canceled_at",
					"stripe_price_id",
					"updated_at",
				}),
			}).Create(sub).Error; err != nil {
				return err
			}
		} else if err := tx.Save(sub).Error; err != nil {
			return err
		}

		var ends interface{}
		if membership.MembershipEnds.IsZero() {
			ends = nil
		} else {
			ends = membership.MembershipEnds
		}
		return tx.Model(&models.User{}).
			Where("id = ?", sub.UserID).
			Updates(map[string]interface{}{
				"is_pro_member":       membership.IsProMember,
				"subscription_status": string(membership.SubscriptionStatus),
				"membership_ends":     ends,
			}).Error
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
