package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindPlanByCode(ctx context.Context, planCode string) (*models.BillingPlan, error)
	FindPlanByVariant(ctx context.Context, variantID string) (*models.BillingPlan, error)
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.BillingSubscription, error)
	UpsertSubscription(ctx context.Context, sub *models.BillingSubscription) error
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.BillingSubscription, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome string, at time.Time) error
	MarkPaid(ctx context.Context, userID, email string, at time.Time) error
	WithTx(tx *gorm.DB) Repository
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	return &gormRepository{db: tx}
}

func (r *gormRepository) FindPlanByCode(ctx context.Context, planCode string) (*models.BillingPlan, error) {
	code := strings.TrimSpace(planCode)
	if code == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var plan models.BillingPlan
	if err := r.db.WithContext(ctx).Where("plan_code = ?", code).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindPlanByVariant prefers an active plan when several share a variant.
func (r *gormRepository) FindPlanByVariant(ctx context.Context, variantID string) (*models.BillingPlan, error) {
	id := strings.TrimSpace(variantID)
	if id == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var plan models.BillingPlan
	err := r.db.WithContext(ctx).
		Where("provider_variant_id = ?", id).
		Order("is_active DESC").
		Order("id ASC").
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetSubscription(ctx context.Context, providerSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.BillingSubscription) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"plan_code",
			"status",
			"current_period_end",
			"last_event_at",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.WithContext(ctx).Where("provider_subscription_id = ?", sub.ProviderSubscriptionID).First(sub).Error
}

func (r *gormRepository) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&subs).Error
	return subs, err
}

// CreateWebhookEventIfNotExists reports false when the event id was already
// stored.
func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome string, at time.Time) error {
	processed := at.UTC()
	updates := map[string]interface{}{
		"processed_at": &processed,
		"outcome":      outcome,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// MarkPaid upserts the marketing contact with paid_at.
func (r *gormRepository) MarkPaid(ctx context.Context, userID, email string, at time.Time) error {
	paid := at.UTC()
	contact := &models.MarketingContact{UserID: userID, Email: strings.TrimSpace(email), PaidAt: &paid}
	updates := []string{"paid_at", "updated_at"}
	if contact.Email != "" {
		updates = append(updates, "email")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(contact).Error
}
