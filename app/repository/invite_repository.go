package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type inviteRepository struct {
	db *gorm.DB
}

// NewInviteRepository creates a new invite repository instance
func NewInviteRepository(db *gorm.DB) InviteRepository {
	return &inviteRepository{db: db}
}

func (r *inviteRepository) WithTx(tx *gorm.DB) InviteRepository {
	return &inviteRepository{db: tx}
}

func (r *inviteRepository) LockProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *inviteRepository) HasRedeemed(ctx context.Context, redeemerID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InviteRedemption{}).
		Where("redeemer_id = ?", redeemerID).
		Count(&count).Error
	return count > 0, err
}

// CreateRedemption relies on the unique redeemer_id index; with
// TranslateError enabled a second insert yields gorm.ErrDuplicatedKey.
func (r *inviteRepository) CreateRedemption(ctx context.Context, redemption *models.InviteRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *inviteRepository) MarkProfileInvited(ctx context.Context, userID, referrerID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"invited_by":         referrerID,
			"invite_redeemed_at": at.UTC(),
		}).Error
}
