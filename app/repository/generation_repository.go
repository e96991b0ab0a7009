package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"gorm.io/gorm"
)

type generationEventRepository struct {
	db *gorm.DB
}

// NewGenerationEventRepository creates a new generation audit repository
func NewGenerationEventRepository(db *gorm.DB) GenerationEventRepository {
	return &generationEventRepository{db: db}
}

func (r *generationEventRepository) Create(ctx context.Context, event *models.GenerationEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *generationEventRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GenerationEvent{}).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Count(&count).Error
	return count, err
}
