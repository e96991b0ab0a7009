package repository

import (
	"context"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"gorm.io/gorm"
)

type optionRepository struct {
	db *gorm.DB
}

// NewOptionRepository creates a new option catalog repository
func NewOptionRepository(db *gorm.DB) OptionRepository {
	return &optionRepository{db: db}
}

func (r *optionRepository) ListActive(ctx context.Context) ([]models.OptionCatalogEntry, error) {
	var entries []models.OptionCatalogEntry
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("category ASC").
		Order("sort_order ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// SeedDefaults fills an empty catalog with the built-in presets.
func (r *optionRepository) SeedDefaults(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.OptionCatalogEntry{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	defaults := models.DefaultOptionCatalog()
	return r.db.WithContext(ctx).Create(&defaults).Error
}
