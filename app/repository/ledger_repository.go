package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"gorm.io/gorm"
)

const (
	DefaultLedgerLimit = 30
	MaxLedgerLimit     = 100
)

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new ledger repository instance
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// ClampLedgerLimit applies the default and maximum page size.
func ClampLedgerLimit(limit int) int {
	if limit <= 0 {
		return DefaultLedgerLimit
	}
	if limit > MaxLedgerLimit {
		return MaxLedgerLimit
	}
	return limit
}

// List returns entries newest first, strictly older than before when set.
func (r *ledgerRepository) List(ctx context.Context, userID string, before *time.Time, limit int) ([]models.CreditLedgerEntry, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil {
		q = q.Where("created_at < ?", before.UTC())
	}
	var entries []models.CreditLedgerEntry
	err := q.Order("created_at DESC").Order("id DESC").Limit(ClampLedgerLimit(limit)).Find(&entries).Error
	return entries, err
}

func (r *ledgerRepository) SumByUser(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&models.CreditLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// EachBetween streams entries created in [from, to) in creation order.
func (r *ledgerRepository) EachBetween(ctx context.Context, from, to time.Time, batchSize int, fn func([]models.CreditLedgerEntry) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	for offset := 0; ; offset += batchSize {
		var batch []models.CreditLedgerEntry
		err := r.db.WithContext(ctx).
			Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
			Order("created_at ASC").
			Order("id ASC").
			Offset(offset).
			Limit(batchSize).
			Find(&batch).Error
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}
