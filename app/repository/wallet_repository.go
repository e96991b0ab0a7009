package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/entitlements"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const referralCodeAttempts = 5

// walletRepository implements the WalletRepository interface
type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository instance
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) WithTx(tx *gorm.DB) WalletRepository {
	return &walletRepository{db: tx}
}

// GetOrCreate provisions the wallet and profile of an identity. Concurrent
// first requests race on the unique user_id index and both read the winner.
func (r *walletRepository) GetOrCreate(ctx context.Context, userID, email string) (*models.Wallet, *models.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, ErrInvalidUserID
	}
	db := r.db.WithContext(ctx)

	wallet := &models.Wallet{
		UserID:             userID,
		Tier:               string(entitlements.TierFree),
		DailyCreditQuota:   entitlements.DailyQuota(entitlements.TierFree),
		SubscriptionStatus: models.SubscriptionStatusNone,
		Coupons:            models.DefaultCoupons(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(wallet).Error; err != nil {
		return nil, nil, fmt.Errorf("create wallet: %w", err)
	}

	profile, err := r.ensureProfile(db, userID, strings.TrimSpace(email))
	if err != nil {
		return nil, nil, err
	}

	var stored models.Wallet
	if err := db.Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, nil, err
	}
	return &stored, profile, nil
}

func (r *walletRepository) ensureProfile(db *gorm.DB, userID, email string) (*models.Profile, error) {
	var existing models.Profile
	err := db.Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		if existing.Email == "" && email != "" {
			existing.Email = email
			if err := db.Model(&existing).Update("email", email).Error; err != nil {
				return nil, err
			}
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := models.NewReferralCode()
		if err != nil {
			return nil, err
		}
		profile := &models.Profile{UserID: userID, Email: email, ReferralCode: code}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(profile).Error; err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		var stored models.Profile
		err = db.Where("user_id = ?", userID).First(&stored).Error
		if err == nil {
			return &stored, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// referral code collided with another profile, try a new one
	}
	return nil, fmt.Errorf("create profile: no free referral code after %d attempts", referralCodeAttempts)
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *walletRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *walletRepository) GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Where("referral_code = ?", models.NormalizeReferralCode(code)).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ConsumeCredits debits timed credits first, then permanent credits.
func (r *walletRepository) ConsumeCredits(ctx context.Context, userID string, amount int64, reason string, metadata Metadata) (models.Charge, error) {
	if amount <= 0 {
		return models.Charge{}, ErrInvalidAmount
	}
	var charge models.Charge
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}
		fromTimed, fromPermanent, ok := models.SplitCharge(w.Balance(), amount)
		if !ok {
			return ErrInsufficientCredits
		}
		next := models.Balance{
			Timed:     w.TimedCredits - fromTimed,
			Permanent: w.PermanentCredits - fromPermanent,
		}
		if err := writeBalance(tx, w, next, nil); err != nil {
			return err
		}
		entry := newLedgerEntry(userID, -amount, models.BucketFor(fromTimed, fromPermanent), reason, metadata)
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		charge = models.Charge{FromTimed: fromTimed, FromPermanent: fromPermanent, Balance: next}
		return nil
	})
	if err != nil {
		return models.Charge{}, err
	}
	return charge, nil
}

// AddCredits credits a single bucket.
func (r *walletRepository) AddCredits(ctx context.Context, userID string, amount int64, reason string, metadata Metadata, bucket string) (models.Balance, error) {
	if amount <= 0 {
		return models.Balance{}, ErrInvalidAmount
	}
	if !models.IsValidBucket(bucket) {
		return models.Balance{}, ErrInvalidBucket
	}
	var timed, permanent int64
	if bucket == models.BucketTimed {
		timed = amount
	} else {
		permanent = amount
	}
	return r.credit(ctx, userID, timed, permanent, reason, metadata)
}

// RefundCharge restores a charge to the buckets it was taken from.
func (r *walletRepository) RefundCharge(ctx context.Context, userID string, charge models.Charge, reason string, metadata Metadata) (models.Balance, error) {
	if charge.Amount() <= 0 || charge.FromTimed < 0 || charge.FromPermanent < 0 {
		return models.Balance{}, ErrInvalidAmount
	}
	return r.credit(ctx, userID, charge.FromTimed, charge.FromPermanent, reason, metadata)
}

func (r *walletRepository) credit(ctx context.Context, userID string, timed, permanent int64, reason string, metadata Metadata) (models.Balance, error) {
	var out models.Balance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}
		next := models.Balance{
			Timed:     w.TimedCredits + timed,
			Permanent: w.PermanentCredits + permanent,
		}
		if err := writeBalance(tx, w, next, nil); err != nil {
			return err
		}
		meta := Metadata{}
		for k, v := range metadata {
			meta[k] = v
		}
		if timed != 0 && permanent != 0 {
			meta["timed"] = timed
			meta["permanent"] = permanent
		}
		entry := newLedgerEntry(userID, timed+permanent, models.BucketFor(timed, permanent), reason, meta)
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// RefreshTimedCredits resets timed credits to the daily quota at most once
// per UTC calendar day. The ledger records the delta so the running sum keeps
// matching the balance.
func (r *walletRepository) RefreshTimedCredits(ctx context.Context, userID string, now time.Time) (bool, error) {
	now = now.UTC()
	refreshed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}
		if entitlements.RefreshedOn(w.LastQuotaRefreshAt, now) {
			return nil
		}
		quota := w.DailyCreditQuota
		if quota < 0 {
			quota = 0
		}
		delta := quota - w.TimedCredits
		next := models.Balance{Timed: quota, Permanent: w.PermanentCredits}
		if err := writeBalance(tx, w, next, map[string]interface{}{"last_quota_refresh_at": now}); err != nil {
			return err
		}
		if delta != 0 {
			entry := newLedgerEntry(userID, delta, models.BucketTimed, models.ReasonDailyRefresh, Metadata{
				"day":   now.Format("2006-01-02"),
				"quota": quota,
				"tier":  w.Tier,
			})
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		refreshed = true
		return nil
	})
	return refreshed, err
}

// SetTier changes tier, quota and subscription state. A higher quota clears
// today's refresh stamp so the next refresh grants it immediately; a lower
// quota applies from the next UTC day.
func (r *walletRepository) SetTier(ctx context.Context, userID string, tier entitlements.Tier, status string, expiresAt *time.Time) (*models.Wallet, error) {
	var out models.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}
		tier = entitlements.NormalizeTier(string(tier))
		quota := entitlements.DailyQuota(tier)
		updates := map[string]interface{}{
			"tier":                    string(tier),
			"daily_credit_quota":      quota,
			"subscription_status":     status,
			"subscription_expires_at": expiresAt,
		}
		if quota > w.DailyCreditQuota {
			updates["last_quota_refresh_at"] = nil
		}
		if err := tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", w.ID).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStaleUserIDs returns wallets whose quota has not been refreshed today.
func (r *walletRepository) ListStaleUserIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("last_quota_refresh_at IS NULL OR last_quota_refresh_at < ?", entitlements.DayStart(now)).
		Order("id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}

func lockWallet(tx *gorm.DB, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func writeBalance(tx *gorm.DB, w *models.Wallet, next models.Balance, extra map[string]interface{}) error {
	if next.Timed < 0 || next.Permanent < 0 {
		return ErrInsufficientCredits
	}
	updates := map[string]interface{}{
		"timed_credits":     next.Timed,
		"permanent_credits": next.Permanent,
	}
	for k, v := range extra {
		updates[k] = v
	}
	return tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Updates(updates).Error
}

func newLedgerEntry(userID string, amount int64, bucket, reason string, metadata Metadata) *models.CreditLedgerEntry {
	meta := datatypes.JSONMap{}
	for k, v := range metadata {
		meta[k] = v
	}
	return &models.CreditLedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Bucket:    bucket,
		Reason:    reason,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}
