package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func newWalletFixture(t *testing.T) (*gorm.DB, repository.WalletRepository, repository.LedgerRepository) {
	t.Helper()
	db := testutil.NewDB(t)
	return db, repository.NewWalletRepository(db), repository.NewLedgerRepository(db)
}

func seedWallet(t *testing.T, db *gorm.DB, wallets repository.WalletRepository, userID string, timed, permanent int64) {
	t.Helper()
	ctx := context.Background()
	_, _, err := wallets.GetOrCreate(ctx, userID, userID+"@example.com")
	require.NoError(t, err)
	if permanent > 0 {
		_, err = wallets.AddCredits(ctx, userID, permanent, "seed", nil, models.BucketPermanent)
		require.NoError(t, err)
	}
	if timed > 0 {
		_, err = wallets.AddCredits(ctx, userID, timed, "seed", nil, models.BucketTimed)
		require.NoError(t, err)
	}
	// Mark as refreshed today so refresh does not interfere.
	now := time.Now().UTC()
	require.NoError(t, db.Model(&models.Wallet{}).Where("user_id = ?", userID).
		Update("last_quota_refresh_at", now).Error)
}

func assertReconciled(t *testing.T, wallets repository.WalletRepository, ledger repository.LedgerRepository, userID string) {
	t.Helper()
	ctx := context.Background()
	w, err := wallets.GetByUserID(ctx, userID)
	require.NoError(t, err)
	sum, err := ledger.SumByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, w.TotalCredits(), sum, "ledger sum must match wallet balance")
	assert.GreaterOrEqual(t, w.TimedCredits, int64(0))
	assert.GreaterOrEqual(t, w.PermanentCredits, int64(0))
}

func TestGetOrCreateProvisionsWalletAndProfile(t *testing.T) {
	_, wallets, _ := newWalletFixture(t)
	ctx := context.Background()

	w, p, err := wallets.GetOrCreate(ctx, "user-1", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", w.UserID)
	assert.Equal(t, string(entitlements.TierFree), w.Tier)
	assert.Equal(t, int64(500), w.DailyCreditQuota)
	assert.Equal(t, int64(0), w.TotalCredits())
	assert.Nil(t, w.LastQuotaRefreshAt)
	assert.Equal(t, models.SubscriptionStatusNone, w.SubscriptionStatus)
	assert.Len(t, p.ReferralCode, 8)

	again, p2, err := wallets.GetOrCreate(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.Equal(t, p.ReferralCode, p2.ReferralCode)

	_, _, err = wallets.GetOrCreate(ctx, "  ", "")
	assert.ErrorIs(t, err, repository.ErrInvalidUserID)
}

func TestGetOrCreateConcurrentFirstRequests(t *testing.T) {
	db, wallets, _ := newWalletFixture(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, _, err := wallets.GetOrCreate(ctx, "racer", "")
			return err
		})
	}
	require.NoError(t, g.Wait())

	var count int64
	require.NoError(t, db.Model(&models.Wallet{}).Where("user_id = ?", "racer").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Model(&models.Profile{}).Where("user_id = ?", "racer").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConsumeCreditsSpillsIntoPermanent(t *testing.T) {
	db, wallets, ledger := newWalletFixture(t)
	ctx := context.Background()
	seedWallet(t, db, wallets, "u", 50, 60)

	charge, err := wallets.ConsumeCredits(ctx, "u", 100, models.ReasonReplyGeneration, repository.Metadata{"request_id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), charge.FromTimed)
	assert.Equal(t, int64(50), charge.FromPermanent)
	assert.Equal(t, models.Balance{Timed: 0, Permanent: 10}, charge.Balance)

	entries, err := ledger.List(ctx, "u", nil, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-100), entries[0].Amount)
	assert.Equal(t, models.BucketMixed, entries[0].Bucket)
	assert.Equal(t, models.ReasonReplyGeneration, entries[0].Reason)
	assert.Equal(t, "r1", entries[0].Metadata["request_id"])

	assertReconciled(t, wallets, ledger, "u")
}

func TestConsumeCreditsInsufficientLeavesStateUntouched(t *testing.T) {
	db, wallets, ledger := newWalletFixture(t)
	ctx := context.Background()
	seedWallet(t, db, wallets, "u", 50, 40)

	_, err := wallets.ConsumeCredits(ctx, "u", 100, models.ReasonReplyGeneration, nil)
	assert.ErrorIs(t, err, repository.ErrInsufficientCredits)

	w, err := wallets.GetByUserID(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, models.Balance{Timed: 50, Permanent: 40}, w.Balance())
	assertReconciled(t, wallets, ledger, "u")
}

func TestConsumeCreditsRejectsBadInput(t *testing.T) {
	_, wallets, _ := newWalletFixture(t)
	ctx := context.Background()

	_, err := wallets.ConsumeCredits(ctx, "u", 0, "x", nil)
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)

	_, err = wallets.ConsumeCredits(ctx, "missing", 10, "x", nil)
	assert.ErrorIs(t, err, repository.ErrWalletNotFound)

	_, err = wallets.AddCredits(ctx, "u", 10, "x", nil, "bonus")
	assert.ErrorIs(t, err, repository.ErrInvalidBucket)
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	db, wallets, ledger := newWalletFixture(t)
	ctx := context.Background()
	seedWallet(t, db, wallets, "u", 300, 250)

	var (
		mu        sync.Mutex
		succeeded int
	)
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := wallets.ConsumeCredits(ctx, "u", 100, models.ReasonReplyGeneration, nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			}
			if errors.Is(err, repository.ErrInsufficientCredits) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 5, succeeded)
	w, err := wallets.GetByUserID(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(50), w.TotalCredits())
	assertReconciled(t, wallets, ledger, "u")
}

func TestRefundChargeRestoresBuckets(t *testing.T) {
	db, wallets, ledger := newWalletFixture(t)
	ctx := context.Background()
	seedWallet(t, db, wallets, "u", 50, 60)

	charge, err := wallets.ConsumeCredits(ctx, "u", 100, models.ReasonReplyGeneration, repository.Metadata{"request_id": "r1"})
	require.NoError(t, err)

	bal, err := wallets.RefundCharge(ctx, "u", charge, models.ReasonGenerationRefund, repository.Metadata{"request_id": "r1", "reason": "model_error"})
	require.NoError(t, err)
	assert.Equal(t, models.Balance{Timed: 50, Permanent: 60}, bal)

	entries, err := ledger.List(ctx, "u", nil, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(100), entries[0].Amount)
	assert.Equal(t, models.ReasonGenerationRefund, entries[0].Reason)
	assert.Equal(t, "model_error", entries[0].Metadata["reason"])
	assertReconciled(t, wallets, ledger, "u")

	_, err = wallets.RefundCharge(ctx, "u", models.Charge{}, models.ReasonGenerationRefund, nil)
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)
}

func TestRefreshTimedCreditsOncePerDay(t *testing.T) {
	_, wallets, ledger := newWalletFixture(t)
	ctx := context.Background()
	_, _, err := wallets.GetOrCreate(ctx, "u", "")
	require.NoError(t, err)

	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	refreshed, err := wallets.RefreshTimedCredits(ctx, "u", day1)
	require.NoError(t, err)
	assert.True(t, refreshed)

	_, err = wallets.ConsumeCredits(ctx, "u", 100, models.ReasonReplyGeneration, nil)
	require.NoError(t, err)

	refreshed, err = wallets.RefreshTimedCredits(ctx, "u", day1.Add(10*time.Hour))
	require.NoError(t, err)
	assert.False(t, refreshed, "second refresh on the same UTC day is a no-op")

	w, err := wallets.GetByUserID(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(400), w.TimedCredits)

	refreshed, err = wallets.RefreshTimedCredits(ctx, "u", day1.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, refreshed)

	w, err = wallets.GetByUserID(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.TimedCredits, "quota is reset, not accumulated")
	assertReconciled(t, wallets, ledger, "u")

	entries, err := ledger.List(ctx, "u", nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.ReasonDailyRefresh, entries[0].Reason)
	assert.Equal(t, int64(100), entries[0].Amount)
}

func TestSetTierRaisesQuotaImmediately(t *testing.T) {
	_, wallets, ledger := newWalletFixture(t)
	ctx := context.Background()
	_, _, err := wallets.GetOrCreate(ctx, "u", "")
	require.NoError(t, err)
	now := time.Now().UTC()
	_, err = wallets.RefreshTimedCredits(ctx, "u", now)
	require.NoError(t, err)

	w, err := wallets.SetTier(ctx, "u", entitlements.TierPro, models.SubscriptionStatusActive, nil)
	require.NoError(t, err)
	assert.Equal(t, "pro", w.Tier)
	assert.Equal(t, int64(2000), w.DailyCreditQuota)
	assert.Nil(t, w.LastQuotaRefreshAt)

	refreshed, err := wallets.RefreshTimedCredits(ctx, "u", now)
	require.NoError(t, err)
	assert.True(t, refreshed)
	w, err = wallets.GetByUserID(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), w.TimedCredits)

	// Downgrades only affect the next day.
	w, err = wallets.SetTier(ctx, "u", entitlements.TierFree, models.SubscriptionStatusCancelled, nil)
	require.NoError(t, err)
	assert.NotNil(t, w.LastQuotaRefreshAt)
	refreshed, err = wallets.RefreshTimedCredits(ctx, "u", now)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assertReconciled(t, wallets, ledger, "u")
}

func TestListStaleUserIDs(t *testing.T) {
	_, wallets, _ := newWalletFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, _, err := wallets.GetOrCreate(ctx, id, "")
		require.NoError(t, err)
	}
	now := time.Now().UTC()
	_, err := wallets.RefreshTimedCredits(ctx, "b", now)
	require.NoError(t, err)

	ids, err := wallets.ListStaleUserIDs(ctx, now, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}
