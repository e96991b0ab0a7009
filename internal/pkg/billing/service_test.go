package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-webhook-secret"

type webhookFixture struct {
	db      *gorm.DB
	svc     *Service
	wallets repository.WalletRepository
	ledger  repository.LedgerRepository
	now     time.Time
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &webhookFixture{
		db:      db,
		wallets: repository.NewWalletRepository(db),
		ledger:  repository.NewLedgerRepository(db),
		now:     time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(db, testSecret, WithClock(func() time.Time { return f.now }))
	require.NoError(t, db.Model(&models.BillingPlan{}).
		Where("plan_code = ?", models.PlanCodeCreditPackStarter).
		Update("provider_variant_id", "1001").Error)
	return f
}

func lemonEvent(event, userID, planCode, dataID string, attrs map[string]interface{}) []byte {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	body := map[string]interface{}{
		"meta": map[string]interface{}{
			"event_name":  event,
			"custom_data": map[string]interface{}{"user_id": userID, "plan_code": planCode},
		},
		"data": map[string]interface{}{"id": dataID, "attributes": attrs},
	}
	raw, _ := json.Marshal(body)
	return raw
}

func (f *webhookFixture) deliver(t *testing.T, raw []byte) *Outcome {
	t.Helper()
	out, err := f.svc.HandleWebhook(context.Background(), raw, SignLemonPayload(raw, testSecret))
	require.NoError(t, err)
	return out
}

func (f *webhookFixture) wallet(t *testing.T, userID string) *models.Wallet {
	t.Helper()
	w, err := f.wallets.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (f *webhookFixture) assertReconciled(t *testing.T, userID string) {
	t.Helper()
	sum, err := f.ledger.SumByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, f.wallet(t, userID).TotalCredits(), sum)
}

func TestWebhookRejectsBadSignatureAndMissingSecret(t *testing.T) {
	f := newWebhookFixture(t)
	raw := lemonEvent(EventOrderCreated, "u1", models.PlanCodeCreditPackStarter, "1", nil)

	_, err := f.svc.HandleWebhook(context.Background(), raw, "deadbeef")
	assert.Equal(t, "invalid_signature", apperror.From(err).Code)
	assert.Equal(t, 401, apperror.From(err).Status())

	_, err = f.svc.HandleWebhook(context.Background(), raw, "")
	assert.Equal(t, apperror.KindSignatureInvalid, apperror.From(err).Kind)

	unset := NewService(f.db, "")
	_, err = unset.HandleWebhook(context.Background(), raw, SignLemonPayload(raw, testSecret))
	assert.Equal(t, "missing_env", apperror.From(err).Code)

	var count int64
	require.NoError(t, f.db.Model(&models.BillingWebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWebhookRejectsMalformedBodyAfterSignature(t *testing.T) {
	f := newWebhookFixture(t)
	raw := []byte("{broken")
	_, err := f.svc.HandleWebhook(context.Background(), raw, SignLemonPayload(raw, testSecret))
	assert.Equal(t, "invalid_payload", apperror.From(err).Code)
}

func TestWebhookCreditPackGrantsPermanentCreditsOnce(t *testing.T) {
	f := newWebhookFixture(t)
	raw := lemonEvent(EventOrderCreated, "u1", models.PlanCodeCreditPackStarter, "ord-1", map[string]interface{}{"user_email": "a@b.c"})

	out := f.deliver(t, raw)
	assert.Equal(t, ModeCreditPack, out.Mode)
	assert.Equal(t, map[string]interface{}{"ok": true, "mode": "credit_pack"}, out.Response())

	again := f.deliver(t, raw)
	assert.True(t, again.Duplicate)
	assert.Equal(t, map[string]interface{}{"ok": true, "duplicate": true}, again.Response())

	w := f.wallet(t, "u1")
	assert.Equal(t, int64(2000), w.PermanentCredits)
	assert.Equal(t, string(entitlements.TierFree), w.Tier)
	f.assertReconciled(t, "u1")

	entries, err := f.ledger.List(context.Background(), "u1", nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lemon_order_created", entries[0].Reason)
	assert.Equal(t, "order_created:ord-1", entries[0].Metadata["event_id"])
	assert.Equal(t, "permanent", entries[0].Metadata["credit_bucket"])

	var contact models.MarketingContact
	require.NoError(t, f.db.Where("user_id = ?", "u1").First(&contact).Error)
	assert.NotNil(t, contact.PaidAt)
	assert.Equal(t, "a@b.c", contact.Email)

	var stored models.BillingWebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", "order_created:ord-1").First(&stored).Error)
	assert.True(t, stored.SignatureValid)
	assert.Equal(t, string(ActionCreditPackGranted), stored.Outcome)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestWebhookConcurrentDuplicatesApplyOnce(t *testing.T) {
	f := newWebhookFixture(t)
	raw := lemonEvent(EventOrderCreated, "u1", models.PlanCodeCreditPackStarter, "ord-9", nil)
	sig := SignLemonPayload(raw, testSecret)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.HandleWebhook(context.Background(), raw, sig)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2000), f.wallet(t, "u1").PermanentCredits)
	f.assertReconciled(t, "u1")
}

func TestWebhookResolvesPlanByVariant(t *testing.T) {
	f := newWebhookFixture(t)
	raw := lemonEvent(EventOrderCreated, "u2", "", "ord-2", map[string]interface{}{
		"first_order_item": map[string]interface{}{"variant_id": 1001},
	})
	out := f.deliver(t, raw)
	assert.Equal(t, ModeCreditPack, out.Mode)
	assert.Equal(t, int64(2000), f.wallet(t, "u2").PermanentCredits)
}

func TestWebhookSkips(t *testing.T) {
	f := newWebhookFixture(t)

	out := f.deliver(t, lemonEvent(EventOrderCreated, "", models.PlanCodeCreditPackStarter, "s1", nil))
	assert.Equal(t, SkipMissingUserID, out.Skipped)

	out = f.deliver(t, lemonEvent(EventOrderCreated, "u3", "no_such_plan", "s2", nil))
	assert.Equal(t, SkipPlanNotFound, out.Skipped)
	assert.Equal(t, map[string]interface{}{"ok": true, "skipped": "plan_not_found"}, out.Response())

	out = f.deliver(t, lemonEvent(EventSubscriptionCreated, "u3", models.PlanCodeCreditPackStarter, "s3", nil))
	assert.Equal(t, SkipNoAction, out.Skipped)

	out = f.deliver(t, lemonEvent("order_refunded", "u3", models.PlanCodeMonthlyProAuto, "s4", nil))
	assert.Equal(t, SkipNoAction, out.Skipped)

	w := f.wallet(t, "u3")
	assert.Zero(t, w.PermanentCredits)
	assert.Equal(t, string(entitlements.TierFree), w.Tier)
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	f := newWebhookFixture(t)
	renews := "2026-11-15T09:00:00Z"

	out := f.deliver(t, lemonEvent(EventSubscriptionCreated, "u4", models.PlanCodeMonthlyProAuto, "sub-1", map[string]interface{}{
		"status": "active", "renews_at": renews, "updated_at": "2026-10-15T08:00:00Z",
	}))
	assert.Equal(t, ModeSubscription, out.Mode)
	assert.Equal(t, ActionSubscriptionApplied, out.Action)

	w := f.wallet(t, "u4")
	assert.Equal(t, string(entitlements.TierPro), w.Tier)
	assert.Equal(t, "active", w.SubscriptionStatus)
	assert.Equal(t, entitlements.DailyQuota(entitlements.TierPro), w.TimedCredits, "upgrade applies immediately")
	require.NotNil(t, w.SubscriptionExpiresAt)
	f.assertReconciled(t, "u4")

	var sub models.BillingSubscription
	require.NoError(t, f.db.Where("provider_subscription_id = ?", "sub-1").First(&sub).Error)
	assert.Equal(t, "u4", sub.UserID)
	assert.Equal(t, models.PlanCodeMonthlyProAuto, sub.PlanCode)

	out = f.deliver(t, lemonEvent(EventSubscriptionCancelled, "u4", models.PlanCodeMonthlyProAuto, "sub-1", map[string]interface{}{
		"status": "cancelled", "updated_at": "2026-10-15T08:30:00Z",
	}))
	assert.Equal(t, ActionSubscriptionCancelled, out.Action)

	w = f.wallet(t, "u4")
	assert.Equal(t, string(entitlements.TierFree), w.Tier)
	assert.Equal(t, "cancelled", w.SubscriptionStatus)
	assert.Equal(t, entitlements.DailyQuota(entitlements.TierFree), w.DailyCreditQuota)
	assert.Equal(t, entitlements.DailyQuota(entitlements.TierPro), w.TimedCredits, "downgrade waits for the next day")
	f.assertReconciled(t, "u4")
}

func TestWebhookIgnoresStaleSubscriptionEvents(t *testing.T) {
	f := newWebhookFixture(t)

	f.deliver(t, lemonEvent(EventSubscriptionExpired, "u5", models.PlanCodeMonthlyProAuto, "sub-5", map[string]interface{}{
		"status": "expired", "updated_at": "2026-10-15T08:00:00Z",
	}))
	out := f.deliver(t, lemonEvent(EventSubscriptionUpdated, "u5", models.PlanCodeMonthlyProAuto, "sub-5", map[string]interface{}{
		"status": "active", "updated_at": "2026-10-14T08:00:00Z",
	}))
	assert.Equal(t, SkipStaleEvent, out.Skipped)

	w := f.wallet(t, "u5")
	assert.Equal(t, string(entitlements.TierFree), w.Tier)
	assert.Equal(t, "expired", w.SubscriptionStatus)
}

func TestWebhookNonEntitlingStatusDowngrades(t *testing.T) {
	f := newWebhookFixture(t)

	f.deliver(t, lemonEvent(EventSubscriptionCreated, "u6", models.PlanCodeMonthlyProAuto, "sub-6", map[string]interface{}{
		"status": "active", "updated_at": "2026-10-15T07:00:00Z",
	}))
	out := f.deliver(t, lemonEvent(EventSubscriptionUpdated, "u6", models.PlanCodeMonthlyProAuto, "sub-6", map[string]interface{}{
		"status": "unpaid", "updated_at": "2026-10-15T08:00:00Z",
	}))
	assert.Equal(t, ActionSubscriptionCancelled, out.Action)
	assert.Equal(t, string(entitlements.TierFree), f.wallet(t, "u6").Tier)
}

func TestWebhookCancellationKeepsAccessFromAnotherSubscription(t *testing.T) {
	f := newWebhookFixture(t)

	f.deliver(t, lemonEvent(EventSubscriptionCreated, "u9", models.PlanCodeMonthlyProAuto, "sub-a", map[string]interface{}{
		"status": "active", "renews_at": "2026-11-15T09:00:00Z", "updated_at": "2026-10-15T07:00:00Z",
	}))
	f.deliver(t, lemonEvent(EventSubscriptionCreated, "u9", models.PlanCodeMonthlyProOnce, "sub-b", map[string]interface{}{
		"status": "active", "renews_at": "2026-11-20T09:00:00Z", "updated_at": "2026-10-15T07:10:00Z",
	}))

	out := f.deliver(t, lemonEvent(EventSubscriptionCancelled, "u9", models.PlanCodeMonthlyProAuto, "sub-a", map[string]interface{}{
		"status": "cancelled", "updated_at": "2026-10-15T08:00:00Z",
	}))
	assert.Equal(t, ActionSubscriptionCancelled, out.Action)

	w := f.wallet(t, "u9")
	assert.Equal(t, string(entitlements.TierPro), w.Tier)
	assert.Equal(t, "active", w.SubscriptionStatus)
	require.NotNil(t, w.SubscriptionExpiresAt)
	assert.Equal(t, "2026-11-20", w.SubscriptionExpiresAt.UTC().Format("2006-01-02"))

	f.deliver(t, lemonEvent(EventSubscriptionExpired, "u9", models.PlanCodeMonthlyProOnce, "sub-b", map[string]interface{}{
		"status": "expired", "updated_at": "2026-10-15T08:30:00Z",
	}))
	w = f.wallet(t, "u9")
	assert.Equal(t, string(entitlements.TierFree), w.Tier)
	assert.Equal(t, "expired", w.SubscriptionStatus)
	f.assertReconciled(t, "u9")
}

func TestWebhookCancellationIgnoresLapsedSubscriptions(t *testing.T) {
	f := newWebhookFixture(t)

	f.deliver(t, lemonEvent(EventSubscriptionCreated, "u10", models.PlanCodeMonthlyProOnce, "sub-old", map[string]interface{}{
		"status": "active", "renews_at": "2026-10-01T00:00:00Z", "updated_at": "2026-09-01T07:00:00Z",
	}))
	f.deliver(t, lemonEvent(EventSubscriptionCreated, "u10", models.PlanCodeMonthlyProAuto, "sub-new", map[string]interface{}{
		"status": "active", "renews_at": "2026-11-15T09:00:00Z", "updated_at": "2026-10-15T07:00:00Z",
	}))
	f.deliver(t, lemonEvent(EventSubscriptionCancelled, "u10", models.PlanCodeMonthlyProAuto, "sub-new", map[string]interface{}{
		"status": "cancelled", "updated_at": "2026-10-15T08:00:00Z",
	}))

	assert.Equal(t, string(entitlements.TierFree), f.wallet(t, "u10").Tier)
}

func TestWebhookLifetimeIsNeverReverted(t *testing.T) {
	f := newWebhookFixture(t)

	out := f.deliver(t, lemonEvent(EventOrderCreated, "u7", models.PlanCodeLifetimePro, "ord-7", nil))
	assert.Equal(t, ModeSubscription, out.Mode)

	w := f.wallet(t, "u7")
	assert.Equal(t, string(entitlements.TierElite), w.Tier)
	assert.Equal(t, models.SubscriptionStatusLifetime, w.SubscriptionStatus)
	assert.Nil(t, w.SubscriptionExpiresAt)

	// An older monthly subscription of the same user ends later.
	f.deliver(t, lemonEvent(EventSubscriptionCreated, "u7", models.PlanCodeMonthlyProAuto, "sub-7", map[string]interface{}{"status": "active"}))
	f.deliver(t, lemonEvent(EventSubscriptionExpired, "u7", models.PlanCodeMonthlyProAuto, "sub-7", map[string]interface{}{"status": "expired"}))

	w = f.wallet(t, "u7")
	assert.Equal(t, string(entitlements.TierElite), w.Tier)
	assert.Equal(t, models.SubscriptionStatusLifetime, w.SubscriptionStatus)
	f.assertReconciled(t, "u7")
}

func TestWebhookEventIDWithoutDataID(t *testing.T) {
	f := newWebhookFixture(t)
	raw := []byte(fmt.Sprintf(`{"meta":{"event_name":"order_created","custom_data":{"user_id":"u8","plan_code":"%s"}},"data":{"attributes":{}}}`, models.PlanCodeCreditPackStarter))

	first := f.deliver(t, raw)
	second := f.deliver(t, raw)
	assert.NotEqual(t, first.EventID, second.EventID)
	assert.False(t, second.Duplicate)
	assert.Equal(t, int64(4000), f.wallet(t, "u8").PermanentCredits)
}
