package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ModeCreditPack   = "credit_pack"
	ModeSubscription = "subscription_or_lifetime"
)

// Skip reasons returned for accepted deliveries that change nothing.
const (
	SkipMissingUserID    = "missing_user_id"
	SkipPlanNotFound     = "plan_not_found"
	SkipNoAction         = "no_action_for_event"
	SkipStaleEvent       = "stale_event"
	SkipPlanWithoutGrant = "plan_without_credits"
)

// Outcome describes what a delivery did. Exactly one of Duplicate, Mode and
// Skipped is set.
type Outcome struct {
	EventID   string
	Action    Action
	Duplicate bool
	Mode      string
	Skipped   string
}

// Response renders the outcome as the webhook response body.
func (o *Outcome) Response() map[string]interface{} {
	body := map[string]interface{}{"ok": true}
	switch {
	case o.Duplicate:
		body["duplicate"] = true
	case o.Skipped != "":
		body["skipped"] = o.Skipped
	default:
		body["mode"] = o.Mode
	}
	return body
}

func (o *Outcome) label() string {
	switch {
	case o.Duplicate:
		return "duplicate"
	case o.Skipped != "":
		return "skipped_" + o.Skipped
	default:
		return string(o.Action)
	}
}

// Service applies verified payment-provider events to wallets.
type Service struct {
	db      *gorm.DB
	repo    Repository
	wallets repository.WalletRepository
	secret  string
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a webhook service. secret is the Lemon Squeezy signing
// secret; an empty secret rejects every delivery with missing_env.
func NewService(db *gorm.DB, secret string, opts ...Option) *Service {
	s := &Service{
		db:      db,
		repo:    NewRepository(db),
		wallets: repository.NewWalletRepository(db),
		secret:  strings.TrimSpace(secret),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleWebhook verifies, deduplicates and applies one delivery. The dedupe
// record and every wallet change commit together, so a failed apply leaves
// the event free to be retried.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte, signature string) (*Outcome, error) {
	if s.secret == "" {
		s.metrics.IncWebhook("error")
		return nil, apperror.Internal("missing_env", errors.New("LEMON_WEBHOOK_SECRET is not set"))
	}
	if !VerifyLemonWebhookSignature(raw, signature, s.secret) {
		s.metrics.IncWebhook("invalid_signature")
		return nil, apperror.SignatureInvalid()
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		s.metrics.IncWebhook("invalid_payload")
		return nil, apperror.New(apperror.KindValidation, "invalid_payload", "Webhook payload is not valid JSON.")
	}

	eventName := payload.EventName()
	objectID := payload.DataID()
	if objectID == "" {
		objectID = uuid.NewString()
	}
	outcome := &Outcome{EventID: eventName + ":" + objectID, Action: ActionUnknown}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		event := &models.BillingWebhookEvent{
			Provider:       models.BillingProviderLemonSqueezy,
			EventID:        outcome.EventID,
			EventName:      eventName,
			PayloadJSON:    string(raw),
			SignatureValid: true,
		}
		created, err := repo.CreateWebhookEventIfNotExists(ctx, event)
		if err != nil {
			return err
		}
		if !created {
			outcome.Duplicate = true
			return nil
		}

		if err := s.apply(ctx, tx, repo, payload, outcome); err != nil {
			return err
		}
		return repo.MarkWebhookProcessed(ctx, event.ID, outcome.label(), s.now())
	})
	if err != nil {
		s.metrics.IncWebhook("error")
		log.Errorf("[Billing] webhook %s failed: %v", outcome.EventID, err)
		return nil, apperror.Internal("webhook_processing_failed", err)
	}

	s.metrics.IncWebhook(outcome.label())
	log.Infof("[Billing] webhook %s: %s", outcome.EventID, outcome.label())
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, repo Repository, p *LemonPayload, outcome *Outcome) error {
	userID := p.UserID()
	if userID == "" {
		outcome.Skipped = SkipMissingUserID
		return nil
	}

	plan, err := s.resolvePlan(ctx, repo, p)
	if err != nil {
		return err
	}
	if plan == nil {
		outcome.Skipped = SkipPlanNotFound
		return nil
	}

	outcome.Action = Route(p.EventName(), plan)
	wallets := s.wallets.WithTx(tx)
	if _, _, err := wallets.GetOrCreate(ctx, userID, p.Email()); err != nil {
		return err
	}

	switch outcome.Action {
	case ActionCreditPackGranted:
		return s.grantCreditPack(ctx, repo, wallets, p, plan, outcome)
	case ActionSubscriptionApplied, ActionSubscriptionCancelled:
		return s.applySubscription(ctx, repo, wallets, p, plan, outcome)
	default:
		outcome.Skipped = SkipNoAction
		return nil
	}
}

// resolvePlan looks up custom_data.plan_code first, then the variant id.
func (s *Service) resolvePlan(ctx context.Context, repo Repository, p *LemonPayload) (*models.BillingPlan, error) {
	if code := p.PlanCode(); code != "" {
		plan, err := repo.FindPlanByCode(ctx, code)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	plan, err := repo.FindPlanByVariant(ctx, p.VariantID())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return plan, err
}

func (s *Service) grantCreditPack(ctx context.Context, repo Repository, wallets repository.WalletRepository, p *LemonPayload, plan *models.BillingPlan, outcome *Outcome) error {
	if plan.CreditsDelta <= 0 {
		outcome.Skipped = SkipPlanWithoutGrant
		return nil
	}
	metadata := repository.Metadata{
		"event_id":            outcome.EventID,
		"plan_code":           plan.PlanCode,
		"provider_variant_id": p.VariantID(),
		"credit_bucket":       models.BucketPermanent,
	}
	if _, err := wallets.AddCredits(ctx, p.UserID(), plan.CreditsDelta, "lemon_"+p.EventName(), metadata, models.BucketPermanent); err != nil {
		return err
	}
	if err := repo.MarkPaid(ctx, p.UserID(), p.Email(), s.now()); err != nil {
		return err
	}
	outcome.Mode = ModeCreditPack
	return nil
}

func (s *Service) applySubscription(ctx context.Context, repo Repository, wallets repository.WalletRepository, p *LemonPayload, plan *models.BillingPlan, outcome *Outcome) error {
	userID := p.UserID()
	now := s.now().UTC()
	eventAt := p.EventTime(now)

	subID := p.SubscriptionID()
	if subID == "" {
		subID = userID + ":" + plan.PlanCode
	}

	existing, err := repo.GetSubscription(ctx, subID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if existing != nil && existing.LastEventAt != nil && eventAt.Before(*existing.LastEventAt) {
		outcome.Skipped = SkipStaleEvent
		return nil
	}

	cancelled := outcome.Action == ActionSubscriptionCancelled
	status := subscriptionStatus(plan, p.Status())
	if cancelled {
		status = cancellationStatus(p.EventName(), p.Status())
	} else if !isEntitlingStatus(status) {
		cancelled = true
	}

	expiresAt := p.RenewsAt()
	if plan.IsLifetime() {
		expiresAt = nil
	}
	sub := &models.BillingSubscription{
		UserID:                 userID,
		Provider:               models.BillingProviderLemonSqueezy,
		ProviderSubscriptionID: subID,
		PlanCode:               plan.PlanCode,
		Status:                 status,
		CurrentPeriodEnd:       expiresAt,
		LastEventAt:            &eventAt,
	}
	if err := repo.UpsertSubscription(ctx, sub); err != nil {
		return err
	}

	wallet, err := wallets.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	holdsLifetime := wallet.SubscriptionStatus == models.SubscriptionStatusLifetime

	switch {
	case cancelled && holdsLifetime:
		log.Infof("[Billing] %s: keeping lifetime access for user %s", outcome.EventID, userID)
	case cancelled:
		other, err := remainingSubscription(ctx, repo, userID, subID, now)
		if err != nil {
			return err
		}
		if other == nil {
			if _, err := wallets.SetTier(ctx, userID, entitlements.TierFree, status, expiresAt); err != nil {
				return err
			}
			break
		}
		otherPlan, err := repo.FindPlanByCode(ctx, other.PlanCode)
		if err != nil {
			return err
		}
		log.Infof("[Billing] %s: user %s keeps access through subscription %s", outcome.EventID, userID, other.ProviderSubscriptionID)
		if _, err := wallets.SetTier(ctx, userID, tierForPlan(otherPlan), other.Status, other.CurrentPeriodEnd); err != nil {
			return err
		}
	case holdsLifetime && !plan.IsLifetime():
		log.Infof("[Billing] %s: user %s already holds lifetime access", outcome.EventID, userID)
	default:
		if _, err := wallets.SetTier(ctx, userID, tierForPlan(plan), status, expiresAt); err != nil {
			return err
		}
		if err := repo.MarkPaid(ctx, userID, p.Email(), now); err != nil {
			return err
		}
	}

	if _, err := wallets.RefreshTimedCredits(ctx, userID, now); err != nil {
		return err
	}
	if cancelled {
		outcome.Action = ActionSubscriptionCancelled
	}
	outcome.Mode = ModeSubscription
	return nil
}

// remainingSubscription returns another subscription of the user that still
// grants paid access at now.
func remainingSubscription(ctx context.Context, repo Repository, userID, exceptID string, now time.Time) (*models.BillingSubscription, error) {
	subs, err := repo.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		sub := &subs[i]
		if sub.ProviderSubscriptionID == exceptID || !isEntitlingStatus(sub.Status) {
			continue
		}
		if sub.CurrentPeriodEnd != nil && !sub.CurrentPeriodEnd.After(now) {
			continue
		}
		return sub, nil
	}
	return nil, nil
}
