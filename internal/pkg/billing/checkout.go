package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// CheckoutCreator creates hosted checkouts at the payment provider.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// CheckoutService turns a plan code into a provider checkout URL.
type CheckoutService struct {
	repo   Repository
	client CheckoutCreator
}

func NewCheckoutService(repo Repository, client CheckoutCreator) *CheckoutService {
	return &CheckoutService{repo: repo, client: client}
}

// CreateCheckout only sells active plans with a configured variant.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID, email, planCode string) (string, error) {
	if userID == "" {
		return "", apperror.AuthRequired()
	}
	planCode = strings.TrimSpace(planCode)
	if planCode == "" {
		return "", apperror.Validation("plan_code is required.")
	}

	plan, err := s.repo.FindPlanByCode(ctx, planCode)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && (!plan.IsActive || plan.ProviderVariantID == "")) {
		return "", apperror.New(apperror.KindValidation, "invalid_plan", "Plan is not available.")
	}
	if err != nil {
		return "", apperror.Internal("plan_lookup_failed", err)
	}

	url, err := s.client.CreateCheckout(ctx, CheckoutRequest{
		UserID:    userID,
		Email:     email,
		PlanCode:  plan.PlanCode,
		VariantID: plan.ProviderVariantID,
	})
	if errors.Is(err, ErrLemonNotConfigured) {
		return "", apperror.Internal("missing_env", err)
	}
	if err != nil {
		log.Warnf("[Billing] checkout for user %s plan %s failed: %v", userID, plan.PlanCode, err)
		msg := "Checkout creation failed."
		var apiErr *LemonAPIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			msg = apiErr.Detail
		}
		return "", apperror.Upstream("lemon_checkout_failed", msg, err)
	}
	return url, nil
}
