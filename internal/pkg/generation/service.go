package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/llm"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/metrics"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/ratelimit"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Stage is the position of a request in the generation pipeline.
type Stage string

const (
	StageReceived       Stage = "received"
	StageRateChecked    Stage = "rate_checked"
	StageQuotaRefreshed Stage = "quota_refreshed"
	StageBalanceChecked Stage = "balance_checked"
	StageCharged        Stage = "charged"
	StageModelCalled    Stage = "model_called"
	StageSucceeded      Stage = "succeeded"
	StageRefunded       Stage = "refunded_failed"
)

// Refund reasons stored in the refund ledger entry.
const (
	FailureMissingModelKey = "missing_gemini_key"
	FailureModel           = "model_failure"
	FailureEmptyOutput     = "empty_output"
)

const (
	DefaultModelTimeout = 15 * time.Second
	refundAttempts      = 3
)

// Model produces raw reply text for a prompt.
type Model interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	Name() string
}

// Limiter gates attempts per identity and origin.
type Limiter interface {
	Allow(ctx context.Context, identity, origin string) (ratelimit.Decision, error)
}

// Wallets is the subset of the wallet store the orchestrator needs.
type Wallets interface {
	RefreshTimedCredits(ctx context.Context, userID string, now time.Time) (bool, error)
	GetByUserID(ctx context.Context, userID string) (*models.Wallet, error)
	ConsumeCredits(ctx context.Context, userID string, amount int64, reason string, metadata repository.Metadata) (models.Charge, error)
	RefundCharge(ctx context.Context, userID string, charge models.Charge, reason string, metadata repository.Metadata) (models.Balance, error)
}

// Caller identifies who is asking and from where.
type Caller struct {
	UserID string
	Origin string
}

// Result is returned on success. Balance is the post-charge balance.
type Result struct {
	RequestID      string
	Replies        []string
	CreditsCharged int64
	Balance        models.Balance
}

type Service struct {
	wallets      Wallets
	limiter      Limiter
	model        Model
	audit        repository.GenerationEventRepository
	metrics      *metrics.Metrics
	now          func() time.Time
	cost         int64
	modelTimeout time.Duration
	refundDelay  time.Duration
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithModelTimeout(d time.Duration) Option {
	return func(s *Service) { s.modelTimeout = d }
}

func WithAudit(audit repository.GenerationEventRepository) Option {
	return func(s *Service) { s.audit = audit }
}

func NewService(wallets Wallets, limiter Limiter, model Model, opts ...Option) *Service {
	s := &Service{
		wallets:      wallets,
		limiter:      limiter,
		model:        model,
		now:          time.Now,
		cost:         CreditsPerRequest,
		modelTimeout: DefaultModelTimeout,
		refundDelay:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs the full pipeline. Nothing is charged when an error is
// returned before the charge; any failure after it is refunded.
func (s *Service) Generate(ctx context.Context, caller Caller, req Request) (*Result, error) {
	started := s.now()
	requestID := uuid.NewString()
	if caller.UserID == "" {
		return nil, apperror.AuthRequired()
	}

	in := Normalize(req)
	if err := in.Validate(); err != nil {
		s.metrics.ObserveGeneration("invalid", s.now().Sub(started))
		return nil, err
	}
	stage := StageReceived

	decision, err := s.limiter.Allow(ctx, caller.UserID, caller.Origin)
	if err != nil {
		log.Errorf("[Generation] %s rate limit check failed at %s: %v", requestID, stage, err)
		return nil, apperror.Internal("rate_limit_error", err)
	}
	if !decision.Allowed {
		s.metrics.IncRateLimited()
		s.metrics.ObserveGeneration("rate_limited", s.now().Sub(started))
		return nil, apperror.RateLimited(decision.RetryAfter)
	}
	stage = StageRateChecked

	if _, err := s.wallets.RefreshTimedCredits(ctx, caller.UserID, s.now()); err != nil {
		log.Errorf("[Generation] %s quota refresh failed at %s: %v", requestID, stage, err)
		return nil, apperror.Internal("wallet_refresh_error", err)
	}
	stage = StageQuotaRefreshed

	wallet, err := s.wallets.GetByUserID(ctx, caller.UserID)
	if err != nil {
		log.Errorf("[Generation] %s wallet read failed at %s: %v", requestID, stage, err)
		return nil, apperror.Internal("wallet_error", err)
	}
	if wallet.TotalCredits() < s.cost {
		s.metrics.ObserveGeneration("insufficient_credits", s.now().Sub(started))
		return nil, apperror.InsufficientCredits()
	}
	stage = StageBalanceChecked

	metadata := repository.Metadata{
		"request_id": requestID,
		"language":   in.Language,
		"variations": in.Variations,
		"source":     "generation",
	}
	charge, err := s.wallets.ConsumeCredits(ctx, caller.UserID, s.cost, models.ReasonReplyGeneration, metadata)
	if errors.Is(err, repository.ErrInsufficientCredits) {
		s.metrics.ObserveGeneration("insufficient_credits", s.now().Sub(started))
		return nil, apperror.InsufficientCredits()
	}
	if err != nil {
		log.Errorf("[Generation] %s charge failed at %s: %v", requestID, stage, err)
		return nil, apperror.Internal("credit_consume_failed", err)
	}
	stage = StageCharged
	s.metrics.AddCreditsCharged(charge.Amount())

	// The client may go away now; the outcome (replies or refund) must still land.
	detached := context.WithoutCancel(ctx)

	replies, failure, modelErr := s.callModel(detached, in)
	stage = StageModelCalled
	if failure != "" {
		s.refund(detached, caller.UserID, charge, metadata, failure, requestID)
		s.record(detached, caller.UserID, requestID, in, models.GenerationStatusRefunded, failure, 0, started)
		s.metrics.ObserveGeneration("refunded", s.now().Sub(started))
		log.Warnf("[Generation] %s refunded after %s: %s: %v", requestID, stage, failure, modelErr)
		return nil, modelFailureError(failure, modelErr)
	}

	s.record(detached, caller.UserID, requestID, in, models.GenerationStatusSucceeded, "", charge.Amount(), started)
	s.metrics.ObserveGeneration(string(StageSucceeded), s.now().Sub(started))

	return &Result{
		RequestID:      requestID,
		Replies:        replies,
		CreditsCharged: charge.Amount(),
		Balance:        charge.Balance,
	}, nil
}

// callModel returns the replies or a non-empty failure reason.
func (s *Service) callModel(ctx context.Context, in Input) ([]string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	raw, err := s.model.Generate(ctx, llm.Request{Prompt: BuildPrompt(in), Variations: in.Variations})
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return nil, FailureMissingModelKey, err
	case errors.Is(err, llm.ErrEmptyOutput):
		return nil, FailureEmptyOutput, err
	case err != nil:
		return nil, FailureModel, err
	}

	replies := ExtractReplies(raw, in.Variations)
	if len(replies) == 0 {
		return nil, FailureEmptyOutput, errors.New("no replies in model output")
	}
	return replies, "", nil
}

func (s *Service) refund(ctx context.Context, userID string, charge models.Charge, metadata repository.Metadata, failure, requestID string) {
	meta := repository.Metadata{}
	for k, v := range metadata {
		meta[k] = v
	}
	meta["reason"] = failure

	var err error
	for attempt := 1; attempt <= refundAttempts; attempt++ {
		if _, err = s.wallets.RefundCharge(ctx, userID, charge, models.ReasonGenerationRefund, meta); err == nil {
			s.metrics.IncRefund(failure)
			return
		}
		log.Warnf("[Generation] %s refund attempt %d/%d failed: %v", requestID, attempt, refundAttempts, err)
		if attempt < refundAttempts {
			time.Sleep(time.Duration(attempt) * s.refundDelay)
		}
	}
	s.metrics.IncRefundFailure()
	log.Errorf("[Generation] %s refund of %d credits for user %s was not written: %v", requestID, charge.Amount(), userID, err)
}

func (s *Service) record(ctx context.Context, userID, requestID string, in Input, status, failure string, charged int64, started time.Time) {
	if s.audit == nil {
		return
	}
	sum := sha256.Sum256([]byte(in.Message))
	event := &models.GenerationEvent{
		UserID:         userID,
		RequestID:      requestID,
		MessageHash:    hex.EncodeToString(sum[:]),
		InputCharCount: utf8.RuneCountInString(in.Message),
		Variations:     in.Variations,
		Language:       in.Language,
		Model:          s.model.Name(),
		Status:         status,
		FailureReason:  failure,
		CreditsCharged: charged,
		LatencyMs:      s.now().Sub(started).Milliseconds(),
	}
	if err := s.audit.Create(ctx, event); err != nil {
		log.Warnf("[Generation] %s audit record failed: %v", requestID, err)
	}
}

func modelFailureError(failure string, err error) error {
	switch failure {
	case FailureMissingModelKey:
		return apperror.Internal("missing_env", err)
	case FailureEmptyOutput:
		return apperror.Upstream("empty_model_output", "Model returned empty output.", err)
	default:
		msg := "Failed to generate reply."
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return apperror.Upstream("model_error", msg, err)
	}
}
