// Package invite redeems referral codes for credit rewards.
package invite

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const DefaultRewardCredits int64 = 200

// Rewards configures what a redemption grants.
type Rewards struct {
	Redeemer int64
	Referrer int64
}

// RewardsFromEnv reads INVITE_REWARD and INVITE_REFERRER_REWARD.
func RewardsFromEnv() Rewards {
	return Rewards{
		Redeemer: env.GetEnvInt64("INVITE_REWARD", DefaultRewardCredits),
		Referrer: env.GetEnvInt64("INVITE_REFERRER_REWARD", 0),
	}
}

func ErrNotFound() *apperror.Error {
	return apperror.NotFound("invite_not_found", "Invite code is invalid.")
}

func ErrSelfInvite() *apperror.Error {
	return apperror.New(apperror.KindValidation, "self_invite_not_allowed", "You cannot redeem your own invite code.")
}

func ErrAlreadyRedeemed() *apperror.Error {
	return apperror.Conflict("invite_already_redeemed", "You have already redeemed an invite code.")
}

// Result is returned after a successful redemption.
type Result struct {
	RewardCredits  int64
	ReferrerReward int64
	ReferrerID     string
	Balance        models.Balance
}

type Service struct {
	db      *gorm.DB
	wallets repository.WalletRepository
	invites repository.InviteRepository
	rewards Rewards
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(db *gorm.DB, rewards Rewards, m *metrics.Metrics) *Service {
	return &Service{
		db:      db,
		wallets: repository.NewWalletRepository(db),
		invites: repository.NewInviteRepository(db),
		rewards: rewards,
		metrics: m,
		now:     time.Now,
	}
}

// Redeem applies a referral code for userID. Lookup, checks, the redemption
// row and both rewards commit in one transaction; the unique redeemer index
// settles concurrent attempts.
func (s *Service) Redeem(ctx context.Context, userID, code string) (*Result, error) {
	if userID == "" {
		return nil, apperror.AuthRequired()
	}
	normalized := models.NormalizeReferralCode(code)
	if normalized == "" {
		return nil, apperror.Validation("Invite code is required.")
	}
	if s.rewards.Redeemer <= 0 {
		return nil, apperror.Internal("invalid_invite_reward", errors.New("INVITE_REWARD must be positive"))
	}

	var result Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets := s.wallets.WithTx(tx)
		invites := s.invites.WithTx(tx)

		if _, _, err := wallets.GetOrCreate(ctx, userID, ""); err != nil {
			return err
		}

		referrer, err := wallets.GetProfileByReferralCode(ctx, normalized)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound()
		}
		if err != nil {
			return err
		}
		if referrer.UserID == userID {
			return ErrSelfInvite()
		}

		redeemer, err := invites.LockProfile(ctx, userID)
		if err != nil {
			return err
		}
		if redeemer.HasRedeemedInvite() {
			return ErrAlreadyRedeemed()
		}
		redeemed, err := invites.HasRedeemed(ctx, userID)
		if err != nil {
			return err
		}
		if redeemed {
			return ErrAlreadyRedeemed()
		}

		redemption := &models.InviteRedemption{
			RedeemerID:     userID,
			ReferrerID:     referrer.UserID,
			Code:           normalized,
			RewardCredits:  s.rewards.Redeemer,
			ReferrerReward: s.rewards.Referrer,
		}
		if err := invites.CreateRedemption(ctx, redemption); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRedeemed()
			}
			return err
		}
		if err := invites.MarkProfileInvited(ctx, userID, referrer.UserID, s.now()); err != nil {
			return err
		}

		balance, err := wallets.AddCredits(ctx, userID, s.rewards.Redeemer, models.ReasonInviteReward, repository.Metadata{
			"referrer_id": referrer.UserID,
			"code":        normalized,
		}, models.BucketPermanent)
		if err != nil {
			return err
		}

		if s.rewards.Referrer > 0 {
			if _, _, err := wallets.GetOrCreate(ctx, referrer.UserID, ""); err != nil {
				return err
			}
			if _, err := wallets.AddCredits(ctx, referrer.UserID, s.rewards.Referrer, models.ReasonReferralBonus, repository.Metadata{
				"redeemer_id": userID,
				"code":        normalized,
			}, models.BucketPermanent); err != nil {
				return err
			}
		}

		result = Result{
			RewardCredits:  s.rewards.Redeemer,
			ReferrerReward: s.rewards.Referrer,
			ReferrerID:     referrer.UserID,
			Balance:        balance,
		}
		return nil
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			s.metrics.IncInvite(appErr.Code)
			return nil, appErr
		}
		s.metrics.IncInvite("error")
		log.Errorf("[Invite] redeem for user %s failed: %v", userID, err)
		return nil, apperror.Internal("invite_redeem_failed", err)
	}

	s.metrics.IncInvite("redeemed")
	log.Infof("[Invite] user %s redeemed code of %s (+%d)", userID, result.ReferrerID, result.RewardCredits)
	return &result, nil
}
