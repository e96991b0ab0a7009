package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Metadata is copied into the JSON metadata column of ledger entries.
type Metadata map[string]interface{}

// WalletRepository owns every balance mutation. Each mutation locks the
// wallet row and appends its ledger entry in the same transaction.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID, email string) (*models.Wallet, *models.Profile, error)
	GetByUserID(ctx context.Context, userID string) (*models.Wallet, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error)
	ConsumeCredits(ctx context.Context, userID string, amount int64, reason string, metadata Metadata) (models.Charge, error)
	AddCredits(ctx context.Context, userID string, amount int64, reason string, metadata Metadata, bucket string) (models.Balance, error)
	RefundCharge(ctx context.Context, userID string, charge models.Charge, reason string, metadata Metadata) (models.Balance, error)
	RefreshTimedCredits(ctx context.Context, userID string, now time.Time) (bool, error)
	SetTier(ctx context.Context, userID string, tier entitlements.Tier, status string, expiresAt *time.Time) (*models.Wallet, error)
	ListStaleUserIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	WithTx(tx *gorm.DB) WalletRepository
}

// LedgerRepository reads the append-only credit ledger.
type LedgerRepository interface {
	List(ctx context.Context, userID string, before *time.Time, limit int) ([]models.CreditLedgerEntry, error)
	SumByUser(ctx context.Context, userID string) (int64, error)
	EachBetween(ctx context.Context, from, to time.Time, batchSize int, fn func([]models.CreditLedgerEntry) error) error
}

// InviteRepository persists invite redemptions.
type InviteRepository interface {
	LockProfile(ctx context.Context, userID string) (*models.Profile, error)
	HasRedeemed(ctx context.Context, redeemerID string) (bool, error)
	CreateRedemption(ctx context.Context, redemption *models.InviteRedemption) error
	MarkProfileInvited(ctx context.Context, userID, referrerID string, at time.Time) error
	WithTx(tx *gorm.DB) InviteRepository
}

// GenerationEventRepository stores the generation audit trail.
type GenerationEventRepository interface {
	Create(ctx context.Context, event *models.GenerationEvent) error
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// OptionRepository serves the reply composer option catalog.
type OptionRepository interface {
	ListActive(ctx context.Context) ([]models.OptionCatalogEntry, error)
	SeedDefaults(ctx context.Context) error
}

// Repositories holds all repository instances
type Repositories struct {
	Wallet     WalletRepository
	Ledger     LedgerRepository
	Invite     InviteRepository
	Generation GenerationEventRepository
	Option     OptionRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Wallet:     NewWalletRepository(db),
		Ledger:     NewLedgerRepository(db),
		Invite:     NewInviteRepository(db),
		Generation: NewGenerationEventRepository(db),
		Option:     NewOptionRepository(db),
	}
}
