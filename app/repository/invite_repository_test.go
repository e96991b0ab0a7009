package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestInviteRepositoryRedemptionIsUniquePerRedeemer(t *testing.T) {
	db := testutil.NewDB(t)
	invites := repository.NewInviteRepository(db)
	ctx := context.Background()

	redeemed, err := invites.HasRedeemed(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, redeemed)

	require.NoError(t, invites.CreateRedemption(ctx, &models.InviteRedemption{
		RedeemerID: "bob", ReferrerID: "alice", Code: "ABCDEFGH", RewardCredits: 200,
	}))
	redeemed, err = invites.HasRedeemed(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, redeemed)

	err = invites.CreateRedemption(ctx, &models.InviteRedemption{
		RedeemerID: "bob", ReferrerID: "carol", Code: "ZZZZZZZZ",
	})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestInviteRepositoryMarkProfileInvited(t *testing.T) {
	db := testutil.NewDB(t)
	wallets := repository.NewWalletRepository(db)
	invites := repository.NewInviteRepository(db)
	ctx := context.Background()

	_, _, err := wallets.GetOrCreate(ctx, "bob", "")
	require.NoError(t, err)

	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, invites.MarkProfileInvited(ctx, "bob", "alice", at))

	p, err := invites.LockProfile(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, p.InvitedBy)
	assert.Equal(t, "alice", *p.InvitedBy)
	assert.True(t, p.HasRedeemedInvite())
}

func TestOptionRepositorySeedsOnce(t *testing.T) {
	db := testutil.NewDB(t)
	options := repository.NewOptionRepository(db)
	ctx := context.Background()

	entries, err := options.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, len(models.DefaultOptionCatalog()))

	require.NoError(t, options.SeedDefaults(ctx))
	entries, err = options.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, len(models.DefaultOptionCatalog()))
	assert.Equal(t, models.OptionCategoryRole, entries[0].Category)
}

func TestGenerationEventRepository(t *testing.T) {
	db := testutil.NewDB(t)
	events := repository.NewGenerationEventRepository(db)
	ctx := context.Background()

	require.NoError(t, events.Create(ctx, &models.GenerationEvent{
		UserID: "u", RequestID: "req-1", MessageHash: "abc", Status: models.GenerationStatusSucceeded,
	}))
	count, err := events.CountByUserSince(ctx, "u", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
