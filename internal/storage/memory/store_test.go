package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

func TestEnsureAccountIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, err := store.EnsureAccount(ctx, "USER_alice", models.RoleUser, "USDT")
	require.NoError(t, err)
	second, err := store.EnsureAccount(ctx, "USER_alice", models.RoleUser, "USDT")
	require.NoError(t, err)

	require.Equal(t, first.AccountID, second.AccountID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, first.Balance.IsZero())
	require.False(t, first.IsSystem)
}

func TestFundingAccountSeeded(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	acc, err := store.EnsureAccount(ctx, models.SystemAccountID(models.RoleSystemFunding, "USDT"), models.RoleSystemFunding, "USDT")
	require.NoError(t, err)
	require.True(t, acc.IsSystem)
	require.True(t, acc.Balance.Equal(fundingSeedBalance))
}

func TestApplyTransferMovesValue(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedPair(t, store)

	receipt, err := store.ApplyTransfer(ctx, "USER_a", "USER_b", decimal.NewFromInt(30), "ref-1")
	require.NoError(t, err)
	require.False(t, receipt.Replayed)
	require.Equal(t, "USDT", receipt.Currency)

	a, _ := store.GetAccount(ctx, "USER_a")
	b, _ := store.GetAccount(ctx, "USER_b")
	require.True(t, a.Balance.Equal(decimal.NewFromInt(70)), "sender balance %s", a.Balance)
	require.True(t, b.Balance.Equal(decimal.NewFromInt(30)), "recipient balance %s", b.Balance)
}

func TestApplyTransferReplaysByReference(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedPair(t, store)

	first, err := store.ApplyTransfer(ctx, "USER_a", "USER_b", decimal.NewFromInt(30), "ref-1")
	require.NoError(t, err)

	replay, err := store.ApplyTransfer(ctx, "USER_a", "USER_b", decimal.NewFromInt(30), "ref-1")
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, first.Reference, replay.Reference)

	a, _ := store.GetAccount(ctx, "USER_a")
	require.True(t, a.Balance.Equal(decimal.NewFromInt(70)), "replay must not move value again, balance %s", a.Balance)
}

func TestApplyTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	seedPair(t, store)

	_, err := store.ApplyTransfer(ctx, "USER_a", "USER_b", decimal.NewFromInt(101), "ref-1")
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	a, _ := store.GetAccount(ctx, "USER_a")
	b, _ := store.GetAccount(ctx, "USER_b")
	require.True(t, a.Balance.Equal(decimal.NewFromInt(100)), "sender mutated on failure")
	require.True(t, b.Balance.IsZero(), "recipient mutated on failure")

	_, ok, err := store.FindTransfer(ctx, "ref-1")
	require.NoError(t, err)
	require.False(t, ok, "failed transfer must not record a receipt")
}

func TestApplyTransferUnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.ApplyTransfer(ctx, "USER_missing", "USER_also_missing", decimal.NewFromInt(1), "ref-1")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

// seedPair creates USER_a with 100 USDT (via the funding account, so the
// store total stays conserved) and an empty USER_b.
func seedPair(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	fundingID := models.SystemAccountID(models.RoleSystemFunding, "USDT")
	_, err := store.EnsureAccount(ctx, fundingID, models.RoleSystemFunding, "USDT")
	require.NoError(t, err)
	_, err = store.EnsureAccount(ctx, "USER_a", models.RoleUser, "USDT")
	require.NoError(t, err)
	_, err = store.EnsureAccount(ctx, "USER_b", models.RoleUser, "USDT")
	require.NoError(t, err)
	_, err = store.ApplyTransfer(ctx, fundingID, "USER_a", decimal.NewFromInt(100), "seed-a")
	require.NoError(t, err)
}
