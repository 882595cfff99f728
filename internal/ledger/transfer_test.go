package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/events"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/storage/memory"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewEngine(store, events.NopPublisher{}, zap.NewNop()), store
}

func seedUser(t *testing.T, engine *Engine, store *memory.Store, user string, amount int64) string {
	t.Helper()
	ctx := context.Background()

	fundingID := models.SystemAccountID(models.RoleSystemFunding, "USDT")
	_, err := store.EnsureAccount(ctx, fundingID, models.RoleSystemFunding, "USDT")
	require.NoError(t, err)
	acc, err := engine.EnsureUserAccount(ctx, user, "USDT")
	require.NoError(t, err)
	if amount > 0 {
		_, err = engine.Transfer(ctx, fundingID, acc.AccountID, decimal.NewFromInt(amount), "seed_"+user)
		require.NoError(t, err)
	}
	return acc.AccountID
}

func TestTransferValidation(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	a := seedUser(t, engine, store, "a", 100)
	b := seedUser(t, engine, store, "b", 0)

	tests := []struct {
		name      string
		sender    string
		recipient string
		amount    decimal.Decimal
		reference string
	}{
		{"zero amount", a, b, decimal.Zero, "r1"},
		{"negative amount", a, b, decimal.NewFromInt(-5), "r2"},
		{"same account", a, a, decimal.NewFromInt(5), "r3"},
		{"empty reference", a, b, decimal.NewFromInt(5), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Transfer(ctx, tc.sender, tc.recipient, tc.amount, tc.reference)
			require.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestTransferCurrencyMismatch(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	a := seedUser(t, engine, store, "a", 100)

	eur, err := store.EnsureAccount(ctx, "USER_eur", models.RoleUser, "EUR")
	require.NoError(t, err)

	_, err = engine.Transfer(ctx, a, eur.AccountID, decimal.NewFromInt(5), "r1")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestTransferInsufficientFundsLeavesBalances(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	a := seedUser(t, engine, store, "a", 50)
	b := seedUser(t, engine, store, "b", 0)

	_, err := engine.Transfer(ctx, a, b, decimal.NewFromInt(51), "r1")
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	balA, _, err := engine.GetBalance(ctx, a)
	require.NoError(t, err)
	balB, _, err := engine.GetBalance(ctx, b)
	require.NoError(t, err)
	require.True(t, balA.Equal(decimal.NewFromInt(50)))
	require.True(t, balB.IsZero())
}

func TestTransferIdempotentReplay(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	a := seedUser(t, engine, store, "a", 100)
	b := seedUser(t, engine, store, "b", 0)

	first, err := engine.Transfer(ctx, a, b, decimal.NewFromInt(40), "release_o1")
	require.NoError(t, err)
	require.False(t, first.Replayed)

	replay, err := engine.Transfer(ctx, a, b, decimal.NewFromInt(40), "release_o1")
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, first.Reference, replay.Reference)

	balA, _, err := engine.GetBalance(ctx, a)
	require.NoError(t, err)
	require.True(t, balA.Equal(decimal.NewFromInt(60)), "replay moved value again: %s", balA)
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, _, err := engine.GetBalance(context.Background(), "USER_nobody")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

// Conservation and non-negativity under many concurrent transfers across a
// shared set of accounts.
func TestConcurrentTransfersConserveValue(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	const users = 4
	ids := make([]string, users)
	for i := range ids {
		ids[i] = seedUser(t, engine, store, fmt.Sprintf("u%d", i), 100)
	}
	before := store.TotalBalance()

	const rounds = 25
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		for j := 0; j < users; j++ {
			if i == j {
				continue
			}
			wg.Add(1)
			go func(i, j int) {
				defer wg.Done()
				for r := 0; r < rounds; r++ {
					ref := fmt.Sprintf("mix_%d_%d_%d", i, j, r)
					_, err := engine.Transfer(ctx, ids[i], ids[j], decimal.NewFromInt(3), ref)
					if err != nil {
						// Insufficient funds is the only
						// acceptable failure here.
						require.ErrorIs(t, err, errs.ErrInsufficientFunds)
					}
				}
			}(i, j)
		}
	}
	wg.Wait()

	require.True(t, store.TotalBalance().Equal(before), "total balance drifted: %s -> %s", before, store.TotalBalance())
	for _, id := range ids {
		bal, _, err := engine.GetBalance(ctx, id)
		require.NoError(t, err)
		require.False(t, bal.IsNegative(), "account %s went negative: %s", id, bal)
	}
}
