package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/storage/memory"
)

// flakyBackend fails the next failures calls to ApplyTransfer before
// delegating to the wrapped backend.
type flakyBackend struct {
	interfaces.LedgerBackend
	failures int
	failWith error
	calls    int
}

func (f *flakyBackend) ApplyTransfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, reference string) (models.TransferReceipt, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return models.TransferReceipt{}, f.failWith
	}
	return f.LedgerBackend.ApplyTransfer(ctx, senderID, recipientID, amount, reference)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Timeout:         time.Second,
	}
}

func seedFlakyPair(t *testing.T, store *memory.Store) (string, string) {
	t.Helper()
	ctx := context.Background()

	fundingID := models.SystemAccountID(models.RoleSystemFunding, "USDT")
	_, err := store.EnsureAccount(ctx, fundingID, models.RoleSystemFunding, "USDT")
	require.NoError(t, err)
	a, err := store.EnsureAccount(ctx, "USER_a", models.RoleUser, "USDT")
	require.NoError(t, err)
	b, err := store.EnsureAccount(ctx, "USER_b", models.RoleUser, "USDT")
	require.NoError(t, err)
	_, err = store.ApplyTransfer(ctx, fundingID, a.AccountID, decimal.NewFromInt(100), "seed-a")
	require.NoError(t, err)
	return a.AccountID, b.AccountID
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	store := memory.NewStore()
	a, b := seedFlakyPair(t, store)

	flaky := &flakyBackend{
		LedgerBackend: store,
		failures:      2,
		failWith:      fmt.Errorf("%w: connection reset", errs.ErrExternalService),
	}
	backend := NewRetryingBackend(flaky, fastPolicy(), zap.NewNop())

	receipt, err := backend.ApplyTransfer(context.Background(), a, b, decimal.NewFromInt(10), "r1")
	require.NoError(t, err)
	require.Equal(t, "r1", receipt.Reference)
	require.Equal(t, 3, flaky.calls)
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	store := memory.NewStore()
	a, b := seedFlakyPair(t, store)

	flaky := &flakyBackend{
		LedgerBackend: store,
		failures:      100,
		failWith:      fmt.Errorf("%w: still down", errs.ErrExternalService),
	}
	backend := NewRetryingBackend(flaky, fastPolicy(), zap.NewNop())

	_, err := backend.ApplyTransfer(context.Background(), a, b, decimal.NewFromInt(10), "r1")
	require.ErrorIs(t, err, errs.ErrExternalService)
	require.Equal(t, 4, flaky.calls, "initial attempt plus MaxRetries")
}

func TestRetryDoesNotRetryNonTransient(t *testing.T) {
	store := memory.NewStore()
	a, b := seedFlakyPair(t, store)

	flaky := &flakyBackend{
		LedgerBackend: store,
		failures:      1,
		failWith:      errs.ErrInsufficientFunds,
	}
	backend := NewRetryingBackend(flaky, fastPolicy(), zap.NewNop())

	_, err := backend.ApplyTransfer(context.Background(), a, b, decimal.NewFromInt(10), "r1")
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
	require.Equal(t, 1, flaky.calls, "insufficient funds must not be retried")
}
