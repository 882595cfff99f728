package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

func testOrder(id string) models.Order {
	return models.Order{
		ID:              id,
		CreatorID:       "alice",
		Side:            models.SideSell,
		Network:         models.NetworkERC20,
		PrincipalAmount: decimal.NewFromInt(100),
		FiatCurrency:    "INR",
		FiatMethod:      "UPI",
		Status:          models.StatusOpen,
		EscrowAccountID: "VA_SYSTEM_ESCROW_USDT",
		CreatedAt:       time.Now().UTC(),
	}
}

func TestUpdateStatusChecksCurrent(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()
	require.NoError(t, store.Insert(ctx, testOrder("o1")))

	_, err := store.UpdateStatus(ctx, "o1", models.StatusPaid, models.StatusReleased, nil)
	var invalid *errs.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, string(models.StatusOpen), invalid.Current)
	require.Equal(t, string(models.StatusPaid), invalid.Required)

	got, err := store.Get(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, got.Status, "failed transition must leave status unchanged")
}

func TestUpdateStatusAppliesMutation(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()
	require.NoError(t, store.Insert(ctx, testOrder("o1")))

	updated, err := store.UpdateStatus(ctx, "o1", models.StatusOpen, models.StatusMatched, func(o *models.Order) {
		o.TakerID = "bob"
		o.BuyerAccountID = "USER_bob"
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusMatched, updated.Status)
	require.Equal(t, "bob", updated.TakerID)
	require.Equal(t, "USER_bob", updated.BuyerAccountID)
}

func TestUpdateStatusExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()
	order := testOrder("o1")
	order.Status = models.StatusPaid
	require.NoError(t, store.Insert(ctx, order))

	const callers = 16
	var wg sync.WaitGroup
	winners := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateStatus(ctx, "o1", models.StatusPaid, models.StatusReleasePending, nil)
			if err == nil {
				winners <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(winners)

	var count int
	for range winners {
		count++
	}
	require.Equal(t, 1, count, "exactly one concurrent check-and-set must win")
}

func TestInsertDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()
	require.NoError(t, store.Insert(ctx, testOrder("o1")))
	require.ErrorIs(t, store.Insert(ctx, testOrder("o1")), errs.ErrValidation)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()

	open := testOrder("o1")
	matched := testOrder("o2")
	matched.Status = models.StatusMatched
	other := testOrder("o3")
	other.CreatorID = "carol"
	require.NoError(t, store.Insert(ctx, open))
	require.NoError(t, store.Insert(ctx, matched))
	require.NoError(t, store.Insert(ctx, other))

	byStatus, err := store.ListByStatus(ctx, models.StatusOpen)
	require.NoError(t, err)
	require.Len(t, byStatus, 2)

	byCreator, err := store.ListByCreator(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	require.Equal(t, "o3", byCreator[0].ID)
}
