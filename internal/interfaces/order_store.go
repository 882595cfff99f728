package interfaces

import (
	"context"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

// OrderStore persists orders. UpdateStatus is the atomic check-and-set
// every transition goes through: it reads the current status, fails with
// *errs.InvalidStateError unless it equals from, applies the mutation and
// writes the new status as one operation. Concurrent transitions on one
// order therefore produce exactly one winner.
type OrderStore interface {
	Insert(ctx context.Context, order models.Order) error
	Get(ctx context.Context, id string) (models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
	ListByCreator(ctx context.Context, creatorID string) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, apply func(*models.Order)) (models.Order, error)
}
