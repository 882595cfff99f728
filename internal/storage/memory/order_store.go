package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

// OrderStore keeps orders in memory. UpdateStatus performs the status
// check-and-set under the store mutex, so concurrent transitions on the
// same order serialize and exactly one wins.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]models.Order)}
}

func (s *OrderStore) Insert(ctx context.Context, order models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return errs.Validationf("order %s already exists", order.ID)
	}
	s.orders[order.ID] = order
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, errs.ErrNotFound
	}
	return order, nil
}

func (s *OrderStore) ListByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Order
	for _, o := range s.orders {
		if o.Status == status {
			result = append(result, o)
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

func (s *OrderStore) ListByCreator(ctx context.Context, creatorID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Order
	for _, o := range s.orders {
		if o.CreatorID == creatorID {
			result = append(result, o)
		}
	}
	sortByCreatedAt(result)
	return result, nil
}

func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, apply func(*models.Order)) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, errs.ErrNotFound
	}
	if order.Status != from {
		return models.Order{}, &errs.InvalidStateError{Current: string(order.Status), Required: string(from)}
	}
	if apply != nil {
		apply(&order)
	}
	order.Status = to
	s.orders[id] = order
	return order, nil
}

func sortByCreatedAt(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

var _ interfaces.OrderStore = (*OrderStore)(nil)
