package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/escrow"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/ledger"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

const (
	defaultFiatCurrency = "INR"
	defaultFiatMethod   = "UPI"
)

// Service is the order state machine and the facade the front-end calls.
// Every transition goes through the order store's check-and-set, so a
// transition is applied at most once no matter how many concurrent commands
// target the same order.
type Service struct {
	store       interfaces.OrderStore
	engine      *ledger.Engine
	registry    *ledger.Registry
	coordinator *escrow.Coordinator
	currency    string
	precision   int32
	log         *zap.Logger
}

func NewService(
	store interfaces.OrderStore,
	engine *ledger.Engine,
	registry *ledger.Registry,
	coordinator *escrow.Coordinator,
	currency string,
	precision int32,
	log *zap.Logger,
) *Service {
	return &Service{
		store:       store,
		engine:      engine,
		registry:    registry,
		coordinator: coordinator,
		currency:    currency,
		precision:   precision,
		log:         log,
	}
}

// CreateOrder opens a new order for the creator, referencing the escrow
// master account for the traded currency. The creator's side of the ledger
// account pair is resolved immediately; the taker's side on Take.
func (s *Service) CreateOrder(ctx context.Context, creatorID string, side models.OrderSide, network models.Network, principal decimal.Decimal, fiatCurrency, fiatMethod string) (models.Order, error) {
	if creatorID == "" {
		return models.Order{}, errs.Validationf("creator id is required")
	}
	if side != models.SideBuy && side != models.SideSell {
		return models.Order{}, errs.Validationf("unsupported side %q", side)
	}
	if network != models.NetworkERC20 && network != models.NetworkTRC20 {
		return models.Order{}, errs.Validationf("unsupported network %q, use ERC20 or TRC20", network)
	}
	if principal.Cmp(decimal.Zero) <= 0 {
		return models.Order{}, errs.Validationf("principal amount must be positive, got %s", principal)
	}
	if fiatCurrency == "" {
		fiatCurrency = defaultFiatCurrency
	}
	if fiatMethod == "" {
		fiatMethod = defaultFiatMethod
	}

	escrowID, err := s.registry.Resolve(ctx, models.RoleSystemEscrow, s.currency)
	if err != nil {
		return models.Order{}, err
	}
	creatorAcc, err := s.engine.EnsureUserAccount(ctx, creatorID, s.currency)
	if err != nil {
		return models.Order{}, err
	}

	order := models.Order{
		ID:              uuid.NewString(),
		CreatorID:       creatorID,
		Side:            side,
		Network:         network,
		PrincipalAmount: principal.Round(s.precision),
		FiatCurrency:    fiatCurrency,
		FiatMethod:      fiatMethod,
		Status:          models.StatusOpen,
		EscrowAccountID: escrowID,
		CreatedAt:       time.Now().UTC(),
	}
	if side == models.SideSell {
		order.SellerAccountID = creatorAcc.AccountID
	} else {
		order.BuyerAccountID = creatorAcc.AccountID
	}

	if err := s.store.Insert(ctx, order); err != nil {
		return models.Order{}, err
	}
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("side", string(side)),
		zap.String("principal", order.PrincipalAmount.String()),
	)
	return order, nil
}

// Take matches an open order with a counterparty. Self-trading is not
// allowed.
func (s *Service) Take(ctx context.Context, orderID, actorID string) (models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.CreatorID == actorID {
		return models.Order{}, errs.ErrUnauthorized
	}

	actorAcc, err := s.engine.EnsureUserAccount(ctx, actorID, s.currency)
	if err != nil {
		return models.Order{}, err
	}

	return s.store.UpdateStatus(ctx, orderID, models.StatusOpen, models.StatusMatched, func(o *models.Order) {
		o.TakerID = actorID
		if o.Side == models.SideSell {
			o.BuyerAccountID = actorAcc.AccountID
		} else {
			o.SellerAccountID = actorAcc.AccountID
		}
	})
}

// Deposit moves the principal from the seller's account into escrow once
// the order is matched. Replays by reference, so calling it twice deposits
// once.
func (s *Service) Deposit(ctx context.Context, orderID, actorID string) (models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.StatusMatched {
		return models.Order{}, &errs.InvalidStateError{Current: string(order.Status), Required: string(models.StatusMatched)}
	}
	if order.SellerID() != actorID {
		return models.Order{}, errs.ErrUnauthorized
	}

	receipt, err := s.engine.Transfer(ctx, order.SellerAccountID, order.EscrowAccountID, order.PrincipalAmount, models.DepositReference(order.ID))
	if err != nil {
		return models.Order{}, err
	}
	return s.store.UpdateStatus(ctx, orderID, models.StatusMatched, models.StatusMatched, func(o *models.Order) {
		o.DepositTxRef = receipt.Reference
	})
}

// MarkPaid records the buyer's claim that fiat was sent.
func (s *Service) MarkPaid(ctx context.Context, orderID, actorID string) (models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.StatusMatched {
		return models.Order{}, &errs.InvalidStateError{Current: string(order.Status), Required: string(models.StatusMatched)}
	}
	if order.BuyerID() != actorID {
		return models.Order{}, errs.ErrUnauthorized
	}
	return s.store.UpdateStatus(ctx, orderID, models.StatusMatched, models.StatusPaid, nil)
}

// Release hands a PAID order to the release coordinator. A RELEASE_PENDING
// order is resumed instead, so a seller retrying after a partial release
// re-drives the saga rather than double-paying.
func (s *Service) Release(ctx context.Context, orderID, actorID string) (models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.StatusPaid && order.Status != models.StatusReleasePending {
		return models.Order{}, &errs.InvalidStateError{Current: string(order.Status), Required: string(models.StatusPaid)}
	}
	if order.SellerID() != actorID {
		return models.Order{}, errs.ErrUnauthorized
	}
	if order.Status == models.StatusReleasePending {
		return s.coordinator.Resume(ctx, orderID)
	}
	return s.coordinator.Release(ctx, orderID)
}

// Cancel withdraws an open order. Only the creator may cancel, and only
// before it is taken.
func (s *Service) Cancel(ctx context.Context, orderID, actorID string) (models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.CreatorID != actorID {
		return models.Order{}, errs.ErrUnauthorized
	}
	return s.store.UpdateStatus(ctx, orderID, models.StatusOpen, models.StatusCancelled, nil)
}

// Dispute freezes a non-terminal order for manual resolution. Either party
// may raise it.
func (s *Service) Dispute(ctx context.Context, orderID, actorID string) (models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.CreatorID != actorID && order.TakerID != actorID {
		return models.Order{}, errs.ErrUnauthorized
	}
	if !order.Status.Disputable() {
		return models.Order{}, &errs.InvalidStateError{Current: string(order.Status), Required: "OPEN, MATCHED or PAID"}
	}
	return s.store.UpdateStatus(ctx, orderID, order.Status, models.StatusDisputed, nil)
}

// Credit moves test funds from the funding account to a user, preserving
// conservation instead of minting.
func (s *Service) Credit(ctx context.Context, userID string, amount decimal.Decimal) (models.TransferReceipt, error) {
	if amount.Cmp(decimal.Zero) <= 0 {
		return models.TransferReceipt{}, errs.Validationf("credit amount must be positive, got %s", amount)
	}
	userAcc, err := s.engine.EnsureUserAccount(ctx, userID, s.currency)
	if err != nil {
		return models.TransferReceipt{}, err
	}
	fundingID, err := s.registry.Resolve(ctx, models.RoleSystemFunding, s.currency)
	if err != nil {
		return models.TransferReceipt{}, err
	}
	return s.engine.Transfer(ctx, fundingID, userAcc.AccountID, amount.Round(s.precision), "credit_"+uuid.NewString())
}

// GetBalance exposes ledger balances to the front-end.
func (s *Service) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, string, error) {
	return s.engine.GetBalance(ctx, accountID)
}

// ResolveSystemAccount exposes the registry to the front-end.
func (s *Service) ResolveSystemAccount(ctx context.Context, role models.AccountRole, currency string) (string, error) {
	return s.registry.Resolve(ctx, role, currency)
}

func (s *Service) Get(ctx context.Context, orderID string) (models.Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *Service) ListOpen(ctx context.Context) ([]models.Order, error) {
	return s.store.ListByStatus(ctx, models.StatusOpen)
}

func (s *Service) ListByCreator(ctx context.Context, creatorID string) ([]models.Order, error) {
	return s.store.ListByCreator(ctx, creatorID)
}
