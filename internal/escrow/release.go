package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/ledger"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models/events"
)

var oneHundred = decimal.NewFromInt(100)

// Coordinator drives the two-leg release saga: escrow→buyer then
// escrow→fee, with the order marked RELEASED only after both legs applied.
// Winning the PAID→RELEASE_PENDING check-and-set is the exactly-once gate;
// a half-completed saga stays in RELEASE_PENDING and is re-driven by
// Resume, where the per-leg references turn already-applied legs into
// replays.
type Coordinator struct {
	engine    *ledger.Engine
	registry  *ledger.Registry
	orders    interfaces.OrderStore
	publisher interfaces.EventPublisher
	log       *zap.Logger

	feePercent decimal.Decimal
	precision  int32
	currency   string
}

func NewCoordinator(
	engine *ledger.Engine,
	registry *ledger.Registry,
	orders interfaces.OrderStore,
	publisher interfaces.EventPublisher,
	feePercent decimal.Decimal,
	precision int32,
	currency string,
	log *zap.Logger,
) *Coordinator {
	return &Coordinator{
		engine:     engine,
		registry:   registry,
		orders:     orders,
		publisher:  publisher,
		feePercent: feePercent,
		precision:  precision,
		currency:   currency,
		log:        log,
	}
}

// FeeSplit computes the two leg amounts for a principal. The fee is rounded
// to the currency precision and the send amount is the exact remainder, so
// the legs always reconcile to the principal.
func (c *Coordinator) FeeSplit(principal decimal.Decimal) (send, fee decimal.Decimal, err error) {
	fee = principal.Mul(c.feePercent).Div(oneHundred).Round(c.precision)
	send = principal.Sub(fee)
	if send.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, decimal.Zero, &errs.ConfigurationError{
			Reason: fmt.Sprintf("fee percent %s leaves a non-positive send amount for principal %s", c.feePercent, principal),
		}
	}
	return send, fee, nil
}

// Release runs the saga for an order whose PAID→RELEASED guard has already
// been validated by the state machine. Exactly one of N concurrent calls
// wins the status check-and-set; the rest observe InvalidState and touch no
// balance.
func (c *Coordinator) Release(ctx context.Context, orderID string) (models.Order, error) {
	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	send, fee, err := c.FeeSplit(order.PrincipalAmount)
	if err != nil {
		return models.Order{}, err
	}

	order, err = c.orders.UpdateStatus(ctx, orderID, models.StatusPaid, models.StatusReleasePending, nil)
	if err != nil {
		return models.Order{}, err
	}
	return c.runLegs(ctx, order, send, fee)
}

// Resume re-drives a release left in RELEASE_PENDING by a crash or a
// failed fee leg. Safe to call repeatedly: applied legs replay as no-ops.
func (c *Coordinator) Resume(ctx context.Context, orderID string) (models.Order, error) {
	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != models.StatusReleasePending {
		return models.Order{}, &errs.InvalidStateError{
			Current:  string(order.Status),
			Required: string(models.StatusReleasePending),
		}
	}
	send, fee, err := c.FeeSplit(order.PrincipalAmount)
	if err != nil {
		return models.Order{}, err
	}
	return c.runLegs(ctx, order, send, fee)
}

func (c *Coordinator) runLegs(ctx context.Context, order models.Order, send, fee decimal.Decimal) (models.Order, error) {
	feeAccountID, err := c.registry.Resolve(ctx, models.RoleSystemFee, c.currency)
	if err != nil {
		return models.Order{}, err
	}

	buyerLeg, err := c.engine.Transfer(ctx, order.EscrowAccountID, order.BuyerAccountID, send, models.ReleaseReference(order.ID))
	if err != nil {
		// Nothing moved; the order stays RELEASE_PENDING and the
		// seller can retry.
		c.log.Error("release buyer leg failed",
			zap.String("order_id", order.ID), zap.Error(err))
		return models.Order{}, err
	}

	feeLeg, err := c.engine.Transfer(ctx, order.EscrowAccountID, feeAccountID, fee, models.FeeReference(order.ID))
	if err != nil {
		c.log.Error("release fee leg failed after buyer leg applied",
			zap.String("order_id", order.ID),
			zap.String("release_tx_ref", buyerLeg.Reference),
			zap.Error(err))
		return models.Order{}, &errs.PartialReleaseError{
			OrderID:      order.ID,
			ReleaseTxRef: buyerLeg.Reference,
			Err:          err,
		}
	}

	released, err := c.orders.UpdateStatus(ctx, order.ID, models.StatusReleasePending, models.StatusReleased, func(o *models.Order) {
		o.ReleaseTxRef = buyerLeg.Reference
		o.FeeTxRef = feeLeg.Reference
	})
	if err != nil {
		return models.Order{}, err
	}

	if c.publisher != nil {
		evt := events.OrderReleased{
			OrderID:         released.ID,
			PrincipalAmount: released.PrincipalAmount,
			SendAmount:      send,
			FeeAmount:       fee,
			ReleaseTxRef:    released.ReleaseTxRef,
			FeeTxRef:        released.FeeTxRef,
			OccurredAt:      time.Now().UTC(),
		}
		if err := c.publisher.Publish(events.TopicOrderReleased, evt); err != nil {
			c.log.Warn("order released event publish failed",
				zap.String("order_id", released.ID), zap.Error(err))
		}
	}
	c.log.Info("order released",
		zap.String("order_id", released.ID),
		zap.String("send_amount", send.String()),
		zap.String("fee_amount", fee.String()),
	)
	return released, nil
}
