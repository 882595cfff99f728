package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models/events"
)

// Engine moves value between two ledger accounts as one indivisible
// operation. It validates, serializes per account pair and replays by
// reference; the double mutation itself is delegated to the backend, which
// guarantees that either both legs are visible or neither is.
type Engine struct {
	backend   interfaces.LedgerBackend
	publisher interfaces.EventPublisher
	log       *zap.Logger

	muMap map[string]*sync.Mutex // per-account locks
	mapMu sync.Mutex             // protects muMap itself
}

func NewEngine(backend interfaces.LedgerBackend, publisher interfaces.EventPublisher, log *zap.Logger) *Engine {
	return &Engine{
		backend:   backend,
		publisher: publisher,
		log:       log,
		muMap:     make(map[string]*sync.Mutex),
	}
}

func (e *Engine) accountLock(accountID string) *sync.Mutex {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()

	if _, exists := e.muMap[accountID]; !exists {
		e.muMap[accountID] = &sync.Mutex{}
	}
	return e.muMap[accountID]
}

// Transfer atomically moves amount from sender to recipient under the
// caller-supplied reference. A reference that was already applied is a
// no-op returning the original receipt. Transfers on disjoint account
// pairs proceed in parallel; transfers sharing an account serialize, so
// the insufficient-funds decision is never based on a stale balance.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, reference string) (models.TransferReceipt, error) {
	if amount.Cmp(decimal.Zero) <= 0 {
		return models.TransferReceipt{}, errs.Validationf("transfer amount must be positive, got %s", amount)
	}
	if senderID == recipientID {
		return models.TransferReceipt{}, errs.Validationf("sender and recipient are the same account %s", senderID)
	}
	if reference == "" {
		return models.TransferReceipt{}, errs.Validationf("transfer reference is required")
	}

	if receipt, ok, err := e.backend.FindTransfer(ctx, reference); err != nil {
		return models.TransferReceipt{}, err
	} else if ok {
		receipt.Replayed = true
		return receipt, nil
	}

	senderMu := e.accountLock(senderID)
	recipientMu := e.accountLock(recipientID)

	// Lock in account-id order to avoid deadlocks.
	if senderID < recipientID {
		senderMu.Lock()
		recipientMu.Lock()
	} else {
		recipientMu.Lock()
		senderMu.Lock()
	}
	defer senderMu.Unlock()
	defer recipientMu.Unlock()

	sender, err := e.backend.GetAccount(ctx, senderID)
	if err != nil {
		return models.TransferReceipt{}, err
	}
	recipient, err := e.backend.GetAccount(ctx, recipientID)
	if err != nil {
		return models.TransferReceipt{}, err
	}
	if sender.Currency != recipient.Currency {
		return models.TransferReceipt{}, errs.Validationf("currency mismatch: %s holds %s, %s holds %s",
			senderID, sender.Currency, recipientID, recipient.Currency)
	}

	receipt, err := e.backend.ApplyTransfer(ctx, senderID, recipientID, amount, reference)
	if err != nil {
		return models.TransferReceipt{}, err
	}

	if !receipt.Replayed {
		e.publish(events.TopicTransferCompleted, events.TransferCompleted{
			Reference:   receipt.Reference,
			SenderID:    receipt.SenderID,
			RecipientID: receipt.RecipientID,
			Amount:      receipt.Amount,
			Currency:    receipt.Currency,
			OccurredAt:  time.Now().UTC(),
		})
		e.log.Info("transfer applied",
			zap.String("reference", receipt.Reference),
			zap.String("sender", senderID),
			zap.String("recipient", recipientID),
			zap.String("amount", amount.String()),
		)
	}
	return receipt, nil
}

// GetBalance returns the balance and currency of an account.
func (e *Engine) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, string, error) {
	acc, err := e.backend.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, "", err
	}
	return acc.Balance, acc.Currency, nil
}

// EnsureUserAccount lazily creates the ledger account for a user key.
func (e *Engine) EnsureUserAccount(ctx context.Context, ownerKey, currency string) (models.LedgerAccount, error) {
	return e.backend.EnsureAccount(ctx, models.UserAccountID(ownerKey), models.RoleUser, currency)
}

func (e *Engine) publish(topic string, event any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(topic, event); err != nil {
		e.log.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
