package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

// LedgerBackend is the storage contract for ledger accounts and balance
// movements. Two implementations exist: the simulated in-process store and
// the Postgres-backed provider store. Balance mutation happens only through
// ApplyTransfer, which must be atomic: either both legs of the pair are
// visible or neither is, and a reference that was already applied must
// return the original receipt instead of applying again.
type LedgerBackend interface {
	Kind() models.BackendKind
	// EnsureAccount gets or lazily creates the account with the given id.
	// Idempotent: a second call with the same id returns the same account.
	EnsureAccount(ctx context.Context, accountID string, role models.AccountRole, currency string) (models.LedgerAccount, error)
	GetAccount(ctx context.Context, accountID string) (models.LedgerAccount, error)
	FindByRole(ctx context.Context, role models.AccountRole, currency string) (models.LedgerAccount, bool, error)
	ApplyTransfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, reference string) (models.TransferReceipt, error)
	FindTransfer(ctx context.Context, reference string) (models.TransferReceipt, bool, error)
}
