package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

var systemRoles = []models.AccountRole{
	models.RoleSystemEscrow,
	models.RoleSystemFee,
	models.RoleSystemFunding,
}

// Registry resolves well-known roles (escrow master, fee collector,
// funding) to concrete account ids on the active backend.
type Registry struct {
	backend interfaces.LedgerBackend
	log     *zap.Logger
}

func NewRegistry(backend interfaces.LedgerBackend, log *zap.Logger) *Registry {
	return &Registry{backend: backend, log: log}
}

// Resolve returns the account id provisioned for role/currency on the
// active backend. A missing account is a configuration error requiring an
// out-of-band bootstrap, not a retryable condition.
func (r *Registry) Resolve(ctx context.Context, role models.AccountRole, currency string) (string, error) {
	acc, ok, err := r.backend.FindByRole(ctx, role, currency)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s/%s on %s backend", errs.ErrNotInitialized, role, currency, r.backend.Kind())
	}
	return acc.AccountID, nil
}

// Bootstrap provisions the escrow, fee and funding accounts for a
// currency. Idempotent: existing accounts are left untouched.
func (r *Registry) Bootstrap(ctx context.Context, currency string) error {
	for _, role := range systemRoles {
		acc, err := r.backend.EnsureAccount(ctx, models.SystemAccountID(role, currency), role, currency)
		if err != nil {
			return fmt.Errorf("bootstrap %s/%s: %w", role, currency, err)
		}
		r.log.Info("system account ready",
			zap.String("role", string(role)),
			zap.String("account_id", acc.AccountID),
			zap.String("currency", currency),
		)
	}
	return nil
}
