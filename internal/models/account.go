package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountRole identifies who an account belongs to in the escrow flow.
type AccountRole string

const (
	RoleUser          AccountRole = "USER"
	RoleSystemEscrow  AccountRole = "SYSTEM_ESCROW"
	RoleSystemFee     AccountRole = "SYSTEM_FEE"
	RoleSystemFunding AccountRole = "SYSTEM_FUNDING"
)

// BackendKind selects which ledger implementation owns an account.
type BackendKind string

const (
	BackendSimulated BackendKind = "SIMULATED"
	BackendPostgres  BackendKind = "POSTGRES"
)

// LedgerAccount is one holder of value. Balances are mutated only through
// the transfer engine; there is no direct setter anywhere in this codebase.
type LedgerAccount struct {
	AccountID string          `json:"account_id"`
	Role      AccountRole     `json:"role"`
	Backend   BackendKind     `json:"backend"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	IsSystem  bool            `json:"is_system"`
	CreatedAt time.Time       `json:"created_at"`
}

// UserAccountID derives the ledger account id for a user key.
func UserAccountID(ownerKey string) string {
	return "USER_" + ownerKey
}

// SystemAccountID derives the ledger account id for a system role, one per
// role/currency pair.
func SystemAccountID(role AccountRole, currency string) string {
	return fmt.Sprintf("VA_%s_%s", role, currency)
}
