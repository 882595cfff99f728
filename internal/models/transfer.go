package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferReceipt records one applied balance movement between two ledger
// accounts. Reference is the caller-assigned idempotency key: replaying a
// reference that was already applied returns the stored receipt with
// Replayed set instead of moving value a second time.
type TransferReceipt struct {
	Reference   string          `json:"reference"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Replayed    bool            `json:"replayed,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Release leg references, derived from the order id so that re-driving a
// half-completed release replays instead of double-paying.
func ReleaseReference(orderID string) string { return "release_" + orderID }
func FeeReference(orderID string) string     { return "fee_" + orderID }
func DepositReference(orderID string) string { return "deposit_" + orderID }
