package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicTransferCompleted = "transfer_completed"
	TopicOrderReleased     = "order_released"
)

type TransferCompleted struct {
	Reference   string          `json:"reference"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

type OrderReleased struct {
	OrderID         string          `json:"order_id"`
	PrincipalAmount decimal.Decimal `json:"principal_amount"`
	SendAmount      decimal.Decimal `json:"send_amount"`
	FeeAmount       decimal.Decimal `json:"fee_amount"`
	ReleaseTxRef    string          `json:"release_tx_ref"`
	FeeTxRef        string          `json:"fee_tx_ref"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
