package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type Network string

const (
	NetworkERC20 Network = "ERC20"
	NetworkTRC20 Network = "TRC20"
)

type OrderStatus string

const (
	StatusOpen           OrderStatus = "OPEN"
	StatusMatched        OrderStatus = "MATCHED"
	StatusPaid           OrderStatus = "PAID"
	StatusReleasePending OrderStatus = "RELEASE_PENDING"
	StatusReleased       OrderStatus = "RELEASED"
	StatusCancelled      OrderStatus = "CANCELLED"
	StatusDisputed       OrderStatus = "DISPUTED"
)

// Terminal reports whether no further transition is accepted from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusReleased || s == StatusCancelled
}

// Disputable reports whether a party may still raise a dispute from s.
// RELEASE_PENDING is excluded: an in-flight release must be driven to a
// terminal outcome, not forked into DISPUTED.
func (s OrderStatus) Disputable() bool {
	return s == StatusOpen || s == StatusMatched || s == StatusPaid
}

// Order is one trade between a creator and a taker. The principal sits in
// the escrow account between deposit and release.
type Order struct {
	ID              string          `json:"id"`
	CreatorID       string          `json:"creator_id"`
	TakerID         string          `json:"taker_id,omitempty"`
	Side            OrderSide       `json:"side"`
	Network         Network         `json:"network"`
	PrincipalAmount decimal.Decimal `json:"principal_amount"`
	FiatCurrency    string          `json:"fiat_currency"`
	FiatMethod      string          `json:"fiat_method"`
	Status          OrderStatus     `json:"status"`
	EscrowAccountID string          `json:"escrow_account_id"`
	BuyerAccountID  string          `json:"buyer_account_id,omitempty"`
	SellerAccountID string          `json:"seller_account_id,omitempty"`
	DepositTxRef    string          `json:"deposit_tx_ref,omitempty"`
	ReleaseTxRef    string          `json:"release_tx_ref,omitempty"`
	FeeTxRef        string          `json:"fee_tx_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// BuyerID resolves the buyer from side and the creator/taker pair: for a
// SELL order the creator is the seller and the taker is the buyer, and
// vice-versa for BUY. Empty until the order is taken when the buyer is the
// taker.
func (o Order) BuyerID() string {
	if o.Side == SideSell {
		return o.TakerID
	}
	return o.CreatorID
}

// SellerID is the counterpart of BuyerID.
func (o Order) SellerID() string {
	if o.Side == SideSell {
		return o.CreatorID
	}
	return o.TakerID
}
