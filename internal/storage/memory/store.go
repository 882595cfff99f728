package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

// fundingSeedBalance is the balance the simulated funding account starts
// with, so test credits move value out of it instead of minting.
var fundingSeedBalance = decimal.NewFromInt(1_000_000_000)

// Store is the simulated in-process ledger backend. A single mutex guards
// accounts and applied transfers, which makes every ApplyTransfer an atomic
// conditional update: the insufficient-funds check and both balance writes
// happen under one critical section, so no caller ever observes a negative
// or half-applied balance.
type Store struct {
	mu        sync.Mutex
	accounts  map[string]models.LedgerAccount
	transfers map[string]models.TransferReceipt
}

func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]models.LedgerAccount),
		transfers: make(map[string]models.TransferReceipt),
	}
}

func (s *Store) Kind() models.BackendKind { return models.BackendSimulated }

func (s *Store) EnsureAccount(ctx context.Context, accountID string, role models.AccountRole, currency string) (models.LedgerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[accountID]; ok {
		return acc, nil
	}

	balance := decimal.Zero
	if role == models.RoleSystemFunding {
		balance = fundingSeedBalance
	}
	acc := models.LedgerAccount{
		AccountID: accountID,
		Role:      role,
		Backend:   models.BackendSimulated,
		Currency:  currency,
		Balance:   balance,
		IsSystem:  role != models.RoleUser,
		CreatedAt: time.Now().UTC(),
	}
	s.accounts[accountID] = acc
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.LedgerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return models.LedgerAccount{}, errs.ErrNotFound
	}
	return acc, nil
}

func (s *Store) FindByRole(ctx context.Context, role models.AccountRole, currency string) (models.LedgerAccount, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		if acc.Role == role && acc.Currency == currency {
			return acc, true, nil
		}
	}
	return models.LedgerAccount{}, false, nil
}

func (s *Store) ApplyTransfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, reference string) (models.TransferReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reference dedup: a replay returns the stored receipt untouched.
	if receipt, ok := s.transfers[reference]; ok {
		receipt.Replayed = true
		return receipt, nil
	}

	sender, ok := s.accounts[senderID]
	if !ok {
		return models.TransferReceipt{}, errs.ErrNotFound
	}
	recipient, ok := s.accounts[recipientID]
	if !ok {
		return models.TransferReceipt{}, errs.ErrNotFound
	}
	if sender.Balance.Cmp(amount) < 0 {
		return models.TransferReceipt{}, errs.ErrInsufficientFunds
	}

	sender.Balance = sender.Balance.Sub(amount)
	recipient.Balance = recipient.Balance.Add(amount)
	s.accounts[senderID] = sender
	s.accounts[recipientID] = recipient

	receipt := models.TransferReceipt{
		Reference:   reference,
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		Currency:    sender.Currency,
		CreatedAt:   time.Now().UTC(),
	}
	s.transfers[reference] = receipt
	return receipt, nil
}

func (s *Store) FindTransfer(ctx context.Context, reference string) (models.TransferReceipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.transfers[reference]
	return receipt, ok, nil
}

// TotalBalance sums every account balance, used by conservation checks.
func (s *Store) TotalBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, acc := range s.accounts {
		total = total.Add(acc.Balance)
	}
	return total
}

var _ interfaces.LedgerBackend = (*Store)(nil)
