package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

// Store is the Postgres-backed ledger, used when the engine fronts an
// external ledger provider. Atomicity comes from SQL transactions plus a
// conditional debit (WHERE balance >= amount), and reference dedup from the
// primary key on transfers.reference.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Kind() models.BackendKind { return models.BackendPostgres }

// EnsureSchema creates the ledger tables when missing. Called once at
// startup; safe to re-run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		role       TEXT NOT NULL,
		backend    TEXT NOT NULL,
		currency   TEXT NOT NULL,
		balance    NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
		is_system  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transfers (
		reference    TEXT PRIMARY KEY,
		sender_id    TEXT NOT NULL REFERENCES accounts(account_id),
		recipient_id TEXT NOT NULL REFERENCES accounts(account_id),
		amount       NUMERIC NOT NULL,
		currency     TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	);`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return wrapDB(err)
	}
	return nil
}

func (s *Store) EnsureAccount(ctx context.Context, accountID string, role models.AccountRole, currency string) (models.LedgerAccount, error) {
	const insert = `INSERT INTO accounts (account_id, role, backend, currency, balance, is_system, created_at)
	VALUES ($1, $2, $3, $4, 0, $5, $6)
	ON CONFLICT (account_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, insert, accountID, role, models.BackendPostgres, currency, role != models.RoleUser, time.Now().UTC())
	if err != nil {
		return models.LedgerAccount{}, wrapDB(err)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (models.LedgerAccount, error) {
	const query = `SELECT account_id, role, backend, currency, balance, is_system, created_at
	FROM accounts WHERE account_id = $1`

	return s.scanAccount(s.db.QueryRowContext(ctx, query, accountID))
}

func (s *Store) FindByRole(ctx context.Context, role models.AccountRole, currency string) (models.LedgerAccount, bool, error) {
	const query = `SELECT account_id, role, backend, currency, balance, is_system, created_at
	FROM accounts WHERE role = $1 AND currency = $2 AND backend = $3 LIMIT 1`

	acc, err := s.scanAccount(s.db.QueryRowContext(ctx, query, role, currency, models.BackendPostgres))
	if errors.Is(err, errs.ErrNotFound) {
		return models.LedgerAccount{}, false, nil
	}
	if err != nil {
		return models.LedgerAccount{}, false, err
	}
	return acc, true, nil
}

func (s *Store) ApplyTransfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, reference string) (models.TransferReceipt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.TransferReceipt{}, wrapDB(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Claiming the reference first makes the whole transfer idempotent:
	// a concurrent or replayed call conflicts here and reads the stored
	// receipt instead of applying a second time.
	const claim = `INSERT INTO transfers (reference, sender_id, recipient_id, amount, currency, created_at)
	SELECT $1, $2, $3, $4, a.currency, $5 FROM accounts a WHERE a.account_id = $2
	ON CONFLICT (reference) DO NOTHING`

	res, err := tx.ExecContext(ctx, claim, reference, senderID, recipientID, amount, time.Now().UTC())
	if err != nil {
		return models.TransferReceipt{}, wrapDB(err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.TransferReceipt{}, wrapDB(err)
	}
	if inserted == 0 {
		if err = tx.Rollback(); err != nil {
			return models.TransferReceipt{}, wrapDB(err)
		}
		err = nil
		receipt, ok, findErr := s.FindTransfer(ctx, reference)
		if findErr != nil {
			return models.TransferReceipt{}, findErr
		}
		if !ok {
			// No conflict and no row inserted: the sender subselect
			// matched nothing.
			return models.TransferReceipt{}, errs.ErrNotFound
		}
		receipt.Replayed = true
		return receipt, nil
	}

	const debit = `UPDATE accounts SET balance = balance - $2
	WHERE account_id = $1 AND balance >= $2`

	res, err = tx.ExecContext(ctx, debit, senderID, amount)
	if err != nil {
		return models.TransferReceipt{}, wrapDB(err)
	}
	debited, err := res.RowsAffected()
	if err != nil {
		return models.TransferReceipt{}, wrapDB(err)
	}
	if debited == 0 {
		var exists bool
		if scanErr := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_id = $1)`, senderID).Scan(&exists); scanErr != nil {
			err = wrapDB(scanErr)
			return models.TransferReceipt{}, err
		}
		if exists {
			err = errs.ErrInsufficientFunds
		} else {
			err = errs.ErrNotFound
		}
		return models.TransferReceipt{}, err
	}

	const credit = `UPDATE accounts SET balance = balance + $2 WHERE account_id = $1`

	res, err = tx.ExecContext(ctx, credit, recipientID, amount)
	if err != nil {
		return models.TransferReceipt{}, wrapDB(err)
	}
	credited, err := res.RowsAffected()
	if err != nil {
		return models.TransferReceipt{}, wrapDB(err)
	}
	if credited == 0 {
		err = errs.ErrNotFound
		return models.TransferReceipt{}, err
	}

	const readBack = `SELECT reference, sender_id, recipient_id, amount, currency, created_at
	FROM transfers WHERE reference = $1`

	var receipt models.TransferReceipt
	if err = tx.QueryRowContext(ctx, readBack, reference).Scan(
		&receipt.Reference, &receipt.SenderID, &receipt.RecipientID,
		&receipt.Amount, &receipt.Currency, &receipt.CreatedAt,
	); err != nil {
		err = wrapDB(err)
		return models.TransferReceipt{}, err
	}

	if err = tx.Commit(); err != nil {
		err = wrapDB(err)
		return models.TransferReceipt{}, err
	}
	return receipt, nil
}

func (s *Store) FindTransfer(ctx context.Context, reference string) (models.TransferReceipt, bool, error) {
	const query = `SELECT reference, sender_id, recipient_id, amount, currency, created_at
	FROM transfers WHERE reference = $1`

	var receipt models.TransferReceipt
	err := s.db.QueryRowContext(ctx, query, reference).Scan(
		&receipt.Reference, &receipt.SenderID, &receipt.RecipientID,
		&receipt.Amount, &receipt.Currency, &receipt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TransferReceipt{}, false, nil
	}
	if err != nil {
		return models.TransferReceipt{}, false, wrapDB(err)
	}
	return receipt, true, nil
}

func (s *Store) scanAccount(row *sql.Row) (models.LedgerAccount, error) {
	var acc models.LedgerAccount
	err := row.Scan(&acc.AccountID, &acc.Role, &acc.Backend, &acc.Currency, &acc.Balance, &acc.IsSystem, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerAccount{}, errs.ErrNotFound
	}
	if err != nil {
		return models.LedgerAccount{}, wrapDB(err)
	}
	return acc, nil
}

// wrapDB marks driver and connection failures as transient so the retry
// decorator can back off and try again.
func wrapDB(err error) error {
	return fmt.Errorf("%w: %v", errs.ErrExternalService, err)
}

var _ interfaces.LedgerBackend = (*Store)(nil)
