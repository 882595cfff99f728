package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

const orderColumns = `id, creator_id, taker_id, side, network, principal_amount,
	fiat_currency, fiat_method, status, escrow_account_id, buyer_account_id,
	seller_account_id, deposit_tx_ref, release_tx_ref, fee_tx_ref, created_at`

// OrderStore persists orders in Postgres. UpdateStatus runs the
// check-and-set inside one transaction with SELECT ... FOR UPDATE, so the
// row is locked between the status read and the write and concurrent
// transitions serialize at the database.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS orders (
		id                TEXT PRIMARY KEY,
		creator_id        TEXT NOT NULL,
		taker_id          TEXT NOT NULL DEFAULT '',
		side              TEXT NOT NULL,
		network           TEXT NOT NULL,
		principal_amount  NUMERIC NOT NULL,
		fiat_currency     TEXT NOT NULL,
		fiat_method       TEXT NOT NULL,
		status            TEXT NOT NULL,
		escrow_account_id TEXT NOT NULL,
		buyer_account_id  TEXT NOT NULL DEFAULT '',
		seller_account_id TEXT NOT NULL DEFAULT '',
		deposit_tx_ref    TEXT NOT NULL DEFAULT '',
		release_tx_ref    TEXT NOT NULL DEFAULT '',
		fee_tx_ref        TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status);
	CREATE INDEX IF NOT EXISTS orders_creator_idx ON orders (creator_id);`

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return wrapDB(err)
	}
	return nil
}

func (s *OrderStore) Insert(ctx context.Context, order models.Order) error {
	const query = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := s.db.ExecContext(ctx, query,
		order.ID, order.CreatorID, order.TakerID, order.Side, order.Network,
		order.PrincipalAmount, order.FiatCurrency, order.FiatMethod, order.Status,
		order.EscrowAccountID, order.BuyerAccountID, order.SellerAccountID,
		order.DepositTxRef, order.ReleaseTxRef, order.FeeTxRef, order.CreatedAt,
	)
	if err != nil {
		return wrapDB(err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (models.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	return scanOrder(s.db.QueryRowContext(ctx, query, id))
}

func (s *OrderStore) ListByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`

	return s.list(ctx, query, status)
}

func (s *OrderStore) ListByCreator(ctx context.Context, creatorID string) ([]models.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE creator_id = $1 ORDER BY created_at DESC`

	return s.list(ctx, query, creatorID)
}

func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, apply func(*models.Order)) (models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Order{}, wrapDB(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	var order models.Order
	order, err = scanOrder(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.Order{}, err
	}
	if order.Status != from {
		err = &errs.InvalidStateError{Current: string(order.Status), Required: string(from)}
		return models.Order{}, err
	}
	if apply != nil {
		apply(&order)
	}
	order.Status = to

	const update = `UPDATE orders SET taker_id=$2, status=$3, buyer_account_id=$4,
	seller_account_id=$5, deposit_tx_ref=$6, release_tx_ref=$7, fee_tx_ref=$8
	WHERE id=$1`

	if _, err = tx.ExecContext(ctx, update,
		order.ID, order.TakerID, order.Status, order.BuyerAccountID,
		order.SellerAccountID, order.DepositTxRef, order.ReleaseTxRef, order.FeeTxRef,
	); err != nil {
		err = wrapDB(err)
		return models.Order{}, err
	}
	if err = tx.Commit(); err != nil {
		err = wrapDB(err)
		return models.Order{}, err
	}
	return order, nil
}

func (s *OrderStore) list(ctx context.Context, query string, arg any) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, wrapDB(err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(
			&o.ID, &o.CreatorID, &o.TakerID, &o.Side, &o.Network, &o.PrincipalAmount,
			&o.FiatCurrency, &o.FiatMethod, &o.Status, &o.EscrowAccountID,
			&o.BuyerAccountID, &o.SellerAccountID, &o.DepositTxRef, &o.ReleaseTxRef,
			&o.FeeTxRef, &o.CreatedAt,
		); err != nil {
			return nil, wrapDB(err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err)
	}
	return orders, nil
}

func scanOrder(row *sql.Row) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.CreatorID, &o.TakerID, &o.Side, &o.Network, &o.PrincipalAmount,
		&o.FiatCurrency, &o.FiatMethod, &o.Status, &o.EscrowAccountID,
		&o.BuyerAccountID, &o.SellerAccountID, &o.DepositTxRef, &o.ReleaseTxRef,
		&o.FeeTxRef, &o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, errs.ErrNotFound
	}
	if err != nil {
		return models.Order{}, wrapDB(err)
	}
	return o, nil
}

var _ interfaces.OrderStore = (*OrderStore)(nil)
