package ledger

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/errs"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/models"
)

// RetryPolicy bounds retries against an external ledger backend.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Timeout         time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 600 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Timeout:         30 * time.Second,
	}
}

// RetryingBackend decorates a LedgerBackend with a bounded timeout and
// exponential backoff on transient failures. Non-transient failures
// (validation, insufficient funds, not found) are returned immediately.
// Once submitted, every call is driven to a known outcome: the reference
// dedup in the backend makes a retried ApplyTransfer safe.
type RetryingBackend struct {
	inner  interfaces.LedgerBackend
	policy RetryPolicy
	log    *zap.Logger
}

func NewRetryingBackend(inner interfaces.LedgerBackend, policy RetryPolicy, log *zap.Logger) *RetryingBackend {
	return &RetryingBackend{inner: inner, policy: policy, log: log}
}

func (b *RetryingBackend) Kind() models.BackendKind { return b.inner.Kind() }

func (b *RetryingBackend) EnsureAccount(ctx context.Context, accountID string, role models.AccountRole, currency string) (models.LedgerAccount, error) {
	return withRetry(ctx, b, func(ctx context.Context) (models.LedgerAccount, error) {
		return b.inner.EnsureAccount(ctx, accountID, role, currency)
	})
}

func (b *RetryingBackend) GetAccount(ctx context.Context, accountID string) (models.LedgerAccount, error) {
	return withRetry(ctx, b, func(ctx context.Context) (models.LedgerAccount, error) {
		return b.inner.GetAccount(ctx, accountID)
	})
}

func (b *RetryingBackend) FindByRole(ctx context.Context, role models.AccountRole, currency string) (models.LedgerAccount, bool, error) {
	type result struct {
		acc models.LedgerAccount
		ok  bool
	}
	res, err := withRetry(ctx, b, func(ctx context.Context) (result, error) {
		acc, ok, err := b.inner.FindByRole(ctx, role, currency)
		return result{acc: acc, ok: ok}, err
	})
	return res.acc, res.ok, err
}

func (b *RetryingBackend) ApplyTransfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, reference string) (models.TransferReceipt, error) {
	return withRetry(ctx, b, func(ctx context.Context) (models.TransferReceipt, error) {
		return b.inner.ApplyTransfer(ctx, senderID, recipientID, amount, reference)
	})
}

func (b *RetryingBackend) FindTransfer(ctx context.Context, reference string) (models.TransferReceipt, bool, error) {
	type result struct {
		receipt models.TransferReceipt
		ok      bool
	}
	res, err := withRetry(ctx, b, func(ctx context.Context) (result, error) {
		receipt, ok, err := b.inner.FindTransfer(ctx, reference)
		return result{receipt: receipt, ok: ok}, err
	})
	return res.receipt, res.ok, err
}

func withRetry[T any](ctx context.Context, b *RetryingBackend, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, b.policy.Timeout)
	defer cancel()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = b.policy.InitialInterval
	expo.MaxInterval = b.policy.MaxInterval

	var out T
	err := backoff.Retry(func() error {
		var err error
		out, err = op(ctx)
		if err == nil {
			return nil
		}
		if !errs.IsTransient(err) {
			return backoff.Permanent(err)
		}
		b.log.Warn("transient backend failure, retrying", zap.Error(err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(expo, b.policy.MaxRetries), ctx))
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

var _ interfaces.LedgerBackend = (*RetryingBackend)(nil)
