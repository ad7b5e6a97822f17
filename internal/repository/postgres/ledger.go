package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

type LedgerRepo struct {
	DB DBTX
}

const ledgerColumns = `id, account_id, order_id, kind, amount, balance_before, balance_after, status, referral_level, description, available_at, created_at, updated_at`

const createLedgerTransaction = `-- name: CreateLedgerTransaction
INSERT INTO ledger_transactions (` + ledgerColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + ledgerColumns

func (r *LedgerRepo) Create(ctx context.Context, t models.LedgerTransaction) (models.LedgerTransaction, error) {
	now := time.Now()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	rows, _ := r.DB.Query(ctx, createLedgerTransaction,
		t.ID, t.AccountID, t.OrderID, t.Kind, t.Amount, t.BalanceBefore, t.BalanceAfter,
		t.Status, t.ReferralLevel, t.Description, t.AvailableAt, t.CreatedAt, t.UpdatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToLedgerTransaction)

	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "ledger_transactions_commission_uniq" {
			return created, apperrors.ErrCommissionAlreadyCredited
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getLedgerTransaction = `-- name: GetLedgerTransaction
SELECT ` + ledgerColumns + ` FROM ledger_transactions
WHERE id = $1
`

func (r *LedgerRepo) Get(ctx context.Context, id uuid.UUID) (models.LedgerTransaction, error) {
	rows, _ := r.DB.Query(ctx, getLedgerTransaction, id)
	t, err := pgx.CollectOneRow(rows, rowToLedgerTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const lockLedgerTransaction = `-- name: LockLedgerTransaction
SELECT ` + ledgerColumns + ` FROM ledger_transactions
WHERE id = $1
FOR UPDATE
`

// Lock waits for concurrent writers and returns the latest committed row
func (r *LedgerRepo) Lock(ctx context.Context, id uuid.UUID) (models.LedgerTransaction, error) {
	rows, _ := r.DB.Query(ctx, lockLedgerTransaction, id)
	t, err := pgx.CollectOneRow(rows, rowToLedgerTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

// Status filter makes release idempotent: the second run updates nothing
const releaseLedgerTransaction = `-- name: ReleaseLedgerTransaction
UPDATE ledger_transactions
SET status = 'completed', updated_at = $2
WHERE id = $1
	AND kind = 'commission_credit'
	AND status = 'pending'
	AND available_at <= $2
RETURNING ` + ledgerColumns

func (r *LedgerRepo) Release(ctx context.Context, id uuid.UUID, now time.Time) (models.LedgerTransaction, error) {
	rows, _ := r.DB.Query(ctx, releaseLedgerTransaction, id, now)
	t, err := pgx.CollectOneRow(rows, rowToLedgerTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotReleasable
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const completeLedgerTransaction = `-- name: CompleteLedgerTransaction
UPDATE ledger_transactions
SET status = 'completed', updated_at = $2
WHERE id = $1 AND status = 'pending'
RETURNING ` + ledgerColumns

func (r *LedgerRepo) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (models.LedgerTransaction, error) {
	return r.transition(ctx, completeLedgerTransaction, id, at)
}

const cancelLedgerTransaction = `-- name: CancelLedgerTransaction
UPDATE ledger_transactions
SET status = 'cancelled', updated_at = $2
WHERE id = $1 AND status <> 'cancelled'
RETURNING ` + ledgerColumns

func (r *LedgerRepo) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (models.LedgerTransaction, error) {
	return r.transition(ctx, cancelLedgerTransaction, id, at)
}

func (r *LedgerRepo) transition(ctx context.Context, query string, id uuid.UUID, at time.Time) (models.LedgerTransaction, error) {
	rows, _ := r.DB.Query(ctx, query, id, at)
	t, err := pgx.CollectOneRow(rows, rowToLedgerTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return t, getErr
		}
		return t, apperrors.ErrInvalidStateTransition
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

const findReleasable = `-- name: FindReleasable
SELECT ` + ledgerColumns + ` FROM ledger_transactions
WHERE kind = 'commission_credit'
	AND status = 'pending'
	AND available_at <= $1
	AND (available_at, id) > ($2, $3)
ORDER BY available_at, id
LIMIT $4
`

func (r *LedgerRepo) FindReleasable(ctx context.Context, now time.Time, after models.ReleaseCursor, limit int) ([]models.LedgerTransaction, error) {
	rows, _ := r.DB.Query(ctx, findReleasable, now, after.AvailableAt, after.ID, limit)
	txs, err := pgx.CollectRows(rows, rowToLedgerTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return txs, nil
}

const listLedgerTransactions = `-- name: ListLedgerTransactions
SELECT ` + ledgerColumns + ` FROM ledger_transactions
WHERE account_id = $1
	AND (cardinality($2::text[]) = 0 OR kind = ANY($2::text[]))
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`

func (r *LedgerRepo) List(ctx context.Context, accountID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.LedgerTransaction, error) {
	kinds := opts.Kinds
	if kinds == nil {
		kinds = []string{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, _ := r.DB.Query(ctx, listLedgerTransactions, accountID, kinds, limit, opts.Offset)
	txs, err := pgx.CollectRows(rows, rowToLedgerTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return txs, nil
}

const listLedgerTransactionsByOrder = `-- name: ListLedgerTransactionsByOrder
SELECT ` + ledgerColumns + ` FROM ledger_transactions
WHERE order_id = $1 AND kind = $2
ORDER BY created_at, id
`

const lockLedgerTransactionsByOrder = `-- name: LockLedgerTransactionsByOrder
SELECT ` + ledgerColumns + ` FROM ledger_transactions
WHERE order_id = $1 AND kind = $2
ORDER BY created_at, id
FOR UPDATE
`

func (r *LedgerRepo) ListByOrder(ctx context.Context, orderID uuid.UUID, kind string) ([]models.LedgerTransaction, error) {
	return r.listByOrder(ctx, listLedgerTransactionsByOrder, orderID, kind)
}

func (r *LedgerRepo) LockByOrder(ctx context.Context, orderID uuid.UUID, kind string) ([]models.LedgerTransaction, error) {
	return r.listByOrder(ctx, lockLedgerTransactionsByOrder, orderID, kind)
}

func (r *LedgerRepo) listByOrder(ctx context.Context, query string, orderID uuid.UUID, kind string) ([]models.LedgerTransaction, error) {
	rows, _ := r.DB.Query(ctx, query, orderID, kind)
	txs, err := pgx.CollectRows(rows, rowToLedgerTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return txs, nil
}

// Balance counts completed records and every commission credit: a cancelled
// credit is offset by its compensating deduction, a pending one sits in the pending partition.
// Pending withdrawals are reservations and do not change the total yet.
const ledgerTotals = `-- name: LedgerTotals
SELECT
	COALESCE(SUM(amount) FILTER (WHERE status = 'completed' OR kind = 'commission_credit'), 0),
	COALESCE(SUM(amount) FILTER (WHERE kind = 'commission_credit' AND status = 'pending'), 0),
	COALESCE(SUM(amount) FILTER (WHERE kind = 'commission_credit' AND status = 'completed'), 0),
	COALESCE(SUM(amount) FILTER (WHERE kind = 'commission_credit' AND status = 'cancelled'), 0)
FROM ledger_transactions
WHERE account_id = $1
`

func (r *LedgerRepo) Totals(ctx context.Context, accountID uuid.UUID) (repository.LedgerTotals, error) {
	var t repository.LedgerTotals
	err := r.DB.QueryRow(ctx, ledgerTotals, accountID).Scan(&t.Balance, &t.PendingCommission, &t.EarnedCommission, &t.ReversedCommission)
	if err != nil {
		return t, fmt.Errorf("db error: %w", err)
	}

	return t, nil
}

func rowToLedgerTransaction(row pgx.CollectableRow) (models.LedgerTransaction, error) {
	var t models.LedgerTransaction
	err := row.Scan(
		&t.ID, &t.AccountID, &t.OrderID, &t.Kind, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
		&t.Status, &t.ReferralLevel, &t.Description, &t.AvailableAt, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}
