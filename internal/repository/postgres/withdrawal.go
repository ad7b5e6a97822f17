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

type WithdrawalRepo struct {
	DB DBTX
}

const withdrawalColumns = `id, public_id, account_id, transaction_id, amount, method, upi_id, bank_account, ifsc_code, account_holder_name,
	status, requested_at, approved_at, approved_by, paid_at, payment_reference, rejection_reason, updated_at`

const createWithdrawal = `-- name: CreateWithdrawal
INSERT INTO withdrawal_requests (` + withdrawalColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULL, NULL, NULL, '', '', $12)
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) Create(ctx context.Context, w models.WithdrawalRequest) (models.WithdrawalRequest, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.RequestedAt.IsZero() {
		w.RequestedAt = time.Now()
	}
	if w.Status == "" {
		w.Status = models.WithdrawalStatusPending
	}

	rows, _ := r.DB.Query(ctx, createWithdrawal,
		w.ID, w.PublicID, w.AccountID, w.TransactionID, w.Amount, w.Method,
		w.Details.UPIID, w.Details.BankAccount, w.Details.IFSCCode, w.Details.AccountHolderName,
		w.Status, w.RequestedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "withdrawal_requests_one_pending" {
			return created, apperrors.ErrPendingRequestExists
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getWithdrawalByPublicID = `-- name: GetWithdrawalByPublicID
SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
WHERE public_id = $1
`

func (r *WithdrawalRepo) GetByPublicID(ctx context.Context, publicID string) (models.WithdrawalRequest, error) {
	rows, _ := r.DB.Query(ctx, getWithdrawalByPublicID, publicID)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWithdrawalNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

const hasPendingWithdrawal = `-- name: HasPendingWithdrawal
SELECT EXISTS (
	SELECT 1 FROM withdrawal_requests
	WHERE account_id = $1 AND status = 'pending'
)
`

func (r *WithdrawalRepo) HasPending(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, hasPendingWithdrawal, accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

// Conditional update: source status is checked by the same statement
const transitionWithdrawal = `-- name: TransitionWithdrawal
UPDATE withdrawal_requests SET
	status = $3,
	approved_at = CASE WHEN $3 = 'approved' THEN $4 ELSE approved_at END,
	approved_by = COALESCE($5, approved_by),
	paid_at = CASE WHEN $3 = 'paid' THEN $4 ELSE paid_at END,
	payment_reference = COALESCE(NULLIF($6, ''), payment_reference),
	rejection_reason = COALESCE(NULLIF($7, ''), rejection_reason),
	updated_at = $4
WHERE id = $1 AND status = ANY($2::text[])
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) Transition(ctx context.Context, id uuid.UUID, from []string, u models.WithdrawalUpdate) (models.WithdrawalRequest, error) {
	rows, _ := r.DB.Query(ctx, transitionWithdrawal, id, from, u.Status, u.At, u.ApprovedBy, u.PaymentReference, u.RejectionReason)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrInvalidStateTransition
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

const listWithdrawals = `-- name: ListWithdrawals
SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
WHERE ($1::uuid IS NULL OR account_id = $1)
	AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
ORDER BY requested_at DESC, id DESC
LIMIT $3 OFFSET $4
`

func (r *WithdrawalRepo) List(ctx context.Context, opts repository.ListWithdrawalsOpts) ([]models.WithdrawalRequest, error) {
	statuses := opts.Statuses
	if statuses == nil {
		statuses = []string{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, _ := r.DB.Query(ctx, listWithdrawals, opts.AccountID, statuses, limit, opts.Offset)
	ws, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return ws, nil
}

const withdrawalStatistics = `-- name: WithdrawalStatistics
SELECT status, count(*), COALESCE(SUM(amount), 0)
FROM withdrawal_requests
GROUP BY status
ORDER BY status
`

func (r *WithdrawalRepo) Statistics(ctx context.Context) ([]models.WithdrawalStat, error) {
	rows, _ := r.DB.Query(ctx, withdrawalStatistics)
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WithdrawalStat, error) {
		var s models.WithdrawalStat
		err := row.Scan(&s.Status, &s.Count, &s.Amount)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return stats, nil
}

func rowToWithdrawal(row pgx.CollectableRow) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(
		&w.ID, &w.PublicID, &w.AccountID, &w.TransactionID, &w.Amount, &w.Method,
		&w.Details.UPIID, &w.Details.BankAccount, &w.Details.IFSCCode, &w.Details.AccountHolderName,
		&w.Status, &w.RequestedAt, &w.ApprovedAt, &w.ApprovedBy, &w.PaidAt, &w.PaymentReference, &w.RejectionReason, &w.UpdatedAt,
	)
	return w, err
}
