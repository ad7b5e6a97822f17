package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, public_id, account_id, amount, status, is_wallet_payment, commission_eligible, commission_processed, created_at, paid_at, refunded_at`

const createOrder = `-- name: CreateOrder
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns

func (r *OrderRepo) Create(ctx context.Context, o models.Order) (models.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}

	rows, _ := r.DB.Query(ctx, createOrder,
		o.ID, o.PublicID, o.AccountID, o.Amount, o.Status, o.IsWalletPayment,
		o.CommissionEligible, o.CommissionProcessed, o.CreatedAt, o.PaidAt, o.RefundedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToOrder)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrAccountNotFound
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getOrderByPublicID = `-- name: GetOrderByPublicID
SELECT ` + orderColumns + ` FROM orders
WHERE public_id = $1
`

func (r *OrderRepo) GetByPublicID(ctx context.Context, publicID string, forUpdate bool) (models.Order, error) {
	query := getOrderByPublicID
	if forUpdate {
		query += "FOR UPDATE\n"
	}

	rows, _ := r.DB.Query(ctx, query, publicID)
	o, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, pgx.ErrNoRows):
		return o, apperrors.ErrOrderNotFound
	default:
		return o, fmt.Errorf("db error: %w", err)
	}
}

const setOrderStatus = `-- name: SetOrderStatus
UPDATE orders SET
	status = $2,
	paid_at = CASE WHEN $2 = 'success' THEN $3 ELSE paid_at END,
	refunded_at = CASE WHEN $2 = 'refunded' THEN $3 ELSE refunded_at END
WHERE id = $1
RETURNING ` + orderColumns

func (r *OrderRepo) SetStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, setOrderStatus, id, status, at)
	o, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, pgx.ErrNoRows):
		return o, apperrors.ErrOrderNotFound
	default:
		return o, fmt.Errorf("db error: %w", err)
	}
}

// Compare-and-set: only the first caller flips the flag
const markCommissionProcessed = `-- name: MarkCommissionProcessed
UPDATE orders
SET commission_processed = true
WHERE id = $1 AND commission_processed = false
`

func (r *OrderRepo) MarkCommissionProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.DB.Exec(ctx, markCommissionProcessed, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

const countOrders = `-- name: CountOrders
SELECT count(*) FROM orders
WHERE account_id = $1 AND status = ANY($2::text[])
`

func (r *OrderRepo) Count(ctx context.Context, accountID uuid.UUID, statuses []string) (int, error) {
	var count int
	err := r.DB.QueryRow(ctx, countOrders, accountID, statuses).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.PublicID, &o.AccountID, &o.Amount, &o.Status, &o.IsWalletPayment,
		&o.CommissionEligible, &o.CommissionProcessed, &o.CreatedAt, &o.PaidAt, &o.RefundedAt,
	)
	return o, err
}
