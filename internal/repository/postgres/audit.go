package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

type AuditRepo struct {
	DB DBTX
}

const adminActionColumns = `id, admin_id, action, target_type, target_id, details, created_at`

const createAdminAction = `-- name: CreateAdminAction
INSERT INTO admin_actions (` + adminActionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + adminActionColumns

func (r *AuditRepo) Record(ctx context.Context, a models.AdminAction) (models.AdminAction, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Details == nil {
		a.Details = map[string]string{}
	}

	rows, _ := r.DB.Query(ctx, createAdminAction, a.ID, a.AdminID, a.Action, a.TargetType, a.TargetID, a.Details, a.CreatedAt)
	created, err := pgx.CollectOneRow(rows, rowToAdminAction)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const listAdminActions = `-- name: ListAdminActions
SELECT ` + adminActionColumns + ` FROM admin_actions
WHERE ($1::uuid IS NULL OR admin_id = $1)
	AND ($2 = '' OR action = $2)
	AND ($3 = '' OR target_id = $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5
`

func (r *AuditRepo) List(ctx context.Context, opts repository.ListAdminActionsOpts) ([]models.AdminAction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, _ := r.DB.Query(ctx, listAdminActions, opts.AdminID, opts.Action, opts.TargetID, limit, opts.Offset)
	actions, err := pgx.CollectRows(rows, rowToAdminAction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return actions, nil
}

// One statement, so every number comes from the same snapshot
const dashboardStats = `-- name: DashboardStats
SELECT
	(SELECT count(*) FROM accounts),
	(SELECT count(*) FROM accounts WHERE total_orders > 0),
	(SELECT count(*) FROM accounts WHERE referred_by IS NOT NULL),
	w.pending_count,
	w.pending_amount,
	l.pending,
	l.released,
	(SELECT COALESCE(SUM(total_withdrawn), 0) FROM wallets)
FROM
	(SELECT
		count(*) FILTER (WHERE status = 'pending') AS pending_count,
		COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0) AS pending_amount
	FROM withdrawal_requests) w,
	(SELECT
		COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0) AS pending,
		COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0) AS released
	FROM ledger_transactions WHERE kind = 'commission_credit') l
`

func (r *AuditRepo) Dashboard(ctx context.Context) (models.DashboardStats, error) {
	var s models.DashboardStats
	err := r.DB.QueryRow(ctx, dashboardStats).Scan(
		&s.Accounts, &s.Buyers, &s.ReferredAccounts,
		&s.PendingWithdrawals, &s.PendingWithdrawalAmount,
		&s.CommissionPending, &s.CommissionReleased, &s.TotalWithdrawn,
	)
	if err != nil {
		return s, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

func rowToAdminAction(row pgx.CollectableRow) (models.AdminAction, error) {
	var a models.AdminAction
	err := row.Scan(&a.ID, &a.AdminID, &a.Action, &a.TargetType, &a.TargetID, &a.Details, &a.CreatedAt)
	return a, err
}
