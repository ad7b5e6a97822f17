package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/refledger/internal/models"
)

type ReferralRepo struct {
	DB DBTX
}

const referralColumns = `id, referrer_id, referred_id, level, converted, converted_at, created_at`

// Same pair is recorded once; repeated signup attribution returns the existing row
const createReferral = `-- name: CreateReferral
WITH inserted AS (
	INSERT INTO referrals (` + referralColumns + `)
	VALUES ($1, $2, $3, $4, false, NULL, $5)
	ON CONFLICT DO NOTHING
	RETURNING ` + referralColumns + `
)
SELECT ` + referralColumns + ` FROM inserted
UNION ALL
SELECT ` + referralColumns + ` FROM referrals
WHERE referrer_id = $2 AND referred_id = $3
LIMIT 1
`

func (r *ReferralRepo) Create(ctx context.Context, ref models.Referral) (models.Referral, error) {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createReferral, ref.ID, ref.ReferrerID, ref.ReferredID, ref.Level, ref.CreatedAt)
	created, err := pgx.CollectOneRow(rows, rowToReferral)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

// Converted flag never reverts; already converted rows are left as is
const markReferralsConverted = `-- name: MarkReferralsConverted
UPDATE referrals
SET converted = true, converted_at = $2
WHERE referred_id = $1 AND converted = false
`

func (r *ReferralRepo) MarkConverted(ctx context.Context, referredID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, markReferralsConverted, referredID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const referralStats = `-- name: ReferralStats
SELECT
	count(*) FILTER (WHERE referred_id IS NULL),
	count(*) FILTER (WHERE referred_id IS NOT NULL),
	count(*) FILTER (WHERE referred_id IS NOT NULL AND level = 1),
	count(*) FILTER (WHERE referred_id IS NOT NULL AND level = 2),
	count(*) FILTER (WHERE referred_id IS NOT NULL AND converted)
FROM referrals
WHERE referrer_id = $1
`

// Return referral counters only; commission figures are filled by the caller
func (r *ReferralRepo) Stats(ctx context.Context, referrerID uuid.UUID) (models.ReferralStats, error) {
	var s models.ReferralStats
	err := r.DB.QueryRow(ctx, referralStats, referrerID).Scan(&s.Clicks, &s.TotalReferrals, &s.Level1Referrals, &s.Level2Referrals, &s.Buyers)
	if err != nil {
		return s, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

const leaderboard = `-- name: Leaderboard
SELECT
	a.id, a.external_id, a.username, a.referral_code, a.referred_by, a.referral_level, a.total_spent, a.total_orders, a.created_at,
	COALESCE(r.referrals, 0),
	c.commissions
FROM accounts a
JOIN (
	SELECT account_id, SUM(amount) AS commissions
	FROM ledger_transactions
	WHERE kind = 'commission_credit' AND status <> 'cancelled'
	GROUP BY account_id
) c ON c.account_id = a.id
LEFT JOIN (
	SELECT referrer_id, count(*) AS referrals
	FROM referrals
	WHERE referred_id IS NOT NULL
	GROUP BY referrer_id
) r ON r.referrer_id = a.id
ORDER BY c.commissions DESC, referrals DESC, a.id
LIMIT $1
`

func (r *ReferralRepo) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, _ := r.DB.Query(ctx, leaderboard, limit)
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LeaderboardEntry, error) {
		var e models.LeaderboardEntry
		a := &e.Account
		err := row.Scan(
			&a.ID, &a.ExternalID, &a.Username, &a.ReferralCode, &a.ReferredBy, &a.ReferralLevel, &a.TotalSpent, &a.TotalOrders, &a.CreatedAt,
			&e.Referrals, &e.Commissions,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}

func rowToReferral(row pgx.CollectableRow) (models.Referral, error) {
	var ref models.Referral
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.Level, &ref.Converted, &ref.ConvertedAt, &ref.CreatedAt)
	return ref, err
}
