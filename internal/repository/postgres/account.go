package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

const accountColumns = `id, external_id, username, referral_code, referred_by, referral_level, total_spent, total_orders, created_at`

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, external_id, username, referral_code, referred_by, referral_level, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + accountColumns

func (r *AccountRepo) Create(ctx context.Context, a models.Account) (models.Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createAccount, a.ID, a.ExternalID, a.Username, a.ReferralCode, a.ReferredBy, a.ReferralLevel, a.CreatedAt)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case "accounts_referral_code_key":
				return account, apperrors.ErrReferralCodeTaken
			default:
				return account, apperrors.ErrAccountAlreadyExists
			}
		}

		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT ` + accountColumns + ` FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return r.getOne(ctx, getAccountByID, id)
}

const getAccountByExternalID = `-- name: GetAccountByExternalID
SELECT ` + accountColumns + ` FROM accounts
WHERE external_id = $1
`

func (r *AccountRepo) GetByExternalID(ctx context.Context, externalID string) (models.Account, error) {
	return r.getOne(ctx, getAccountByExternalID, externalID)
}

const getAccountByReferralCode = `-- name: GetAccountByReferralCode
SELECT ` + accountColumns + ` FROM accounts
WHERE referral_code = $1
`

func (r *AccountRepo) GetByReferralCode(ctx context.Context, code string) (models.Account, error) {
	return r.getOne(ctx, getAccountByReferralCode, code)
}

func (r *AccountRepo) getOne(ctx context.Context, query string, arg any) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, query, arg)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

// First referrer wins: never overwrite existing one
const setReferrer = `-- name: SetReferrer
UPDATE accounts
SET referred_by = $2, referral_level = $3
WHERE id = $1 AND referred_by IS NULL
`

func (r *AccountRepo) SetReferrer(ctx context.Context, accountID uuid.UUID, referrerID uuid.UUID, level int) (bool, error) {
	tag, err := r.DB.Exec(ctx, setReferrer, accountID, referrerID, level)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

const addSpend = `-- name: AddSpend
UPDATE accounts
SET total_spent = GREATEST(total_spent + $2, 0), total_orders = GREATEST(total_orders + $3, 0)
WHERE id = $1
`

func (r *AccountRepo) AddSpend(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orders int) error {
	tag, err := r.DB.Exec(ctx, addSpend, accountID, amount, orders)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrAccountNotFound
	default:
		return nil
	}
}

const listReferred = `-- name: ListReferred
SELECT ` + accountColumns + ` FROM accounts
WHERE referred_by = $1
ORDER BY created_at, id
`

func (r *AccountRepo) ListReferred(ctx context.Context, referrerID uuid.UUID) ([]models.Account, error) {
	rows, _ := r.DB.Query(ctx, listReferred, referrerID)
	accounts, err := pgx.CollectRows(rows, rowToAccount)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return accounts, nil
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.ExternalID, &a.Username, &a.ReferralCode, &a.ReferredBy, &a.ReferralLevel, &a.TotalSpent, &a.TotalOrders, &a.CreatedAt)
	return a, err
}
