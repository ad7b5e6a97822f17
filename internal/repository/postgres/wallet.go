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

type WalletRepo struct {
	DB DBTX
}

const walletColumns = `id, account_id, total_balance, pending_balance, withdrawable_balance, reserved_balance, total_earned, total_withdrawn, updated_at`

const createWallet = `-- name: CreateWallet
INSERT INTO wallets (id, account_id)
VALUES ($1, $2)
ON CONFLICT (account_id) DO NOTHING
`

func (r *WalletRepo) GetOrCreate(ctx context.Context, accountID uuid.UUID) (models.Wallet, error) {
	_, err := r.DB.Exec(ctx, createWallet, uuid.New(), accountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return models.Wallet{}, apperrors.ErrAccountNotFound
		}
		return models.Wallet{}, fmt.Errorf("db error: %w", err)
	}

	return r.Get(ctx, accountID)
}

const getWallet = `-- name: GetWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE account_id = $1
`

func (r *WalletRepo) Get(ctx context.Context, accountID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWallet, accountID)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

// Move partitions in one statement
// The row is updated only if none of the partitions goes below zero, so concurrent
// operations on the same wallet can not both pass a balance check
const applyWalletDelta = `-- name: ApplyWalletDelta
UPDATE wallets SET
	total_balance = total_balance + $2,
	pending_balance = pending_balance + $3,
	withdrawable_balance = withdrawable_balance + $4,
	reserved_balance = reserved_balance + $5,
	total_earned = total_earned + $6,
	total_withdrawn = total_withdrawn + $7,
	updated_at = $8
WHERE account_id = $1
	AND total_balance + $2 >= 0
	AND pending_balance + $3 >= 0
	AND withdrawable_balance + $4 >= 0
	AND reserved_balance + $5 >= 0
	AND total_earned + $6 >= 0
	AND total_withdrawn + $7 >= 0
RETURNING ` + walletColumns

func (r *WalletRepo) Apply(ctx context.Context, accountID uuid.UUID, d models.WalletDelta, guardErr error) (models.WalletChange, error) {
	rows, _ := r.DB.Query(ctx, applyWalletDelta,
		accountID, d.Total, d.Pending, d.Withdrawable, d.Reserved, d.TotalEarned, d.TotalWithdrawn, time.Now(),
	)
	after, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return models.WalletChange{Before: d.Revert(after), After: after}, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either there is no wallet or the guard failed
		if _, getErr := r.Get(ctx, accountID); getErr != nil {
			return models.WalletChange{}, getErr
		}
		return models.WalletChange{}, guardErr
	default:
		return models.WalletChange{}, fmt.Errorf("db error: %w", err)
	}
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.AccountID, &w.Total, &w.Pending, &w.Withdrawable, &w.Reserved, &w.TotalEarned, &w.TotalWithdrawn, &w.UpdatedAt)
	return w, err
}
