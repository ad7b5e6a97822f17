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
)

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshTokenColumns = `id, admin_id, token_hash, created_at, expires_at, used_at`

const saveRefreshToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (r *RefreshTokenRepo) Save(ctx context.Context, t models.RefreshToken) error {
	_, err := r.DB.Exec(ctx, saveRefreshToken, t.ID, t.AdminID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.UsedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Keep the first used_at: already used token returns its original time
const getAndMarkUsed = `-- name: GetAndMarkUsedRefreshToken
UPDATE refresh_tokens
SET used_at = COALESCE(used_at, $2)
WHERE token_hash = $1
RETURNING ` + refreshTokenColumns

func (r *RefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	now := time.Now().Truncate(time.Microsecond)
	rows, _ := r.DB.Query(ctx, getAndMarkUsed, tokenHash, now)
	t, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t models.RefreshToken
		err := row.Scan(&t.ID, &t.AdminID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
		return t, err
	})

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return t, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	case err != nil:
		return t, fmt.Errorf("db error: %w", err)
	case !t.UsedAt.Equal(now):
		return t, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	default:
		return t, nil
	}
}

const revokeRefreshTokens = `-- name: RevokeRefreshTokens
UPDATE refresh_tokens
SET used_at = $2
WHERE admin_id = $1 AND used_at IS NULL
`

func (r *RefreshTokenRepo) RevokeAll(ctx context.Context, adminID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeRefreshTokens, adminID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}
