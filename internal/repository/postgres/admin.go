package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
)

type AdminRepo struct {
	DB DBTX
}

const createAdmin = `-- name: CreateAdmin
INSERT INTO admins (id, username, password_hash)
VALUES ($1, $2, $3)
RETURNING id, created_at, username, password_hash
`

func (r *AdminRepo) CreateAdmin(ctx context.Context, username string, hashedPassword string) (models.Admin, error) {
	rows, _ := r.DB.Query(ctx, createAdmin, uuid.New(), username, hashedPassword)
	admin, err := pgx.CollectOneRow(rows, rowToAdmin)

	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return admin, apperrors.ErrAdminAlreadyExists
		}

		return admin, fmt.Errorf("db error: %w", err)
	}

	return admin, nil
}

const getAdminByID = `-- name: GetAdminByID
SELECT id, created_at, username, password_hash FROM admins
WHERE id = $1
`

func (r *AdminRepo) GetAdminByID(ctx context.Context, id uuid.UUID) (models.Admin, error) {
	rows, _ := r.DB.Query(ctx, getAdminByID, id)
	admin, err := pgx.CollectOneRow(rows, rowToAdmin)

	switch {
	case err == nil:
		return admin, nil
	case errors.Is(err, pgx.ErrNoRows):
		return admin, apperrors.ErrAdminNotFound
	default:
		return admin, fmt.Errorf("db error: %w", err)
	}
}

const getAdminByUsername = `-- name: GetAdminByUsername
SELECT id, created_at, username, password_hash FROM admins
WHERE username = $1
`

func (r *AdminRepo) GetAdminByUsername(ctx context.Context, username string) (models.Admin, error) {
	rows, _ := r.DB.Query(ctx, getAdminByUsername, username)
	admin, err := pgx.CollectOneRow(rows, rowToAdmin)

	switch {
	case err == nil:
		return admin, nil
	case errors.Is(err, pgx.ErrNoRows):
		return admin, apperrors.ErrAdminNotFound
	default:
		return admin, fmt.Errorf("db error: %w", err)
	}
}

const setAdminPasswordHash = `-- name: SetAdminPasswordHash
UPDATE admins SET password_hash = $2
WHERE id = $1
`

func (r *AdminRepo) SetPasswordHash(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	tag, err := r.DB.Exec(ctx, setAdminPasswordHash, id, hashedPassword)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAdminNotFound
	}
	return nil
}

func rowToAdmin(row pgx.CollectableRow) (models.Admin, error) {
	var a models.Admin
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Username, &a.HashedPassword)
	return a, err
}
