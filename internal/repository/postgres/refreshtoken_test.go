package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

// Fake digest: only length matters to the column
func digest(c string) string {
	return strings.Repeat(c, 64)
}

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	createAdmin := func(t *testing.T, storage repository.Storage, username string) models.Admin {
		admin, err := storage.Admin().CreateAdmin(t.Context(), username, "hashed")
		require.NoError(t, err)
		return admin
	}

	saveToken := func(t *testing.T, storage repository.Storage, adminID uuid.UUID, hash string) models.RefreshToken {
		token := models.RefreshToken{
			ID:        uuid.New(),
			AdminID:   adminID,
			TokenHash: hash,
			CreatedAt: mustParseTime("2024-01-01 19:00:01Z"),
			ExpiresAt: mustParseTime("2200-01-01 03:00:02Z"),
		}
		err := storage.Refresh().Save(t.Context(), token)
		require.NoError(t, err, "token has to be saved ok")

		return token
	}

	t.Run("mark token used", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			admin := createAdmin(t, storage, "operator")
			token := saveToken(t, storage, admin.ID, digest("a"))

			got, err := storage.Refresh().GetAndMarkUsed(t.Context(), token.TokenHash)

			require.NoError(t, err, "No error must be happen when marking used existed token")
			require.NotNil(t, got.UsedAt, "token must marked used")
			require.WithinDuration(t, time.Now(), *got.UsedAt, 50*time.Millisecond, "should marked as used close to now() enough")
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.TokenHash, got.TokenHash)
			require.Equal(t, token.AdminID, got.AdminID)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, 0)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
		})
	})

	t.Run("duplicate digest", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			admin := createAdmin(t, storage, "operator")
			saveToken(t, storage, admin.ID, digest("a"))

			err := storage.Refresh().Save(t.Context(), models.RefreshToken{
				ID:        uuid.New(),
				AdminID:   admin.ID,
				TokenHash: digest("a"),
				CreatedAt: time.Now(),
				ExpiresAt: time.Now().Add(time.Hour),
			})
			require.Error(t, err, "digest is unique")
		})
	})

	t.Run("mark used not existed token", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			_, err := storage.Refresh().GetAndMarkUsed(t.Context(), digest("b"))

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("mark used is idempotent", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			admin := createAdmin(t, storage, "operator")
			token := saveToken(t, storage, admin.ID, digest("a"))

			first, err := storage.Refresh().GetAndMarkUsed(t.Context(), token.TokenHash)
			require.NoError(t, err, "No error should happen on make used")

			time.Sleep(100 * time.Millisecond)
			second, err := storage.Refresh().GetAndMarkUsed(t.Context(), token.TokenHash)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed, "should return ErrRefreshTokenIsUsed error")

			assert.Equal(t, admin.ID, second.AdminID, "used token still returned so caller knows whose it is")
			assert.WithinDuration(t, *first.UsedAt, *second.UsedAt, 0, "should return same time for already used token")
		})
	})

	t.Run("revoke all", func(t *testing.T) {
		inTx(t, pg.Pool, func(_ pgx.Tx, storage repository.Storage) {
			admin := createAdmin(t, storage, "operator")
			other := createAdmin(t, storage, "auditor")

			used := saveToken(t, storage, admin.ID, digest("a"))
			_, err := storage.Refresh().GetAndMarkUsed(t.Context(), used.TokenHash)
			require.NoError(t, err)
			saveToken(t, storage, admin.ID, digest("b"))
			saveToken(t, storage, admin.ID, digest("c"))
			foreign := saveToken(t, storage, other.ID, digest("d"))

			revoked, err := storage.Refresh().RevokeAll(t.Context(), admin.ID)
			require.NoError(t, err)
			require.EqualValues(t, 2, revoked, "already used token is not counted")

			_, err = storage.Refresh().GetAndMarkUsed(t.Context(), digest("b"))
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed, "revoked token can not be used")

			_, err = storage.Refresh().GetAndMarkUsed(t.Context(), foreign.TokenHash)
			require.NoError(t, err, "other admin tokens stay valid")
		})
	})
}
