package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/testutil"
)

func inTx(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
	testutil.WithTx(outerTx, t, func(innerTx pgx.Tx) {
		fn(innerTx, NewStorage(innerTx))
	})
}

func createAccount(t *testing.T, storage repository.Storage, externalID string) models.Account {
	t.Helper()

	account, err := storage.Account().Create(t.Context(), models.Account{
		ExternalID:   externalID,
		Username:     "user-" + externalID,
		ReferralCode: "REF" + externalID,
	})
	require.NoError(t, err, "account fixture should be created")

	_, err = storage.Wallet().GetOrCreate(t.Context(), account.ID)
	require.NoError(t, err, "wallet fixture should be created")

	return account
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
