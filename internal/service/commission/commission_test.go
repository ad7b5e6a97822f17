package commission

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/notify"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/repository/postgres"
	"github.com/nkiryanov/refledger/internal/testutil"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type fixture struct {
	storage repository.Storage
	engine  *Engine
}

// Create account referred by referrer (may be nil) with wallet
func (f fixture) account(t *testing.T, externalID string, referrer *models.Account) models.Account {
	t.Helper()

	a := models.Account{ExternalID: externalID, ReferralCode: "REF" + externalID}
	if referrer != nil {
		a.ReferredBy = &referrer.ID
		a.ReferralLevel = models.LevelDirect
	}
	account, err := f.storage.Account().Create(t.Context(), a)
	require.NoError(t, err)
	_, err = f.storage.Wallet().GetOrCreate(t.Context(), account.ID)
	require.NoError(t, err)

	return account
}

func (f fixture) order(t *testing.T, buyer models.Account, amount string, wallet bool) models.Order {
	t.Helper()

	order, err := f.storage.Order().Create(t.Context(), models.Order{
		PublicID:           "ORD" + uuid.NewString()[:8],
		AccountID:          buyer.ID,
		Amount:             dec(amount),
		IsWalletPayment:    wallet,
		CommissionEligible: !wallet,
	})
	require.NoError(t, err)

	return order
}

func (f fixture) wallet(t *testing.T, account models.Account) models.Wallet {
	t.Helper()

	w, err := f.storage.Wallet().Get(t.Context(), account.ID)
	require.NoError(t, err)
	require.True(t, w.Balanced(), "wallet partitions must sum up to total")
	return w
}

func TestEngine(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	now := time.Now()

	withEngine := func(t *testing.T, fn func(f fixture)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			engine := NewEngine(storage, Config{}, notify.Noop{}, logger.NewNoOpLogger())
			engine.now = func() time.Time { return now }

			fn(fixture{storage: storage, engine: engine})
		})
	}

	t.Run("two level commission and release", func(t *testing.T) {
		withEngine(t, func(f fixture) {
			a := f.account(t, "1", nil)
			b := f.account(t, "2", &a)
			c := f.account(t, "3", &b)
			order := f.order(t, c, "299", false)

			res, err := f.engine.Process(t.Context(), order.CommissionEvent())

			require.NoError(t, err)
			require.False(t, res.Skipped)
			require.Len(t, res.Credits, 2)
			require.Len(t, res.Notices, 2)

			require.Equal(t, b.ID, res.Credits[0].AccountID)
			require.Equal(t, 1, *res.Credits[0].ReferralLevel)
			require.True(t, res.Credits[0].Amount.Equal(dec("28")))
			require.WithinDuration(t, now.Add(24*time.Hour), *res.Credits[0].AvailableAt, time.Millisecond)
			require.Equal(t, a.ID, res.Credits[1].AccountID)
			require.True(t, res.Credits[1].Amount.Equal(dec("9")))

			walletB := f.wallet(t, b)
			require.True(t, walletB.Pending.Equal(dec("28")))
			require.True(t, walletB.Withdrawable.IsZero())

			report, err := f.engine.Release(t.Context(), now)
			require.NoError(t, err)
			require.Equal(t, ReleaseReport{}, report, "nothing is matured yet")

			report, err = f.engine.Release(t.Context(), now.Add(24*time.Hour))
			require.NoError(t, err)
			require.Equal(t, 2, report.Released)

			walletA, walletB := f.wallet(t, a), f.wallet(t, b)
			require.True(t, walletB.Withdrawable.Equal(dec("28")))
			require.True(t, walletB.Pending.IsZero())
			require.True(t, walletB.TotalEarned.Equal(dec("28")))
			require.True(t, walletA.Withdrawable.Equal(dec("9")))
			require.True(t, walletA.Pending.IsZero())

			report, err = f.engine.Release(t.Context(), now.Add(48*time.Hour))
			require.NoError(t, err)
			require.Equal(t, 0, report.Released, "second release must credit nothing")
			require.True(t, f.wallet(t, b).Withdrawable.Equal(dec("28")))
		})
	})

	t.Run("duplicate event credits once", func(t *testing.T) {
		withEngine(t, func(f fixture) {
			a := f.account(t, "1", nil)
			b := f.account(t, "2", &a)
			order := f.order(t, b, "299", false)

			_, err := f.engine.Process(t.Context(), order.CommissionEvent())
			require.NoError(t, err)

			res, err := f.engine.Process(t.Context(), order.CommissionEvent())

			require.NoError(t, err, "duplicate event is not an error")
			require.True(t, res.Skipped)
			require.Empty(t, res.Credits)
			require.True(t, f.wallet(t, a).Total.Equal(dec("28")), "commission must be credited once")
		})
	})

	t.Run("wallet funded purchase", func(t *testing.T) {
		withEngine(t, func(f fixture) {
			a := f.account(t, "1", nil)
			d := f.account(t, "4", &a)
			order := f.order(t, d, "299", true)

			res, err := f.engine.Process(t.Context(), order.CommissionEvent())

			require.NoError(t, err)
			require.True(t, res.Skipped)
			require.Empty(t, res.Credits)
			require.True(t, f.wallet(t, a).Total.IsZero())

			credits, err := f.storage.Ledger().ListByOrder(t.Context(), order.ID, models.TransactionKindCommissionCredit)
			require.NoError(t, err)
			require.Empty(t, credits)
		})
	})

	t.Run("purchase without referrer", func(t *testing.T) {
		withEngine(t, func(f fixture) {
			d := f.account(t, "4", nil)
			order := f.order(t, d, "299", false)

			res, err := f.engine.Process(t.Context(), order.CommissionEvent())

			require.NoError(t, err)
			require.False(t, res.Skipped, "order is processed even though nobody is paid")
			require.Empty(t, res.Credits)
		})
	})

	t.Run("conversion on purchase", func(t *testing.T) {
		withEngine(t, func(f fixture) {
			a := f.account(t, "1", nil)
			b := f.account(t, "2", &a)
			_, err := f.storage.Referral().Create(t.Context(), models.Referral{ReferrerID: a.ID, ReferredID: &b.ID, Level: 1})
			require.NoError(t, err)

			res, err := f.engine.Process(t.Context(), f.order(t, b, "299", false).CommissionEvent())
			require.NoError(t, err)
			require.True(t, res.Converted, "first purchase converts referral")

			res, err = f.engine.Process(t.Context(), f.order(t, b, "299", false).CommissionEvent())
			require.NoError(t, err)
			require.False(t, res.Converted, "referral is converted once")
		})
	})

	t.Run("percent policy", func(t *testing.T) {
		withEngine(t, func(f fixture) {
			f.engine.cfg.Policy = PercentPolicy{Level1: dec("30"), Level2: dec("10")}
			a := f.account(t, "1", nil)
			b := f.account(t, "2", &a)
			c := f.account(t, "3", &b)

			res, err := f.engine.Process(t.Context(), f.order(t, c, "199.99", false).CommissionEvent())

			require.NoError(t, err)
			require.True(t, res.Credits[0].Amount.Equal(dec("60")), "30%% of 199.99 rounded, got %s", res.Credits[0].Amount)
			require.True(t, res.Credits[1].Amount.Equal(dec("20")), "10%% of 199.99 rounded, got %s", res.Credits[1].Amount)
		})
	})

	t.Run("release continues after failed credit", func(t *testing.T) {
		withEngine(t, func(f fixture) {
			a := f.account(t, "1", nil)
			b := f.account(t, "2", &a)
			_, err := f.engine.Process(t.Context(), f.order(t, b, "299", false).CommissionEvent())
			require.NoError(t, err)

			// Credit without wallet funds behind it: release can't move pending funds
			level := 1
			availableAt := now.Add(-time.Hour)
			order := f.order(t, b, "299", false)
			_, err = f.storage.Ledger().Create(t.Context(), models.LedgerTransaction{
				AccountID:     b.ID,
				OrderID:       &order.ID,
				Kind:          models.TransactionKindCommissionCredit,
				Amount:        dec("1000"),
				Status:        models.TransactionStatusPending,
				ReferralLevel: &level,
				AvailableAt:   &availableAt,
			})
			require.NoError(t, err)

			report, err := f.engine.Release(t.Context(), now.Add(24*time.Hour))

			require.NoError(t, err)
			require.Equal(t, ReleaseReport{Released: 1, Failed: 1}, report)
			require.True(t, f.wallet(t, a).Withdrawable.Equal(dec("28")), "healthy credit must be released")
		})
	})
}

func TestEngine_ConcurrentRelease(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)
	t.Cleanup(func() { testutil.Truncate(t, pg.Pool) })

	now := time.Now()
	storage := postgres.NewStorage(pg.Pool)
	engine := NewEngine(storage, Config{BatchSize: 3}, notify.Noop{}, logger.NewNoOpLogger())
	engine.now = func() time.Time { return now }
	f := fixture{storage: storage, engine: engine}

	referrer := f.account(t, "1", nil)
	for i := range 10 {
		buyer := f.account(t, "buyer-"+decimal.NewFromInt(int64(i)).String(), &referrer)
		_, err := engine.Process(t.Context(), f.order(t, buyer, "299", false).CommissionEvent())
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	reports := make([]ReleaseReport, 4)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := engine.Release(t.Context(), now.Add(24*time.Hour))
			if err == nil {
				reports[i] = report
			}
		}()
	}
	wg.Wait()

	released := 0
	for _, r := range reports {
		require.Zero(t, r.Failed)
		released += r.Released
	}
	require.Equal(t, 10, released, "every credit must be released exactly once")

	wallet := f.wallet(t, referrer)
	require.True(t, wallet.Withdrawable.Equal(dec("280")), "got %s", wallet.Withdrawable)
	require.True(t, wallet.Pending.IsZero())
}
