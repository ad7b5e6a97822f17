package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

var transactionKinds = []string{
	models.TransactionKindCommissionCredit,
	models.TransactionKindWithdrawal,
	models.TransactionKindRefund,
	models.TransactionKindDeduction,
	models.TransactionKindPurchase,
}

type walletResponse struct {
	Total          decimal.Decimal `json:"total"`
	Pending        decimal.Decimal `json:"pending"`
	Withdrawable   decimal.Decimal `json:"withdrawable"`
	Reserved       decimal.Decimal `json:"reserved"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newWalletResponse(w models.Wallet) walletResponse {
	return walletResponse{
		Total:          w.Total,
		Pending:        w.Pending,
		Withdrawable:   w.Withdrawable,
		Reserved:       w.Reserved,
		TotalEarned:    w.TotalEarned,
		TotalWithdrawn: w.TotalWithdrawn,
		UpdatedAt:      w.UpdatedAt,
	}
}

func handleGetWallet(accounts accountService, ledger ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		wallet, err := ledger.Wallet(r.Context(), account.ID)
		if err != nil {
			serviceError(w, err, l, "Failed to get wallet")
			return
		}

		render.JSON(w, newWalletResponse(wallet))
	})
}

func handleListTransactions(accounts accountService, ledger ledgerService, l logger.Logger) http.Handler {
	type transaction struct {
		ID            string          `json:"id"`
		Kind          string          `json:"kind"`
		Status        string          `json:"status"`
		Amount        decimal.Decimal `json:"amount"`
		BalanceBefore decimal.Decimal `json:"balance_before"`
		BalanceAfter  decimal.Decimal `json:"balance_after"`
		ReferralLevel *int            `json:"referral_level,omitempty"`
		Description   string          `json:"description"`
		AvailableAt   *time.Time      `json:"available_at,omitempty"`
		CreatedAt     time.Time       `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}

		kinds := r.URL.Query()["kind"]
		for _, kind := range kinds {
			if !slices.Contains(transactionKinds, kind) {
				render.ServiceError(w, "Unknown transaction kind", http.StatusBadRequest)
				return
			}
		}

		history, err := ledger.History(r.Context(), account.ID, repository.ListTransactionsOpts{
			Kinds:  kinds,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			serviceError(w, err, l, "Failed to list transactions")
			return
		}

		res := make([]transaction, 0, len(history))
		for _, tx := range history {
			res = append(res, transaction{
				ID:            tx.ID.String(),
				Kind:          tx.Kind,
				Status:        tx.Status,
				Amount:        tx.Amount,
				BalanceBefore: tx.BalanceBefore,
				BalanceAfter:  tx.BalanceAfter,
				ReferralLevel: tx.ReferralLevel,
				Description:   tx.Description,
				AvailableAt:   tx.AvailableAt,
				CreatedAt:     tx.CreatedAt,
			})
		}
		render.JSON(w, res)
	})
}

func handleReconcile(accounts accountService, ledger ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Wallet          walletResponse  `json:"wallet"`
		ExpectedTotal   decimal.Decimal `json:"expected_total"`
		ExpectedPending decimal.Decimal `json:"expected_pending"`
		InSync          bool            `json:"in_sync"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		rec, err := ledger.Reconcile(r.Context(), account.ID)
		if err != nil {
			serviceError(w, err, l, "Failed to reconcile wallet")
			return
		}

		if !rec.InSync() {
			l.Error("Wallet is out of sync with ledger",
				"account_id", account.ID,
				"total", rec.Wallet.Total,
				"expected_total", rec.ExpectedTotal,
				"pending", rec.Wallet.Pending,
				"expected_pending", rec.ExpectedPending,
			)
		}

		render.JSON(w, response{
			Wallet:          newWalletResponse(rec.Wallet),
			ExpectedTotal:   rec.ExpectedTotal,
			ExpectedPending: rec.ExpectedPending,
			InSync:          rec.InSync(),
		})
	})
}
