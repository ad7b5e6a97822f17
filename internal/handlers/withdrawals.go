package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/handlers/adminctx"
	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/service/withdrawal"
)

var withdrawalStatuses = []string{
	models.WithdrawalStatusPending,
	models.WithdrawalStatusApproved,
	models.WithdrawalStatusRejected,
	models.WithdrawalStatusPaid,
	models.WithdrawalStatusCancelled,
}

type withdrawalResponse struct {
	ID               string          `json:"id"`
	ExternalID       string          `json:"external_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Method           string          `json:"method"`
	UPIID            string          `json:"upi_id,omitempty"`
	BankAccount      string          `json:"bank_account,omitempty"`
	IFSCCode         string          `json:"ifsc_code,omitempty"`
	AccountHolder    string          `json:"account_holder_name,omitempty"`
	Status           string          `json:"status"`
	RequestedAt      time.Time       `json:"requested_at"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy       *uuid.UUID      `json:"approved_by,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
}

func newWithdrawalResponse(wr models.WithdrawalRequest) withdrawalResponse {
	return withdrawalResponse{
		ID:               wr.PublicID,
		Amount:           wr.Amount,
		Method:           wr.Method,
		UPIID:            wr.Details.UPIID,
		BankAccount:      wr.Details.BankAccount,
		IFSCCode:         wr.Details.IFSCCode,
		AccountHolder:    wr.Details.AccountHolderName,
		Status:           wr.Status,
		RequestedAt:      wr.RequestedAt,
		ApprovedAt:       wr.ApprovedAt,
		ApprovedBy:       wr.ApprovedBy,
		PaidAt:           wr.PaidAt,
		PaymentReference: wr.PaymentReference,
		RejectionReason:  wr.RejectionReason,
	}
}

func newWithdrawalsResponse(requests []models.WithdrawalRequest) []withdrawalResponse {
	res := make([]withdrawalResponse, 0, len(requests))
	for _, wr := range requests {
		res = append(res, newWithdrawalResponse(wr))
	}
	return res
}

func handleCreateWithdrawal(accounts accountService, withdrawals withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount            decimal.Decimal `json:"amount" validate:"money"`
		Method            string          `json:"method" validate:"required,oneof=upi bank paytm"`
		UPIID             string          `json:"upi_id" validate:"required_if=Method upi,required_if=Method paytm,max=128"`
		BankAccount       string          `json:"bank_account" validate:"required_if=Method bank,max=64"`
		IFSCCode          string          `json:"ifsc_code" validate:"required_if=Method bank,max=32"`
		AccountHolderName string          `json:"account_holder_name" validate:"required_if=Method bank,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wr, err := withdrawals.Create(r.Context(), account.ID, withdrawal.CreateParams{
			Amount: data.Amount,
			Method: data.Method,
			Details: models.PayoutDetails{
				UPIID:             data.UPIID,
				BankAccount:       data.BankAccount,
				IFSCCode:          data.IFSCCode,
				AccountHolderName: data.AccountHolderName,
			},
		})
		if err != nil {
			serviceError(w, err, l, "Failed to create withdrawal request")
			return
		}

		render.JSONWithStatus(w, newWithdrawalResponse(wr), http.StatusCreated)
	})
}

func handleListAccountWithdrawals(accounts accountService, withdrawals withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}

		requests, err := withdrawals.ListForAccount(r.Context(), account.ID, limit, offset)
		if err != nil {
			serviceError(w, err, l, "Failed to list withdrawal requests")
			return
		}

		render.JSON(w, newWithdrawalsResponse(requests))
	})
}

func handleCancelWithdrawal(accounts accountService, withdrawals withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		wr, err := withdrawals.Cancel(r.Context(), r.PathValue("id"), account.ID)
		if err != nil {
			serviceError(w, err, l, "Failed to cancel withdrawal request")
			return
		}

		render.JSON(w, newWithdrawalResponse(wr))
	})
}

func handleListWithdrawals(withdrawals withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}

		statuses := r.URL.Query()["status"]
		for _, status := range statuses {
			if !slices.Contains(withdrawalStatuses, status) {
				render.ServiceError(w, "Unknown withdrawal status", http.StatusBadRequest)
				return
			}
		}

		requests, err := withdrawals.List(r.Context(), statuses, limit, offset)
		if err != nil {
			serviceError(w, err, l, "Failed to list withdrawal requests")
			return
		}

		render.JSON(w, newWithdrawalsResponse(requests))
	})
}

func handleWithdrawalStatistics(withdrawals withdrawalService, l logger.Logger) http.Handler {
	type stat struct {
		Status string          `json:"status"`
		Count  int             `json:"count"`
		Amount decimal.Decimal `json:"amount"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := withdrawals.Statistics(r.Context())
		if err != nil {
			serviceError(w, err, l, "Failed to get withdrawal statistics")
			return
		}

		res := make([]stat, 0, len(stats))
		for _, s := range stats {
			res = append(res, stat{Status: s.Status, Count: s.Count, Amount: s.Amount})
		}
		render.JSON(w, res)
	})
}

func handleApproveWithdrawal(withdrawals withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		PaymentReference string `json:"payment_reference" validate:"max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := adminctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wr, err := withdrawals.Approve(r.Context(), r.PathValue("id"), admin.ID, data.PaymentReference)
		if err != nil {
			serviceError(w, err, l, "Failed to approve withdrawal request")
			return
		}

		render.JSON(w, newWithdrawalResponse(wr))
	})
}

func handleMarkWithdrawalPaid(withdrawals withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		PaymentReference string `json:"payment_reference" validate:"max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := adminctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wr, err := withdrawals.MarkPaid(r.Context(), r.PathValue("id"), admin.ID, data.PaymentReference)
		if err != nil {
			serviceError(w, err, l, "Failed to mark withdrawal request paid")
			return
		}

		render.JSON(w, newWithdrawalResponse(wr))
	})
}

func handleRejectWithdrawal(withdrawals withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := adminctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wr, err := withdrawals.Reject(r.Context(), r.PathValue("id"), admin.ID, data.Reason)
		if err != nil {
			serviceError(w, err, l, "Failed to reject withdrawal request")
			return
		}

		render.JSON(w, newWithdrawalResponse(wr))
	})
}
