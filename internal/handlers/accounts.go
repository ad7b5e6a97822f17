package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/service/account"
)

type accountResponse struct {
	ExternalID    string          `json:"external_id"`
	Username      string          `json:"username,omitempty"`
	ReferralCode  string          `json:"referral_code"`
	ReferralLevel int             `json:"referral_level"`
	Referred      bool            `json:"referred"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	TotalOrders   int             `json:"total_orders"`
	CreatedAt     time.Time       `json:"created_at"`
}

func newAccountResponse(a models.Account) accountResponse {
	return accountResponse{
		ExternalID:    a.ExternalID,
		Username:      a.Username,
		ReferralCode:  a.ReferralCode,
		ReferralLevel: a.ReferralLevel,
		Referred:      a.ReferredBy != nil,
		TotalSpent:    a.TotalSpent,
		TotalOrders:   a.TotalOrders,
		CreatedAt:     a.CreatedAt,
	}
}

func handleRegisterAccount(accounts accountService, l logger.Logger) http.Handler {
	type request struct {
		ExternalID   string `json:"external_id" validate:"required,max=64"`
		Username     string `json:"username" validate:"max=64"`
		ReferralCode string `json:"referral_code" validate:"max=80"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		a, err := accounts.Register(r.Context(), account.RegisterParams{
			ExternalID:   data.ExternalID,
			Username:     data.Username,
			ReferralCode: data.ReferralCode,
		})
		if err != nil {
			serviceError(w, err, l, "Failed to register account")
			return
		}

		render.JSON(w, newAccountResponse(a))
	})
}

func handleGetAccount(accounts accountService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		render.JSON(w, newAccountResponse(a))
	})
}
