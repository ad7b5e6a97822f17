package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/handlers/adminctx"
	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
)

type orderResponse struct {
	OrderID             string          `json:"order_id"`
	Amount              decimal.Decimal `json:"amount"`
	Status              string          `json:"status"`
	IsWalletPayment     bool            `json:"is_wallet_payment"`
	CommissionEligible  bool            `json:"commission_eligible"`
	CommissionProcessed bool            `json:"commission_processed"`
	CreatedAt           time.Time       `json:"created_at"`
	PaidAt              *time.Time      `json:"paid_at,omitempty"`
	RefundedAt          *time.Time      `json:"refunded_at,omitempty"`
}

func newOrderResponse(o models.Order) orderResponse {
	return orderResponse{
		OrderID:             o.PublicID,
		Amount:              o.Amount,
		Status:              o.Status,
		IsWalletPayment:     o.IsWalletPayment,
		CommissionEligible:  o.CommissionEligible,
		CommissionProcessed: o.CommissionProcessed,
		CreatedAt:           o.CreatedAt,
		PaidAt:              o.PaidAt,
		RefundedAt:          o.RefundedAt,
	}
}

func handleCreateOrder(accounts accountService, orders orderService, l logger.Logger) http.Handler {
	type request struct {
		ExternalID      string          `json:"external_id" validate:"required"`
		Amount          decimal.Decimal `json:"amount" validate:"money"`
		IsWalletPayment bool            `json:"is_wallet_payment"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := accounts.GetByExternalID(r.Context(), data.ExternalID)
		if err != nil {
			serviceError(w, err, l, "Failed to get account")
			return
		}

		o, err := orders.Create(r.Context(), account.ID, data.Amount, data.IsWalletPayment)
		if err != nil {
			serviceError(w, err, l, "Failed to create order")
			return
		}

		render.JSONWithStatus(w, newOrderResponse(o), http.StatusCreated)
	})
}

func handleGetOrder(orders orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o, err := orders.Get(r.Context(), r.PathValue("order_id"))
		if err != nil {
			serviceError(w, err, l, "Failed to get order")
			return
		}

		render.JSON(w, newOrderResponse(o))
	})
}

func handlePaymentSuccess(orders orderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o, err := orders.PaymentSucceeded(r.Context(), r.PathValue("order_id"))
		if err != nil {
			serviceError(w, err, l, "Failed to process payment")
			return
		}

		render.JSON(w, newOrderResponse(o))
	})
}

func handleRefundOrder(orders orderService, l logger.Logger) http.Handler {
	type response struct {
		Order              orderResponse   `json:"order"`
		ReversedCount      int             `json:"reversed_count"`
		ReversedAmount     decimal.Decimal `json:"reversed_amount"`
		WalletRefundAmount decimal.Decimal `json:"wallet_refund_amount"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, _ := adminctx.FromContext(r.Context())

		refund, err := orders.Refund(r.Context(), r.PathValue("order_id"), admin.ID)
		if err != nil {
			serviceError(w, err, l, "Failed to refund order")
			return
		}

		res := response{
			Order:              newOrderResponse(refund.Order),
			ReversedCount:      len(refund.Reversals),
			ReversedAmount:     decimal.Zero,
			WalletRefundAmount: decimal.Zero,
		}
		for _, tx := range refund.Reversals {
			res.ReversedAmount = res.ReversedAmount.Add(tx.Amount.Abs())
		}
		if refund.WalletRefund != nil {
			res.WalletRefundAmount = refund.WalletRefund.Amount
		}

		render.JSON(w, res)
	})
}
