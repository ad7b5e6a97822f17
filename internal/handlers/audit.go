package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/repository"
)

func handleAuditLogs(audit auditService, l logger.Logger) http.Handler {
	type action struct {
		ID         uuid.UUID         `json:"id"`
		AdminID    uuid.UUID         `json:"admin_id"`
		Action     string            `json:"action"`
		TargetType string            `json:"target_type"`
		TargetID   string            `json:"target_id,omitempty"`
		Details    map[string]string `json:"details"`
		CreatedAt  time.Time         `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}

		query := r.URL.Query()
		opts := repository.ListAdminActionsOpts{
			Action:   query.Get("action"),
			TargetID: query.Get("target_id"),
			Limit:    limit,
			Offset:   offset,
		}
		if v := query.Get("admin_id"); v != "" {
			adminID, err := uuid.Parse(v)
			if err != nil {
				render.ServiceError(w, "Invalid admin id", http.StatusBadRequest)
				return
			}
			opts.AdminID = &adminID
		}

		actions, err := audit.List(r.Context(), opts)
		if err != nil {
			serviceError(w, err, l, "Failed to list admin actions")
			return
		}

		res := make([]action, 0, len(actions))
		for _, a := range actions {
			res = append(res, action{
				ID:         a.ID,
				AdminID:    a.AdminID,
				Action:     a.Action,
				TargetType: a.TargetType,
				TargetID:   a.TargetID,
				Details:    a.Details,
				CreatedAt:  a.CreatedAt,
			})
		}
		render.JSON(w, res)
	})
}

func handleDashboardStats(audit auditService, l logger.Logger) http.Handler {
	type response struct {
		Accounts                int             `json:"accounts"`
		Buyers                  int             `json:"buyers"`
		ReferredAccounts        int             `json:"referred_accounts"`
		PendingWithdrawals      int             `json:"pending_withdrawals"`
		PendingWithdrawalAmount decimal.Decimal `json:"pending_withdrawal_amount"`
		CommissionPending       decimal.Decimal `json:"commission_pending"`
		CommissionReleased      decimal.Decimal `json:"commission_released"`
		TotalWithdrawn          decimal.Decimal `json:"total_withdrawn"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := audit.Dashboard(r.Context())
		if err != nil {
			serviceError(w, err, l, "Failed to get dashboard stats")
			return
		}

		render.JSON(w, response{
			Accounts:                s.Accounts,
			Buyers:                  s.Buyers,
			ReferredAccounts:        s.ReferredAccounts,
			PendingWithdrawals:      s.PendingWithdrawals,
			PendingWithdrawalAmount: s.PendingWithdrawalAmount,
			CommissionPending:       s.CommissionPending,
			CommissionReleased:      s.CommissionReleased,
			TotalWithdrawn:          s.TotalWithdrawn,
		})
	})
}
