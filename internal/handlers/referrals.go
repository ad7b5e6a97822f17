package handlers

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
)

const maxLeaderboardLimit = 100

func handleReferralStats(accounts accountService, referrals referralService, l logger.Logger) http.Handler {
	type response struct {
		ReferralCode     string          `json:"referral_code"`
		Clicks           int             `json:"clicks"`
		TotalReferrals   int             `json:"total_referrals"`
		Level1Referrals  int             `json:"level1_referrals"`
		Level2Referrals  int             `json:"level2_referrals"`
		Buyers           int             `json:"buyers"`
		ConversionRate   decimal.Decimal `json:"conversion_rate"`
		CommissionEarned decimal.Decimal `json:"commission_earned"`
		CommissionPaid   decimal.Decimal `json:"commission_paid"`
		CommissionHeld   decimal.Decimal `json:"commission_held"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		stats, err := referrals.Stats(r.Context(), account.ID)
		if err != nil {
			serviceError(w, err, l, "Failed to get referral stats")
			return
		}

		render.JSON(w, response{
			ReferralCode:     account.ReferralCode,
			Clicks:           stats.Clicks,
			TotalReferrals:   stats.TotalReferrals,
			Level1Referrals:  stats.Level1Referrals,
			Level2Referrals:  stats.Level2Referrals,
			Buyers:           stats.Buyers,
			ConversionRate:   stats.ConversionRate,
			CommissionEarned: stats.CommissionEarned,
			CommissionPaid:   stats.CommissionPaid,
			CommissionHeld:   stats.CommissionHeld,
		})
	})
}

type referralNodeResponse struct {
	ExternalID  string                 `json:"external_id"`
	Username    string                 `json:"username,omitempty"`
	TotalOrders int                    `json:"total_orders"`
	Referrals   []referralNodeResponse `json:"referrals,omitempty"`
}

func newReferralNodeResponse(n models.ReferralNode) referralNodeResponse {
	res := referralNodeResponse{
		ExternalID:  n.Account.ExternalID,
		Username:    n.Account.Username,
		TotalOrders: n.Account.TotalOrders,
	}
	for _, child := range n.Children {
		res.Referrals = append(res.Referrals, newReferralNodeResponse(child))
	}
	return res
}

func handleReferralTree(accounts accountService, referrals referralService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts, l)
		if !ok {
			return
		}

		tree, err := referrals.Tree(r.Context(), account.ID)
		if err != nil {
			serviceError(w, err, l, "Failed to get referral tree")
			return
		}

		render.JSON(w, newReferralNodeResponse(tree))
	})
}

func handleReferralClick(referrals referralService, l logger.Logger) http.Handler {
	type request struct {
		ReferralCode string `json:"referral_code" validate:"required,max=80"`
	}
	type response struct {
		Recorded bool `json:"recorded"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		recorded, err := referrals.RecordClick(r.Context(), data.ReferralCode)
		if err != nil {
			serviceError(w, err, l, "Failed to record referral click")
			return
		}

		render.JSON(w, response{Recorded: recorded})
	})
}

func handleLeaderboard(referrals referralService, l logger.Logger) http.Handler {
	type entry struct {
		Rank        int             `json:"rank"`
		ExternalID  string          `json:"external_id"`
		Username    string          `json:"username,omitempty"`
		Referrals   int             `json:"referrals"`
		Commissions decimal.Decimal `json:"commissions"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxLeaderboardLimit {
				render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		entries, err := referrals.Leaderboard(r.Context(), limit)
		if err != nil {
			serviceError(w, err, l, "Failed to get leaderboard")
			return
		}

		res := make([]entry, 0, len(entries))
		for i, e := range entries {
			res = append(res, entry{
				Rank:        i + 1,
				ExternalID:  e.Account.ExternalID,
				Username:    e.Account.Username,
				Referrals:   e.Referrals,
				Commissions: e.Commissions,
			})
		}
		render.JSON(w, res)
	})
}
