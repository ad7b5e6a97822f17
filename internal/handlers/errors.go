package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
)

type errorMapping struct {
	err     error
	message string
	code    int
}

// Domain errors safe to show to the client
var knownErrors = []errorMapping{
	{apperrors.ErrAccountNotFound, "Account not found", http.StatusNotFound},
	{apperrors.ErrReferrerNotFound, "Referral code not found", http.StatusNotFound},
	{apperrors.ErrOrderNotFound, "Order not found", http.StatusNotFound},
	{apperrors.ErrWithdrawalNotFound, "Withdrawal request not found", http.StatusNotFound},
	{apperrors.ErrWalletNotFound, "Wallet not found", http.StatusNotFound},

	{apperrors.ErrAdminAlreadyExists, "Admin already exists", http.StatusConflict},
	{apperrors.ErrAdminNotFound, "Admin not found", http.StatusUnauthorized},
	{apperrors.ErrRefreshTokenExpired, "Refresh token expired", http.StatusUnauthorized},
	{apperrors.ErrRefreshTokenIsUsed, "Refresh token not found", http.StatusUnauthorized},
	{apperrors.ErrRefreshTokenNotFound, "Refresh token not found", http.StatusUnauthorized},

	{apperrors.ErrInvalidAmount, "Invalid amount", http.StatusBadRequest},
	{apperrors.ErrBelowMinimum, "Amount is below minimum withdrawal", http.StatusBadRequest},
	{apperrors.ErrInvalidPayoutDetails, "Invalid payout details", http.StatusBadRequest},
	{apperrors.ErrInsufficientWithdrawableBalance, "Insufficient withdrawable balance", http.StatusPaymentRequired},
	{apperrors.ErrInsufficientPendingBalance, "Insufficient pending balance", http.StatusConflict},
	{apperrors.ErrPendingRequestExists, "Withdrawal request is pending already", http.StatusConflict},
	{apperrors.ErrInvalidStateTransition, "Operation is not allowed in current state", http.StatusConflict},
	{apperrors.ErrOrderNotPayable, "Order can't be paid", http.StatusConflict},
	{apperrors.ErrOrderNotRefundable, "Order can't be refunded", http.StatusConflict},
	{apperrors.ErrAlreadyRefunded, "Order refunded already", http.StatusConflict},
}

// Render service error for err. Unknown errors and consistency faults are logged and hidden
func serviceError(w http.ResponseWriter, err error, l logger.Logger, msg string) {
	for _, known := range knownErrors {
		if errors.Is(err, known.err) {
			render.ServiceError(w, known.message, known.code)
			return
		}
	}

	l.Error(msg, "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}
