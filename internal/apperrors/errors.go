package apperrors

import (
	"errors"
)

var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrReferralCodeTaken    = errors.New("referral code already taken")

	// Non-fatal: signup proceeds without attribution
	ErrReferrerNotFound = errors.New("referrer not found")

	ErrAdminAlreadyExists = errors.New("admin already exists")
	ErrAdminNotFound      = errors.New("admin not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrAccessTokenInvalid   = errors.New("access token is missing or invalid")

	ErrWalletNotFound                  = errors.New("wallet not found")
	ErrInvalidAmount                   = errors.New("amount must be positive")
	ErrInsufficientPendingBalance      = errors.New("insufficient pending balance")
	ErrInsufficientWithdrawableBalance = errors.New("insufficient withdrawable balance")
	ErrInsufficientFunds               = errors.New("insufficient funds")

	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrTransactionNotReleasable  = errors.New("transaction is not releasable")
	ErrCommissionAlreadyCredited = errors.New("commission already credited")

	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPayable    = errors.New("order can not be marked as paid")
	ErrOrderNotRefundable = errors.New("order is not refundable")
	ErrAlreadyRefunded    = errors.New("order already refunded")

	ErrWithdrawalNotFound     = errors.New("withdrawal request not found")
	ErrPendingRequestExists   = errors.New("pending withdrawal request already exists")
	ErrBelowMinimum           = errors.New("amount is below minimum withdrawal")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidPayoutDetails   = errors.New("invalid payout details")
)
