package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/models"
)

// Storage gives access to every repository over the same connection or transaction
type Storage interface {
	Account() AccountRepo
	Wallet() WalletRepo
	Ledger() LedgerRepo
	Referral() ReferralRepo
	Order() OrderRepo
	Withdrawal() WithdrawalRepo
	Admin() AdminRepo
	Refresh() RefreshTokenRepo
	Audit() AuditRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	// Nested calls create savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}

// Account repository interface
type AccountRepo interface {
	// Create account
	// Must return apperrors.ErrAccountAlreadyExists if external id is taken
	// Must return apperrors.ErrReferralCodeTaken if referral code is taken
	Create(ctx context.Context, account models.Account) (models.Account, error)

	// Get account by one of its unique keys
	// If account not found must return apperrors.ErrAccountNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetByExternalID(ctx context.Context, externalID string) (models.Account, error)
	GetByReferralCode(ctx context.Context, code string) (models.Account, error)

	// Set referrer only if account has none yet
	// Return false if referrer was already set
	SetReferrer(ctx context.Context, accountID uuid.UUID, referrerID uuid.UUID, level int) (bool, error)

	// Add to lifetime spend and orders counters. Deltas may be negative
	AddSpend(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, orders int) error

	// Accounts directly referred by the account
	ListReferred(ctx context.Context, referrerID uuid.UUID) ([]models.Account, error)
}

// Wallet repository interface
// Every mutation is a single conditional update: it either applies completely or fails with well known error
type WalletRepo interface {
	// Create wallet if not exists and return it
	GetOrCreate(ctx context.Context, accountID uuid.UUID) (models.Wallet, error)

	// If wallet not exists must return apperrors.ErrWalletNotFound
	Get(ctx context.Context, accountID uuid.UUID) (models.Wallet, error)

	// Apply delta if no partition becomes negative
	// If any does must return guardErr
	Apply(ctx context.Context, accountID uuid.UUID, delta models.WalletDelta, guardErr error) (models.WalletChange, error)
}

type ListTransactionsOpts struct {
	Kinds  []string
	Limit  int
	Offset int
}

// Totals recomputed from ledger records of one account
type LedgerTotals struct {
	Balance            decimal.Decimal
	PendingCommission  decimal.Decimal
	EarnedCommission   decimal.Decimal // completed commission credits
	ReversedCommission decimal.Decimal
}

// Ledger repository interface
type LedgerRepo interface {
	// Append transaction
	// Must return apperrors.ErrCommissionAlreadyCredited on duplicate commission for the same order and level
	Create(ctx context.Context, tx models.LedgerTransaction) (models.LedgerTransaction, error)

	// If transaction not found must return apperrors.ErrTransactionNotFound
	Get(ctx context.Context, id uuid.UUID) (models.LedgerTransaction, error)

	// Same as Get but the row is locked until the end of the transaction
	Lock(ctx context.Context, id uuid.UUID) (models.LedgerTransaction, error)

	// Complete pending commission credit with available_at <= now
	// Must return apperrors.ErrTransactionNotReleasable if transaction is not pending or not matured
	Release(ctx context.Context, id uuid.UUID, now time.Time) (models.LedgerTransaction, error)

	// Status transitions; source status must be pending (complete) or not cancelled (cancel)
	// Otherwise must return apperrors.ErrInvalidStateTransition
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (models.LedgerTransaction, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (models.LedgerTransaction, error)

	// Pending commission credits with available_at <= now ordered by (available_at, id) after the cursor
	FindReleasable(ctx context.Context, now time.Time, after models.ReleaseCursor, limit int) ([]models.LedgerTransaction, error)

	// Account history, most recent first
	List(ctx context.Context, accountID uuid.UUID, opts ListTransactionsOpts) ([]models.LedgerTransaction, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID, kind string) ([]models.LedgerTransaction, error)

	// Same as ListByOrder but rows are locked in (created_at, id) order until the end of the transaction
	LockByOrder(ctx context.Context, orderID uuid.UUID, kind string) ([]models.LedgerTransaction, error)

	Totals(ctx context.Context, accountID uuid.UUID) (LedgerTotals, error)
}

// Referral repository interface
type ReferralRepo interface {
	Create(ctx context.Context, referral models.Referral) (models.Referral, error)

	// Convert every unconverted referral of the referred account
	// Return count of converted rows
	MarkConverted(ctx context.Context, referredID uuid.UUID, at time.Time) (int64, error)

	// Counters of referrals made by the account
	Stats(ctx context.Context, referrerID uuid.UUID) (models.ReferralStats, error)

	// Top referrers by commission earned (pending included)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// Order repository interface
type OrderRepo interface {
	Create(ctx context.Context, order models.Order) (models.Order, error)

	// If order not found must return apperrors.ErrOrderNotFound
	// If forUpdate is set the row is locked until the end of the transaction
	GetByPublicID(ctx context.Context, publicID string, forUpdate bool) (models.Order, error)

	// Update order status and the timestamp that matches it
	SetStatus(ctx context.Context, id uuid.UUID, status string, at time.Time) (models.Order, error)

	// Set commission processed flag
	// Return false if the flag has been set already
	MarkCommissionProcessed(ctx context.Context, id uuid.UUID) (bool, error)

	// Count account orders in statuses
	Count(ctx context.Context, accountID uuid.UUID, statuses []string) (int, error)
}

type ListWithdrawalsOpts struct {
	AccountID *uuid.UUID
	Statuses  []string
	Limit     int
	Offset    int
}

// Withdrawal repository interface
type WithdrawalRepo interface {
	// Must return apperrors.ErrPendingRequestExists if account has pending request already
	Create(ctx context.Context, request models.WithdrawalRequest) (models.WithdrawalRequest, error)

	// If request not found must return apperrors.ErrWithdrawalNotFound
	GetByPublicID(ctx context.Context, publicID string) (models.WithdrawalRequest, error)

	HasPending(ctx context.Context, accountID uuid.UUID) (bool, error)

	// Apply update if current status is one of from
	// Must return apperrors.ErrInvalidStateTransition otherwise
	Transition(ctx context.Context, id uuid.UUID, from []string, update models.WithdrawalUpdate) (models.WithdrawalRequest, error)

	// Most recent first
	List(ctx context.Context, opts ListWithdrawalsOpts) ([]models.WithdrawalRequest, error)

	Statistics(ctx context.Context) ([]models.WithdrawalStat, error)
}

// Admin repository interface
type AdminRepo interface {
	// If admin with username exists already has to return error apperrors.ErrAdminAlreadyExists
	CreateAdmin(ctx context.Context, username string, hashedPassword string) (models.Admin, error)

	// If admin not found must return apperrors.ErrAdminNotFound
	GetAdminByID(ctx context.Context, adminID uuid.UUID) (models.Admin, error)
	GetAdminByUsername(ctx context.Context, username string) (models.Admin, error)

	// If admin not found must return apperrors.ErrAdminNotFound
	SetPasswordHash(ctx context.Context, adminID uuid.UUID, hashedPassword string) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token by its digest and mark it used
	// If the token not found must return apperrors.ErrRefreshTokenNotFound
	// If the token is used already must return the token and apperrors.ErrRefreshTokenIsUsed
	GetAndMarkUsed(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Mark every unused token of the admin used. Returns count of revoked tokens
	RevokeAll(ctx context.Context, adminID uuid.UUID) (int64, error)
}

type ListAdminActionsOpts struct {
	AdminID  *uuid.UUID
	Action   string
	TargetID string
	Limit    int
	Offset   int
}

// Audit repository interface: admin actions and admin dashboard reports
type AuditRepo interface {
	// Append action. Has to be called in the transaction of the audited mutation
	Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error)

	// Most recent first. Empty filters match everything
	List(ctx context.Context, opts ListAdminActionsOpts) ([]models.AdminAction, error)

	Dashboard(ctx context.Context) (models.DashboardStats, error)
}
