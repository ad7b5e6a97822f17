package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/handlers/middleware"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/metrics"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/service/account"
	"github.com/nkiryanov/refledger/internal/service/commission"
	"github.com/nkiryanov/refledger/internal/service/order"
	"github.com/nkiryanov/refledger/internal/service/withdrawal"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// Services the API is served by
type Services struct {
	Auth        authService
	Accounts    accountService
	Referrals   referralService
	Orders      orderService
	Ledger      ledgerService
	Withdrawals withdrawalService
	Commissions commissionService
	Audit       auditService
	DB          pinger
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	withAdmin := middleware.AuthMiddleware(s.Auth, logger)

	mux := http.NewServeMux()

	mux.Handle("POST /api/accounts", handleRegisterAccount(s.Accounts, logger))
	mux.Handle("GET /api/accounts/{external_id}", handleGetAccount(s.Accounts, logger))
	mux.Handle("GET /api/accounts/{external_id}/referrals/stats", handleReferralStats(s.Accounts, s.Referrals, logger))
	mux.Handle("GET /api/accounts/{external_id}/referrals/tree", handleReferralTree(s.Accounts, s.Referrals, logger))
	mux.Handle("GET /api/accounts/{external_id}/wallet", handleGetWallet(s.Accounts, s.Ledger, logger))
	mux.Handle("GET /api/accounts/{external_id}/wallet/transactions", handleListTransactions(s.Accounts, s.Ledger, logger))
	mux.Handle("POST /api/accounts/{external_id}/withdrawals", handleCreateWithdrawal(s.Accounts, s.Withdrawals, logger))
	mux.Handle("GET /api/accounts/{external_id}/withdrawals", handleListAccountWithdrawals(s.Accounts, s.Withdrawals, logger))
	mux.Handle("POST /api/accounts/{external_id}/withdrawals/{id}/cancel", handleCancelWithdrawal(s.Accounts, s.Withdrawals, logger))

	mux.Handle("POST /api/referrals/click", handleReferralClick(s.Referrals, logger))
	mux.Handle("GET /api/referrals/leaderboard", handleLeaderboard(s.Referrals, logger))

	mux.Handle("POST /api/orders", handleCreateOrder(s.Accounts, s.Orders, logger))
	mux.Handle("GET /api/orders/{order_id}", handleGetOrder(s.Orders, logger))
	mux.Handle("POST /api/orders/{order_id}/payment-success", handlePaymentSuccess(s.Orders, logger))

	mux.Handle("POST /api/admin/register", withAdmin(handleAdminRegister(s.Auth, logger)))
	mux.Handle("POST /api/admin/login", handleAdminLogin(s.Auth, logger))
	mux.Handle("POST /api/admin/refresh", handleAdminRefresh(s.Auth, logger))
	mux.Handle("POST /api/admin/logout", withAdmin(handleAdminLogout(s.Auth, logger)))
	mux.Handle("GET /api/admin/me", withAdmin(handleAdminMe()))
	mux.Handle("GET /api/admin/withdrawals", withAdmin(handleListWithdrawals(s.Withdrawals, logger)))
	mux.Handle("GET /api/admin/withdrawals/statistics", withAdmin(handleWithdrawalStatistics(s.Withdrawals, logger)))
	mux.Handle("POST /api/admin/withdrawals/{id}/approve", withAdmin(handleApproveWithdrawal(s.Withdrawals, logger)))
	mux.Handle("POST /api/admin/withdrawals/{id}/paid", withAdmin(handleMarkWithdrawalPaid(s.Withdrawals, logger)))
	mux.Handle("POST /api/admin/withdrawals/{id}/reject", withAdmin(handleRejectWithdrawal(s.Withdrawals, logger)))
	mux.Handle("POST /api/admin/orders/{order_id}/refund", withAdmin(handleRefundOrder(s.Orders, logger)))
	mux.Handle("POST /api/admin/release", withAdmin(handleRelease(s.Commissions, s.Audit, logger)))
	mux.Handle("GET /api/admin/accounts/{external_id}/reconcile", withAdmin(handleReconcile(s.Accounts, s.Ledger, logger)))
	mux.Handle("GET /api/admin/audit-logs", withAdmin(handleAuditLogs(s.Audit, logger)))
	mux.Handle("GET /api/admin/dashboard/stats", withAdmin(handleDashboardStats(s.Audit, logger)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", handleHealth(s.DB, logger))

	// Metrics go inside logger to label requests by matched pattern
	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
		metrics.Middleware,
	)

	return handler
}

type authService interface {
	// Create admin with username and password on behalf of the creator
	// Has to return apperrors.ErrAdminAlreadyExists if admin already exists
	CreateAdmin(ctx context.Context, creatorID uuid.UUID, username string, password string) (models.Admin, error)

	// Login admin with username and password
	// Has to return apperrors.ErrAdminNotFound if admin not found or password is wrong
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Revoke every refresh token of the admin
	Logout(ctx context.Context, adminID uuid.UUID) error

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Expire refresh cookie on the client
	ClearTokens(w http.ResponseWriter)

	// Get refresh token from request
	GetRefreshString(r *http.Request) (string, error)

	// Get request and return admin if it authenticated or error
	GetAdminFromRequest(ctx context.Context, r *http.Request) (models.Admin, error)
}

type accountService interface {
	Register(ctx context.Context, p account.RegisterParams) (models.Account, error)

	// Has to return apperrors.ErrAccountNotFound if account not found
	GetByExternalID(ctx context.Context, externalID string) (models.Account, error)
}

type referralService interface {
	RecordClick(ctx context.Context, code string) (bool, error)
	Stats(ctx context.Context, accountID uuid.UUID) (models.ReferralStats, error)
	Tree(ctx context.Context, accountID uuid.UUID) (models.ReferralNode, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

type orderService interface {
	Create(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, isWalletPayment bool) (models.Order, error)
	Get(ctx context.Context, publicID string) (models.Order, error)
	PaymentSucceeded(ctx context.Context, publicID string) (models.Order, error)
	Refund(ctx context.Context, publicID string, adminID uuid.UUID) (order.Refund, error)
}

type ledgerService interface {
	Wallet(ctx context.Context, accountID uuid.UUID) (models.Wallet, error)
	History(ctx context.Context, accountID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.LedgerTransaction, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (models.Reconciliation, error)
}

type withdrawalService interface {
	Create(ctx context.Context, accountID uuid.UUID, p withdrawal.CreateParams) (models.WithdrawalRequest, error)
	Cancel(ctx context.Context, publicID string, accountID uuid.UUID) (models.WithdrawalRequest, error)
	Approve(ctx context.Context, publicID string, adminID uuid.UUID, paymentReference string) (models.WithdrawalRequest, error)
	MarkPaid(ctx context.Context, publicID string, adminID uuid.UUID, paymentReference string) (models.WithdrawalRequest, error)
	Reject(ctx context.Context, publicID string, adminID uuid.UUID, reason string) (models.WithdrawalRequest, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.WithdrawalRequest, error)
	List(ctx context.Context, statuses []string, limit int, offset int) ([]models.WithdrawalRequest, error)
	Statistics(ctx context.Context) ([]models.WithdrawalStat, error)
}

type commissionService interface {
	Release(ctx context.Context, now time.Time) (commission.ReleaseReport, error)
}

type auditService interface {
	Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error)
	List(ctx context.Context, opts repository.ListAdminActionsOpts) ([]models.AdminAction, error)
	Dashboard(ctx context.Context) (models.DashboardStats, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}
