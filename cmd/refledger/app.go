package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/db"
	"github.com/nkiryanov/refledger/internal/handlers"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/notify"
	"github.com/nkiryanov/refledger/internal/repository/postgres"
	"github.com/nkiryanov/refledger/internal/service/account"
	"github.com/nkiryanov/refledger/internal/service/audit"
	"github.com/nkiryanov/refledger/internal/service/auth"
	"github.com/nkiryanov/refledger/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/refledger/internal/service/commission"
	"github.com/nkiryanov/refledger/internal/service/ledger"
	"github.com/nkiryanov/refledger/internal/service/order"
	"github.com/nkiryanov/refledger/internal/service/referral"
	"github.com/nkiryanov/refledger/internal/service/releaser"
	"github.com/nkiryanov/refledger/internal/service/withdrawal"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	pool     *pgxpool.Pool
	releaser *releaser.Processor
	logger   logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	policy, minWithdrawal, err := parseMoneySettings(c)
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(c, logger)
	if err != nil {
		return nil, err
	}

	// Connect to the database and run migrations
	pool, version, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	logger.Info("Database ready", "schema_version", version)

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey, Logger: logger}, storage.Refresh())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, tokenManager, storage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	if err := bootstrapAdmin(ctx, c, authService, logger); err != nil {
		pool.Close()
		return nil, err
	}

	engine := commission.NewEngine(storage, commission.Config{
		Policy:    policy,
		Hold:      c.CommissionHold,
		BatchSize: c.ReleaseBatch,
	}, notifier, logger)

	mux := handlers.NewRouter(handlers.Services{
		Auth:        authService,
		Accounts:    account.NewService(storage, logger),
		Referrals:   referral.NewService(storage),
		Orders:      order.NewService(storage, engine, logger),
		Ledger:      ledger.NewService(storage),
		Withdrawals: withdrawal.NewService(storage, withdrawal.Config{MinAmount: minWithdrawal}, notifier, logger),
		Commissions: engine,
		Audit:       audit.NewService(storage),
		DB:          pool,
	}, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		pool:       pool,
		releaser: releaser.New(engine, releaser.Config{
			Interval:     c.ReleaseInterval,
			CountWorkers: c.ReleaseWorkers,
			BatchSize:    c.ReleaseBatch,
		}, logger),
		logger: logger,
	}, nil
}

func parseMoneySettings(c *Config) (commission.Policy, decimal.Decimal, error) {
	level1, err := decimal.NewFromString(c.CommissionLevel1)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("invalid level 1 commission: %w", err)
	}
	level2, err := decimal.NewFromString(c.CommissionLevel2)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("invalid level 2 commission: %w", err)
	}
	policy, err := commission.NewPolicy(c.CommissionPolicy, level1, level2)
	if err != nil {
		return nil, decimal.Zero, err
	}

	minWithdrawal, err := decimal.NewFromString(c.MinWithdrawal)
	if err != nil || !minWithdrawal.IsPositive() {
		return nil, decimal.Zero, fmt.Errorf("minimum withdrawal must be positive amount, got %q", c.MinWithdrawal)
	}

	return policy, minWithdrawal, nil
}

// Create the configured admin so a fresh installation can be logged in to
func bootstrapAdmin(ctx context.Context, c *Config, authService *auth.AuthService, l logger.Logger) error {
	if c.AdminUsername == "" {
		return nil
	}
	if c.AdminPassword == "" {
		return errors.New("admin password is required when admin username is set")
	}

	admin, created, err := authService.Bootstrap(ctx, c.AdminUsername, c.AdminPassword)
	if err != nil {
		return fmt.Errorf("error while creating admin. Err: %w", err)
	}
	if created {
		l.Info("Admin created", "username", admin.Username, "admin_id", admin.ID)
	}

	return nil
}

func newNotifier(c *Config, l logger.Logger) (notify.Notifier, error) {
	if c.TelegramToken == "" {
		return notify.LogNotifier{Logger: l}, nil
	}

	tg, err := notify.NewTelegramNotifier(c.TelegramToken, c.TelegramAPIURL)
	if err != nil {
		return nil, fmt.Errorf("error while creating telegram notifier. Err: %w", err)
	}
	return tg, nil
}

// Run starts http server with release job and closes them gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.pool.Close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	releaserStopped := s.releaser.Process(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-releaserStopped

	return err
}
