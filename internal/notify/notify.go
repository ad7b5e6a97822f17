package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/logger"
)

// Commission credited to a referrer and held until AvailableAt
type CommissionNotice struct {
	AccountID     uuid.UUID
	ExternalID    string
	Level         int
	Amount        decimal.Decimal
	OrderPublicID string
	AvailableAt   time.Time
}

// Withdrawal request moved to Status
type WithdrawalNotice struct {
	AccountID        uuid.UUID
	ExternalID       string
	PublicID         string
	Amount           decimal.Decimal
	Status           string
	PaymentReference string
	RejectionReason  string
}

// Notifier delivers events to the affected account.
// It is called after the transaction is committed; errors are logged by callers and never roll back anything.
type Notifier interface {
	CommissionCredited(ctx context.Context, n CommissionNotice) error
	WithdrawalStatusChanged(ctx context.Context, n WithdrawalNotice) error
}

// LogNotifier writes events to the log only
type LogNotifier struct {
	Logger logger.Logger
}

func (l LogNotifier) CommissionCredited(_ context.Context, n CommissionNotice) error {
	l.Logger.Info("Commission credited",
		"account_id", n.AccountID,
		"level", n.Level,
		"amount", n.Amount,
		"order", n.OrderPublicID,
		"available_at", n.AvailableAt,
	)
	return nil
}

func (l LogNotifier) WithdrawalStatusChanged(_ context.Context, n WithdrawalNotice) error {
	l.Logger.Info("Withdrawal status changed",
		"account_id", n.AccountID,
		"withdrawal", n.PublicID,
		"amount", n.Amount,
		"status", n.Status,
	)
	return nil
}

type Noop struct{}

func (Noop) CommissionCredited(context.Context, CommissionNotice) error {
	return nil
}

func (Noop) WithdrawalStatusChanged(context.Context, WithdrawalNotice) error {
	return nil
}
