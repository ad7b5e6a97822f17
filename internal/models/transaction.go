package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionKindCommissionCredit = "commission_credit"
	TransactionKindWithdrawal       = "withdrawal"
	TransactionKindRefund           = "refund"
	TransactionKindDeduction        = "deduction"
	TransactionKindPurchase         = "purchase"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusCancelled = "cancelled"
)

// LedgerTransaction is an append-only record of a balance-affecting event.
// Amount is signed: credits are positive, debits negative.
// BalanceBefore and BalanceAfter are snapshots of the wallet total and are never updated.
type LedgerTransaction struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	OrderID       *uuid.UUID
	Kind          string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        string
	ReferralLevel *int
	Description   string
	AvailableAt   *time.Time // commission credits only
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Cursor to iterate over releasable transactions in (available_at, id) order
type ReleaseCursor struct {
	AvailableAt time.Time
	ID          uuid.UUID
}

func (c ReleaseCursor) Next(tx LedgerTransaction) ReleaseCursor {
	if tx.AvailableAt == nil {
		return c
	}
	return ReleaseCursor{AvailableAt: *tx.AvailableAt, ID: tx.ID}
}
