package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusApproved  = "approved"
	WithdrawalStatusRejected  = "rejected"
	WithdrawalStatusPaid      = "paid"
	WithdrawalStatusCancelled = "cancelled"
)

const (
	WithdrawalMethodUPI   = "upi"
	WithdrawalMethodBank  = "bank"
	WithdrawalMethodPaytm = "paytm"
)

type PayoutDetails struct {
	UPIID             string
	BankAccount       string
	IFSCCode          string
	AccountHolderName string
}

type WithdrawalRequest struct {
	ID               uuid.UUID
	PublicID         string
	AccountID        uuid.UUID
	TransactionID    *uuid.UUID // ledger record of the reservation
	Amount           decimal.Decimal
	Method           string
	Details          PayoutDetails
	Status           string
	RequestedAt      time.Time
	ApprovedAt       *time.Time
	ApprovedBy       *uuid.UUID
	PaidAt           *time.Time
	PaymentReference string
	RejectionReason  string
	UpdatedAt        time.Time
}

// WithdrawalUpdate is applied on a status transition
// Zero values leave the stored field unchanged
type WithdrawalUpdate struct {
	Status           string
	At               time.Time
	ApprovedBy       *uuid.UUID
	PaymentReference string
	RejectionReason  string
}

type WithdrawalStat struct {
	Status string
	Count  int
	Amount decimal.Decimal
}
