package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending  = "pending"
	OrderStatusSuccess  = "success"
	OrderStatusFailed   = "failed"
	OrderStatusRefunded = "refunded"
)

type Order struct {
	ID                  uuid.UUID
	PublicID            string
	AccountID           uuid.UUID
	Amount              decimal.Decimal
	Status              string
	IsWalletPayment     bool
	CommissionEligible  bool
	CommissionProcessed bool
	CreatedAt           time.Time
	PaidAt              *time.Time
	RefundedAt          *time.Time
}

// CommissionEvent is produced when an order switched to the successful state
type CommissionEvent struct {
	OrderID        uuid.UUID
	OrderPublicID  string
	PurchaserID    uuid.UUID
	Amount         decimal.Decimal
	IsWalletFunded bool
}

func (o Order) CommissionEvent() CommissionEvent {
	return CommissionEvent{
		OrderID:        o.ID,
		OrderPublicID:  o.PublicID,
		PurchaserID:    o.AccountID,
		Amount:         o.Amount,
		IsWalletFunded: o.IsWalletPayment || !o.CommissionEligible,
	}
}
