package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Referral depth of an account
const (
	LevelRoot     = 0
	LevelDirect   = 1
	LevelIndirect = 2
)

type Account struct {
	ID            uuid.UUID
	ExternalID    string // platform user id, e.g. telegram user id
	Username      string
	ReferralCode  string
	ReferredBy    *uuid.UUID // immutable once set
	ReferralLevel int
	TotalSpent    decimal.Decimal
	TotalOrders   int
	CreatedAt     time.Time
}
