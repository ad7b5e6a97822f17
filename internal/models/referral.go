package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Referral is a single referrer -> referred relationship event.
// ReferredID is nil for a bare link click without signup.
type Referral struct {
	ID          uuid.UUID
	ReferrerID  uuid.UUID
	ReferredID  *uuid.UUID
	Level       int
	Converted   bool
	ConvertedAt *time.Time
	CreatedAt   time.Time
}

type ReferralStats struct {
	Clicks           int
	TotalReferrals   int
	Level1Referrals  int
	Level2Referrals  int
	Buyers           int
	ConversionRate   decimal.Decimal // percent of referrals that made a purchase
	CommissionEarned decimal.Decimal
	CommissionPaid   decimal.Decimal
	CommissionHeld   decimal.Decimal
}

type ReferralNode struct {
	Account  Account
	Children []ReferralNode
}

type LeaderboardEntry struct {
	Account     Account
	Referrals   int
	Commissions decimal.Decimal
}
