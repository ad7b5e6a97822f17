package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet keeps balances split in partitions.
// Total always equals Pending + Withdrawable + Reserved, where Reserved holds
// funds of withdrawal requests waiting for payout.
type Wallet struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Total          decimal.Decimal
	Pending        decimal.Decimal
	Withdrawable   decimal.Decimal
	Reserved       decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalWithdrawn decimal.Decimal
	UpdatedAt      time.Time
}

// Balanced reports whether partitions sum up to the total and none is negative
func (w Wallet) Balanced() bool {
	for _, v := range []decimal.Decimal{w.Total, w.Pending, w.Withdrawable, w.Reserved, w.TotalEarned, w.TotalWithdrawn} {
		if v.IsNegative() {
			return false
		}
	}

	return w.Total.Equal(w.Pending.Add(w.Withdrawable).Add(w.Reserved))
}

// WalletChange is a wallet state right before and right after a single mutation
type WalletChange struct {
	Before Wallet
	After  Wallet
}

// WalletDelta describes how every partition of the wallet is moved by an operation
type WalletDelta struct {
	Total          decimal.Decimal
	Pending        decimal.Decimal
	Withdrawable   decimal.Decimal
	Reserved       decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalWithdrawn decimal.Decimal
}

// Revert returns the wallet as it was before the delta was applied
func (d WalletDelta) Revert(w Wallet) Wallet {
	w.Total = w.Total.Sub(d.Total)
	w.Pending = w.Pending.Sub(d.Pending)
	w.Withdrawable = w.Withdrawable.Sub(d.Withdrawable)
	w.Reserved = w.Reserved.Sub(d.Reserved)
	w.TotalEarned = w.TotalEarned.Sub(d.TotalEarned)
	w.TotalWithdrawn = w.TotalWithdrawn.Sub(d.TotalWithdrawn)
	return w
}

// Balances recomputed from the ledger
type Reconciliation struct {
	AccountID       uuid.UUID
	Wallet          Wallet
	ExpectedTotal   decimal.Decimal
	ExpectedPending decimal.Decimal
}

func (r Reconciliation) InSync() bool {
	return r.Wallet.Total.Equal(r.ExpectedTotal) && r.Wallet.Pending.Equal(r.ExpectedPending)
}
