package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AdminActionCreateAdmin       = "admin.create"
	AdminActionApproveWithdrawal = "withdrawal.approve"
	AdminActionPayWithdrawal     = "withdrawal.paid"
	AdminActionRejectWithdrawal  = "withdrawal.reject"
	AdminActionRefundOrder       = "order.refund"
	AdminActionReleaseCommission = "commission.release"
)

const (
	AuditTargetAdmin      = "admin"
	AuditTargetWithdrawal = "withdrawal"
	AuditTargetOrder      = "order"
	AuditTargetCommission = "commission"
)

// AdminAction is an audit record of a mutation made by an admin.
// It is written in the transaction of the mutation, so one never exists without the other.
type AdminAction struct {
	ID         uuid.UUID
	AdminID    uuid.UUID
	Action     string
	TargetType string
	TargetID   string // public id of the target, empty for bulk actions
	Details    map[string]string
	CreatedAt  time.Time
}

// Numbers on the admin dashboard
type DashboardStats struct {
	Accounts                int
	Buyers                  int // accounts with at least one paid order
	ReferredAccounts        int
	PendingWithdrawals      int
	PendingWithdrawalAmount decimal.Decimal
	CommissionPending       decimal.Decimal
	CommissionReleased      decimal.Decimal
	TotalWithdrawn          decimal.Decimal
}
