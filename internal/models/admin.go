package models

import (
	"time"

	"github.com/google/uuid"
)

// Admin is an operator allowed to process withdrawals and refunds
type Admin struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
}
