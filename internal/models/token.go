package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken as stored: only the digest of the value handed to the admin is kept
type RefreshToken struct {
	ID        uuid.UUID
	AdminID   uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // set once used or revoked
}

func (t RefreshToken) Used() bool {
	return t.UsedAt != nil
}

func (t RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IssuedToken is a token value handed to an admin
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// MaxAge in whole seconds for cookies, never negative
func (t IssuedToken) MaxAge(now time.Time) int {
	return max(0, int(t.ExpiresAt.Sub(now).Seconds()))
}

// Admin session: short lived JWT plus single use refresh token
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
