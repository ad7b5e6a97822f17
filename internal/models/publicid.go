package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	OrderIDPrefix      = "ORD"
	WithdrawalIDPrefix = "WD"
)

// NewPublicID returns human readable id like ORD20250301A1B2C3D4: prefix, date and 8 random upper hex chars
func NewPublicID(prefix string, at time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generate public id. Err: %w", err)
	}

	return prefix + at.UTC().Format("20060102") + strings.ToUpper(hex.EncodeToString(b)), nil
}
