package commission

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	PolicyFixed   = "fixed"
	PolicyPercent = "percent"
)

// Policy computes commission of a referral level for an order amount
type Policy interface {
	Amount(level int, orderAmount decimal.Decimal) decimal.Decimal
}

// Fixed absolute amounts regardless of order price
type FixedPolicy struct {
	Level1 decimal.Decimal
	Level2 decimal.Decimal
}

func (p FixedPolicy) Amount(level int, _ decimal.Decimal) decimal.Decimal {
	switch level {
	case 1:
		return p.Level1
	case 2:
		return p.Level2
	default:
		return decimal.Zero
	}
}

// Percent of the order amount, rounded to paise
type PercentPolicy struct {
	Level1 decimal.Decimal
	Level2 decimal.Decimal
}

func (p PercentPolicy) Amount(level int, orderAmount decimal.Decimal) decimal.Decimal {
	var percent decimal.Decimal
	switch level {
	case 1:
		percent = p.Level1
	case 2:
		percent = p.Level2
	default:
		return decimal.Zero
	}

	return orderAmount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}

// 30% and 10% of the combo product profit
var DefaultPolicy = FixedPolicy{
	Level1: decimal.NewFromInt(28),
	Level2: decimal.NewFromInt(9),
}

func NewPolicy(kind string, level1 decimal.Decimal, level2 decimal.Decimal) (Policy, error) {
	if level1.IsNegative() || level2.IsNegative() {
		return nil, fmt.Errorf("commission must not be negative")
	}

	switch kind {
	case PolicyFixed:
		return FixedPolicy{Level1: level1, Level2: level2}, nil
	case PolicyPercent:
		if level1.GreaterThan(decimal.NewFromInt(100)) || level2.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("commission percent must not exceed 100")
		}
		return PercentPolicy{Level1: level1, Level2: level2}, nil
	default:
		return nil, fmt.Errorf("unknown commission policy %q", kind)
	}
}
