package latefee

import "github.com/shopspring/decimal"

// PerDayStrategy charges a fixed amount for every day late
type PerDayStrategy struct{}

// Type returns the policy type identifier
func (s *PerDayStrategy) Type() PolicyType {
	return PolicyPerDay
}

// Validate checks that a positive daily amount is configured
func (s *PerDayStrategy) Validate(p Policy) error {
	if p.Amount.IsZero() {
		return ErrMissingAmount
	}
	if p.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Calculate returns amount * daysLate
func (s *PerDayStrategy) Calculate(rent decimal.Decimal, daysLate int, p Policy) decimal.Decimal {
	if daysLate <= 0 {
		return decimal.Zero
	}
	return p.Amount.Mul(decimal.NewFromInt(int64(daysLate)))
}
