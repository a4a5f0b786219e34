package latefee

import "github.com/shopspring/decimal"

// FlatStrategy charges a single fixed fee once the charge is late
type FlatStrategy struct{}

// Type returns the policy type identifier
func (s *FlatStrategy) Type() PolicyType {
	return PolicyFlat
}

// Validate checks that a non-negative amount is configured
func (s *FlatStrategy) Validate(p Policy) error {
	if p.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Calculate returns the flat amount regardless of how late the charge is
func (s *FlatStrategy) Calculate(rent decimal.Decimal, daysLate int, p Policy) decimal.Decimal {
	if daysLate <= 0 {
		return decimal.Zero
	}
	return p.Amount
}
