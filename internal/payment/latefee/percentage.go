package latefee

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PercentPerDayStrategy charges a percentage of the rent for every day late
type PercentPerDayStrategy struct{}

// Type returns the policy type identifier
func (s *PercentPerDayStrategy) Type() PolicyType {
	return PolicyPercentPerDay
}

// Validate checks the configured percentage
func (s *PercentPerDayStrategy) Validate(p Policy) error {
	if p.Percent.IsZero() {
		return ErrMissingPercent
	}
	if p.Percent.IsNegative() {
		return ErrNegativeAmount
	}
	if p.Percent.GreaterThan(hundred) {
		return ErrPercentTooLarge
	}
	return nil
}

// Calculate returns rent * percent/100 * daysLate
func (s *PercentPerDayStrategy) Calculate(rent decimal.Decimal, daysLate int, p Policy) decimal.Decimal {
	if daysLate <= 0 {
		return decimal.Zero
	}
	return rent.Mul(p.Percent).Div(hundred).Mul(decimal.NewFromInt(int64(daysLate)))
}
