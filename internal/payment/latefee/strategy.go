// Package latefee computes late fees for rent obligations. Fees are pure
// functions of the rent amount, the number of days late and a Policy.
package latefee

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/pkg/dates"
)

// PolicyType identifies a late fee strategy
type PolicyType string

const (
	PolicyFlat          PolicyType = "flat"
	PolicyPercentPerDay PolicyType = "percent_per_day"
	PolicyPerDay        PolicyType = "per_day"
)

// Policy is the configured late fee rule
type Policy struct {
	Type PolicyType `json:"type"`
	// Amount is the flat fee, or the fee per day for per_day
	Amount decimal.Decimal `json:"amount"`
	// Percent of the rent charged per day late for percent_per_day
	Percent   decimal.Decimal `json:"percent"`
	GraceDays int             `json:"grace_days"`
	// Cap bounds the fee when positive
	Cap decimal.Decimal `json:"cap"`
}

// Strategy is the interface that all late fee strategies must implement
type Strategy interface {
	// Calculate returns the fee for a charge that is daysLate chargeable days late
	Calculate(rent decimal.Decimal, daysLate int, p Policy) decimal.Decimal

	// Type returns the type identifier for this strategy
	Type() PolicyType

	// Validate checks that the policy carries what this strategy needs
	Validate(p Policy) error
}

// Factory creates late fee strategies based on the policy type
type Factory struct{}

// NewFactory creates a new factory instance
func NewFactory() *Factory {
	return &Factory{}
}

// Create returns the strategy implementation for policyType
func (f *Factory) Create(policyType PolicyType) (Strategy, error) {
	switch policyType {
	case PolicyFlat:
		return &FlatStrategy{}, nil
	case PolicyPercentPerDay:
		return &PercentPerDayStrategy{}, nil
	case PolicyPerDay:
		return &PerDayStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown late fee policy: %s", policyType)
	}
}

var (
	ErrNegativeAmount  = errors.New("late fee amounts cannot be negative")
	ErrMissingAmount   = errors.New("late fee amount is required")
	ErrMissingPercent  = errors.New("late fee percent is required")
	ErrPercentTooLarge = errors.New("late fee percent must not exceed 100")
	ErrNegativeGrace   = errors.New("grace days cannot be negative")
)

// Validate checks p against its strategy
func (p Policy) Validate() error {
	s, err := NewFactory().Create(p.Type)
	if err != nil {
		return err
	}
	if p.GraceDays < 0 {
		return ErrNegativeGrace
	}
	if p.Cap.IsNegative() {
		return ErrNegativeAmount
	}
	return s.Validate(p)
}

// DaysLate returns the whole days between due and ref, or 0 when ref is not
// after due
func DaysLate(due, ref time.Time) int {
	days := dates.DaysBetween(due, ref)
	if days < 0 {
		return 0
	}
	return days
}

// Fee computes the late fee for rent due on due and settled (or evaluated) on
// ref. Days inside the grace period are never charged.
func (p Policy) Fee(rent decimal.Decimal, due, ref time.Time) (decimal.Decimal, error) {
	s, err := NewFactory().Create(p.Type)
	if err != nil {
		return decimal.Zero, err
	}

	chargeable := DaysLate(due, ref) - p.GraceDays
	if chargeable <= 0 {
		return decimal.Zero, nil
	}

	fee := s.Calculate(rent, chargeable, p).Round(2)
	if p.Cap.IsPositive() && fee.GreaterThan(p.Cap) {
		fee = p.Cap
	}
	return fee, nil
}
