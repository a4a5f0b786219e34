package latefee

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPolicy_Fee(t *testing.T) {
	rent := dec("800000")
	due := day("2026-01-05")

	tests := []struct {
		name   string
		policy Policy
		ref    string
		want   string
	}{
		{"flat late", Policy{Type: PolicyFlat, Amount: dec("5000")}, "2026-01-10", "5000"},
		{"flat on due date", Policy{Type: PolicyFlat, Amount: dec("5000")}, "2026-01-05", "0"},
		{"flat before due date", Policy{Type: PolicyFlat, Amount: dec("5000")}, "2026-01-01", "0"},
		{"flat within grace", Policy{Type: PolicyFlat, Amount: dec("5000"), GraceDays: 5}, "2026-01-10", "0"},
		{"flat after grace", Policy{Type: PolicyFlat, Amount: dec("5000"), GraceDays: 5}, "2026-01-11", "5000"},
		{"percent per day", Policy{Type: PolicyPercentPerDay, Percent: dec("0.5")}, "2026-01-10", "20000"},
		{"percent capped", Policy{Type: PolicyPercentPerDay, Percent: dec("0.5"), Cap: dec("15000")}, "2026-01-10", "15000"},
		{"per day", Policy{Type: PolicyPerDay, Amount: dec("1000")}, "2026-01-08", "3000"},
		{"per day grace counts from end of grace", Policy{Type: PolicyPerDay, Amount: dec("1000"), GraceDays: 2}, "2026-01-08", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := tt.policy.Fee(rent, due, day(tt.ref))
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(fee), "got %s want %s", fee, tt.want)
		})
	}
}

func TestPolicy_FeeIsDeterministic(t *testing.T) {
	p := Policy{Type: PolicyPercentPerDay, Percent: dec("1.25")}
	a, err := p.Fee(dec("333333"), day("2026-03-01"), day("2026-03-09"))
	require.NoError(t, err)
	b, err := p.Fee(dec("333333"), day("2026-03-01"), day("2026-03-09"))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, "33333.3", a.String())
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, Policy{Type: PolicyFlat, Amount: dec("5000")}.Validate())
	assert.ErrorIs(t, Policy{Type: PolicyFlat, Amount: dec("-1")}.Validate(), ErrNegativeAmount)
	assert.ErrorIs(t, Policy{Type: PolicyPercentPerDay}.Validate(), ErrMissingPercent)
	assert.ErrorIs(t, Policy{Type: PolicyPercentPerDay, Percent: dec("101")}.Validate(), ErrPercentTooLarge)
	assert.ErrorIs(t, Policy{Type: PolicyPerDay}.Validate(), ErrMissingAmount)
	assert.ErrorIs(t, Policy{Type: PolicyFlat, GraceDays: -1}.Validate(), ErrNegativeGrace)
	assert.Error(t, Policy{Type: "weekly"}.Validate())
}

func TestFactory_Create(t *testing.T) {
	f := NewFactory()
	for _, pt := range []PolicyType{PolicyFlat, PolicyPercentPerDay, PolicyPerDay} {
		s, err := f.Create(pt)
		require.NoError(t, err)
		assert.Equal(t, pt, s.Type())
	}
	_, err := f.Create("unknown")
	assert.Error(t, err)
}
