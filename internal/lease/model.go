package lease

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/pkg/dates"
)

// Status represents the lifecycle state of a lease
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
	// StatusRenewed marks a lease that was superseded by a renewal
	StatusRenewed Status = "renewed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusExpired, StatusTerminated, StatusRenewed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusTerminated || s == StatusRenewed
}

// Lease is a time-bounded rent agreement between a tenant and a rental unit
type Lease struct {
	ID                int64           `json:"id"`
	TenantID          int64           `json:"tenant_id"`
	UnitID            int64           `json:"unit_id"`
	OwnerID           int64           `json:"owner_id"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	RentAmount        decimal.Decimal `json:"rent_amount"`
	DepositAmount     decimal.Decimal `json:"deposit_amount"`
	DepositPaid       bool            `json:"deposit_paid"`
	DepositPaidDate   *time.Time      `json:"deposit_paid_date,omitempty"`
	PaymentDay        int             `json:"payment_day"`
	Status            Status          `json:"status"`
	Terms             string          `json:"terms"`
	TermsSw           string          `json:"terms_sw"`
	ContractDocument  *string         `json:"contract_document,omitempty"`
	TerminationDate   *time.Time      `json:"termination_date,omitempty"`
	TerminationReason *string         `json:"termination_reason,omitempty"`
	RenewedFromID     *int64          `json:"renewed_from_id,omitempty"`
	// BillingFloor is the last due date billed under the lease this one renewed.
	// Obligations on or before it belong to the predecessor.
	BillingFloor *time.Time `json:"billing_floor,omitempty"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DueDate returns the rent due date for the given billing month, clamping
// payment_day to the last day of short months
func (l *Lease) DueDate(year int, month time.Month) time.Time {
	return dates.ClampDay(year, month, l.PaymentDay)
}

// Covers reports whether d falls inside the lease term
func (l *Lease) Covers(d time.Time) bool {
	d = dates.Day(d)
	return !d.Before(dates.Day(l.StartDate)) && !d.After(dates.Day(l.EndDate))
}

// Billable reports whether an obligation due on due belongs to this lease
func (l *Lease) Billable(due time.Time) bool {
	if l.Status != StatusActive && l.Status != StatusRenewed {
		return false
	}
	if !l.Covers(due) {
		return false
	}
	if l.BillingFloor != nil && !due.After(dates.Day(*l.BillingFloor)) {
		return false
	}
	return true
}

// Filter narrows lease listings
type Filter struct {
	TenantID int64
	OwnerID  int64
	UnitID   int64
	Statuses []Status
	// EndsOnOrBefore / EndsAfter bound end_date
	EndsOnOrBefore *time.Time
	EndsAfter      *time.Time
	// StartsOnOrBefore bounds start_date
	StartsOnOrBefore *time.Time
	DepositPaid      *bool
	Limit            int
	Offset           int
}
