package lease

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/pkg/dates"
)

// CreateLeaseRequest represents the request to create a draft lease
type CreateLeaseRequest struct {
	TenantID         int64           `json:"tenant_id" validate:"required"`
	UnitID           int64           `json:"unit_id" validate:"required"`
	StartDate        string          `json:"start_date" example:"2026-01-01"`
	EndDate          string          `json:"end_date" example:"2026-12-31"`
	RentAmount       decimal.Decimal `json:"rent_amount" swaggertype:"string" example:"800000"`
	DepositAmount    decimal.Decimal `json:"deposit_amount" swaggertype:"string" example:"1600000"`
	DepositPaid      bool            `json:"deposit_paid"`
	PaymentDay       int             `json:"payment_day" example:"5"`
	Terms            string          `json:"terms,omitempty"`
	TermsSw          string          `json:"terms_sw,omitempty"`
	ContractDocument string          `json:"contract_document,omitempty"`
}

// ActivateLeaseRequest represents the request to activate a draft lease
type ActivateLeaseRequest struct {
	// Override activates without a paid deposit (admin only)
	Override bool `json:"override"`
}

// TerminateLeaseRequest represents the request to end a lease early
type TerminateLeaseRequest struct {
	// TerminationDate defaults to today
	TerminationDate string `json:"termination_date,omitempty" example:"2026-06-30"`
	Reason          string `json:"reason"`
	// Damages are deducted from the refundable deposit
	Damages decimal.Decimal `json:"damages" swaggertype:"string" example:"0"`
}

// RenewLeaseRequest represents the request to renew an active lease
type RenewLeaseRequest struct {
	// NewStartDate defaults to the day after the current end date
	NewStartDate  string           `json:"new_start_date,omitempty"`
	NewEndDate    string           `json:"new_end_date" example:"2027-12-31"`
	NewRentAmount *decimal.Decimal `json:"new_rent_amount,omitempty" swaggertype:"string"`
	Terms         *string          `json:"terms,omitempty"`
	TermsSw       *string          `json:"terms_sw,omitempty"`
}

// DepositRequest records that the deposit was received
type DepositRequest struct {
	// PaidOn defaults to today
	PaidOn string `json:"paid_on,omitempty"`
}

// Refund is the deposit refund eligibility of a lease
type Refund struct {
	LeaseID             int64           `json:"lease_id"`
	DepositAmount       decimal.Decimal `json:"deposit_amount"`
	DepositPaid         bool            `json:"deposit_paid"`
	OutstandingLateFees decimal.Decimal `json:"outstanding_late_fees"`
	Damages             decimal.Decimal `json:"damages"`
	Eligible            decimal.Decimal `json:"eligible"`
}

// Termination is the outcome of terminating a lease
type Termination struct {
	Lease             *Lease `json:"lease"`
	Refund            Refund `json:"refund"`
	CancelledPayments int    `json:"cancelled_payments"`
}

// LeaseResponse represents the response for a lease
type LeaseResponse struct {
	ID                int64  `json:"id"`
	TenantID          int64  `json:"tenant_id"`
	UnitID            int64  `json:"unit_id"`
	OwnerID           int64  `json:"owner_id"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	RentAmount        string `json:"rent_amount"`
	DepositAmount     string `json:"deposit_amount"`
	DepositPaid       bool   `json:"deposit_paid"`
	DepositPaidDate   string `json:"deposit_paid_date,omitempty"`
	PaymentDay        int    `json:"payment_day"`
	Status            Status `json:"status"`
	Terms             string `json:"terms,omitempty"`
	TermsSw           string `json:"terms_sw,omitempty"`
	ContractDocument  string `json:"contract_document,omitempty"`
	TerminationDate   string `json:"termination_date,omitempty"`
	TerminationReason string `json:"termination_reason,omitempty"`
	RenewedFromID     *int64 `json:"renewed_from_id,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// RefundResponse represents refund eligibility on the wire
type RefundResponse struct {
	LeaseID             int64  `json:"lease_id"`
	DepositAmount       string `json:"deposit_amount"`
	DepositPaid         bool   `json:"deposit_paid"`
	OutstandingLateFees string `json:"outstanding_late_fees"`
	Damages             string `json:"damages"`
	Eligible            string `json:"eligible"`
}

// TerminationResponse represents the outcome of a termination
type TerminationResponse struct {
	Lease             *LeaseResponse  `json:"lease"`
	Refund            *RefundResponse `json:"refund"`
	CancelledPayments int             `json:"cancelled_payments"`
}

func formatDate(d time.Time) string {
	return d.Format(dates.Layout)
}

// ToResponse converts a Lease model to a LeaseResponse DTO
func (l *Lease) ToResponse() *LeaseResponse {
	resp := &LeaseResponse{
		ID:            l.ID,
		TenantID:      l.TenantID,
		UnitID:        l.UnitID,
		OwnerID:       l.OwnerID,
		StartDate:     formatDate(l.StartDate),
		EndDate:       formatDate(l.EndDate),
		RentAmount:    l.RentAmount.StringFixed(2),
		DepositAmount: l.DepositAmount.StringFixed(2),
		DepositPaid:   l.DepositPaid,
		PaymentDay:    l.PaymentDay,
		Status:        l.Status,
		Terms:         l.Terms,
		TermsSw:       l.TermsSw,
		RenewedFromID: l.RenewedFromID,
		CreatedAt:     l.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:     l.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if l.DepositPaidDate != nil {
		resp.DepositPaidDate = formatDate(*l.DepositPaidDate)
	}
	if l.ContractDocument != nil {
		resp.ContractDocument = *l.ContractDocument
	}
	if l.TerminationDate != nil {
		resp.TerminationDate = formatDate(*l.TerminationDate)
	}
	if l.TerminationReason != nil {
		resp.TerminationReason = *l.TerminationReason
	}
	return resp
}

// ToResponse converts a Refund to its wire form
func (r Refund) ToResponse() *RefundResponse {
	return &RefundResponse{
		LeaseID:             r.LeaseID,
		DepositAmount:       r.DepositAmount.StringFixed(2),
		DepositPaid:         r.DepositPaid,
		OutstandingLateFees: r.OutstandingLateFees.StringFixed(2),
		Damages:             r.Damages.StringFixed(2),
		Eligible:            r.Eligible.StringFixed(2),
	}
}
