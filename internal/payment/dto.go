package payment

import (
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/pkg/dates"
)

// RecordPaymentRequest represents a payment made by or for a tenant
type RecordPaymentRequest struct {
	LeaseID int64 `json:"lease_id" validate:"required"`
	// PaymentID attaches the proof to an existing rent or balance obligation
	PaymentID *int64          `json:"payment_id,omitempty"`
	Kind      Kind            `json:"kind,omitempty" enums:"rent,balance,deposit,other"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string" example:"800000"`
	Method    Method          `json:"payment_method" enums:"mpesa,tigopesa,airtelmoney,halopesa,bank_transfer,cash,cheque"`
	// TransactionReference is the mobile money or bank confirmation code
	TransactionReference string `json:"transaction_reference,omitempty"`
	// DueDate selects the rent period being paid (YYYY-MM-DD); defaults to the current month
	DueDate string `json:"due_date,omitempty"`
	// PaymentDate is when the money was sent (YYYY-MM-DD); defaults to today
	PaymentDate string `json:"payment_date,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// VerifyPaymentRequest confirms or rejects a submitted payment
type VerifyPaymentRequest struct {
	Approve              bool   `json:"approve"`
	TransactionReference string `json:"transaction_reference,omitempty"`
	Notes                string `json:"notes,omitempty"`
}

// CancelPaymentRequest represents the request to cancel a pending payment
type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// UpdateNotesRequest replaces the notes of a payment
type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// PaymentResponse represents the response for a payment
type PaymentResponse struct {
	ID                   int64  `json:"id"`
	LeaseID              int64  `json:"lease_id"`
	TenantID             int64  `json:"tenant_id"`
	OwnerID              int64  `json:"owner_id"`
	Kind                 Kind   `json:"kind"`
	Amount               string `json:"amount"`
	AmountPaid           string `json:"amount_paid"`
	LateFee              string `json:"late_fee"`
	TotalDue             string `json:"total_due"`
	DueDate              string `json:"due_date"`
	Period               string `json:"period"`
	PaymentDate          string `json:"payment_date,omitempty"`
	Method               Method `json:"payment_method"`
	Status               Status `json:"status"`
	PendingVerification  bool   `json:"pending_verification"`
	TransactionReference string `json:"transaction_reference,omitempty"`
	ReceiptNumber        string `json:"receipt_number,omitempty"`
	Notes                string `json:"notes,omitempty"`
	VerifiedBy           *int64 `json:"verified_by,omitempty"`
	VerifiedAt           string `json:"verified_at,omitempty"`
	CreatedAt            string `json:"created_at"`
}

// ToResponse converts a Payment model to a PaymentResponse DTO
func (p *Payment) ToResponse() *PaymentResponse {
	resp := &PaymentResponse{
		ID:                  p.ID,
		LeaseID:             p.LeaseID,
		TenantID:            p.TenantID,
		OwnerID:             p.OwnerID,
		Kind:                p.Kind,
		Amount:              p.Amount.StringFixed(2),
		AmountPaid:          p.AmountPaid.StringFixed(2),
		LateFee:             p.LateFee.StringFixed(2),
		TotalDue:            p.Amount.Add(p.LateFee).StringFixed(2),
		DueDate:             p.DueDate.Format(dates.Layout),
		Period:              p.Period,
		Method:              p.Method,
		Status:              p.Status,
		PendingVerification: p.PendingVerification(),
		ReceiptNumber:       p.ReceiptNumber,
		Notes:               p.Notes,
		VerifiedBy:          p.VerifiedBy,
		CreatedAt:           p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if p.PaymentDate != nil {
		resp.PaymentDate = p.PaymentDate.Format(dates.Layout)
	}
	if p.TransactionReference != nil {
		resp.TransactionReference = *p.TransactionReference
	}
	if p.VerifiedAt != nil {
		resp.VerifiedAt = p.VerifiedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func toResponses(payments []*Payment) []*PaymentResponse {
	out := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		out[i] = p.ToResponse()
	}
	return out
}
