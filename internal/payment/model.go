package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/internal/payment/latefee"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// Status represents the settlement state of a payment
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Kind distinguishes rent obligations from other money owed on a lease
type Kind string

const (
	KindRent    Kind = "rent"
	KindDeposit Kind = "deposit"
	KindOther   Kind = "other"
	// KindBalance is the remainder of a rent obligation settled short
	KindBalance Kind = "balance"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindRent || k == KindDeposit || k == KindOther || k == KindBalance
}

// Owed reports whether payments of this kind stay owed until paid in full.
// Rejected proof for them is reissued as a fresh pending row.
func (k Kind) Owed() bool {
	return k == KindRent || k == KindBalance
}

// Method is how the tenant paid
type Method string

const (
	MethodMpesa        Method = "mpesa"
	MethodTigoPesa     Method = "tigopesa"
	MethodAirtelMoney  Method = "airtelmoney"
	MethodHaloPesa     Method = "halopesa"
	MethodBankTransfer Method = "bank_transfer"
	MethodCash         Method = "cash"
	MethodCheque       Method = "cheque"
)

// Valid reports whether m is a supported method
func (m Method) Valid() bool {
	switch m {
	case MethodMpesa, MethodTigoPesa, MethodAirtelMoney, MethodHaloPesa,
		MethodBankTransfer, MethodCash, MethodCheque:
		return true
	}
	return false
}

// Payment is a single amount owed or paid against a lease. Rent payments are
// obligations: at most one live (not failed) row exists per lease and due
// date. Amount is what is owed, AmountPaid what the tenant reported paying.
type Payment struct {
	ID                   int64           `json:"id"`
	LeaseID              int64           `json:"lease_id"`
	TenantID             int64           `json:"tenant_id"`
	OwnerID              int64           `json:"owner_id"`
	Kind                 Kind            `json:"kind"`
	Amount               decimal.Decimal `json:"amount"`
	AmountPaid           decimal.Decimal `json:"amount_paid"`
	DueDate              time.Time       `json:"due_date"`
	Period               string          `json:"period"`
	PaymentDate          *time.Time      `json:"payment_date,omitempty"`
	Method               Method          `json:"payment_method"`
	Status               Status          `json:"status"`
	AwaitingVerification bool            `json:"awaiting_verification"`
	TransactionReference *string         `json:"transaction_reference,omitempty"`
	IdempotencyKey       uuid.NullUUID   `json:"-"`
	ReceiptNumber        string          `json:"receipt_number"`
	LateFee              decimal.Decimal `json:"late_fee"`
	Notes                string          `json:"notes"`
	VerifiedBy           *int64          `json:"verified_by,omitempty"`
	VerifiedAt           *time.Time      `json:"verified_at,omitempty"`
	Version              int             `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// PendingVerification reports whether the tenant submitted proof that still
// needs confirmation
func (p *Payment) PendingVerification() bool {
	return p.Status == StatusPending && p.AwaitingVerification
}

// Shortfall returns how much of Amount the reported payment leaves unpaid
func (p *Payment) Shortfall() decimal.Decimal {
	if p.AmountPaid.GreaterThanOrEqual(p.Amount) {
		return decimal.Zero
	}
	return p.Amount.Sub(p.AmountPaid)
}

// Overdue reports whether the payment is unpaid past its due date
func (p *Payment) Overdue(evaluationDate time.Time) bool {
	return p.Status == StatusPending && dates.Day(p.DueDate).Before(dates.Day(evaluationDate))
}

// Filter narrows payment listings. Results are ordered by due date, oldest
// first.
type Filter struct {
	LeaseID  int64
	TenantID int64
	OwnerID  int64
	Kind     Kind
	Statuses []Status
	// AwaitingVerification filters on the proof flag when set
	AwaitingVerification *bool
	DueBefore            *time.Time
	DueOn                *time.Time
	Limit                int
	Offset               int
}

// obligationNamespace scopes generated idempotency keys
var obligationNamespace = uuid.MustParse("6f1c2b8e-3d7a-5e4f-9a0b-1c2d3e4f5a6b")

// ObligationKey derives the idempotency key for the rent obligation of a lease
// on a due date. The same inputs always yield the same key.
func ObligationKey(leaseID int64, dueDate time.Time) uuid.UUID {
	return uuid.NewSHA1(obligationNamespace, []byte(fmt.Sprintf("%d:%s", leaseID, dates.Day(dueDate).Format(dates.Layout))))
}

// PeriodLabel names the billing period of a due date, e.g. "January 2026"
func PeriodLabel(dueDate time.Time) string {
	return dueDate.Format("January 2006")
}

// ComputeLateFee returns the late fee owed on p as of evaluationDate. A
// payment that has a payment date (completed, or proof submitted) is judged by
// it; an unpaid one by the evaluation date. Cancelled and failed payments carry
// no fee.
func ComputeLateFee(p *Payment, evaluationDate time.Time, policy latefee.Policy) (decimal.Decimal, error) {
	switch p.Status {
	case StatusCancelled, StatusFailed:
		return decimal.Zero, nil
	}

	ref := evaluationDate
	if p.PaymentDate != nil {
		ref = *p.PaymentDate
	}
	return policy.Fee(p.Amount, p.DueDate, ref)
}
