package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/internal/payment/latefee"
)

// Ledger answers the questions other lifecycle components ask about the
// money owed on a lease
type Ledger struct {
	repo   Store
	policy latefee.Policy
}

// NewLedger creates a ledger view over repo
func NewLedger(repo Store, policy latefee.Policy) *Ledger {
	return &Ledger{repo: repo, policy: policy}
}

// LastDueDate returns the latest rent due date generated for a lease
func (l *Ledger) LastDueDate(ctx context.Context, leaseID int64) (*time.Time, error) {
	return l.repo.LastDueDate(ctx, leaseID)
}

// OutstandingLateFees sums the late fees still owed on a lease as of asOf.
// Fees on completed payments are frozen at verification and treated as
// settled with the rent.
func (l *Ledger) OutstandingLateFees(ctx context.Context, leaseID int64, asOf time.Time) (decimal.Decimal, error) {
	pending, err := l.repo.List(ctx, Filter{LeaseID: leaseID, Statuses: []Status{StatusPending}})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range pending {
		fee, err := ComputeLateFee(p, asOf, l.policy)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(fee)
	}
	return total, nil
}

// CancelPendingAfter cancels open rent obligations due after a lease ended
func (l *Ledger) CancelPendingAfter(ctx context.Context, leaseID int64, after time.Time) (int, error) {
	return l.repo.CancelPendingAfter(ctx, leaseID, after, "Cancelled: lease ended on "+after.Format("2006-01-02"))
}
