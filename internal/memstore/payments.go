package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/internal/payment"
	"github.com/nyumbahub/rentals/pkg/apperr"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// PaymentStore implements payment.Store
type PaymentStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]payment.Payment
	fail   map[int64]error
	now    func() time.Time
}

// NewPaymentStore creates an empty PaymentStore
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		rows: make(map[int64]payment.Payment),
		fail: make(map[int64]error),
		now:  time.Now,
	}
}

// FailObligations makes CreateObligation return err for the lease
func (s *PaymentStore) FailObligations(leaseID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[leaseID] = err
}

// conflict mirrors the unique indexes of the payments table
func (s *PaymentStore) conflict(p *payment.Payment) error {
	for id, row := range s.rows {
		if id == p.ID {
			continue
		}
		if p.Kind == payment.KindRent && row.Kind == payment.KindRent &&
			p.Status != payment.StatusFailed && row.Status != payment.StatusFailed &&
			row.LeaseID == p.LeaseID && row.DueDate.Equal(dates.Day(p.DueDate)) {
			return apperr.Conflict("payment already exists")
		}
		if p.IdempotencyKey.Valid && row.IdempotencyKey.Valid && row.IdempotencyKey.UUID == p.IdempotencyKey.UUID {
			return apperr.Conflict("payment already exists")
		}
		if p.TransactionReference != nil && row.TransactionReference != nil &&
			*row.TransactionReference == *p.TransactionReference {
			return payment.ErrDuplicateReference
		}
	}
	return nil
}

func (s *PaymentStore) insert(p *payment.Payment) (*payment.Payment, error) {
	candidate := *p
	candidate.ID = 0
	if err := s.conflict(&candidate); err != nil {
		return nil, err
	}
	s.nextID++
	row := *p
	row.ID = s.nextID
	row.DueDate = dates.Day(row.DueDate)
	row.Version = 1
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	s.rows[row.ID] = row
	out := row
	return &out, nil
}

// Create inserts a new payment
func (s *PaymentStore) Create(_ context.Context, p *payment.Payment) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(p)
}

// CreateObligation inserts p unless its obligation exists
func (s *PaymentStore) CreateObligation(_ context.Context, p *payment.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail[p.LeaseID]; err != nil {
		return false, err
	}
	created, err := s.insert(p)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return false, nil
		}
		return false, err
	}
	p.ID = created.ID
	return true, nil
}

// GetByID returns nil when the payment does not exist
func (s *PaymentStore) GetByID(_ context.Context, id int64) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// FindObligation returns the live rent obligation of a lease for a due date
func (s *PaymentStore) FindObligation(_ context.Context, leaseID int64, dueDate time.Time) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due := dates.Day(dueDate)
	for _, row := range s.rows {
		if row.LeaseID == leaseID && row.Kind == payment.KindRent &&
			row.Status != payment.StatusFailed && row.DueDate.Equal(due) {
			r := row
			return &r, nil
		}
	}
	return nil, nil
}

// Update saves p, guarded by its version
func (s *PaymentStore) Update(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(p)
}

// Settle saves p and inserts followUp as one step
func (s *PaymentStore) Settle(_ context.Context, p *payment.Payment, followUp *payment.Payment) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.rows[p.ID]
	version, updatedAt := p.Version, p.UpdatedAt
	if err := s.update(p); err != nil {
		return nil, err
	}
	if followUp == nil {
		return nil, nil
	}
	created, err := s.insert(followUp)
	if err != nil {
		if ok {
			s.rows[p.ID] = before
		}
		p.Version, p.UpdatedAt = version, updatedAt
		return nil, err
	}
	return created, nil
}

func (s *PaymentStore) update(p *payment.Payment) error {
	row, ok := s.rows[p.ID]
	if !ok || row.Version != p.Version {
		return payment.ErrStale
	}
	if err := s.conflict(p); err != nil {
		return err
	}
	row.PaymentDate = p.PaymentDate
	row.Method = p.Method
	row.Status = p.Status
	row.AwaitingVerification = p.AwaitingVerification
	row.TransactionReference = p.TransactionReference
	row.ReceiptNumber = p.ReceiptNumber
	row.LateFee = p.LateFee
	row.AmountPaid = p.AmountPaid
	row.IdempotencyKey = p.IdempotencyKey
	row.Notes = p.Notes
	row.VerifiedBy = p.VerifiedBy
	row.VerifiedAt = p.VerifiedAt
	row.Version++
	row.UpdatedAt = s.now()
	s.rows[p.ID] = row

	p.Version = row.Version
	p.UpdatedAt = row.UpdatedAt
	return nil
}

// List returns payments matching f, oldest due date first
func (s *PaymentStore) List(_ context.Context, f payment.Filter) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*payment.Payment
	for _, row := range s.rows {
		if matchPayment(row, f) {
			r := row
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Limit, f.Offset), nil
}

// UpdateLateFee stores the late fee of a pending payment
func (s *PaymentStore) UpdateLateFee(_ context.Context, id int64, fee decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != payment.StatusPending || row.LateFee.Equal(fee) {
		return nil
	}
	row.LateFee = fee
	row.UpdatedAt = s.now()
	s.rows[id] = row
	return nil
}

// LastDueDate returns the latest rent due date of a lease, or nil
func (s *PaymentStore) LastDueDate(_ context.Context, leaseID int64) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, row := range s.rows {
		if row.LeaseID != leaseID || row.Kind != payment.KindRent {
			continue
		}
		if last == nil || row.DueDate.After(*last) {
			d := row.DueDate
			last = &d
		}
	}
	return last, nil
}

// CancelPendingAfter cancels pending rent obligations due after the date
func (s *PaymentStore) CancelPendingAfter(_ context.Context, leaseID int64, after time.Time, note string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	after = dates.Day(after)
	n := 0
	for id, row := range s.rows {
		if row.LeaseID != leaseID || row.Kind != payment.KindRent ||
			row.Status != payment.StatusPending || !row.DueDate.After(after) {
			continue
		}
		row.Status = payment.StatusCancelled
		row.AwaitingVerification = false
		if row.Notes == "" {
			row.Notes = note
		} else {
			row.Notes += "\n" + note
		}
		row.Version++
		row.UpdatedAt = s.now()
		s.rows[id] = row
		n++
	}
	return n, nil
}

func matchPayment(p payment.Payment, f payment.Filter) bool {
	switch {
	case f.LeaseID != 0 && p.LeaseID != f.LeaseID,
		f.TenantID != 0 && p.TenantID != f.TenantID,
		f.OwnerID != 0 && p.OwnerID != f.OwnerID,
		f.Kind != "" && p.Kind != f.Kind,
		f.AwaitingVerification != nil && p.AwaitingVerification != *f.AwaitingVerification,
		f.DueBefore != nil && !p.DueDate.Before(dates.Day(*f.DueBefore)),
		f.DueOn != nil && !p.DueDate.Equal(dates.Day(*f.DueOn)):
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if p.Status == st {
			return true
		}
	}
	return false
}
