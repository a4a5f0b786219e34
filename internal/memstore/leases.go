// Package memstore implements the lease, payment and reminder stores in
// memory for service and job tests. No Postgres required.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/pkg/apperr"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// LeaseStore implements lease.Store
type LeaseStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]lease.Lease
	now    func() time.Time
}

// NewLeaseStore creates an empty LeaseStore
func NewLeaseStore() *LeaseStore {
	return &LeaseStore{rows: make(map[int64]lease.Lease), now: time.Now}
}

func open(s lease.Status) bool {
	return s == lease.StatusDraft || s == lease.StatusActive
}

// unitTaken mirrors leases_unit_open_idx
func (s *LeaseStore) unitTaken(unitID, exceptID int64) bool {
	for id, row := range s.rows {
		if id != exceptID && row.UnitID == unitID && open(row.Status) {
			return true
		}
	}
	return false
}

func (s *LeaseStore) insert(l *lease.Lease) (*lease.Lease, error) {
	if open(l.Status) && s.unitTaken(l.UnitID, 0) {
		return nil, lease.ErrUnitOccupied
	}
	s.nextID++
	row := *l
	row.ID = s.nextID
	row.Version = 1
	row.CreatedAt = s.now()
	row.UpdatedAt = row.CreatedAt
	s.rows[row.ID] = row
	out := row
	return &out, nil
}

func (s *LeaseStore) update(l *lease.Lease) error {
	row, ok := s.rows[l.ID]
	if !ok || row.Version != l.Version {
		return lease.ErrStale
	}
	if open(l.Status) && s.unitTaken(row.UnitID, l.ID) {
		return lease.ErrUnitOccupied
	}
	row.Status = l.Status
	row.DepositPaid = l.DepositPaid
	row.DepositPaidDate = l.DepositPaidDate
	row.TerminationDate = l.TerminationDate
	row.TerminationReason = l.TerminationReason
	row.Version++
	row.UpdatedAt = s.now()
	s.rows[l.ID] = row

	l.Version = row.Version
	l.UpdatedAt = row.UpdatedAt
	return nil
}

// Create inserts a new lease
func (s *LeaseStore) Create(_ context.Context, l *lease.Lease) (*lease.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(l)
}

// GetByID returns nil when the lease does not exist
func (s *LeaseStore) GetByID(_ context.Context, id int64) (*lease.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// Update saves the lifecycle fields of l, guarded by its version
func (s *LeaseStore) Update(_ context.Context, l *lease.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(l)
}

// Renew saves source and inserts next atomically
func (s *LeaseStore) Renew(_ context.Context, source, next *lease.Lease) (*lease.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[source.ID]
	if !ok {
		return nil, apperr.NotFound("lease not found")
	}
	if err := s.update(source); err != nil {
		return nil, err
	}
	created, err := s.insert(next)
	if err != nil {
		s.rows[source.ID] = row
		source.Version, source.UpdatedAt = row.Version, row.UpdatedAt
		return nil, err
	}
	return created, nil
}

// List returns leases matching f ordered by end date
func (s *LeaseStore) List(_ context.Context, f lease.Filter) ([]*lease.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*lease.Lease
	for _, row := range s.rows {
		if match(row, f) {
			r := row
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].EndDate.Before(out[j].EndDate)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, f.Limit, f.Offset), nil
}

// Billable lists active and renewed leases overlapping the period
func (s *LeaseStore) Billable(_ context.Context, periodStart, periodEnd time.Time) ([]*lease.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := dates.Day(periodStart), dates.Day(periodEnd)
	var out []*lease.Lease
	for _, row := range s.rows {
		if row.Status != lease.StatusActive && row.Status != lease.StatusRenewed {
			continue
		}
		if row.StartDate.After(end) || row.EndDate.Before(start) {
			continue
		}
		r := row
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func match(l lease.Lease, f lease.Filter) bool {
	switch {
	case f.TenantID != 0 && l.TenantID != f.TenantID,
		f.OwnerID != 0 && l.OwnerID != f.OwnerID,
		f.UnitID != 0 && l.UnitID != f.UnitID,
		f.EndsOnOrBefore != nil && l.EndDate.After(dates.Day(*f.EndsOnOrBefore)),
		f.EndsAfter != nil && !l.EndDate.After(dates.Day(*f.EndsAfter)),
		f.StartsOnOrBefore != nil && l.StartDate.After(dates.Day(*f.StartsOnOrBefore)),
		f.DepositPaid != nil && l.DepositPaid != *f.DepositPaid:
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if l.Status == st {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return items
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
