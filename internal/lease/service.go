package lease

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/catalog"
	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/internal/notification"
	"github.com/nyumbahub/rentals/pkg/apperr"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// Common errors
var (
	ErrLeaseNotFound = apperr.NotFound("lease not found")
	ErrNotAllowed    = apperr.Forbidden("not allowed to act on this lease")
)

// Catalog is the property/unit collaborator
type Catalog interface {
	UnitOwner(ctx context.Context, unitID int64) (int64, error)
	SetOccupied(ctx context.Context, unitID int64, occupied bool) error
}

// Ledger is what the lifecycle needs to know about money owed on a lease
type Ledger interface {
	LastDueDate(ctx context.Context, leaseID int64) (*time.Time, error)
	OutstandingLateFees(ctx context.Context, leaseID int64, asOf time.Time) (decimal.Decimal, error)
	CancelPendingAfter(ctx context.Context, leaseID int64, after time.Time) (int, error)
}

// Billing materializes the rent obligation of a period
type Billing interface {
	EnsurePeriod(ctx context.Context, l *Lease, on time.Time) (bool, error)
}

// Policy configures lifecycle rules
type Policy struct {
	RenewalWindowDays      int
	RenewalRequiresDeposit bool
	BillOnActivation       bool
	ExpiringSoonDays       int
	Location               *time.Location
}

// Service coordinates lease transitions with the ledger, the catalog and
// notifications
type Service struct {
	repo     Store
	catalog  Catalog
	ledger   Ledger
	billing  Billing
	notifier notification.Dispatcher
	policy   Policy
	now      func() time.Time
	logger   *logrus.Logger
}

// NewService creates a new lease service. billing may be nil.
func NewService(repo Store, catalog Catalog, ledger Ledger, billing Billing, notifier notification.Dispatcher, policy Policy, logger *logrus.Logger) *Service {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.ExpiringSoonDays <= 0 {
		policy.ExpiringSoonDays = 30
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		ledger:   ledger,
		billing:  billing,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today returns the current date in the configured time zone
func (s *Service) Today() time.Time {
	return dates.Day(s.now().In(s.policy.Location))
}

func canManage(p directory.Principal, l *Lease) bool {
	return p.IsStaff() || (p.Role == directory.RoleOwner && p.UserID == l.OwnerID)
}

func canView(p directory.Principal, l *Lease) bool {
	return p.IsStaff() || p.UserID == l.OwnerID || p.UserID == l.TenantID
}

// Create creates a draft lease for a unit that has no open lease
func (s *Service) Create(ctx context.Context, principal directory.Principal, req *CreateLeaseRequest) (*Lease, error) {
	if principal.Role != directory.RoleOwner && !principal.IsStaff() {
		return nil, apperr.Forbidden("only owners and admins can create leases")
	}
	if req.TenantID <= 0 || req.UnitID <= 0 {
		return nil, apperr.Validation("tenant_id and unit_id are required")
	}

	start, err := dates.Parse(req.StartDate)
	if err != nil {
		return nil, apperr.Validation("start_date must be YYYY-MM-DD")
	}
	end, err := dates.Parse(req.EndDate)
	if err != nil {
		return nil, apperr.Validation("end_date must be YYYY-MM-DD")
	}
	if !end.After(start) {
		return nil, apperr.Validation("end_date must be after start_date")
	}
	if !req.RentAmount.IsPositive() {
		return nil, apperr.Validation("rent_amount must be greater than zero")
	}
	if req.DepositAmount.IsNegative() {
		return nil, apperr.Validation("deposit_amount cannot be negative")
	}
	paymentDay := req.PaymentDay
	if paymentDay == 0 {
		paymentDay = 1
	}
	if paymentDay < 1 || paymentDay > 31 {
		return nil, apperr.Validation("payment_day must be between 1 and 31")
	}

	ownerID, err := s.catalog.UnitOwner(ctx, req.UnitID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnitNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, err, "unit not found")
		}
		return nil, err
	}
	if principal.Role == directory.RoleOwner && principal.UserID != ownerID {
		return nil, apperr.Forbidden("unit belongs to another owner")
	}

	l := &Lease{
		TenantID:      req.TenantID,
		UnitID:        req.UnitID,
		OwnerID:       ownerID,
		StartDate:     start,
		EndDate:       end,
		RentAmount:    req.RentAmount,
		DepositAmount: req.DepositAmount,
		DepositPaid:   req.DepositPaid,
		PaymentDay:    paymentDay,
		Status:        StatusDraft,
		Terms:         req.Terms,
		TermsSw:       req.TermsSw,
	}
	if req.DepositPaid {
		today := s.Today()
		l.DepositPaidDate = &today
	}
	if doc := strings.TrimSpace(req.ContractDocument); doc != "" {
		l.ContractDocument = &doc
	}

	created, err := s.repo.Create(ctx, l)
	if err != nil {
		return nil, err
	}

	s.setOccupied(ctx, created, true)
	s.notify(ctx, notification.EventLeaseCreated, created, created.StartDate, created.TenantID, created.OwnerID)
	return created, nil
}

// Find retrieves a lease without an access check
func (s *Service) Find(ctx context.Context, id int64) (*Lease, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLeaseNotFound
	}
	return l, nil
}

// GetByID retrieves a lease visible to the principal
func (s *Service) GetByID(ctx context.Context, principal directory.Principal, id int64) (*Lease, error) {
	l, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(principal, l) {
		return nil, ErrNotAllowed
	}
	return l, nil
}

// List lists leases visible to the principal
func (s *Service) List(ctx context.Context, principal directory.Principal, f Filter) ([]*Lease, error) {
	switch principal.Role {
	case directory.RoleTenant:
		f.TenantID = principal.UserID
	case directory.RoleOwner:
		f.OwnerID = principal.UserID
	}
	return s.repo.List(ctx, f)
}

// ExpiringSoon lists active leases ending within the given number of days
// (the configured default when within <= 0)
func (s *Service) ExpiringSoon(ctx context.Context, principal directory.Principal, within int) ([]*Lease, error) {
	if within <= 0 {
		within = s.policy.ExpiringSoonDays
	}
	today := s.Today()
	yesterday := today.AddDate(0, 0, -1)
	horizon := today.AddDate(0, 0, within)
	return s.List(ctx, principal, Filter{
		Statuses:       []Status{StatusActive},
		EndsAfter:      &yesterday,
		EndsOnOrBefore: &horizon,
	})
}

// Activate moves a draft lease to active. Only an admin may skip the deposit
// requirement.
func (s *Service) Activate(ctx context.Context, principal directory.Principal, id int64, override bool) (*Lease, error) {
	l, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(principal, l) {
		return nil, ErrNotAllowed
	}
	if override && principal.Role != directory.RoleAdmin {
		return nil, apperr.Forbidden("only an admin can activate without a paid deposit")
	}

	next, err := Transition(l, Command{Action: ActionActivate, Override: override})
	if err != nil {
		return nil, err
	}
	l.Status = next
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}

	today := s.Today()
	s.setOccupied(ctx, l, true)
	if s.policy.BillOnActivation && s.billing != nil {
		if _, err := s.billing.EnsurePeriod(ctx, l, today); err != nil {
			s.logger.WithError(err).WithField("lease_id", l.ID).Error("failed to bill first period on activation")
		}
	}
	s.notify(ctx, notification.EventLeaseActivated, l, today, l.TenantID, l.OwnerID)
	return l, nil
}

// Expire ends an active lease whose end date passed before evaluationDate.
// Expiring a lease that is already terminal changes nothing and reports false.
func (s *Service) Expire(ctx context.Context, principal directory.Principal, id int64, evaluationDate time.Time) (*Lease, bool, error) {
	l, err := s.Find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !principal.IsStaff() {
		return nil, false, ErrNotAllowed
	}

	next, err := Transition(l, Command{Action: ActionExpire, At: evaluationDate})
	if err != nil {
		return nil, false, err
	}
	if next == l.Status {
		return l, false, nil
	}
	l.Status = next
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, false, err
	}

	s.setOccupied(ctx, l, false)
	s.notify(ctx, notification.EventLeaseExpired, l, l.EndDate, l.TenantID, l.OwnerID)
	return l, true, nil
}

// Terminate ends a draft or active lease early. Open rent obligations due after
// the termination date are cancelled and the refundable deposit is reported.
func (s *Service) Terminate(ctx context.Context, principal directory.Principal, id int64, req *TerminateLeaseRequest) (*Termination, error) {
	l, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(principal, l) {
		return nil, ErrNotAllowed
	}
	if req.Damages.IsNegative() {
		return nil, apperr.Validation("damages cannot be negative")
	}

	on := s.Today()
	if req.TerminationDate != "" {
		if on, err = dates.Parse(req.TerminationDate); err != nil {
			return nil, apperr.Validation("termination_date must be YYYY-MM-DD")
		}
	}

	next, err := Transition(l, Command{Action: ActionTerminate, At: on})
	if err != nil {
		return nil, err
	}

	// Rent due after the termination date carries no fee as of that date, so
	// the refund is settled before anything is written.
	refund, err := s.refund(ctx, l, req.Damages, on)
	if err != nil {
		return nil, err
	}

	l.Status = next
	l.TerminationDate = &on
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		l.TerminationReason = &reason
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}

	result := &Termination{Lease: l, Refund: refund}
	if result.CancelledPayments, err = s.ledger.CancelPendingAfter(ctx, l.ID, on); err != nil {
		s.logger.WithError(err).WithField("lease_id", l.ID).Error("failed to cancel rent due after termination")
	}
	s.setOccupied(ctx, l, false)

	reason := ""
	if l.TerminationReason != nil {
		reason = *l.TerminationReason
	}
	payload := s.payload(l, on)
	payload.Reason = reason
	notification.Notify(ctx, s.notifier, s.logger, notification.EventLeaseTerminated, l.TenantID, payload)
	notification.Notify(ctx, s.notifier, s.logger, notification.EventLeaseTerminated, l.OwnerID, payload)
	return result, nil
}

// Renew supersedes an active lease with a new one for the same tenant and unit.
// The successor starts after the source ends and never bills a due date the
// source already billed.
func (s *Service) Renew(ctx context.Context, principal directory.Principal, id int64, req *RenewLeaseRequest) (*Lease, error) {
	source, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(principal, source) {
		return nil, ErrNotAllowed
	}

	today := s.Today()
	next, err := Transition(source, Command{Action: ActionRenew, At: today, RenewalWindowDays: s.policy.RenewalWindowDays})
	if err != nil {
		return nil, err
	}

	start := source.EndDate.AddDate(0, 0, 1)
	if req.NewStartDate != "" {
		if start, err = dates.Parse(req.NewStartDate); err != nil {
			return nil, apperr.Validation("new_start_date must be YYYY-MM-DD")
		}
		if !start.After(source.EndDate) {
			return nil, apperr.Validation("new_start_date must be after the current end date")
		}
	}
	end, err := dates.Parse(req.NewEndDate)
	if err != nil {
		return nil, apperr.Validation("new_end_date must be YYYY-MM-DD")
	}
	if !end.After(start) {
		return nil, apperr.Validation("new_end_date must be after the new start date")
	}
	rent := source.RentAmount
	if req.NewRentAmount != nil {
		rent = *req.NewRentAmount
	}
	if !rent.IsPositive() {
		return nil, apperr.Validation("new_rent_amount must be greater than zero")
	}

	floor, err := s.ledger.LastDueDate(ctx, source.ID)
	if err != nil {
		return nil, err
	}

	sourceID := source.ID
	successor := &Lease{
		TenantID:        source.TenantID,
		UnitID:          source.UnitID,
		OwnerID:         source.OwnerID,
		StartDate:       start,
		EndDate:         end,
		RentAmount:      rent,
		DepositAmount:   source.DepositAmount,
		DepositPaid:     source.DepositPaid,
		DepositPaidDate: source.DepositPaidDate,
		PaymentDay:      source.PaymentDay,
		Status:          StatusActive,
		Terms:           source.Terms,
		TermsSw:         source.TermsSw,
		RenewedFromID:   &sourceID,
		BillingFloor:    floor,
	}
	if req.Terms != nil {
		successor.Terms = *req.Terms
	}
	if req.TermsSw != nil {
		successor.TermsSw = *req.TermsSw
	}
	if s.policy.RenewalRequiresDeposit {
		successor.Status = StatusDraft
		successor.DepositPaid = false
		successor.DepositPaidDate = nil
	}

	prev := source.Status
	source.Status = next
	created, err := s.repo.Renew(ctx, source, successor)
	if err != nil {
		source.Status = prev
		return nil, err
	}

	s.notify(ctx, notification.EventLeaseRenewed, created, created.EndDate, created.TenantID, created.OwnerID)
	return created, nil
}

// MarkDepositPaid records receipt of the deposit. Marking an already paid
// deposit changes nothing.
func (s *Service) MarkDepositPaid(ctx context.Context, principal directory.Principal, id int64, paidOn time.Time) (*Lease, error) {
	l, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(principal, l) {
		return nil, ErrNotAllowed
	}
	if l.DepositPaid {
		return l, nil
	}
	if l.Status != StatusDraft && l.Status != StatusActive {
		return nil, apperr.InvalidState("deposit can only be recorded on a draft or active lease, lease is " + string(l.Status))
	}

	day := dates.Day(paidOn)
	l.DepositPaid = true
	l.DepositPaidDate = &day
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// RefundEligibility reports how much of the deposit can be returned
func (s *Service) RefundEligibility(ctx context.Context, principal directory.Principal, id int64, damages decimal.Decimal) (Refund, error) {
	l, err := s.GetByID(ctx, principal, id)
	if err != nil {
		return Refund{}, err
	}
	if damages.IsNegative() {
		return Refund{}, apperr.Validation("damages cannot be negative")
	}
	return s.refund(ctx, l, damages, s.Today())
}

// refund computes deposit - outstanding late fees - damages, never negative
func (s *Service) refund(ctx context.Context, l *Lease, damages decimal.Decimal, asOf time.Time) (Refund, error) {
	fees, err := s.ledger.OutstandingLateFees(ctx, l.ID, asOf)
	if err != nil {
		return Refund{}, err
	}

	r := Refund{
		LeaseID:             l.ID,
		DepositAmount:       l.DepositAmount,
		DepositPaid:         l.DepositPaid,
		OutstandingLateFees: fees,
		Damages:             damages,
		Eligible:            decimal.Zero,
	}
	if l.DepositPaid {
		r.Eligible = decimal.Max(decimal.Zero, l.DepositAmount.Sub(fees).Sub(damages))
	}
	return r, nil
}

func (s *Service) setOccupied(ctx context.Context, l *Lease, occupied bool) {
	if err := s.catalog.SetOccupied(ctx, l.UnitID, occupied); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"lease_id": l.ID,
			"unit_id":  l.UnitID,
		}).Warn("failed to update unit occupancy")
	}
}

func (s *Service) payload(l *Lease, date time.Time) notification.Payload {
	return notification.Payload{
		EntityType: notification.EntityLease,
		EntityID:   l.ID,
		LeaseID:    l.ID,
		Amount:     l.RentAmount,
		Date:       date,
	}
}

func (s *Service) notify(ctx context.Context, event notification.EventType, l *Lease, date time.Time, recipients ...int64) {
	payload := s.payload(l, date)
	for _, r := range recipients {
		notification.Notify(ctx, s.notifier, s.logger, event, r, payload)
	}
}
