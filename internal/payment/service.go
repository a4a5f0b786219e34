package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/internal/notification"
	"github.com/nyumbahub/rentals/internal/payment/latefee"
	"github.com/nyumbahub/rentals/pkg/apperr"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// Common errors
var (
	ErrPaymentNotFound = apperr.NotFound("payment not found")
	ErrInvalidAmount   = apperr.Validation("amount must be greater than zero")
	ErrNotAllowed      = apperr.Forbidden("not allowed to act on this payment")
)

// LeaseReader is the part of the lease lifecycle the ledger depends on
type LeaseReader interface {
	Find(ctx context.Context, id int64) (*lease.Lease, error)
	MarkDepositPaid(ctx context.Context, principal directory.Principal, leaseID int64, paidOn time.Time) (*lease.Lease, error)
}

// Policy configures the ledger
type Policy struct {
	// AutoTrustMethods complete immediately instead of waiting for verification
	AutoTrustMethods []Method
	LateFee          latefee.Policy
	Location         *time.Location
}

// Service handles payment business logic
type Service struct {
	repo      Store
	leases    LeaseReader
	notifier  notification.Dispatcher
	policy    Policy
	autoTrust map[Method]bool
	now       func() time.Time
	logger    *logrus.Logger
}

// NewService creates a new payment service
func NewService(repo Store, leases LeaseReader, notifier notification.Dispatcher, policy Policy, logger *logrus.Logger) *Service {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	trusted := make(map[Method]bool, len(policy.AutoTrustMethods))
	for _, m := range policy.AutoTrustMethods {
		trusted[m] = true
	}
	return &Service{
		repo:      repo,
		leases:    leases,
		notifier:  notifier,
		policy:    policy,
		autoTrust: trusted,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) today() time.Time {
	return dates.Day(s.now().In(s.policy.Location))
}

// Record registers money paid against a lease. Rent is attached to the
// obligation for its due date, creating the obligation if the generator has
// not yet run for that period. The submitted amount is kept as reported; a
// rent payment that falls short leaves a balance row once it is confirmed.
func (s *Service) Record(ctx context.Context, principal directory.Principal, req *RecordPaymentRequest) (*Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !req.Method.Valid() {
		return nil, apperr.Validationf("unsupported payment method %q", req.Method)
	}
	kind := req.Kind
	if kind == "" {
		kind = KindRent
	}
	if !kind.Valid() {
		return nil, apperr.Validationf("unsupported payment kind %q", req.Kind)
	}
	if kind == KindBalance && req.PaymentID == nil {
		return nil, apperr.Validation("payment_id is required to pay a balance")
	}

	l, err := s.leases.Find(ctx, req.LeaseID)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && principal.UserID != l.TenantID && principal.UserID != l.OwnerID {
		return nil, ErrNotAllowed
	}

	switch kind {
	case KindDeposit:
		if l.Status != lease.StatusDraft && l.Status != lease.StatusActive {
			return nil, apperr.Validation("deposits can only be recorded against a draft or active lease")
		}
		if l.DepositPaid {
			return nil, apperr.Precondition("deposit has already been paid")
		}
	case KindOther:
		if l.Status != lease.StatusActive {
			return nil, apperr.Validation("payments can only be recorded against an active lease")
		}
	default:
		// a renewed lease is still billed up to its successor's floor
		if l.Status != lease.StatusActive && l.Status != lease.StatusRenewed {
			return nil, apperr.Validation("rent can only be recorded against an active or renewed lease")
		}
	}

	today := s.today()
	paidOn := today
	if req.PaymentDate != "" {
		if paidOn, err = dates.Parse(req.PaymentDate); err != nil {
			return nil, apperr.Validation("payment_date must be YYYY-MM-DD")
		}
		if paidOn.After(today) {
			return nil, apperr.Validation("payment_date cannot be in the future")
		}
	}

	var (
		p       *Payment
		created bool
	)
	if kind.Owed() {
		p, created, err = s.rentObligation(ctx, l, req, today)
		if err != nil {
			return nil, err
		}
	} else {
		p = &Payment{
			LeaseID:  l.ID,
			TenantID: l.TenantID,
			OwnerID:  l.OwnerID,
			Kind:     kind,
			Amount:   req.Amount,
			DueDate:  today,
			Period:   strings.ToUpper(string(kind[:1])) + string(kind[1:]),
			Status:   StatusPending,
			LateFee:  decimal.Zero,
		}
		created = true
	}

	p.AmountPaid = req.Amount
	p.Method = req.Method
	p.PaymentDate = &paidOn
	p.AwaitingVerification = true
	if ref := strings.TrimSpace(req.TransactionReference); ref != "" {
		p.TransactionReference = &ref
	}
	p.Notes = appendNote(p.Notes, req.Notes)

	if created {
		if p, err = s.repo.Create(ctx, p); err != nil {
			return nil, err
		}
	} else if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	if s.autoTrust[req.Method] {
		if err := s.approve(ctx, p, nil); err != nil {
			return nil, err
		}
		return p, nil
	}
	notification.Notify(ctx, s.notifier, s.logger, notification.EventPaymentSubmitted, p.OwnerID, s.payload(p, ""))
	return p, nil
}

// rentObligation finds the rent or balance row a payment settles, or prepares
// a new rent obligation when none has been generated yet
func (s *Service) rentObligation(ctx context.Context, l *lease.Lease, req *RecordPaymentRequest, today time.Time) (*Payment, bool, error) {
	var (
		existing *Payment
		due      time.Time
		err      error
	)

	switch {
	case req.PaymentID != nil:
		if existing, err = s.repo.GetByID(ctx, *req.PaymentID); err != nil {
			return nil, false, err
		}
		if existing == nil || existing.LeaseID != l.ID || !existing.Kind.Owed() {
			return nil, false, apperr.Validation("payment_id does not name a rent obligation of this lease")
		}
	case req.DueDate != "":
		if due, err = dates.Parse(req.DueDate); err != nil {
			return nil, false, apperr.Validation("due_date must be YYYY-MM-DD")
		}
		due = l.DueDate(due.Year(), due.Month())
	default:
		due = l.DueDate(today.Year(), today.Month())
	}

	if existing == nil && req.PaymentID == nil {
		if existing, err = s.repo.FindObligation(ctx, l.ID, due); err != nil {
			return nil, false, err
		}
	}

	if existing != nil {
		if existing.Status != StatusPending {
			return nil, false, apperr.InvalidState(fmt.Sprintf("payment for %s is already %s", existing.Period, existing.Status))
		}
		if existing.AwaitingVerification {
			return nil, false, apperr.InvalidState(fmt.Sprintf("payment for %s is already awaiting verification", existing.Period))
		}
		return existing, false, nil
	}

	if !l.Billable(due) {
		return nil, false, apperr.Validation("due date " + due.Format(dates.Layout) + " is not billable under this lease")
	}
	return &Payment{
		LeaseID:        l.ID,
		TenantID:       l.TenantID,
		OwnerID:        l.OwnerID,
		Kind:           KindRent,
		Amount:         l.RentAmount,
		DueDate:        due,
		Period:         PeriodLabel(due),
		Status:         StatusPending,
		IdempotencyKey: uuid.NullUUID{UUID: ObligationKey(l.ID, due), Valid: true},
		LateFee:        decimal.Zero,
	}, true, nil
}

// Verify confirms or rejects submitted proof. A rejected payment fails; when
// it was rent or a balance, the amount stays owed on a fresh pending row.
func (s *Service) Verify(ctx context.Context, principal directory.Principal, id int64, req *VerifyPaymentRequest) (*Payment, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && principal.UserID != p.OwnerID {
		return nil, apperr.Forbidden("only the owner or an admin can verify payments")
	}

	target := StatusFailed
	if req.Approve {
		target = StatusCompleted
	}
	if _, err := Transition(p.Status, target); err != nil {
		return nil, err
	}
	if !p.AwaitingVerification {
		return nil, apperr.InvalidState("no payment has been submitted for " + p.Period)
	}

	var verifier *int64
	if principal.UserID != 0 {
		uid := principal.UserID
		verifier = &uid
	}
	p.Notes = appendNote(p.Notes, req.Notes)

	if req.Approve {
		if ref := strings.TrimSpace(req.TransactionReference); ref != "" {
			p.TransactionReference = &ref
		}
		if err := s.approve(ctx, p, verifier); err != nil {
			return nil, err
		}
		return p, nil
	}

	reason := strings.TrimSpace(req.Notes)
	if reason == "" {
		reason = "not confirmed by the owner"
	}
	if err := s.reject(ctx, p, verifier, reason); err != nil {
		return nil, err
	}
	return p, nil
}

// approve completes p and opens a balance row for any shortfall on rent
func (s *Service) approve(ctx context.Context, p *Payment, verifier *int64) error {
	if err := s.complete(p, verifier); err != nil {
		return err
	}
	balance := s.balanceFor(p)
	created, err := s.repo.Settle(ctx, p, balance)
	if err != nil {
		return err
	}
	s.afterCompletion(ctx, p)
	if created != nil {
		s.logger.WithFields(logrus.Fields{
			"payment_id": p.ID,
			"balance_id": created.ID,
			"balance":    created.Amount.StringFixed(2),
		}).Info("rent settled short, balance opened")
	}
	return nil
}

// reject fails p. Rent and balances are reissued so the amount stays owed;
// the reissued row takes over the obligation key.
func (s *Service) reject(ctx context.Context, p *Payment, verifier *int64, reason string) error {
	now := s.now()
	p.Status = StatusFailed
	p.AwaitingVerification = false
	p.LateFee = decimal.Zero
	p.VerifiedBy, p.VerifiedAt = verifier, &now

	var reissue *Payment
	if p.Kind.Owed() {
		reissue = &Payment{
			LeaseID:        p.LeaseID,
			TenantID:       p.TenantID,
			OwnerID:        p.OwnerID,
			Kind:           p.Kind,
			Amount:         p.Amount,
			DueDate:        p.DueDate,
			Period:         p.Period,
			Status:         StatusPending,
			IdempotencyKey: p.IdempotencyKey,
			LateFee:        decimal.Zero,
			Notes:          fmt.Sprintf("reissued after payment %d was rejected", p.ID),
		}
		fee, err := ComputeLateFee(reissue, s.today(), s.policy.LateFee)
		if err != nil {
			return fmt.Errorf("failed to compute late fee: %w", err)
		}
		reissue.LateFee = fee
		p.IdempotencyKey = uuid.NullUUID{}
	}

	if _, err := s.repo.Settle(ctx, p, reissue); err != nil {
		return err
	}
	notification.Notify(ctx, s.notifier, s.logger, notification.EventPaymentRejected, p.TenantID, s.payload(p, reason))
	return nil
}

// balanceFor returns the pending row for what a completed rent or balance
// payment left unpaid, or nil when it was paid in full
func (s *Service) balanceFor(p *Payment) *Payment {
	short := p.Shortfall()
	if !p.Kind.Owed() || !short.IsPositive() {
		return nil
	}
	due := s.today()
	if p.DueDate.After(due) {
		due = p.DueDate
	}
	period := p.Period
	if p.Kind == KindRent {
		period += " balance"
	}
	return &Payment{
		LeaseID:  p.LeaseID,
		TenantID: p.TenantID,
		OwnerID:  p.OwnerID,
		Kind:     KindBalance,
		Amount:   short,
		DueDate:  due,
		Period:   period,
		Status:   StatusPending,
		LateFee:  decimal.Zero,
		Notes:    fmt.Sprintf("remainder of payment %d", p.ID),
	}
}

// complete settles p: payment date, frozen late fee and receipt number
func (s *Service) complete(p *Payment, verifier *int64) error {
	now := s.now()
	today := dates.Day(now.In(s.policy.Location))
	if p.PaymentDate == nil {
		p.PaymentDate = &today
	}
	p.Status = StatusCompleted
	p.AwaitingVerification = false

	fee, err := ComputeLateFee(p, today, s.policy.LateFee)
	if err != nil {
		return fmt.Errorf("failed to compute late fee: %w", err)
	}
	p.LateFee = fee
	p.ReceiptNumber = receiptNumber(now.In(s.policy.Location))
	p.VerifiedBy = verifier
	p.VerifiedAt = &now
	return nil
}

func (s *Service) afterCompletion(ctx context.Context, p *Payment) {
	if p.Kind == KindDeposit {
		if _, err := s.leases.MarkDepositPaid(ctx, directory.System, p.LeaseID, *p.PaymentDate); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"payment_id": p.ID,
				"lease_id":   p.LeaseID,
			}).Error("deposit payment completed but lease was not updated")
		}
	}
	notification.Notify(ctx, s.notifier, s.logger, notification.EventPaymentReceived, p.TenantID, s.payload(p, ""))
}

// Cancel withdraws a pending payment
func (s *Service) Cancel(ctx context.Context, principal directory.Principal, id int64, reason string) (*Payment, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && principal.UserID != p.OwnerID {
		return nil, apperr.Forbidden("only the owner or an admin can cancel payments")
	}

	next, err := Transition(p.Status, StatusCancelled)
	if err != nil {
		return nil, err
	}
	p.Status = next
	p.AwaitingVerification = false
	p.Notes = appendNote(p.Notes, reason)

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateNotes replaces the notes of a payment. Notes are the only field that
// may change after completion.
func (s *Service) UpdateNotes(ctx context.Context, principal directory.Principal, id int64, notes string) (*Payment, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && principal.UserID != p.OwnerID {
		return nil, ErrNotAllowed
	}

	p.Notes = strings.TrimSpace(notes)
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID retrieves a payment visible to the principal
func (s *Service) GetByID(ctx context.Context, principal directory.Principal, id int64) (*Payment, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && principal.UserID != p.TenantID && principal.UserID != p.OwnerID {
		return nil, ErrNotAllowed
	}
	return p, nil
}

// Pending lists unsettled payments
func (s *Service) Pending(ctx context.Context, principal directory.Principal) ([]*Payment, error) {
	return s.repo.List(ctx, scoped(principal, Filter{Statuses: []Status{StatusPending}}))
}

// PendingVerification lists pending payments whose proof awaits confirmation
func (s *Service) PendingVerification(ctx context.Context, principal directory.Principal) ([]*Payment, error) {
	awaiting := true
	return s.repo.List(ctx, scoped(principal, Filter{
		Statuses:             []Status{StatusPending},
		AwaitingVerification: &awaiting,
	}))
}

// Overdue lists pending payments due before evaluationDate, oldest first
func (s *Service) Overdue(ctx context.Context, principal directory.Principal, evaluationDate time.Time) ([]*Payment, error) {
	eval := dates.Day(evaluationDate)
	return s.repo.List(ctx, scoped(principal, Filter{
		Statuses:  []Status{StatusPending},
		DueBefore: &eval,
	}))
}

// DueOn lists pending payments due on the given date
func (s *Service) DueOn(ctx context.Context, principal directory.Principal, day time.Time) ([]*Payment, error) {
	d := dates.Day(day)
	return s.repo.List(ctx, scoped(principal, Filter{
		Statuses: []Status{StatusPending},
		DueOn:    &d,
	}))
}

// ListByLease lists all payments of a lease visible to the principal
func (s *Service) ListByLease(ctx context.Context, principal directory.Principal, leaseID int64) ([]*Payment, error) {
	l, err := s.leases.Find(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !principal.IsStaff() && principal.UserID != l.TenantID && principal.UserID != l.OwnerID {
		return nil, ErrNotAllowed
	}
	return s.repo.List(ctx, Filter{LeaseID: leaseID})
}

// AccrueLateFee recomputes and stores the late fee of a pending payment
func (s *Service) AccrueLateFee(ctx context.Context, p *Payment, evaluationDate time.Time) (decimal.Decimal, error) {
	fee, err := ComputeLateFee(p, evaluationDate, s.policy.LateFee)
	if err != nil {
		return decimal.Zero, err
	}
	if fee.Equal(p.LateFee) {
		return fee, nil
	}
	if err := s.repo.UpdateLateFee(ctx, p.ID, fee); err != nil {
		return decimal.Zero, err
	}
	p.LateFee = fee
	return fee, nil
}

func (s *Service) get(ctx context.Context, id int64) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) payload(p *Payment, reason string) notification.Payload {
	amount := p.Amount
	if p.Status == StatusCompleted && p.AmountPaid.IsPositive() {
		amount = p.AmountPaid
	}
	return notification.Payload{
		EntityType:    notification.EntityPayment,
		EntityID:      p.ID,
		LeaseID:       p.LeaseID,
		Amount:        amount,
		Date:          p.DueDate,
		Period:        p.Period,
		ReceiptNumber: p.ReceiptNumber,
		Reason:        reason,
	}
}

// scoped restricts f to what the principal may see
func scoped(principal directory.Principal, f Filter) Filter {
	switch principal.Role {
	case directory.RoleTenant:
		f.TenantID = principal.UserID
	case directory.RoleOwner:
		f.OwnerID = principal.UserID
	}
	return f
}

// receiptNumber formats RCP-YYYYMMDDhhmm-NNNN
func receiptNumber(now time.Time) string {
	return fmt.Sprintf("RCP-%s-%04d", now.Format("200601021504"), 1000+rand.IntN(9000))
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	}
	return existing + "\n" + note
}
