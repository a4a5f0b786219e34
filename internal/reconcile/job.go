// Package reconcile brings persisted lease and payment state in line with the
// calendar: it expires and activates leases, accrues late fees and sends the
// time-based reminders.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/internal/notification"
	"github.com/nyumbahub/rentals/internal/payment"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// Leases is the lease lifecycle as seen by the job
type Leases interface {
	List(ctx context.Context, principal directory.Principal, f lease.Filter) ([]*lease.Lease, error)
	Expire(ctx context.Context, principal directory.Principal, id int64, evaluationDate time.Time) (*lease.Lease, bool, error)
	Activate(ctx context.Context, principal directory.Principal, id int64, override bool) (*lease.Lease, error)
}

// Payments is the ledger as seen by the job
type Payments interface {
	Overdue(ctx context.Context, principal directory.Principal, evaluationDate time.Time) ([]*payment.Payment, error)
	DueOn(ctx context.Context, principal directory.Principal, day time.Time) ([]*payment.Payment, error)
	AccrueLateFee(ctx context.Context, p *payment.Payment, evaluationDate time.Time) (decimal.Decimal, error)
}

// Config selects optional steps
type Config struct {
	AutoActivate bool
}

// Options tune a run
type Options struct {
	DryRun bool
}

// ItemError records an item the job could not process
type ItemError struct {
	Step    string `json:"step"`
	Subject string `json:"subject"`
	ID      int64  `json:"id"`
	Error   string `json:"error"`
}

// Summary reports the outcome of a run. In a dry run the counters say what
// would have happened.
type Summary struct {
	Date             string      `json:"date"`
	DryRun           bool        `json:"dry_run"`
	Expired          int         `json:"expired"`
	Activated        int         `json:"activated"`
	LateFeesUpdated  int         `json:"late_fees_updated"`
	OverdueReminders int         `json:"overdue_reminders"`
	DueReminders     int         `json:"due_reminders"`
	ExpiringNotices  int         `json:"expiring_notices"`
	Failed           int         `json:"failed"`
	Errors           []ItemError `json:"errors,omitempty"`
}

// OK reports whether every item was processed
func (s Summary) OK() bool {
	return s.Failed == 0
}

var dueOffsets = []struct {
	days int
	kind string
}{
	{7, KindDueIn7},
	{3, KindDueIn3},
	{0, KindDueToday},
}

var expiringOffsets = []struct {
	days int
	kind string
}{
	{30, KindExpiring30},
	{14, KindExpiring14},
	{7, KindExpiring7},
}

// Job is the daily reconciliation. It holds no state between runs and is safe
// to run more than once for the same date.
type Job struct {
	leases    Leases
	payments  Payments
	reminders ReminderStore
	notifier  notification.Dispatcher
	cfg       Config
	logger    *logrus.Logger
}

// NewJob creates a new reconciliation job
func NewJob(leases Leases, payments Payments, reminders ReminderStore, notifier notification.Dispatcher, cfg Config, logger *logrus.Logger) *Job {
	return &Job{
		leases:    leases,
		payments:  payments,
		reminders: reminders,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

type run struct {
	*Job
	eval    time.Time
	dryRun  bool
	summary *Summary
	log     *logrus.Entry
}

// Run reconciles state as of evaluationDate. Item failures are logged and
// counted; only a failed listing or a cancelled context stops the run.
func (j *Job) Run(ctx context.Context, evaluationDate time.Time, opts Options) (Summary, error) {
	eval := dates.Day(evaluationDate)
	summary := Summary{Date: eval.Format(dates.Layout), DryRun: opts.DryRun}
	r := &run{
		Job:     j,
		eval:    eval,
		dryRun:  opts.DryRun,
		summary: &summary,
		log:     j.logger.WithFields(logrus.Fields{"job": "reconcile", "date": summary.Date, "dry_run": opts.DryRun}),
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"expire", r.expire},
		{"activate", r.activate},
		{"overdue", r.overdue},
		{"due_reminders", r.dueReminders},
		{"expiring_notices", r.expiringNotices},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return summary, fmt.Errorf("reconcile %s: %w", step.name, err)
		}
	}

	r.log.WithFields(logrus.Fields{
		"expired":           summary.Expired,
		"activated":         summary.Activated,
		"late_fees_updated": summary.LateFeesUpdated,
		"overdue_reminders": summary.OverdueReminders,
		"due_reminders":     summary.DueReminders,
		"expiring_notices":  summary.ExpiringNotices,
		"failed":            summary.Failed,
	}).Info("reconciliation finished")
	return summary, nil
}

func (r *run) fail(step, subject string, id int64, err error) {
	r.summary.Failed++
	r.summary.Errors = append(r.summary.Errors, ItemError{Step: step, Subject: subject, ID: id, Error: err.Error()})
	r.log.WithError(err).WithFields(logrus.Fields{"step": step, subject + "_id": id}).Error("reconciliation item failed")
}

// expire ends active leases whose end date is before the evaluation date
func (r *run) expire(ctx context.Context) error {
	before := r.eval.AddDate(0, 0, -1)
	leases, err := r.leases.List(ctx, directory.System, lease.Filter{
		Statuses:       []lease.Status{lease.StatusActive},
		EndsOnOrBefore: &before,
	})
	if err != nil {
		return err
	}

	for _, l := range leases {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.dryRun {
			r.summary.Expired++
			continue
		}
		_, changed, err := r.leases.Expire(ctx, directory.System, l.ID, r.eval)
		if err != nil {
			r.fail("expire", SubjectLease, l.ID, err)
			continue
		}
		if changed {
			r.summary.Expired++
		}
	}
	return nil
}

// activate starts draft leases that have begun and whose deposit is paid
func (r *run) activate(ctx context.Context) error {
	if !r.cfg.AutoActivate {
		return nil
	}

	paid := true
	yesterday := r.eval.AddDate(0, 0, -1)
	leases, err := r.leases.List(ctx, directory.System, lease.Filter{
		Statuses:         []lease.Status{lease.StatusDraft},
		StartsOnOrBefore: &r.eval,
		EndsAfter:        &yesterday,
		DepositPaid:      &paid,
	})
	if err != nil {
		return err
	}

	for _, l := range leases {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.dryRun {
			r.summary.Activated++
			continue
		}
		if _, err := r.leases.Activate(ctx, directory.System, l.ID, false); err != nil {
			r.fail("activate", SubjectLease, l.ID, err)
			continue
		}
		r.summary.Activated++
	}
	return nil
}

// overdue refreshes late fees on pending payments past their due date and
// sends each one overdue reminder. Proof submitted by the due date is waiting
// on the owner, not the tenant, so it gets no reminder.
func (r *run) overdue(ctx context.Context) error {
	payments, err := r.payments.Overdue(ctx, directory.System, r.eval)
	if err != nil {
		return err
	}

	for _, p := range payments {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !r.dryRun {
			before := p.LateFee
			fee, err := r.payments.AccrueLateFee(ctx, p, r.eval)
			if err != nil {
				r.fail("overdue", SubjectPayment, p.ID, err)
				continue
			}
			if !fee.Equal(before) {
				r.summary.LateFeesUpdated++
			}
		}

		if paidOnTime(p) {
			continue
		}

		rem := Reminder{SubjectType: SubjectPayment, SubjectID: p.ID, Kind: KindOverdue, SentOn: r.eval}
		send, err := r.claim(ctx, rem)
		if err != nil {
			r.fail("overdue", SubjectPayment, p.ID, err)
			continue
		}
		if !send {
			continue
		}
		if r.dryRun {
			r.summary.OverdueReminders++
			continue
		}

		payload := paymentPayload(p)
		payload.Amount = p.Amount.Add(p.LateFee)
		payload.Days = dates.DaysBetween(p.DueDate, r.eval)
		if err := r.deliver(ctx, rem, message{notification.EventRentOverdue, p.TenantID, payload}); err != nil {
			r.fail("overdue", SubjectPayment, p.ID, err)
			continue
		}
		r.summary.OverdueReminders++
	}
	return nil
}

// paidOnTime reports whether proof for p was submitted by its due date
func paidOnTime(p *payment.Payment) bool {
	return p.AwaitingVerification && p.PaymentDate != nil && !p.PaymentDate.After(p.DueDate)
}

// dueReminders warns tenants 7 and 3 days before rent is due and on the day
func (r *run) dueReminders(ctx context.Context) error {
	for _, off := range dueOffsets {
		day := r.eval.AddDate(0, 0, off.days)
		payments, err := r.payments.DueOn(ctx, directory.System, day)
		if err != nil {
			return err
		}

		for _, p := range payments {
			if err := ctx.Err(); err != nil {
				return err
			}
			if p.AwaitingVerification {
				continue
			}

			rem := Reminder{SubjectType: SubjectPayment, SubjectID: p.ID, Kind: off.kind, SentOn: r.eval}
			send, err := r.claim(ctx, rem)
			if err != nil {
				r.fail("due_reminders", SubjectPayment, p.ID, err)
				continue
			}
			if !send {
				continue
			}
			if r.dryRun {
				r.summary.DueReminders++
				continue
			}

			event := notification.EventRentReminder
			if off.days == 0 {
				event = notification.EventRentDue
			}
			payload := paymentPayload(p)
			payload.Days = off.days
			if err := r.deliver(ctx, rem, message{event, p.TenantID, payload}); err != nil {
				r.fail("due_reminders", SubjectPayment, p.ID, err)
				continue
			}
			r.summary.DueReminders++
		}
	}
	return nil
}

// expiringNotices tells tenants and owners 30, 14 and 7 days before a lease ends
func (r *run) expiringNotices(ctx context.Context) error {
	for _, off := range expiringOffsets {
		end := r.eval.AddDate(0, 0, off.days)
		before := end.AddDate(0, 0, -1)
		leases, err := r.leases.List(ctx, directory.System, lease.Filter{
			Statuses:       []lease.Status{lease.StatusActive},
			EndsAfter:      &before,
			EndsOnOrBefore: &end,
		})
		if err != nil {
			return err
		}

		for _, l := range leases {
			if err := ctx.Err(); err != nil {
				return err
			}

			rem := Reminder{SubjectType: SubjectLease, SubjectID: l.ID, Kind: off.kind, SentOn: r.eval}
			send, err := r.claim(ctx, rem)
			if err != nil {
				r.fail("expiring_notices", SubjectLease, l.ID, err)
				continue
			}
			if !send {
				continue
			}
			if r.dryRun {
				r.summary.ExpiringNotices++
				continue
			}

			payload := notification.Payload{
				EntityType: notification.EntityLease,
				EntityID:   l.ID,
				LeaseID:    l.ID,
				Amount:     l.RentAmount,
				Date:       l.EndDate,
				Days:       off.days,
			}
			err = r.deliver(ctx, rem,
				message{notification.EventLeaseExpiring, l.TenantID, payload},
				message{notification.EventLeaseExpiring, l.OwnerID, payload},
			)
			if err != nil {
				r.fail("expiring_notices", SubjectLease, l.ID, err)
				continue
			}
			r.summary.ExpiringNotices++
		}
	}
	return nil
}

// claim reports whether the reminder should go out. A dry run only checks the
// log.
func (r *run) claim(ctx context.Context, rem Reminder) (bool, error) {
	if r.dryRun {
		exists, err := r.reminders.Exists(ctx, rem)
		return !exists, err
	}
	return r.reminders.Claim(ctx, rem)
}

type message struct {
	event     notification.EventType
	recipient int64
	payload   notification.Payload
}

// deliver hands the messages of a claimed reminder to the dispatcher. If any
// of them is refused the claim is released, so the next run sends it again.
func (r *run) deliver(ctx context.Context, rem Reminder, msgs ...message) error {
	if r.notifier == nil {
		return nil
	}
	var errs error
	for _, m := range msgs {
		if m.recipient == 0 {
			continue
		}
		if err := r.notifier.Send(ctx, m.event, m.recipient, m.payload); err != nil {
			errs = errors.Join(errs, fmt.Errorf("send %s to %d: %w", m.event, m.recipient, err))
		}
	}
	if errs == nil {
		return nil
	}
	if err := r.reminders.Release(ctx, rem); err != nil {
		return errors.Join(errs, err)
	}
	return errs
}

func paymentPayload(p *payment.Payment) notification.Payload {
	return notification.Payload{
		EntityType: notification.EntityPayment,
		EntityID:   p.ID,
		LeaseID:    p.LeaseID,
		Amount:     p.Amount,
		Date:       p.DueDate,
		Period:     p.Period,
	}
}
