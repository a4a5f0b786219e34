// Package billing materializes monthly rent obligations for billable leases.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/internal/payment"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// LeaseSource lists the leases that may owe rent in a period
type LeaseSource interface {
	Billable(ctx context.Context, periodStart, periodEnd time.Time) ([]*lease.Lease, error)
}

// Obligations stores generated rent obligations
type Obligations interface {
	CreateObligation(ctx context.Context, p *payment.Payment) (bool, error)
	FindObligation(ctx context.Context, leaseID int64, dueDate time.Time) (*payment.Payment, error)
}

// Options tune a generator run
type Options struct {
	DryRun bool
}

// ItemError records a lease that could not be billed
type ItemError struct {
	LeaseID int64  `json:"lease_id"`
	Error   string `json:"error"`
}

// Summary reports the outcome of a run
type Summary struct {
	Period    string      `json:"period"`
	DryRun    bool        `json:"dry_run"`
	Scanned   int         `json:"scanned"`
	Created   int         `json:"created"`
	Skipped   int         `json:"skipped"`
	OutOfTerm int         `json:"out_of_term"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// OK reports whether every lease was processed
func (s Summary) OK() bool {
	return s.Failed == 0
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeExists
	outcomeOutOfTerm
)

// Generator creates at most one pending rent payment per lease and due date
type Generator struct {
	leases      LeaseSource
	obligations Obligations
	logger      *logrus.Logger
}

// NewGenerator creates a new rent obligation generator
func NewGenerator(leases LeaseSource, obligations Obligations, logger *logrus.Logger) *Generator {
	return &Generator{leases: leases, obligations: obligations, logger: logger}
}

// Run bills every billable lease for the month containing evaluationDate.
// Re-running for the same month creates nothing new. A lease that fails is
// logged and counted; the rest of the batch continues.
func (g *Generator) Run(ctx context.Context, evaluationDate time.Time, opts Options) (Summary, error) {
	eval := dates.Day(evaluationDate)
	start, end := dates.MonthStart(eval), dates.MonthEnd(eval)
	summary := Summary{Period: payment.PeriodLabel(eval), DryRun: opts.DryRun}

	leases, err := g.leases.Billable(ctx, start, end)
	if err != nil {
		return summary, fmt.Errorf("failed to list billable leases: %w", err)
	}

	log := g.logger.WithFields(logrus.Fields{"job": "generate_rent", "period": summary.Period, "dry_run": opts.DryRun})
	for _, l := range leases {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++

		res, err := g.bill(ctx, l, eval.Year(), eval.Month(), opts.DryRun)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, ItemError{LeaseID: l.ID, Error: err.Error()})
			log.WithError(err).WithField("lease_id", l.ID).Error("failed to generate rent obligation")
			continue
		}
		switch res {
		case outcomeCreated:
			summary.Created++
			log.WithField("lease_id", l.ID).Debug("rent obligation created")
		case outcomeExists:
			summary.Skipped++
		case outcomeOutOfTerm:
			summary.OutOfTerm++
		}
	}

	log.WithFields(logrus.Fields{
		"scanned":     summary.Scanned,
		"created":     summary.Created,
		"skipped":     summary.Skipped,
		"out_of_term": summary.OutOfTerm,
		"failed":      summary.Failed,
	}).Info("rent generation finished")
	return summary, nil
}

// EnsurePeriod bills l for the month containing on, if that month's due date
// falls within its billable term. It reports whether an obligation was created.
func (g *Generator) EnsurePeriod(ctx context.Context, l *lease.Lease, on time.Time) (bool, error) {
	on = dates.Day(on)
	res, err := g.bill(ctx, l, on.Year(), on.Month(), false)
	return res == outcomeCreated && err == nil, err
}

func (g *Generator) bill(ctx context.Context, l *lease.Lease, year int, month time.Month, dryRun bool) (outcome, error) {
	if l.PaymentDay < 1 || l.PaymentDay > 31 {
		return 0, fmt.Errorf("malformed payment_day %d", l.PaymentDay)
	}
	if !l.RentAmount.IsPositive() {
		return 0, fmt.Errorf("rent amount %s is not positive", l.RentAmount)
	}

	due := l.DueDate(year, month)
	if !l.Billable(due) {
		return outcomeOutOfTerm, nil
	}

	if dryRun {
		existing, err := g.obligations.FindObligation(ctx, l.ID, due)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			return outcomeExists, nil
		}
		return outcomeCreated, nil
	}

	created, err := g.obligations.CreateObligation(ctx, Obligation(l, due))
	if err != nil {
		return 0, err
	}
	if !created {
		return outcomeExists, nil
	}
	return outcomeCreated, nil
}

// Obligation builds the pending rent payment of l for a due date
func Obligation(l *lease.Lease, due time.Time) *payment.Payment {
	return &payment.Payment{
		LeaseID:        l.ID,
		TenantID:       l.TenantID,
		OwnerID:        l.OwnerID,
		Kind:           payment.KindRent,
		Amount:         l.RentAmount,
		DueDate:        due,
		Period:         payment.PeriodLabel(due),
		Status:         payment.StatusPending,
		IdempotencyKey: uuid.NullUUID{UUID: payment.ObligationKey(l.ID, due), Valid: true},
		LateFee:        decimal.Zero,
	}
}
