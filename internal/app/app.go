// Package app wires the repositories, services and jobs shared by the API
// server and the rentctl command.
package app

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/billing"
	"github.com/nyumbahub/rentals/internal/catalog"
	"github.com/nyumbahub/rentals/internal/config"
	"github.com/nyumbahub/rentals/internal/directory"
	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/internal/notification"
	"github.com/nyumbahub/rentals/internal/payment"
	"github.com/nyumbahub/rentals/internal/payment/latefee"
	"github.com/nyumbahub/rentals/internal/reconcile"
	"github.com/nyumbahub/rentals/internal/scheduler"
)

// App holds the wired components
type App struct {
	Notifications *notification.Service
	Queue         *notification.Queue
	Leases        *lease.Service
	Payments      *payment.Service
	Generator     *billing.Generator
	Reconciler    *reconcile.Job
	Jobs          *scheduler.Jobs
}

// NewLogger builds the process logger from the configured level and format
func NewLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// LateFeePolicy converts the configured late fee rule
func LateFeePolicy(cfg config.PaymentPolicy) (latefee.Policy, error) {
	p := latefee.Policy{
		Type:      latefee.PolicyType(cfg.LateFeePolicy),
		Amount:    cfg.LateFeeAmount,
		Percent:   cfg.LateFeePercent,
		GraceDays: cfg.LateFeeGraceDays,
		Cap:       cfg.LateFeeCap,
	}
	if err := p.Validate(); err != nil {
		return latefee.Policy{}, fmt.Errorf("invalid late fee policy: %w", err)
	}
	return p, nil
}

// New wires every component on db. Notifications go through a queue the
// caller must Start and Stop.
func New(cfg *config.Config, db *sql.DB, logger *logrus.Logger) (*App, error) {
	fees, err := LateFeePolicy(cfg.Payment)
	if err != nil {
		return nil, err
	}
	trusted := make([]payment.Method, 0, len(cfg.Payment.AutoTrustMethods))
	for _, m := range cfg.Payment.AutoTrustMethods {
		method := payment.Method(m)
		if !method.Valid() {
			return nil, fmt.Errorf("unknown payment method %q in AUTO_TRUST_METHODS", m)
		}
		trusted = append(trusted, method)
	}
	loc := cfg.Location()

	users := directory.NewRepository(db)
	notifications := notification.NewService(notification.NewRepository(db), users, notification.NewSMTPMailer(cfg.Notify, logger), logger)
	queue := notification.NewQueue(notifications, cfg.Notify.QueueSize, logger)
	queue.SetEnqueueTimeout(cfg.Notify.EnqueueTimeout)

	leaseRepo := lease.NewRepository(db)
	paymentRepo := payment.NewRepository(db)
	generator := billing.NewGenerator(leaseRepo, paymentRepo, logger)

	leases := lease.NewService(leaseRepo, catalog.NewRepository(db), payment.NewLedger(paymentRepo, fees), generator, queue, lease.Policy{
		RenewalWindowDays:      cfg.Lease.RenewalWindowDays,
		RenewalRequiresDeposit: cfg.Lease.RenewalRequiresDeposit,
		BillOnActivation:       cfg.Lease.BillOnActivation,
		ExpiringSoonDays:       cfg.Lease.ExpiringSoonDays,
		Location:               loc,
	}, logger)
	payments := payment.NewService(paymentRepo, leases, queue, payment.Policy{
		AutoTrustMethods: trusted,
		LateFee:          fees,
		Location:         loc,
	}, logger)

	reconciler := reconcile.NewJob(leases, payments, reconcile.NewReminderRepository(db), queue,
		reconcile.Config{AutoActivate: cfg.Lease.AutoActivate}, logger)

	return &App{
		Notifications: notifications,
		Queue:         queue,
		Leases:        leases,
		Payments:      payments,
		Generator:     generator,
		Reconciler:    reconciler,
		Jobs:          scheduler.NewJobs(generator, reconciler, loc, logger),
	}, nil
}
