package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nyumbahub/rentals/pkg/dates"
)

// Subject types of the reminder log
const (
	SubjectPayment = "payment"
	SubjectLease   = "lease"
)

// Reminder kinds
const (
	KindOverdue    = "overdue"
	KindDueIn7     = "due_in_7"
	KindDueIn3     = "due_in_3"
	KindDueToday   = "due_today"
	KindExpiring30 = "expiring_30"
	KindExpiring14 = "expiring_14"
	KindExpiring7  = "expiring_7"
)

// Reminder is an entry in the log that keeps each reminder to one send
type Reminder struct {
	SubjectType string
	SubjectID   int64
	Kind        string
	SentOn      time.Time
}

// ReminderStore is the reminder log
type ReminderStore interface {
	// Claim records r and reports whether it was not already recorded
	Claim(ctx context.Context, r Reminder) (bool, error)
	Exists(ctx context.Context, r Reminder) (bool, error)
	// Release forgets a claim whose reminder could not be sent
	Release(ctx context.Context, r Reminder) error
}

// ReminderRepository persists the reminder log
type ReminderRepository struct {
	db *sql.DB
}

// NewReminderRepository creates a new reminder repository
func NewReminderRepository(db *sql.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Claim inserts r unless the same subject already received this kind
func (r *ReminderRepository) Claim(ctx context.Context, rem Reminder) (bool, error) {
	query := `
		INSERT INTO reminders (subject_type, subject_id, kind, sent_on)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, rem.SubjectType, rem.SubjectID, rem.Kind, dates.Day(rem.SentOn))
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}
	return n == 1, nil
}

// Exists reports whether rem was already sent
func (r *ReminderRepository) Exists(ctx context.Context, rem Reminder) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM reminders WHERE subject_type = $1 AND subject_id = $2 AND kind = $3)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, rem.SubjectType, rem.SubjectID, rem.Kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reminder: %w", err)
	}
	return exists, nil
}

// Release deletes the log entry of rem
func (r *ReminderRepository) Release(ctx context.Context, rem Reminder) error {
	query := `DELETE FROM reminders WHERE subject_type = $1 AND subject_id = $2 AND kind = $3`
	if _, err := r.db.ExecContext(ctx, query, rem.SubjectType, rem.SubjectID, rem.Kind); err != nil {
		return fmt.Errorf("failed to release reminder: %w", err)
	}
	return nil
}
