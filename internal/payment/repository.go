package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/nyumbahub/rentals/internal/database"
	"github.com/nyumbahub/rentals/pkg/apperr"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// ErrStale is returned when a payment changed since it was read
var ErrStale = apperr.Conflict("payment was modified concurrently")

// ErrDuplicateReference is returned when a transaction reference is reused
var ErrDuplicateReference = apperr.Validation("transaction reference has already been used")

// Store is the persistence boundary of the ledger
type Store interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	// CreateObligation inserts p unless a rent obligation already exists for its
	// lease and due date. It reports whether a row was inserted.
	CreateObligation(ctx context.Context, p *Payment) (bool, error)
	GetByID(ctx context.Context, id int64) (*Payment, error)
	FindObligation(ctx context.Context, leaseID int64, dueDate time.Time) (*Payment, error)
	// Update saves p if its version is unchanged, or returns ErrStale
	Update(ctx context.Context, p *Payment) error
	// Settle saves p like Update and, in the same transaction, inserts
	// followUp when it is not nil. followUp is returned with its ID set.
	Settle(ctx context.Context, p *Payment, followUp *Payment) (*Payment, error)
	List(ctx context.Context, f Filter) ([]*Payment, error)
	UpdateLateFee(ctx context.Context, id int64, fee decimal.Decimal) error
	LastDueDate(ctx context.Context, leaseID int64) (*time.Time, error)
	CancelPendingAfter(ctx context.Context, leaseID int64, after time.Time, note string) (int, error)
}

const paymentColumns = `id, lease_id, tenant_id, owner_id, kind, amount, amount_paid, due_date, period, payment_date,
		payment_method, status, awaiting_verification, transaction_reference, idempotency_key,
		receipt_number, late_fee, notes, verified_by, verified_at, version, created_at, updated_at`

// Repository handles payment data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new payment repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanPayment(row scanner) (*Payment, error) {
	p := &Payment{}
	err := row.Scan(
		&p.ID,
		&p.LeaseID,
		&p.TenantID,
		&p.OwnerID,
		&p.Kind,
		&p.Amount,
		&p.AmountPaid,
		&p.DueDate,
		&p.Period,
		&p.PaymentDate,
		&p.Method,
		&p.Status,
		&p.AwaitingVerification,
		&p.TransactionReference,
		&p.IdempotencyKey,
		&p.ReceiptNumber,
		&p.LateFee,
		&p.Notes,
		&p.VerifiedBy,
		&p.VerifiedAt,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.DueDate = dates.Day(p.DueDate)
	if p.PaymentDate != nil {
		d := dates.Day(*p.PaymentDate)
		p.PaymentDate = &d
	}
	return p, nil
}

func translate(err error, action string) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		if strings.Contains(constraint, "transaction_reference") {
			return ErrDuplicateReference
		}
		return apperr.Wrap(apperr.KindConflict, err, "payment already exists")
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

const insertPayment = `
		INSERT INTO payments (lease_id, tenant_id, owner_id, kind, amount, amount_paid, due_date, period,
			payment_date, payment_method, status, awaiting_verification, transaction_reference,
			idempotency_key, receipt_number, late_fee, notes, verified_by, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

func insertArgs(p *Payment) []interface{} {
	return []interface{}{
		p.LeaseID, p.TenantID, p.OwnerID, p.Kind, p.Amount, p.AmountPaid, p.DueDate, p.Period, p.PaymentDate,
		p.Method, p.Status, p.AwaitingVerification, p.TransactionReference, p.IdempotencyKey,
		p.ReceiptNumber, p.LateFee, p.Notes, p.VerifiedBy, p.VerifiedAt,
	}
}

// Create inserts a new payment
func (r *Repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	return create(ctx, r.db, p)
}

func create(ctx context.Context, q querier, p *Payment) (*Payment, error) {
	query := insertPayment + ` RETURNING ` + paymentColumns

	created, err := scanPayment(q.QueryRowContext(ctx, query, insertArgs(p)...))
	if err != nil {
		return nil, translate(err, "create payment")
	}
	return created, nil
}

// CreateObligation inserts a generated rent obligation. The unique index on
// (lease_id, due_date) over live rent rows makes concurrent generators safe.
func (r *Repository) CreateObligation(ctx context.Context, p *Payment) (bool, error) {
	query := insertPayment + ` ON CONFLICT DO NOTHING RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, insertArgs(p)...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create rent obligation: %w", err)
	}
	p.ID = id
	return true, nil
}

// GetByID retrieves a payment by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// FindObligation retrieves the live rent obligation of a lease for a due date
func (r *Repository) FindObligation(ctx context.Context, leaseID int64, dueDate time.Time) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE lease_id = $1 AND due_date = $2 AND kind = 'rent' AND status <> 'failed'`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, leaseID, dates.Day(dueDate)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find rent obligation: %w", err)
	}
	return p, nil
}

// Update saves the mutable fields of p, guarded by its version
func (r *Repository) Update(ctx context.Context, p *Payment) error {
	return update(ctx, r.db, p)
}

// Settle saves p and inserts followUp atomically
func (r *Repository) Settle(ctx context.Context, p *Payment, followUp *Payment) (*Payment, error) {
	var created *Payment
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := update(ctx, tx, p); err != nil {
			return err
		}
		if followUp == nil {
			return nil
		}
		var err error
		created, err = create(ctx, tx, followUp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func update(ctx context.Context, q querier, p *Payment) error {
	query := `
		UPDATE payments
		SET payment_date = $3, payment_method = $4, status = $5, awaiting_verification = $6,
			transaction_reference = $7, receipt_number = $8, late_fee = $9, notes = $10,
			verified_by = $11, verified_at = $12, amount_paid = $13, idempotency_key = $14,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		p.ID, p.Version, p.PaymentDate, p.Method, p.Status, p.AwaitingVerification,
		p.TransactionReference, p.ReceiptNumber, p.LateFee, p.Notes, p.VerifiedBy, p.VerifiedAt,
		p.AmountPaid, p.IdempotencyKey,
	).Scan(&p.Version, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStale
		}
		return translate(err, "update payment")
	}
	return nil
}

// List returns payments matching f, oldest due date first
func (r *Repository) List(ctx context.Context, f Filter) ([]*Payment, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.LeaseID != 0 {
		add("lease_id = $%d", f.LeaseID)
	}
	if f.TenantID != 0 {
		add("tenant_id = $%d", f.TenantID)
	}
	if f.OwnerID != 0 {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if f.AwaitingVerification != nil {
		add("awaiting_verification = $%d", *f.AwaitingVerification)
	}
	if f.DueBefore != nil {
		add("due_date < $%d", dates.Day(*f.DueBefore))
	}
	if f.DueOn != nil {
		add("due_date = $%d", dates.Day(*f.DueOn))
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY due_date ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

// UpdateLateFee stores the current late fee of a pending payment
func (r *Repository) UpdateLateFee(ctx context.Context, id int64, fee decimal.Decimal) error {
	query := `UPDATE payments SET late_fee = $2, updated_at = NOW() WHERE id = $1 AND status = 'pending' AND late_fee <> $2`
	if _, err := r.db.ExecContext(ctx, query, id, fee); err != nil {
		return fmt.Errorf("failed to update late fee: %w", err)
	}
	return nil
}

// LastDueDate returns the latest rent due date generated for a lease, or nil
func (r *Repository) LastDueDate(ctx context.Context, leaseID int64) (*time.Time, error) {
	var last sql.NullTime
	query := `SELECT MAX(due_date) FROM payments WHERE lease_id = $1 AND kind = 'rent'`
	if err := r.db.QueryRowContext(ctx, query, leaseID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last due date: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	d := dates.Day(last.Time)
	return &d, nil
}

// CancelPendingAfter cancels pending rent obligations due after the given date
func (r *Repository) CancelPendingAfter(ctx context.Context, leaseID int64, after time.Time, note string) (int, error) {
	query := `
		UPDATE payments
		SET status = 'cancelled', awaiting_verification = false,
			notes = CASE WHEN notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
			version = version + 1, updated_at = NOW()
		WHERE lease_id = $1 AND kind = 'rent' AND status = 'pending' AND due_date > $2
	`
	res, err := r.db.ExecContext(ctx, query, leaseID, dates.Day(after), note)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending payments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cancelled payments: %w", err)
	}
	return int(n), nil
}
