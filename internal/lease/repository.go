package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nyumbahub/rentals/internal/database"
	"github.com/nyumbahub/rentals/pkg/apperr"
	"github.com/nyumbahub/rentals/pkg/dates"
)

// ErrStale is returned when a lease changed since it was read
var ErrStale = apperr.Conflict("lease was modified concurrently")

// ErrUnitOccupied is returned when a unit already has a draft or active lease
var ErrUnitOccupied = apperr.Precondition("unit already has a draft or active lease")

// Store is the persistence boundary of the lease lifecycle
type Store interface {
	Create(ctx context.Context, l *Lease) (*Lease, error)
	GetByID(ctx context.Context, id int64) (*Lease, error)
	List(ctx context.Context, f Filter) ([]*Lease, error)
	// Update saves l if its version is unchanged, or returns ErrStale
	Update(ctx context.Context, l *Lease) error
	// Renew atomically saves the superseded source and inserts its successor
	Renew(ctx context.Context, source, next *Lease) (*Lease, error)
	// Billable lists active and renewed leases whose term overlaps the period
	Billable(ctx context.Context, periodStart, periodEnd time.Time) ([]*Lease, error)
}

const leaseColumns = `id, tenant_id, unit_id, owner_id, start_date, end_date, rent_amount, deposit_amount,
		deposit_paid, deposit_paid_date, payment_day, status, terms, terms_sw, contract_document,
		termination_date, termination_reason, renewed_from_id, billing_floor, version, created_at, updated_at`

// Repository handles lease data persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new lease repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLease(row scanner) (*Lease, error) {
	l := &Lease{}
	err := row.Scan(
		&l.ID,
		&l.TenantID,
		&l.UnitID,
		&l.OwnerID,
		&l.StartDate,
		&l.EndDate,
		&l.RentAmount,
		&l.DepositAmount,
		&l.DepositPaid,
		&l.DepositPaidDate,
		&l.PaymentDay,
		&l.Status,
		&l.Terms,
		&l.TermsSw,
		&l.ContractDocument,
		&l.TerminationDate,
		&l.TerminationReason,
		&l.RenewedFromID,
		&l.BillingFloor,
		&l.Version,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.StartDate = dates.Day(l.StartDate)
	l.EndDate = dates.Day(l.EndDate)
	for _, d := range []**time.Time{&l.DepositPaidDate, &l.TerminationDate, &l.BillingFloor} {
		if *d != nil {
			day := dates.Day(**d)
			*d = &day
		}
	}
	return l, nil
}

func translate(err error, action string) error {
	if constraint, ok := database.UniqueViolation(err); ok && constraint == "leases_unit_open_idx" {
		return ErrUnitOccupied
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func insert(ctx context.Context, q queryRower, l *Lease) (*Lease, error) {
	query := `
		INSERT INTO leases (tenant_id, unit_id, owner_id, start_date, end_date, rent_amount, deposit_amount,
			deposit_paid, deposit_paid_date, payment_day, status, terms, terms_sw, contract_document,
			renewed_from_id, billing_floor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING ` + leaseColumns

	return scanLease(q.QueryRowContext(ctx, query,
		l.TenantID, l.UnitID, l.OwnerID, l.StartDate, l.EndDate, l.RentAmount, l.DepositAmount,
		l.DepositPaid, l.DepositPaidDate, l.PaymentDay, l.Status, l.Terms, l.TermsSw, l.ContractDocument,
		l.RenewedFromID, l.BillingFloor,
	))
}

func update(ctx context.Context, q queryRower, l *Lease) error {
	query := `
		UPDATE leases
		SET status = $3, deposit_paid = $4, deposit_paid_date = $5, termination_date = $6,
			termination_reason = $7, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		l.ID, l.Version, l.Status, l.DepositPaid, l.DepositPaidDate, l.TerminationDate, l.TerminationReason,
	).Scan(&l.Version, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStale
		}
		return translate(err, "update lease")
	}
	return nil
}

// Create inserts a new lease
func (r *Repository) Create(ctx context.Context, l *Lease) (*Lease, error) {
	created, err := insert(ctx, r.db, l)
	if err != nil {
		return nil, translate(err, "create lease")
	}
	return created, nil
}

// GetByID retrieves a lease by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE id = $1`

	l, err := scanLease(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	return l, nil
}

// Update saves the lifecycle fields of a lease, guarded by its version
func (r *Repository) Update(ctx context.Context, l *Lease) error {
	return update(ctx, r.db, l)
}

// Renew locks the source row, verifies it is unchanged, marks it renewed and
// inserts the successor in one transaction
func (r *Repository) Renew(ctx context.Context, source, next *Lease) (*Lease, error) {
	var created *Lease
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var version int
		err := tx.QueryRowContext(ctx, `SELECT version FROM leases WHERE id = $1 FOR UPDATE`, source.ID).Scan(&version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("lease not found")
			}
			return fmt.Errorf("failed to lock lease: %w", err)
		}
		if version != source.Version {
			return ErrStale
		}

		if err := update(ctx, tx, source); err != nil {
			return err
		}

		created, err = insert(ctx, tx, next)
		if err != nil {
			return translate(err, "create renewed lease")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// List returns leases matching f ordered by end date
func (r *Repository) List(ctx context.Context, f Filter) ([]*Lease, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.TenantID != 0 {
		add("tenant_id = $%d", f.TenantID)
	}
	if f.OwnerID != 0 {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.UnitID != 0 {
		add("unit_id = $%d", f.UnitID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if f.EndsOnOrBefore != nil {
		add("end_date <= $%d", dates.Day(*f.EndsOnOrBefore))
	}
	if f.EndsAfter != nil {
		add("end_date > $%d", dates.Day(*f.EndsAfter))
	}
	if f.StartsOnOrBefore != nil {
		add("start_date <= $%d", dates.Day(*f.StartsOnOrBefore))
	}
	if f.DepositPaid != nil {
		add("deposit_paid = $%d", *f.DepositPaid)
	}

	query := `SELECT ` + leaseColumns + ` FROM leases`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY end_date ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	return r.query(ctx, query, args...)
}

// Billable lists leases that may owe rent between periodStart and periodEnd
func (r *Repository) Billable(ctx context.Context, periodStart, periodEnd time.Time) ([]*Lease, error) {
	query := `SELECT ` + leaseColumns + `
		FROM leases
		WHERE status IN ('active', 'renewed') AND start_date <= $2 AND end_date >= $1
		ORDER BY id ASC`

	return r.query(ctx, query, dates.Day(periodStart), dates.Day(periodEnd))
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]*Lease, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	defer rows.Close()

	var leases []*Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		leases = append(leases, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leases: %w", err)
	}
	return leases, nil
}
