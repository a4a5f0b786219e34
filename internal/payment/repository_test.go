package payment

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumbahub/rentals/pkg/apperr"
)

func obligation() *Payment {
	due := day(2026, time.January, 5)
	return &Payment{
		LeaseID:        3,
		TenantID:       7,
		OwnerID:        21,
		Kind:           KindRent,
		Amount:         decimal.NewFromInt(800000),
		DueDate:        due,
		Period:         PeriodLabel(due),
		Status:         StatusPending,
		IdempotencyKey: uuid.NullUUID{UUID: ObligationKey(3, due), Valid: true},
		LateFee:        decimal.Zero,
	}
}

func TestRepository_CreateObligation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	t.Run("inserted", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payments .* ON CONFLICT DO NOTHING RETURNING id`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))

		p := obligation()
		created, err := repo.CreateObligation(context.Background(), p)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(41), p.ID)
	})

	t.Run("already exists", func(t *testing.T) {
		mock.ExpectQuery(`ON CONFLICT DO NOTHING`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		created, err := repo.CreateObligation(context.Background(), obligation())
		require.NoError(t, err)
		assert.False(t, created)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateDuplicateReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_transaction_reference_key"})

	_, err = NewRepository(db).Create(context.Background(), obligation())
	assert.ErrorIs(t, err, ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpdateStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := obligation()
	p.ID, p.Version = 41, 2
	mock.ExpectQuery(`UPDATE payments`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))

	assert.ErrorIs(t, NewRepository(db).Update(context.Background(), p), ErrStale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LastDueDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT MAX\(due_date\)`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(day(2026, time.December, 5)))
	last, err := repo.LastDueDate(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, day(2026, time.December, 5), *last)

	mock.ExpectQuery(`SELECT MAX\(due_date\)`).WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	last, err = repo.LastDueDate(context.Background(), 4)
	require.NoError(t, err)
	assert.Nil(t, last)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CancelPendingAfter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE payments\s+SET status = 'cancelled'`).
		WithArgs(int64(3), day(2026, time.February, 28), "lease ended").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewRepository(db).CancelPendingAfter(context.Background(), 3, day(2026, time.February, 28), "lease ended")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListOverdueQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	eval := day(2026, time.February, 1)
	mock.ExpectQuery(`WHERE status = ANY\(\$1\) AND due_date < \$2 ORDER BY due_date ASC, id ASC`).
		WithArgs(sqlmock.AnyArg(), eval).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	payments, err := NewRepository(db).List(context.Background(), Filter{
		Statuses:  []Status{StatusPending},
		DueBefore: &eval,
	})
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var paymentRowColumns = []string{
	"id", "lease_id", "tenant_id", "owner_id", "kind", "amount", "amount_paid", "due_date", "period",
	"payment_date", "payment_method", "status", "awaiting_verification", "transaction_reference",
	"idempotency_key", "receipt_number", "late_fee", "notes", "verified_by", "verified_at",
	"version", "created_at", "updated_at",
}

func TestRepository_FindObligationSkipsFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE lease_id = \$1 AND due_date = \$2 AND kind = 'rent' AND status <> 'failed'`).
		WithArgs(int64(3), day(2026, time.January, 5)).
		WillReturnRows(sqlmock.NewRows(paymentRowColumns))

	p, err := NewRepository(db).FindObligation(context.Background(), 3, day(2026, time.January, 5))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Settle(t *testing.T) {
	now := time.Date(2026, time.January, 12, 8, 0, 0, 0, time.UTC)

	t.Run("update and follow-up commit together", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		p := obligation()
		p.ID, p.Version = 41, 2
		p.Status = StatusCompleted
		p.AmountPaid = decimal.NewFromInt(500000)

		balance := &Payment{
			LeaseID: 3, TenantID: 7, OwnerID: 21,
			Kind:    KindBalance,
			Amount:  decimal.NewFromInt(300000),
			DueDate: day(2026, time.January, 12),
			Period:  "January 2026 balance",
			Status:  StatusPending,
			LateFee: decimal.Zero,
		}

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payments`).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(3, now))
		mock.ExpectQuery(`INSERT INTO payments .* RETURNING id, lease_id`).
			WillReturnRows(sqlmock.NewRows(paymentRowColumns).AddRow(
				int64(42), int64(3), int64(7), int64(21), "balance", "300000.00", "0.00", balance.DueDate,
				balance.Period, nil, "", "pending", false, nil,
				nil, "", "0.00", "", nil, nil,
				int64(1), now, now,
			))
		mock.ExpectCommit()

		created, err := NewRepository(db).Settle(context.Background(), p, balance)
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, int64(42), created.ID)
		assert.Equal(t, KindBalance, created.Kind)
		assert.True(t, created.Amount.Equal(decimal.NewFromInt(300000)))
		assert.Equal(t, 3, p.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale update rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		p := obligation()
		p.ID, p.Version = 41, 2

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payments`).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))
		mock.ExpectRollback()

		_, err = NewRepository(db).Settle(context.Background(), p, obligation())
		assert.ErrorIs(t, err, ErrStale)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reissue conflict rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		p := obligation()
		p.ID, p.Version = 41, 2
		p.Status = StatusFailed

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE payments`).
			WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(3, now))
		mock.ExpectQuery(`INSERT INTO payments`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_lease_due_open_idx"})
		mock.ExpectRollback()

		_, err = NewRepository(db).Settle(context.Background(), p, obligation())
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
