package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent. users, properties
// and rental_units belong to the identity and catalog services and are only
// created here so a fresh database is usable.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                 BIGSERIAL PRIMARY KEY,
		email              VARCHAR(255) NOT NULL UNIQUE,
		full_name          VARCHAR(255) NOT NULL,
		phone              VARCHAR(30),
		role               VARCHAR(20) NOT NULL DEFAULT 'tenant',
		preferred_language VARCHAR(2) NOT NULL DEFAULT 'en',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id         BIGSERIAL PRIMARY KEY,
		owner_id   BIGINT NOT NULL REFERENCES users(id),
		title      VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rental_units (
		id          BIGSERIAL PRIMARY KEY,
		property_id BIGINT NOT NULL REFERENCES properties(id),
		unit_number VARCHAR(50) NOT NULL,
		is_occupied BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS leases (
		id                 BIGSERIAL PRIMARY KEY,
		tenant_id          BIGINT NOT NULL REFERENCES users(id),
		unit_id            BIGINT NOT NULL REFERENCES rental_units(id),
		owner_id           BIGINT NOT NULL REFERENCES users(id),
		start_date         DATE NOT NULL,
		end_date           DATE NOT NULL,
		rent_amount        NUMERIC(12,2) NOT NULL CHECK (rent_amount > 0),
		deposit_amount     NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (deposit_amount >= 0),
		deposit_paid       BOOLEAN NOT NULL DEFAULT FALSE,
		deposit_paid_date  DATE,
		payment_day        SMALLINT NOT NULL CHECK (payment_day BETWEEN 1 AND 31),
		status             VARCHAR(20) NOT NULL DEFAULT 'draft',
		terms              TEXT NOT NULL DEFAULT '',
		terms_sw           TEXT NOT NULL DEFAULT '',
		contract_document  VARCHAR(500),
		termination_date   DATE,
		termination_reason TEXT,
		renewed_from_id    BIGINT REFERENCES leases(id),
		billing_floor      DATE,
		version            INTEGER NOT NULL DEFAULT 1,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_date > start_date)
	)`,
	// One open lease per unit
	`CREATE UNIQUE INDEX IF NOT EXISTS leases_unit_open_idx
		ON leases (unit_id) WHERE status IN ('draft', 'active')`,
	`CREATE INDEX IF NOT EXISTS leases_status_end_idx ON leases (status, end_date)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id                    BIGSERIAL PRIMARY KEY,
		lease_id              BIGINT NOT NULL REFERENCES leases(id) ON DELETE RESTRICT,
		tenant_id             BIGINT NOT NULL REFERENCES users(id),
		owner_id              BIGINT NOT NULL REFERENCES users(id),
		kind                  VARCHAR(20) NOT NULL DEFAULT 'rent',
		amount                NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		amount_paid           NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (amount_paid >= 0),
		due_date              DATE NOT NULL,
		period                VARCHAR(50) NOT NULL DEFAULT '',
		payment_date          DATE,
		payment_method        VARCHAR(20) NOT NULL DEFAULT 'mpesa',
		status                VARCHAR(20) NOT NULL DEFAULT 'pending',
		awaiting_verification BOOLEAN NOT NULL DEFAULT FALSE,
		transaction_reference VARCHAR(100) UNIQUE,
		idempotency_key       UUID UNIQUE,
		receipt_number        VARCHAR(50) NOT NULL DEFAULT '',
		late_fee              NUMERIC(12,2) NOT NULL DEFAULT 0,
		notes                 TEXT NOT NULL DEFAULT '',
		verified_by           BIGINT REFERENCES users(id),
		verified_at           TIMESTAMPTZ,
		version               INTEGER NOT NULL DEFAULT 1,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Exactly one live rent obligation per lease and due date. Rejected rows
	// stay behind as failed next to their reissued obligation.
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_lease_due_open_idx
		ON payments (lease_id, due_date) WHERE kind = 'rent' AND status <> 'failed'`,
	`CREATE INDEX IF NOT EXISTS payments_status_due_idx ON payments (status, due_date)`,
	`CREATE TABLE IF NOT EXISTS reminders (
		subject_type VARCHAR(20) NOT NULL,
		subject_id   BIGINT NOT NULL,
		kind         VARCHAR(30) NOT NULL,
		sent_on      DATE NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (subject_type, subject_id, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id                  BIGSERIAL PRIMARY KEY,
		recipient_id        BIGINT NOT NULL REFERENCES users(id),
		event_type          VARCHAR(40) NOT NULL,
		title               VARCHAR(255) NOT NULL,
		message             TEXT NOT NULL,
		message_sw          TEXT NOT NULL DEFAULT '',
		action_url          VARCHAR(255) NOT NULL DEFAULT '',
		related_entity_type VARCHAR(20),
		related_entity_id   BIGINT,
		is_read             BOOLEAN NOT NULL DEFAULT FALSE,
		email_sent          BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_idx ON notifications (recipient_id, is_read)`,
}

// Migrate applies the schema
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
