package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id            TEXT PRIMARY KEY,
	full_name     TEXT NOT NULL,
	dob           TEXT NOT NULL,
	gender        TEXT NOT NULL,
	email         TEXT NOT NULL,
	phone         TEXT NOT NULL,
	address       JSONB NOT NULL,
	id_proof      JSONB NOT NULL,
	nominee       JSONB,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS customers_email_key ON customers (lower(email));

CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	customer_id    TEXT NOT NULL REFERENCES customers (id),
	account_number TEXT NOT NULL UNIQUE,
	balance        NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	account_type   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'active',
	version        INTEGER NOT NULL DEFAULT 1,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	seq            BIGSERIAL UNIQUE,
	id             TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL REFERENCES accounts (id),
	type           TEXT NOT NULL,
	amount         NUMERIC(20,2) NOT NULL CHECK (amount > 0),
	balance_after  NUMERIC(20,2) NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	counterparty   TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS transactions_account_seq_idx ON transactions (account_id, seq DESC);
CREATE INDEX IF NOT EXISTS transactions_correlation_idx ON transactions (correlation_id) WHERE correlation_id <> '';

CREATE TABLE IF NOT EXISTS loan_schemes (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	interest_rate NUMERIC(7,4) NOT NULL CHECK (interest_rate >= 0),
	max_amount    NUMERIC(20,2) NOT NULL CHECK (max_amount > 0),
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS loan_schemes_name_key ON loan_schemes (lower(name));

CREATE TABLE IF NOT EXISTS loans (
	id               TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL REFERENCES accounts (id),
	scheme_id        TEXT REFERENCES loan_schemes (id),
	loan_name        TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL,
	amount           NUMERIC(20,2) NOT NULL,
	interest_rate    NUMERIC(7,4) NOT NULL DEFAULT 0,
	duration_months  INTEGER NOT NULL,
	remaining_months INTEGER NOT NULL,
	emi_amount       NUMERIC(20,2) NOT NULL,
	amount_paid      NUMERIC(20,2) NOT NULL DEFAULT 0,
	next_due_date    TIMESTAMPTZ,
	status           TEXT NOT NULL,
	applied_at       TIMESTAMPTZ NOT NULL,
	approved_at      TIMESTAMPTZ,
	approved_by      TEXT NOT NULL DEFAULT '',
	rejected_at      TIMESTAMPTZ,
	rejected_by      TEXT NOT NULL DEFAULT '',
	completed_at     TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS loans_account_idx ON loans (account_id, applied_at DESC);

CREATE TABLE IF NOT EXISTS loan_payments (
	id               TEXT PRIMARY KEY,
	loan_id          TEXT NOT NULL REFERENCES loans (id),
	account_id       TEXT NOT NULL REFERENCES accounts (id),
	transaction_id   TEXT NOT NULL REFERENCES transactions (id),
	amount           NUMERIC(20,2) NOT NULL,
	kind             TEXT NOT NULL,
	installment      INTEGER NOT NULL,
	remaining_months INTEGER NOT NULL,
	paid_at          TIMESTAMPTZ NOT NULL,
	UNIQUE (loan_id, installment)
);
`

// Migrate creates the engine tables if they do not exist yet
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	log.Println("Database schema is up to date")
	return nil
}
