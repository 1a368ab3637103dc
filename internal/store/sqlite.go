package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	*sqlStore
	db *sql.DB
}

var sqliteDialect = dialect{
	name: "sqlite",
	bind: func(q string) string { return q },
	insertRecord: `INSERT OR IGNORE INTO idempotency_records
		(id, tenant_id, subject_type, subject_id, rule_key, window_start, window_bucket, performed_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM idempotency_records
			WHERE tenant_id = ? AND subject_type = ? AND subject_id = ? AND rule_key = ? AND performed_at >= ?
		)`,
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool is limited to one connection so tenant transactions serialize
// instead of failing with SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		sqlStore: &sqlStore{c: &sqlConn{db: db}, d: sqliteDialect},
		db:       db,
	}, nil
}

// DB returns the underlying handle for seeding and inspection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id     INTEGER PRIMARY KEY,
	name   TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS users (
	id        INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL REFERENCES tenants(id),
	name      TEXT NOT NULL,
	email     TEXT NOT NULL DEFAULT '',
	phone     TEXT NOT NULL DEFAULT '',
	role      TEXT NOT NULL,
	active    BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS tenant_calendars (
	tenant_id  INTEGER PRIMARY KEY REFERENCES tenants(id),
	timezone   TEXT NOT NULL DEFAULT '',
	work_start TEXT NOT NULL DEFAULT '',
	work_end   TEXT NOT NULL DEFAULT '',
	work_days  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS holidays (
	id        INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL REFERENCES tenants(id),
	date      DATE NOT NULL,
	name      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rule_settings (
	tenant_id      INTEGER NOT NULL REFERENCES tenants(id),
	rule_key       TEXT NOT NULL,
	enabled        BOOLEAN NOT NULL DEFAULT 1,
	days           INTEGER NOT NULL DEFAULT 0,
	window_days    INTEGER NOT NULL DEFAULT 0,
	channels       TEXT NOT NULL DEFAULT '',
	recipients     TEXT NOT NULL DEFAULT '',
	blackout_start TEXT NOT NULL DEFAULT '',
	blackout_end   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, rule_key)
);

CREATE TABLE IF NOT EXISTS sla_policies (
	id                 INTEGER PRIMARY KEY,
	tenant_id          INTEGER NOT NULL REFERENCES tenants(id),
	name               TEXT NOT NULL,
	priority           TEXT NOT NULL DEFAULT '',
	response_minutes   INTEGER NOT NULL DEFAULT 0,
	resolution_minutes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS customers (
	id                 INTEGER PRIMARY KEY,
	tenant_id          INTEGER NOT NULL REFERENCES tenants(id),
	name               TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	active             BOOLEAN NOT NULL DEFAULT 1,
	assigned_seller_id INTEGER,
	last_contact_at    DATETIME,
	health_score       INTEGER
);

CREATE TABLE IF NOT EXISTS work_orders (
	id                      INTEGER PRIMARY KEY,
	tenant_id               INTEGER NOT NULL REFERENCES tenants(id),
	number                  TEXT NOT NULL,
	customer_id             INTEGER,
	assigned_to             INTEGER,
	status                  TEXT NOT NULL DEFAULT 'open',
	sla_policy_id           INTEGER,
	sla_due_at              DATETIME,
	sla_computed_policy_id  INTEGER,
	sla_responded_at        DATETIME,
	sla_response_breached   BOOLEAN NOT NULL DEFAULT 0,
	sla_resolution_breached BOOLEAN NOT NULL DEFAULT 0,
	created_at              DATETIME NOT NULL,
	completed_at            DATETIME
);

CREATE TABLE IF NOT EXISTS accounts_receivable (
	id          INTEGER PRIMARY KEY,
	tenant_id   INTEGER NOT NULL REFERENCES tenants(id),
	customer_id INTEGER,
	description TEXT NOT NULL DEFAULT '',
	amount      REAL NOT NULL DEFAULT 0,
	due_date    DATE,
	status      TEXT NOT NULL DEFAULT 'pending',
	paid_at     DATETIME
);

CREATE TABLE IF NOT EXISTS accounts_payable (
	id          INTEGER PRIMARY KEY,
	tenant_id   INTEGER NOT NULL REFERENCES tenants(id),
	supplier    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	amount      REAL NOT NULL DEFAULT 0,
	due_date    DATE,
	status      TEXT NOT NULL DEFAULT 'pending',
	paid_at     DATETIME
);

CREATE TABLE IF NOT EXISTS contracts (
	id          INTEGER PRIMARY KEY,
	tenant_id   INTEGER NOT NULL REFERENCES tenants(id),
	customer_id INTEGER,
	number      TEXT NOT NULL DEFAULT '',
	value       REAL NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'active',
	end_date    DATE
);

CREATE TABLE IF NOT EXISTS equipment (
	id                  INTEGER PRIMARY KEY,
	tenant_id           INTEGER NOT NULL REFERENCES tenants(id),
	customer_id         INTEGER,
	code                TEXT NOT NULL,
	brand               TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'active',
	next_calibration_at DATE
);

CREATE TABLE IF NOT EXISTS products (
	id        INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL REFERENCES tenants(id),
	name      TEXT NOT NULL,
	unit      TEXT NOT NULL DEFAULT '',
	stock_qty REAL NOT NULL DEFAULT 0,
	stock_min REAL NOT NULL DEFAULT 0,
	active    BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS quotes (
	id          INTEGER PRIMARY KEY,
	tenant_id   INTEGER NOT NULL REFERENCES tenants(id),
	number      TEXT NOT NULL DEFAULT '',
	customer_id INTEGER,
	seller_id   INTEGER,
	total       REAL NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'draft',
	valid_until DATE
);

CREATE TABLE IF NOT EXISTS crm_pipelines (
	id        INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL REFERENCES tenants(id),
	slug      TEXT NOT NULL,
	name      TEXT NOT NULL,
	UNIQUE (tenant_id, slug)
);

CREATE TABLE IF NOT EXISTS crm_pipeline_stages (
	id          INTEGER PRIMARY KEY,
	tenant_id   INTEGER NOT NULL REFERENCES tenants(id),
	pipeline_id INTEGER NOT NULL REFERENCES crm_pipelines(id),
	name        TEXT NOT NULL,
	sort_order  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS crm_deals (
	id           TEXT PRIMARY KEY,
	tenant_id    INTEGER NOT NULL REFERENCES tenants(id),
	customer_id  INTEGER NOT NULL,
	pipeline_id  INTEGER NOT NULL,
	stage_id     INTEGER NOT NULL,
	title        TEXT NOT NULL,
	value        REAL NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'open',
	source       TEXT NOT NULL DEFAULT '',
	subject_type TEXT NOT NULL DEFAULT '',
	subject_id   INTEGER NOT NULL DEFAULT 0,
	assigned_to  INTEGER,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_activities (
	id          TEXT PRIMARY KEY,
	tenant_id   INTEGER NOT NULL REFERENCES tenants(id),
	type        TEXT NOT NULL,
	customer_id INTEGER NOT NULL,
	deal_id     TEXT,
	user_id     INTEGER,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_at      DATETIME,
	automated   BOOLEAN NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_messages (
	id            TEXT PRIMARY KEY,
	tenant_id     INTEGER NOT NULL REFERENCES tenants(id),
	customer_id   INTEGER NOT NULL,
	channel       TEXT NOT NULL,
	recipient     TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL,
	template_slug TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'queued',
	error         TEXT NOT NULL DEFAULT '',
	sent_at       DATETIME,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS crm_message_templates (
	id        INTEGER PRIMARY KEY,
	tenant_id INTEGER NOT NULL REFERENCES tenants(id),
	slug      TEXT NOT NULL,
	channel   TEXT NOT NULL,
	subject   TEXT NOT NULL DEFAULT '',
	body      TEXT NOT NULL,
	active    BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	tenant_id  INTEGER NOT NULL REFERENCES tenants(id),
	user_id    INTEGER NOT NULL,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	icon       TEXT NOT NULL DEFAULT '',
	color      TEXT NOT NULL DEFAULT '',
	link       TEXT NOT NULL DEFAULT '',
	data       TEXT,
	read_at    DATETIME,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS idempotency_records (
	id            TEXT PRIMARY KEY,
	tenant_id     INTEGER NOT NULL REFERENCES tenants(id),
	subject_type  TEXT NOT NULL,
	subject_id    INTEGER NOT NULL,
	rule_key      TEXT NOT NULL,
	window_start  DATETIME NOT NULL,
	window_bucket INTEGER NOT NULL,
	performed_at  DATETIME NOT NULL,
	UNIQUE (tenant_id, subject_type, subject_id, rule_key, window_bucket)
);

CREATE INDEX IF NOT EXISTS idx_users_tenant_role ON users(tenant_id, role);
CREATE INDEX IF NOT EXISTS idx_holidays_tenant ON holidays(tenant_id, date);
CREATE INDEX IF NOT EXISTS idx_work_orders_tenant_status ON work_orders(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_receivable_tenant_status ON accounts_receivable(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_payable_tenant_status ON accounts_payable(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_contracts_tenant_status ON contracts(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_equipment_tenant_status ON equipment(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_crm_deals_guard ON crm_deals(tenant_id, source, subject_type, subject_id, status);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(tenant_id, user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_idempotency_lookup ON idempotency_records(tenant_id, subject_type, subject_id, rule_key, performed_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
