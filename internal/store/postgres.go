package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/automation-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	*sqlStore
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var postgresDialect = dialect{
	name:       "postgres",
	bind:       rebindDollar,
	setTenant:  `SELECT set_config('app.current_tenant', $1, true)`,
	lockRecord: `SELECT pg_advisory_xact_lock(hashtext(?))`,
	insertRecord: `INSERT INTO idempotency_records
		(id, tenant_id, subject_type, subject_id, rule_key, window_start, window_bucket, performed_at)
		SELECT ?::text, ?::bigint, ?::text, ?::bigint, ?::text, ?::timestamptz, ?::bigint, ?::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM idempotency_records
			WHERE tenant_id = ? AND subject_type = ? AND subject_id = ? AND rule_key = ? AND performed_at >= ?
		)
		ON CONFLICT (tenant_id, subject_type, subject_id, rule_key, window_bucket) DO NOTHING`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{
		sqlStore: &sqlStore{c: &pgxConn{pool: pool}, d: postgresDialect},
		pool:     pool,
		closeFn:  closeFn,
	}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id     BIGSERIAL PRIMARY KEY,
	name   TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS users (
	id        BIGSERIAL PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	name      TEXT NOT NULL,
	email     TEXT NOT NULL DEFAULT '',
	phone     TEXT NOT NULL DEFAULT '',
	role      TEXT NOT NULL,
	active    BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS tenant_calendars (
	tenant_id  BIGINT PRIMARY KEY REFERENCES tenants(id),
	timezone   TEXT NOT NULL DEFAULT '',
	work_start TEXT NOT NULL DEFAULT '',
	work_end   TEXT NOT NULL DEFAULT '',
	work_days  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS holidays (
	id        BIGSERIAL PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	date      DATE NOT NULL,
	name      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rule_settings (
	tenant_id      BIGINT NOT NULL REFERENCES tenants(id),
	rule_key       TEXT NOT NULL,
	enabled        BOOLEAN NOT NULL DEFAULT true,
	days           INTEGER NOT NULL DEFAULT 0,
	window_days    INTEGER NOT NULL DEFAULT 0,
	channels       TEXT NOT NULL DEFAULT '',
	recipients     TEXT NOT NULL DEFAULT '',
	blackout_start TEXT NOT NULL DEFAULT '',
	blackout_end   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, rule_key)
);

CREATE TABLE IF NOT EXISTS sla_policies (
	id                 BIGSERIAL PRIMARY KEY,
	tenant_id          BIGINT NOT NULL REFERENCES tenants(id),
	name               TEXT NOT NULL,
	priority           TEXT NOT NULL DEFAULT '',
	response_minutes   INTEGER NOT NULL DEFAULT 0,
	resolution_minutes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS customers (
	id                 BIGSERIAL PRIMARY KEY,
	tenant_id          BIGINT NOT NULL REFERENCES tenants(id),
	name               TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	active             BOOLEAN NOT NULL DEFAULT true,
	assigned_seller_id BIGINT,
	last_contact_at    TIMESTAMPTZ,
	health_score       INTEGER
);

CREATE TABLE IF NOT EXISTS work_orders (
	id                      BIGSERIAL PRIMARY KEY,
	tenant_id               BIGINT NOT NULL REFERENCES tenants(id),
	number                  TEXT NOT NULL,
	customer_id             BIGINT,
	assigned_to             BIGINT,
	status                  TEXT NOT NULL DEFAULT 'open',
	sla_policy_id           BIGINT,
	sla_due_at              TIMESTAMPTZ,
	sla_computed_policy_id  BIGINT,
	sla_responded_at        TIMESTAMPTZ,
	sla_response_breached   BOOLEAN NOT NULL DEFAULT false,
	sla_resolution_breached BOOLEAN NOT NULL DEFAULT false,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at            TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS accounts_receivable (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   BIGINT NOT NULL REFERENCES tenants(id),
	customer_id BIGINT,
	description TEXT NOT NULL DEFAULT '',
	amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
	due_date    DATE,
	status      TEXT NOT NULL DEFAULT 'pending',
	paid_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS accounts_payable (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   BIGINT NOT NULL REFERENCES tenants(id),
	supplier    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
	due_date    DATE,
	status      TEXT NOT NULL DEFAULT 'pending',
	paid_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS contracts (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   BIGINT NOT NULL REFERENCES tenants(id),
	customer_id BIGINT,
	number      TEXT NOT NULL DEFAULT '',
	value       NUMERIC(14,2) NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'active',
	end_date    DATE
);

CREATE TABLE IF NOT EXISTS equipment (
	id                  BIGSERIAL PRIMARY KEY,
	tenant_id           BIGINT NOT NULL REFERENCES tenants(id),
	customer_id         BIGINT,
	code                TEXT NOT NULL,
	brand               TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'active',
	next_calibration_at DATE
);

CREATE TABLE IF NOT EXISTS products (
	id        BIGSERIAL PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	name      TEXT NOT NULL,
	unit      TEXT NOT NULL DEFAULT '',
	stock_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
	stock_min NUMERIC(14,3) NOT NULL DEFAULT 0,
	active    BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS quotes (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   BIGINT NOT NULL REFERENCES tenants(id),
	number      TEXT NOT NULL DEFAULT '',
	customer_id BIGINT,
	seller_id   BIGINT,
	total       NUMERIC(14,2) NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'draft',
	valid_until DATE
);

CREATE TABLE IF NOT EXISTS crm_pipelines (
	id        BIGSERIAL PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	slug      TEXT NOT NULL,
	name      TEXT NOT NULL,
	UNIQUE (tenant_id, slug)
);

CREATE TABLE IF NOT EXISTS crm_pipeline_stages (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   BIGINT NOT NULL REFERENCES tenants(id),
	pipeline_id BIGINT NOT NULL REFERENCES crm_pipelines(id),
	name        TEXT NOT NULL,
	sort_order  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS crm_deals (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id    BIGINT NOT NULL REFERENCES tenants(id),
	customer_id  BIGINT NOT NULL,
	pipeline_id  BIGINT NOT NULL,
	stage_id     BIGINT NOT NULL,
	title        TEXT NOT NULL,
	value        NUMERIC(14,2) NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'open',
	source       TEXT NOT NULL DEFAULT '',
	subject_type TEXT NOT NULL DEFAULT '',
	subject_id   BIGINT NOT NULL DEFAULT 0,
	assigned_to  BIGINT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crm_activities (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id   BIGINT NOT NULL REFERENCES tenants(id),
	type        TEXT NOT NULL,
	customer_id BIGINT NOT NULL,
	deal_id     TEXT,
	user_id     BIGINT,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_at      TIMESTAMPTZ,
	automated   BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crm_messages (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id     BIGINT NOT NULL REFERENCES tenants(id),
	customer_id   BIGINT NOT NULL,
	channel       TEXT NOT NULL,
	recipient     TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL,
	template_slug TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'queued',
	error         TEXT NOT NULL DEFAULT '',
	sent_at       TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crm_message_templates (
	id        BIGSERIAL PRIMARY KEY,
	tenant_id BIGINT NOT NULL REFERENCES tenants(id),
	slug      TEXT NOT NULL,
	channel   TEXT NOT NULL,
	subject   TEXT NOT NULL DEFAULT '',
	body      TEXT NOT NULL,
	active    BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  BIGINT NOT NULL REFERENCES tenants(id),
	user_id    BIGINT NOT NULL,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	icon       TEXT NOT NULL DEFAULT '',
	color      TEXT NOT NULL DEFAULT '',
	link       TEXT NOT NULL DEFAULT '',
	data       JSONB,
	read_at    TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS idempotency_records (
	id            TEXT PRIMARY KEY,
	tenant_id     BIGINT NOT NULL REFERENCES tenants(id),
	subject_type  TEXT NOT NULL,
	subject_id    BIGINT NOT NULL,
	rule_key      TEXT NOT NULL,
	window_start  TIMESTAMPTZ NOT NULL,
	window_bucket BIGINT NOT NULL,
	performed_at  TIMESTAMPTZ NOT NULL,
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
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(tenant_id, user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_idempotency_lookup ON idempotency_records(tenant_id, subject_type, subject_id, rule_key, performed_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
