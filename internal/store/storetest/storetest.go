// Package storetest seeds and inspects SQLite stores in tests.
package storetest

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/store"
)

// NewSQLite creates a migrated SQLite store in t.TempDir().
func NewSQLite(t testing.TB) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// Seeder inserts fixture rows directly, bypassing the engine's write path.
type Seeder struct {
	t  testing.TB
	db *sql.DB
}

// Seed returns a Seeder for s.
func Seed(t testing.TB, s *store.SQLiteStore) *Seeder {
	return &Seeder{t: t, db: s.DB()}
}

func (s *Seeder) insert(query string, args ...any) int64 {
	s.t.Helper()
	res, err := s.db.Exec(query, args...)
	require.NoError(s.t, err, query)
	id, err := res.LastInsertId()
	require.NoError(s.t, err)
	return id
}

// Exec runs an arbitrary statement.
func (s *Seeder) Exec(query string, args ...any) {
	s.t.Helper()
	_, err := s.db.Exec(query, args...)
	require.NoError(s.t, err, query)
}

func (s *Seeder) Tenant(name string, status model.TenantStatus) int64 {
	return s.insert(`INSERT INTO tenants (name, status) VALUES (?, ?)`, name, string(status))
}

func (s *Seeder) User(u model.User) int64 {
	return s.insert(`INSERT INTO users (tenant_id, name, email, phone, role, active) VALUES (?, ?, ?, ?, ?, ?)`,
		u.TenantID, u.Name, u.Email, u.Phone, string(u.Role), u.Active)
}

func (s *Seeder) Calendar(tc model.TenantCalendar) {
	s.Exec(`INSERT INTO tenant_calendars (tenant_id, timezone, work_start, work_end, work_days) VALUES (?, ?, ?, ?, ?)`,
		tc.TenantID, tc.Timezone, tc.WorkStart, tc.WorkEnd, tc.WorkDays)
	for _, h := range tc.Holidays {
		s.Exec(`INSERT INTO holidays (tenant_id, date, name) VALUES (?, ?, ?)`, tc.TenantID, h.Date.UTC(), h.Name)
	}
}

func (s *Seeder) RuleSetting(r model.RuleSetting) {
	ids := make([]string, len(r.Recipients))
	for i, id := range r.Recipients {
		ids[i] = strconv.FormatInt(id, 10)
	}
	s.Exec(`INSERT INTO rule_settings (tenant_id, rule_key, enabled, days, window_days, channels, recipients, blackout_start, blackout_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TenantID, r.RuleKey, r.Enabled, r.Days, r.WindowDays, strings.Join(r.Channels, ","), strings.Join(ids, ","),
		r.BlackoutStart, r.BlackoutEnd)
}

func (s *Seeder) SlaPolicy(p model.SlaPolicy) int64 {
	return s.insert(`INSERT INTO sla_policies (tenant_id, name, priority, response_minutes, resolution_minutes) VALUES (?, ?, ?, ?, ?)`,
		p.TenantID, p.Name, p.Priority, p.ResponseMinutes, p.ResolutionMinutes)
}

func (s *Seeder) Customer(c model.Customer) int64 {
	return s.insert(`INSERT INTO customers (tenant_id, name, email, phone, active, assigned_seller_id, last_contact_at, health_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TenantID, c.Name, c.Email, c.Phone, c.Active, c.AssignedSellerID, utc(c.LastContactAt), c.HealthScore)
}

func (s *Seeder) WorkOrder(w model.WorkOrder) int64 {
	if w.Status == "" {
		w.Status = model.WorkOrderStatusOpen
	}
	return s.insert(`INSERT INTO work_orders (tenant_id, number, customer_id, assigned_to, status, sla_policy_id, sla_due_at,
		sla_computed_policy_id, sla_responded_at, sla_response_breached, sla_resolution_breached, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.TenantID, w.Number, w.CustomerID, w.AssignedTo, string(w.Status), w.SlaPolicyID, utc(w.SlaDueAt),
		w.SlaComputedPolicyID, utc(w.SlaRespondedAt), w.SlaResponseBreached, w.SlaResolutionBreached,
		w.CreatedAt.UTC(), utc(w.CompletedAt))
}

func (s *Seeder) Receivable(a model.AccountReceivable) int64 {
	if a.Status == "" {
		a.Status = model.FinanceStatusPending
	}
	return s.insert(`INSERT INTO accounts_receivable (tenant_id, customer_id, description, amount, due_date, status, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.TenantID, a.CustomerID, a.Description, a.Amount, utc(a.DueDate), string(a.Status), utc(a.PaidAt))
}

func (s *Seeder) Payable(a model.AccountPayable) int64 {
	if a.Status == "" {
		a.Status = model.FinanceStatusPending
	}
	return s.insert(`INSERT INTO accounts_payable (tenant_id, supplier, description, amount, due_date, status, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.TenantID, a.Supplier, a.Description, a.Amount, utc(a.DueDate), string(a.Status), utc(a.PaidAt))
}

func (s *Seeder) Contract(c model.Contract) int64 {
	if c.Status == "" {
		c.Status = model.ContractStatusActive
	}
	return s.insert(`INSERT INTO contracts (tenant_id, customer_id, number, value, status, end_date) VALUES (?, ?, ?, ?, ?, ?)`,
		c.TenantID, c.CustomerID, c.Number, c.Value, string(c.Status), utc(c.EndDate))
}

func (s *Seeder) Equipment(e model.Equipment) int64 {
	if e.Status == "" {
		e.Status = model.EquipmentStatusActive
	}
	return s.insert(`INSERT INTO equipment (tenant_id, customer_id, code, brand, model, status, next_calibration_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TenantID, e.CustomerID, e.Code, e.Brand, e.Model, string(e.Status), utc(e.NextCalibrationAt))
}

func (s *Seeder) Product(p model.Product) int64 {
	return s.insert(`INSERT INTO products (tenant_id, name, unit, stock_qty, stock_min, active) VALUES (?, ?, ?, ?, ?, ?)`,
		p.TenantID, p.Name, p.Unit, p.StockQty, p.StockMin, p.Active)
}

func (s *Seeder) Quote(q model.Quote) int64 {
	return s.insert(`INSERT INTO quotes (tenant_id, number, customer_id, seller_id, total, status, valid_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.TenantID, q.Number, q.CustomerID, q.SellerID, q.Total, string(q.Status), utc(q.ValidUntil))
}

// Pipeline creates a pipeline with stages in order and returns the pipeline
// id and the first stage id.
func (s *Seeder) Pipeline(tenantID int64, slug, name string, stages ...string) (int64, int64) {
	pid := s.insert(`INSERT INTO crm_pipelines (tenant_id, slug, name) VALUES (?, ?, ?)`, tenantID, slug, name)
	var first int64
	for i, st := range stages {
		id := s.insert(`INSERT INTO crm_pipeline_stages (tenant_id, pipeline_id, name, sort_order) VALUES (?, ?, ?, ?)`,
			tenantID, pid, st, i)
		if i == 0 {
			first = id
		}
	}
	return pid, first
}

func (s *Seeder) Template(m model.MessageTemplate) int64 {
	return s.insert(`INSERT INTO crm_message_templates (tenant_id, slug, channel, subject, body, active) VALUES (?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.Slug, m.Channel, m.Subject, m.Body, m.Active)
}

func (s *Seeder) Deal(d model.CrmDeal) string {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = model.DealStatusOpen
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.Exec(`INSERT INTO crm_deals (id, tenant_id, customer_id, pipeline_id, stage_id, title, value, status, source, subject_type, subject_id, assigned_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.CustomerID, d.PipelineID, d.StageID, d.Title, d.Value, string(d.Status),
		d.Source, d.SubjectType, d.SubjectID, d.AssignedTo, d.CreatedAt.UTC())
	return d.ID
}

// Count returns the number of rows in table matching where.
func (s *Seeder) Count(table, where string, args ...any) int {
	s.t.Helper()
	query := `SELECT COUNT(*) FROM ` + table
	if where != "" {
		query += ` WHERE ` + where
	}
	var n int
	require.NoError(s.t, s.db.QueryRow(query, args...).Scan(&n), query)
	return n
}

func (s *Seeder) ReceivableStatus(tenantID, id int64) model.FinanceStatus {
	s.t.Helper()
	var st string
	require.NoError(s.t, s.db.QueryRow(`SELECT status FROM accounts_receivable WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&st))
	return model.FinanceStatus(st)
}

func (s *Seeder) PayableStatus(tenantID, id int64) model.FinanceStatus {
	s.t.Helper()
	var st string
	require.NoError(s.t, s.db.QueryRow(`SELECT status FROM accounts_payable WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&st))
	return model.FinanceStatus(st)
}

// Notifications returns a tenant's notifications ordered by insertion.
func (s *Seeder) Notifications(tenantID int64) []model.Notification {
	s.t.Helper()
	rs, err := s.db.Query(`SELECT id, user_id, type, title, message, icon, color, link, data, created_at
		FROM notifications WHERE tenant_id = ? ORDER BY rowid`, tenantID)
	require.NoError(s.t, err)
	defer rs.Close()

	var out []model.Notification
	for rs.Next() {
		n := model.Notification{TenantID: tenantID}
		var data sql.NullString
		require.NoError(s.t, rs.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Icon, &n.Color, &n.Link, &data, &n.CreatedAt))
		if data.Valid && data.String != "" && data.String != "null" {
			require.NoError(s.t, json.Unmarshal([]byte(data.String), &n.Data))
		}
		out = append(out, n)
	}
	require.NoError(s.t, rs.Err())
	return out
}

// Messages returns a tenant's outbound messages ordered by insertion.
func (s *Seeder) Messages(tenantID int64) []model.CrmMessage {
	s.t.Helper()
	rs, err := s.db.Query(`SELECT id, customer_id, channel, recipient, subject, body, template_slug, status, error
		FROM crm_messages WHERE tenant_id = ? ORDER BY rowid`, tenantID)
	require.NoError(s.t, err)
	defer rs.Close()

	var out []model.CrmMessage
	for rs.Next() {
		m := model.CrmMessage{TenantID: tenantID}
		var st string
		require.NoError(s.t, rs.Scan(&m.ID, &m.CustomerID, &m.Channel, &m.To, &m.Subject, &m.Body, &m.TemplateSlug, &st, &m.Error))
		m.Status = model.MessageStatus(st)
		out = append(out, m)
	}
	require.NoError(s.t, rs.Err())
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
