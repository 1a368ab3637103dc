package store

import (
	"context"
	"time"

	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
)

func (s *sqlStore) ListTenants(ctx context.Context, filter TenantFilter) ([]model.Tenant, error) {
	query := `SELECT id, name, status FROM tenants WHERE 1=1`
	var args []any
	if filter.ID != nil {
		query += ` AND id = ?`
		args = append(args, *filter.ID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list tenants")
	}
	defer rs.Close()

	var out []model.Tenant
	for rs.Next() {
		var t model.Tenant
		var status string
		if err := rs.Scan(&t.ID, &t.Name, &status); err != nil {
			return nil, s.wrap(err, "scan tenant")
		}
		t.Status = model.TenantStatus(status)
		out = append(out, t)
	}
	return out, s.rowsErr(rs, "list tenants")
}

func (s *sqlStore) TenantCalendar(ctx context.Context, tenantID int64) (*model.TenantCalendar, error) {
	tc := model.TenantCalendar{TenantID: tenantID}
	found := true
	err := s.c.queryRow(ctx, s.q(
		`SELECT timezone, work_start, work_end, work_days FROM tenant_calendars WHERE tenant_id = ?`),
		tenantID,
	).Scan(&tc.Timezone, &tc.WorkStart, &tc.WorkEnd, &tc.WorkDays)
	if isNoRows(err) {
		found = false
	} else if err != nil {
		return nil, s.wrap(err, "get tenant calendar")
	}

	rs, err := s.c.query(ctx, s.q(`SELECT date, name FROM holidays WHERE tenant_id = ? ORDER BY date`), tenantID)
	if err != nil {
		return nil, s.wrap(err, "list holidays")
	}
	defer rs.Close()
	for rs.Next() {
		var h model.Holiday
		if err := rs.Scan(&h.Date, &h.Name); err != nil {
			return nil, s.wrap(err, "scan holiday")
		}
		tc.Holidays = append(tc.Holidays, h)
	}
	if err := s.rowsErr(rs, "list holidays"); err != nil {
		return nil, err
	}
	if !found && len(tc.Holidays) == 0 {
		return nil, nil
	}
	return &tc, nil
}

func (s *sqlStore) RuleSettings(ctx context.Context, tenantID int64) (map[string]model.RuleSetting, error) {
	rs, err := s.c.query(ctx, s.q(
		`SELECT rule_key, enabled, days, window_days, channels, recipients, blackout_start, blackout_end
		 FROM rule_settings WHERE tenant_id = ?`),
		tenantID,
	)
	if err != nil {
		return nil, s.wrap(err, "list rule settings")
	}
	defer rs.Close()

	out := make(map[string]model.RuleSetting)
	for rs.Next() {
		rule := model.RuleSetting{TenantID: tenantID}
		var channels, recipients string
		if err := rs.Scan(&rule.RuleKey, &rule.Enabled, &rule.Days, &rule.WindowDays,
			&channels, &recipients, &rule.BlackoutStart, &rule.BlackoutEnd); err != nil {
			return nil, s.wrap(err, "scan rule setting")
		}
		rule.Channels = splitList(channels)
		if rule.Recipients, err = splitIDs(recipients); err != nil {
			return nil, s.wrap(err, "rule setting "+rule.RuleKey+" recipients")
		}
		out[rule.RuleKey] = rule
	}
	return out, s.rowsErr(rs, "list rule settings")
}

func (s *sqlStore) ListUsers(ctx context.Context, tenantID int64, roles ...model.Role) ([]model.User, error) {
	query := `SELECT id, name, email, phone, role, active FROM users WHERE tenant_id = ? AND active = ?`
	args := []any{tenantID, true}
	if len(roles) > 0 {
		query += ` AND role IN (` + placeholders(len(roles)) + `)`
		args = append(args, stringArgs(roles)...)
	}
	query += ` ORDER BY id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list users")
	}
	defer rs.Close()

	var out []model.User
	for rs.Next() {
		u := model.User{TenantID: tenantID}
		var role string
		if err := rs.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role, &u.Active); err != nil {
			return nil, s.wrap(err, "scan user")
		}
		u.Role = model.Role(role)
		out = append(out, u)
	}
	return out, s.rowsErr(rs, "list users")
}

const workOrderColumns = `w.id, w.number, w.customer_id, w.assigned_to, w.status, w.sla_policy_id,
	w.sla_due_at, w.sla_computed_policy_id, w.sla_responded_at, w.sla_response_breached,
	w.sla_resolution_breached, w.created_at, w.completed_at,
	p.id, p.name, p.priority, p.response_minutes, p.resolution_minutes`

func (s *sqlStore) ListWorkOrders(ctx context.Context, tenantID int64, statuses ...model.WorkOrderStatus) ([]model.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + `
		FROM work_orders w
		LEFT JOIN sla_policies p ON p.id = w.sla_policy_id AND p.tenant_id = w.tenant_id
		WHERE w.tenant_id = ?`
	args := []any{tenantID}
	if len(statuses) > 0 {
		query += ` AND w.status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, stringArgs(statuses)...)
	}
	query += ` ORDER BY w.id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list work orders")
	}
	defer rs.Close()

	var out []model.WorkOrder
	for rs.Next() {
		wo, err := scanWorkOrder(rs, tenantID)
		if err != nil {
			return nil, s.wrap(err, "scan work order")
		}
		out = append(out, *wo)
	}
	return out, s.rowsErr(rs, "list work orders")
}

func scanWorkOrder(row scannable, tenantID int64) (*model.WorkOrder, error) {
	wo := model.WorkOrder{TenantID: tenantID}
	var status string
	var policyID *int64
	var policyName, policyPriority *string
	var responseMin, resolutionMin *int
	if err := row.Scan(&wo.ID, &wo.Number, &wo.CustomerID, &wo.AssignedTo, &status, &wo.SlaPolicyID,
		&wo.SlaDueAt, &wo.SlaComputedPolicyID, &wo.SlaRespondedAt, &wo.SlaResponseBreached,
		&wo.SlaResolutionBreached, &wo.CreatedAt, &wo.CompletedAt,
		&policyID, &policyName, &policyPriority, &responseMin, &resolutionMin); err != nil {
		return nil, err
	}
	wo.Status = model.WorkOrderStatus(status)
	if policyID != nil {
		wo.Policy = &model.SlaPolicy{ID: *policyID, TenantID: tenantID}
		if policyName != nil {
			wo.Policy.Name = *policyName
		}
		if policyPriority != nil {
			wo.Policy.Priority = *policyPriority
		}
		if responseMin != nil {
			wo.Policy.ResponseMinutes = *responseMin
		}
		if resolutionMin != nil {
			wo.Policy.ResolutionMinutes = *resolutionMin
		}
	}
	return &wo, nil
}

func (s *sqlStore) ListReceivables(ctx context.Context, tenantID int64, statuses ...model.FinanceStatus) ([]model.AccountReceivable, error) {
	query := `SELECT id, customer_id, description, amount, due_date, status, paid_at
		FROM accounts_receivable WHERE tenant_id = ?`
	args := []any{tenantID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, stringArgs(statuses)...)
	}
	query += ` ORDER BY id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list receivables")
	}
	defer rs.Close()

	var out []model.AccountReceivable
	for rs.Next() {
		ar := model.AccountReceivable{TenantID: tenantID}
		var status string
		if err := rs.Scan(&ar.ID, &ar.CustomerID, &ar.Description, &ar.Amount, &ar.DueDate, &status, &ar.PaidAt); err != nil {
			return nil, s.wrap(err, "scan receivable")
		}
		ar.Status = model.FinanceStatus(status)
		out = append(out, ar)
	}
	return out, s.rowsErr(rs, "list receivables")
}

func (s *sqlStore) ListPayables(ctx context.Context, tenantID int64, statuses ...model.FinanceStatus) ([]model.AccountPayable, error) {
	query := `SELECT id, supplier, description, amount, due_date, status, paid_at
		FROM accounts_payable WHERE tenant_id = ?`
	args := []any{tenantID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, stringArgs(statuses)...)
	}
	query += ` ORDER BY id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list payables")
	}
	defer rs.Close()

	var out []model.AccountPayable
	for rs.Next() {
		ap := model.AccountPayable{TenantID: tenantID}
		var status string
		if err := rs.Scan(&ap.ID, &ap.Supplier, &ap.Description, &ap.Amount, &ap.DueDate, &status, &ap.PaidAt); err != nil {
			return nil, s.wrap(err, "scan payable")
		}
		ap.Status = model.FinanceStatus(status)
		out = append(out, ap)
	}
	return out, s.rowsErr(rs, "list payables")
}

func (s *sqlStore) ListContracts(ctx context.Context, tenantID int64, status model.ContractStatus) ([]model.Contract, error) {
	rs, err := s.c.query(ctx, s.q(
		`SELECT id, customer_id, number, value, status, end_date
		 FROM contracts WHERE tenant_id = ? AND status = ? ORDER BY id`),
		tenantID, string(status),
	)
	if err != nil {
		return nil, s.wrap(err, "list contracts")
	}
	defer rs.Close()

	var out []model.Contract
	for rs.Next() {
		c := model.Contract{TenantID: tenantID}
		var st string
		if err := rs.Scan(&c.ID, &c.CustomerID, &c.Number, &c.Value, &st, &c.EndDate); err != nil {
			return nil, s.wrap(err, "scan contract")
		}
		c.Status = model.ContractStatus(st)
		out = append(out, c)
	}
	return out, s.rowsErr(rs, "list contracts")
}

func (s *sqlStore) ListEquipment(ctx context.Context, tenantID int64, status model.EquipmentStatus) ([]model.Equipment, error) {
	rs, err := s.c.query(ctx, s.q(
		`SELECT id, customer_id, code, brand, model, status, next_calibration_at
		 FROM equipment WHERE tenant_id = ? AND status = ? ORDER BY id`),
		tenantID, string(status),
	)
	if err != nil {
		return nil, s.wrap(err, "list equipment")
	}
	defer rs.Close()

	var out []model.Equipment
	for rs.Next() {
		e := model.Equipment{TenantID: tenantID}
		var st string
		if err := rs.Scan(&e.ID, &e.CustomerID, &e.Code, &e.Brand, &e.Model, &st, &e.NextCalibrationAt); err != nil {
			return nil, s.wrap(err, "scan equipment")
		}
		e.Status = model.EquipmentStatus(st)
		out = append(out, e)
	}
	return out, s.rowsErr(rs, "list equipment")
}

func (s *sqlStore) ListProducts(ctx context.Context, tenantID int64, activeOnly bool) ([]model.Product, error) {
	query := `SELECT id, name, unit, stock_qty, stock_min, active FROM products WHERE tenant_id = ?`
	args := []any{tenantID}
	if activeOnly {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list products")
	}
	defer rs.Close()

	var out []model.Product
	for rs.Next() {
		p := model.Product{TenantID: tenantID}
		if err := rs.Scan(&p.ID, &p.Name, &p.Unit, &p.StockQty, &p.StockMin, &p.Active); err != nil {
			return nil, s.wrap(err, "scan product")
		}
		out = append(out, p)
	}
	return out, s.rowsErr(rs, "list products")
}

func (s *sqlStore) ListQuotes(ctx context.Context, tenantID int64, statuses ...model.QuoteStatus) ([]model.Quote, error) {
	query := `SELECT id, number, customer_id, seller_id, total, status, valid_until FROM quotes WHERE tenant_id = ?`
	args := []any{tenantID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		args = append(args, stringArgs(statuses)...)
	}
	query += ` ORDER BY id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list quotes")
	}
	defer rs.Close()

	var out []model.Quote
	for rs.Next() {
		qt := model.Quote{TenantID: tenantID}
		var st string
		if err := rs.Scan(&qt.ID, &qt.Number, &qt.CustomerID, &qt.SellerID, &qt.Total, &st, &qt.ValidUntil); err != nil {
			return nil, s.wrap(err, "scan quote")
		}
		qt.Status = model.QuoteStatus(st)
		out = append(out, qt)
	}
	return out, s.rowsErr(rs, "list quotes")
}

const customerColumns = `id, name, email, phone, active, assigned_seller_id, last_contact_at, health_score`

func (s *sqlStore) ListCustomers(ctx context.Context, tenantID int64, activeOnly bool) ([]model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE tenant_id = ?`
	args := []any{tenantID}
	if activeOnly {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rs, err := s.c.query(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrap(err, "list customers")
	}
	defer rs.Close()

	var out []model.Customer
	for rs.Next() {
		c, err := scanCustomer(rs, tenantID)
		if err != nil {
			return nil, s.wrap(err, "scan customer")
		}
		out = append(out, *c)
	}
	return out, s.rowsErr(rs, "list customers")
}

func (s *sqlStore) GetCustomer(ctx context.Context, tenantID, customerID int64) (*model.Customer, error) {
	row := s.c.queryRow(ctx, s.q(`SELECT `+customerColumns+` FROM customers WHERE tenant_id = ? AND id = ?`),
		tenantID, customerID)
	c, err := scanCustomer(row, tenantID)
	if isNoRows(err) {
		return nil, s.wrap(ErrNotFound, "customer "+itoa(customerID))
	}
	if err != nil {
		return nil, s.wrap(err, "get customer")
	}
	return c, nil
}

func scanCustomer(row scannable, tenantID int64) (*model.Customer, error) {
	c := model.Customer{TenantID: tenantID}
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Active,
		&c.AssignedSellerID, &c.LastContactAt, &c.HealthScore); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *sqlStore) PipelineBySlug(ctx context.Context, tenantID int64, slug string) (*model.CrmPipeline, error) {
	p := model.CrmPipeline{TenantID: tenantID}
	err := s.c.queryRow(ctx, s.q(
		`SELECT p.id, p.slug, p.name,
			(SELECT st.id FROM crm_pipeline_stages st
			 WHERE st.pipeline_id = p.id AND st.tenant_id = p.tenant_id
			 ORDER BY st.sort_order, st.id LIMIT 1)
		 FROM crm_pipelines p WHERE p.tenant_id = ? AND p.slug = ?`),
		tenantID, slug,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.FirstStageID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap(err, "get pipeline "+slug)
	}
	return &p, nil
}

func (s *sqlStore) MessageTemplate(ctx context.Context, tenantID int64, slug, channel string) (*model.MessageTemplate, error) {
	t := model.MessageTemplate{TenantID: tenantID}
	err := s.c.queryRow(ctx, s.q(
		`SELECT id, slug, channel, subject, body, active FROM crm_message_templates
		 WHERE tenant_id = ? AND slug = ? AND channel = ? AND active = ?
		 ORDER BY id LIMIT 1`),
		tenantID, slug, channel, true,
	).Scan(&t.ID, &t.Slug, &t.Channel, &t.Subject, &t.Body, &t.Active)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap(err, "get message template "+slug)
	}
	return &t, nil
}

func (s *sqlStore) HasOpenDeal(ctx context.Context, tenantID int64, source, subjectType string, subjectID int64) (bool, error) {
	var n int64
	err := s.c.queryRow(ctx, s.q(
		`SELECT COUNT(*) FROM crm_deals
		 WHERE tenant_id = ? AND status = ? AND source = ? AND subject_type = ? AND subject_id = ?`),
		tenantID, string(model.DealStatusOpen), source, subjectType, subjectID,
	).Scan(&n)
	if err != nil {
		return false, s.wrap(err, "count open deals")
	}
	return n > 0, nil
}

func (s *sqlStore) LastPerformed(ctx context.Context, key idempotency.Key) (*time.Time, error) {
	var at time.Time
	err := s.c.queryRow(ctx, s.q(
		`SELECT performed_at FROM idempotency_records
		 WHERE tenant_id = ? AND subject_type = ? AND subject_id = ? AND rule_key = ?
		 ORDER BY performed_at DESC LIMIT 1`),
		key.TenantID, key.SubjectType, key.SubjectID, key.RuleKey,
	).Scan(&at)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap(err, "last performed")
	}
	return &at, nil
}

func (s *sqlStore) rowsErr(rs rows, op string) error {
	if err := rs.Err(); err != nil {
		return s.wrap(err, op)
	}
	return nil
}
