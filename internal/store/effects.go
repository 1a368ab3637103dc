package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
)

func (s *sqlStore) InsertNotification(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return s.wrap(err, "marshal notification data")
	}
	_, err = s.c.exec(ctx, s.q(
		`INSERT INTO notifications (id, tenant_id, user_id, type, title, message, icon, color, link, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.TenantID, n.UserID, n.Type, n.Title, n.Message, n.Icon, n.Color, n.Link, string(data), n.CreatedAt.UTC(),
	)
	if err != nil {
		return s.wrap(err, "insert notification")
	}
	return nil
}

func (s *sqlStore) InsertActivity(ctx context.Context, a model.CrmActivity) error {
	_, err := s.c.exec(ctx, s.q(
		`INSERT INTO crm_activities (id, tenant_id, type, customer_id, deal_id, user_id, title, description, due_at, automated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.TenantID, string(a.Type), a.CustomerID, a.DealID, a.UserID, a.Title, a.Description,
		utcPtr(a.DueAt), a.Automated, a.CreatedAt.UTC(),
	)
	if err != nil {
		return s.wrap(err, "insert activity")
	}
	return nil
}

func (s *sqlStore) InsertDeal(ctx context.Context, d model.CrmDeal) error {
	_, err := s.c.exec(ctx, s.q(
		`INSERT INTO crm_deals (id, tenant_id, customer_id, pipeline_id, stage_id, title, value, status, source, subject_type, subject_id, assigned_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID, d.TenantID, d.CustomerID, d.PipelineID, d.StageID, d.Title, d.Value, string(d.Status),
		d.Source, d.SubjectType, d.SubjectID, d.AssignedTo, d.CreatedAt.UTC(),
	)
	if err != nil {
		return s.wrap(err, "insert deal")
	}
	return nil
}

func (s *sqlStore) InsertMessage(ctx context.Context, m model.CrmMessage) error {
	_, err := s.c.exec(ctx, s.q(
		`INSERT INTO crm_messages (id, tenant_id, customer_id, channel, recipient, subject, body, template_slug, status, error, sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.TenantID, m.CustomerID, m.Channel, m.To, m.Subject, m.Body, m.TemplateSlug,
		string(m.Status), m.Error, utcPtr(m.SentAt), m.CreatedAt.UTC(),
	)
	if err != nil {
		return s.wrap(err, "insert message")
	}
	return nil
}

func (s *sqlStore) UpdateMessageStatus(ctx context.Context, tenantID int64, messageID string, status model.MessageStatus, errMsg string, sentAt *time.Time) error {
	n, err := s.c.exec(ctx, s.q(
		`UPDATE crm_messages SET status = ?, error = ?, sent_at = ? WHERE tenant_id = ? AND id = ?`),
		string(status), errMsg, utcPtr(sentAt), tenantID, messageID,
	)
	if err != nil {
		return s.wrap(err, "update message "+messageID)
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "message %s", messageID)
	}
	return nil
}

func (s *sqlStore) SetWorkOrderSlaDue(ctx context.Context, tenantID, workOrderID int64, dueAt time.Time, policyID int64) error {
	n, err := s.c.exec(ctx, s.q(
		`UPDATE work_orders SET sla_due_at = ?, sla_computed_policy_id = ? WHERE tenant_id = ? AND id = ?`),
		dueAt.UTC(), policyID, tenantID, workOrderID,
	)
	if err != nil {
		return s.wrap(err, "set sla due")
	}
	return checkRowsAffected(n, "work order", workOrderID)
}

func (s *sqlStore) FlagWorkOrderBreach(ctx context.Context, tenantID, workOrderID int64, breach BreachKind) error {
	var query string
	switch breach {
	case BreachResponse:
		query = `UPDATE work_orders SET sla_response_breached = ? WHERE tenant_id = ? AND id = ?`
	case BreachResolution:
		query = `UPDATE work_orders SET sla_resolution_breached = ? WHERE tenant_id = ? AND id = ?`
	default:
		return eris.Errorf("%s: unknown breach kind %q", s.d.name, breach)
	}
	n, err := s.c.exec(ctx, s.q(query), true, tenantID, workOrderID)
	if err != nil {
		return s.wrap(err, "flag breach")
	}
	return checkRowsAffected(n, "work order", workOrderID)
}

func (s *sqlStore) TransitionReceivable(ctx context.Context, tenantID, id int64, from, to model.FinanceStatus) (bool, error) {
	return s.transition(ctx, "accounts_receivable", tenantID, id, from, to)
}

func (s *sqlStore) TransitionPayable(ctx context.Context, tenantID, id int64, from, to model.FinanceStatus) (bool, error) {
	return s.transition(ctx, "accounts_payable", tenantID, id, from, to)
}

// transition is a compare-and-set on the status column, so a row that was
// paid since it was read is left alone.
func (s *sqlStore) transition(ctx context.Context, table string, tenantID, id int64, from, to model.FinanceStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, eris.Errorf("%s: illegal transition %s -> %s on %s %d", s.d.name, from, to, table, id)
	}
	n, err := s.c.exec(ctx, s.q(
		`UPDATE `+table+` SET status = ? WHERE tenant_id = ? AND id = ? AND status = ?`),
		string(to), tenantID, id, string(from),
	)
	if err != nil {
		return false, s.wrap(err, "transition "+table)
	}
	return n > 0, nil
}

func (s *sqlStore) InsertRecord(ctx context.Context, rec model.IdempotencyRecord, since time.Time) (bool, error) {
	if s.d.lockRecord != "" {
		key := idempotency.Key{TenantID: rec.TenantID, SubjectType: rec.SubjectType, SubjectID: rec.SubjectID, RuleKey: rec.RuleKey}
		if _, err := s.c.exec(ctx, s.q(s.d.lockRecord), key.String()); err != nil {
			return false, s.wrap(err, "lock idempotency key")
		}
	}
	n, err := s.c.exec(ctx, s.q(s.d.insertRecord),
		rec.ID, rec.TenantID, rec.SubjectType, rec.SubjectID, rec.RuleKey,
		rec.WindowStart.UTC(), rec.WindowBucket, rec.PerformedAt.UTC(),
		rec.TenantID, rec.SubjectType, rec.SubjectID, rec.RuleKey, since.UTC(),
	)
	if err != nil {
		return false, s.wrap(err, "insert idempotency record")
	}
	return n > 0, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
