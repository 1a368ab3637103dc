package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
)

// plan is the full set of effects for one finding.
type plan struct {
	notifications []model.Notification
	activities    []model.CrmActivity
	deals         []model.CrmDeal
	messages      []model.CrmMessage
	outbound      []channel.Message

	slaDue     *slaDue
	breach     store.BreachKind
	transition *transition
	dealGuard  *dealGuard

	// skip is set when the finding must wait for a later pass.
	skip string
}

type slaDue struct {
	dueAt    time.Time
	policyID int64
}

type transition struct {
	subjectType string
	from, to    model.FinanceStatus
}

type dealGuard struct {
	source string
}

func (p *plan) empty() bool {
	return len(p.notifications) == 0 && len(p.activities) == 0 && len(p.deals) == 0 &&
		len(p.messages) == 0 && p.slaDue == nil && p.breach == "" && p.transition == nil
}

// persist writes the plan inside a tenant transaction. Status updates go
// first so a stale compare-and-set aborts before any row is inserted.
func (p *plan) persist(ctx context.Context, tx store.Tx, tenantID int64, f rules.Finding) error {
	if p.transition != nil {
		var ok bool
		var err error
		switch p.transition.subjectType {
		case rules.SubjectReceivable:
			ok, err = tx.TransitionReceivable(ctx, tenantID, f.SubjectID, p.transition.from, p.transition.to)
		case rules.SubjectPayable:
			ok, err = tx.TransitionPayable(ctx, tenantID, f.SubjectID, p.transition.from, p.transition.to)
		default:
			return fmt.Errorf("dispatch: no transition for %s", p.transition.subjectType)
		}
		if err != nil {
			return err
		}
		if !ok {
			return &skipError{reason: ReasonStale}
		}
	}
	if p.slaDue != nil {
		if err := tx.SetWorkOrderSlaDue(ctx, tenantID, f.SubjectID, p.slaDue.dueAt, p.slaDue.policyID); err != nil {
			return err
		}
	}
	if p.breach != "" {
		if err := tx.FlagWorkOrderBreach(ctx, tenantID, f.SubjectID, p.breach); err != nil {
			return err
		}
	}
	if p.dealGuard != nil {
		open, err := tx.HasOpenDeal(ctx, tenantID, p.dealGuard.source, f.SubjectType, f.SubjectID)
		if err != nil {
			return err
		}
		if open {
			return &skipError{reason: ReasonOpenDeal}
		}
	}
	for _, d := range p.deals {
		if err := tx.InsertDeal(ctx, d); err != nil {
			return err
		}
	}
	for _, a := range p.activities {
		if err := tx.InsertActivity(ctx, a); err != nil {
			return err
		}
	}
	for _, n := range p.notifications {
		if err := tx.InsertNotification(ctx, n); err != nil {
			return err
		}
	}
	for _, m := range p.messages {
		if err := tx.InsertMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// alert is the user-facing part of a notification.
type alert struct {
	title   string
	message string
	icon    string
	color   string
	link    string
}

// notify adds one notification per recipient and the matching outbound
// sends for the rule's enabled channels. WhatsApp and push stay silent
// during quiet hours; the in-app row is always written.
func (p *plan) notify(scope Scope, f rules.Finding, a alert, userIDs []int64) {
	data := f.Facts.Data()
	data["rule"] = string(f.Rule)
	data["subject_type"] = f.SubjectType
	data["subject_id"] = f.SubjectID

	quiet := scope.quiet()
	users := usersByID(scope.Users)
	for _, id := range userIDs {
		p.notifications = append(p.notifications, model.Notification{
			ID:        uuid.New().String(),
			TenantID:  scope.TenantID,
			UserID:    id,
			Type:      string(f.Rule),
			Title:     a.title,
			Message:   a.message,
			Icon:      a.icon,
			Color:     a.color,
			Link:      a.link,
			Data:      data,
			CreatedAt: scope.Now.UTC(),
		})

		u, ok := users[id]
		if !ok {
			continue
		}
		for _, ch := range scope.Setting.Channels {
			if !ch.Outbound() || (quiet && ch != channel.KindEmail) {
				continue
			}
			msg := channel.Message{TenantID: scope.TenantID, Channel: ch, Subject: a.title, Body: a.message, Data: data}
			switch ch {
			case channel.KindWhatsApp:
				msg.To = u.Phone
				msg.Body = a.title + "\n" + a.message
			case channel.KindEmail:
				msg.To = u.Email
			case channel.KindPush:
				msg.To = fmt.Sprintf("%d", u.ID)
			}
			if msg.To == "" {
				continue
			}
			p.outbound = append(p.outbound, msg)
		}
	}
}

// activity adds an automated CRM activity.
func (p *plan) activity(scope Scope, typ model.ActivityType, customerID int64, dealID *string, userID *int64, title, desc string, due *time.Time) {
	p.activities = append(p.activities, model.CrmActivity{
		ID:          uuid.New().String(),
		TenantID:    scope.TenantID,
		Type:        typ,
		CustomerID:  customerID,
		DealID:      dealID,
		UserID:      userID,
		Title:       title,
		Description: desc,
		DueAt:       due,
		Automated:   true,
		CreatedAt:   scope.Now.UTC(),
	})
}

// plan builds the effects for f. Every rule kind has a case; adding a kind
// without one is caught by the default branch in tests.
func (d *Dispatcher) plan(ctx context.Context, scope Scope, f rules.Finding) (*plan, error) {
	p := &plan{}
	switch facts := f.Facts.(type) {
	case rules.SLADeadlineFacts:
		p.slaDue = &slaDue{dueAt: facts.DueAt, policyID: facts.PolicyID}
	case rules.SLABreachFacts:
		planBreach(p, scope, f, facts)
	case rules.SLAEscalationFacts:
		planEscalation(p, scope, f, facts)
	case rules.OverdueFacts:
		switch f.Rule {
		case rules.CollectionReminder:
			return p, d.planCollection(ctx, p, scope, f, facts)
		default:
			planOverdue(p, scope, f, facts)
		}
	case rules.PayableDueFacts:
		planExpiringPayable(p, scope, f, facts)
	case rules.LowStockFacts:
		planLowStock(p, scope, f, facts)
	case rules.ContractFacts:
		switch f.Rule {
		case rules.ContractRenewal:
			return p, d.planContractRenewal(ctx, p, scope, f, facts)
		case rules.ContractNotice:
			return p, d.planContractNotice(ctx, p, scope, f, facts)
		default:
			planContractExpiring(p, scope, f, facts)
		}
	case rules.UnbilledFacts:
		planUnbilled(p, scope, f, facts)
	case rules.QuoteFacts:
		planQuoteExpired(p, scope, f, facts)
	case rules.QuoteExpiringFacts:
		planQuoteExpiring(p, scope, f, facts)
	case rules.IdleWorkOrderFacts:
		planWorkOrderNotStarted(p, scope, f, facts)
	case rules.CalibrationFacts:
		switch f.Rule {
		case rules.CalibrationReminder:
			return p, d.planCalibrationReminder(ctx, p, scope, f, facts)
		default:
			return p, d.planCalibrationDeal(ctx, p, scope, f, facts)
		}
	case rules.CustomerFacts:
		switch f.Rule {
		case rules.LowHealthScore:
			planLowHealth(p, scope, f, facts)
		default:
			planNoContact(p, scope, facts)
		}
	case rules.FollowUpFacts:
		planFollowUp(p, scope, facts)
	default:
		return nil, fmt.Errorf("dispatch: no plan for %s (%T)", f.Rule, f.Facts)
	}
	return p, nil
}
