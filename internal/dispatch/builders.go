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

const (
	colorRed    = "red"
	colorOrange = "orange"
	colorYellow = "yellow"
	colorBlue   = "blue"
)

func workOrderLink(id int64) string { return fmt.Sprintf("/work-orders/%d", id) }

func planBreach(p *plan, scope Scope, f rules.Finding, facts rules.SLABreachFacts) {
	p.breach = facts.BreachType
	a := alert{
		icon:  "alert-octagon",
		color: colorRed,
		link:  workOrderLink(facts.WorkOrderID),
	}
	switch facts.BreachType {
	case store.BreachResponse:
		a.title = fmt.Sprintf("SLA de resposta estourado: OS #%s", facts.Number)
		a.message = fmt.Sprintf("A OS #%s não teve resposta dentro do prazo (%s).",
			facts.Number, facts.Deadline.In(scope.Calendar.Location()).Format("02/01/2006 15:04"))
	default:
		a.title = fmt.Sprintf("SLA de resolução estourado: OS #%s", facts.Number)
		a.message = fmt.Sprintf("A OS #%s ultrapassou o prazo de resolução (%s).",
			facts.Number, facts.Deadline.In(scope.Calendar.Location()).Format("02/01/2006 15:04"))
	}
	p.notify(scope, f, a, recipients(scope, []*int64{facts.AssignedTo}, model.RoleManager, model.RoleAdmin))
}

func planEscalation(p *plan, scope Scope, f rules.Finding, facts rules.SLAEscalationFacts) {
	color := colorYellow
	switch facts.Level {
	case rules.EscalationHigh:
		color = colorOrange
	case rules.EscalationCritical:
		color = colorRed
	}
	p.notify(scope, f, alert{
		title: fmt.Sprintf("SLA em risco: OS #%s", facts.Number),
		message: fmt.Sprintf("%d%% do prazo de resolução consumido. Vence em %s.",
			facts.PercentUsed, facts.DueAt.In(scope.Calendar.Location()).Format("02/01/2006 15:04")),
		icon:  "clock",
		color: color,
		link:  workOrderLink(facts.WorkOrderID),
	}, escalationRecipients(scope, facts))
}

func planOverdue(p *plan, scope Scope, f rules.Finding, facts rules.OverdueFacts) {
	p.transition = &transition{
		subjectType: f.SubjectType,
		from:        model.FinanceStatusPending,
		to:          model.FinanceStatusOverdue,
	}
	a := alert{icon: "dollar-sign", color: overdueColor(f.SubjectType, facts.DaysOverdue)}
	days := plural(facts.DaysOverdue, "dia", "dias")
	if f.SubjectType == rules.SubjectPayable {
		a.title = "Conta a pagar vencida"
		a.message = fmt.Sprintf("%s (%s) de %s venceu em %s, há %s.",
			facts.Description, facts.Supplier, brl(facts.Amount), brDate(facts.DueDate), days)
		a.link = fmt.Sprintf("/finance/payables/%d", facts.ID)
	} else {
		a.title = "Conta a receber vencida"
		a.message = fmt.Sprintf("%s de %s venceu em %s, há %s.",
			facts.Description, brl(facts.Amount), brDate(facts.DueDate), days)
		if facts.Customer != nil {
			a.message = facts.Customer.Name + ": " + a.message
		}
		a.link = fmt.Sprintf("/finance/receivables/%d", facts.ID)
	}
	p.notify(scope, f, a, recipients(scope, nil, model.RoleAdmin, model.RoleManager))
}

// overdueColor grades an overdue alert: receivables start yellow, turn orange
// past 7 days and red past 30; payables are orange until 30 days.
func overdueColor(subjectType string, daysOverdue int) string {
	switch {
	case daysOverdue > 30:
		return colorRed
	case daysOverdue > 7 || subjectType == rules.SubjectPayable:
		return colorOrange
	}
	return colorYellow
}

func planExpiringPayable(p *plan, scope Scope, f rules.Finding, facts rules.PayableDueFacts) {
	msg := fmt.Sprintf("%s de %s vence em %s.", facts.Description, brl(facts.Amount), brDate(facts.DueDate))
	if facts.Supplier != "" {
		msg += " Fornecedor: " + facts.Supplier + "."
	}
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("Conta a pagar vencendo em %s", brDate(facts.DueDate)),
		message: msg,
		icon:    "calendar",
		color:   colorYellow,
		link:    fmt.Sprintf("/finance/payables/%d", facts.ID),
	}, recipients(scope, nil, model.RoleAdmin, model.RoleManager))
}

func planLowStock(p *plan, scope Scope, f rules.Finding, facts rules.LowStockFacts) {
	p.notify(scope, f, alert{
		title: fmt.Sprintf("Estoque baixo: %s", facts.Name),
		message: printer.Sprintf("Estoque atual %.2f %s, mínimo %.2f. Faltam %.2f.",
			facts.StockQty, facts.Unit, facts.StockMin, facts.Deficit),
		icon:  "package",
		color: colorOrange,
		link:  fmt.Sprintf("/inventory/products/%d", facts.ProductID),
	}, recipients(scope, nil, model.RoleAdmin, model.RoleManager))
}

func planContractExpiring(p *plan, scope Scope, f rules.Finding, facts rules.ContractFacts) {
	msg := fmt.Sprintf("O contrato #%s vence em %s (%s).",
		facts.Number, brDate(facts.EndDate), plural(facts.DaysLeft, "dia", "dias"))
	if facts.Customer != nil {
		msg = facts.Customer.Name + ": " + msg
	}
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("Contrato #%s vencendo", facts.Number),
		message: msg,
		icon:    "file-text",
		color:   colorYellow,
		link:    fmt.Sprintf("/contracts/%d", facts.ContractID),
	}, recipients(scope, nil, model.RoleAdmin, model.RoleManager))
}

func planUnbilled(p *plan, scope Scope, f rules.Finding, facts rules.UnbilledFacts) {
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("OS #%s não faturada", facts.Number),
		message: fmt.Sprintf("A OS #%s foi concluída há %s e ainda não foi faturada.", facts.Number, plural(facts.HoursSince, "hora", "horas")),
		icon:    "file-minus",
		color:   colorOrange,
		link:    workOrderLink(facts.WorkOrderID),
	}, recipients(scope, nil, model.RoleAdmin, model.RoleManager))
}

func planQuoteExpired(p *plan, scope Scope, f rules.Finding, facts rules.QuoteFacts) {
	p.notify(scope, f, alert{
		title: fmt.Sprintf("Orçamento #%s expirado", facts.Number),
		message: fmt.Sprintf("O orçamento #%s de %s expirou em %s sem aprovação.",
			facts.Number, brl(facts.Total), brDate(facts.ValidUntil)),
		icon:  "file-x",
		color: colorYellow,
		link:  fmt.Sprintf("/quotes/%d", facts.QuoteID),
	}, recipients(scope, []*int64{facts.SellerID}, model.RoleManager))
}

func planQuoteExpiring(p *plan, scope Scope, f rules.Finding, facts rules.QuoteExpiringFacts) {
	msg := fmt.Sprintf("O orçamento #%s de %s vence em %s.", facts.Number, brl(facts.Total), brDate(facts.ValidUntil))
	if facts.Customer != nil {
		msg = facts.Customer.Name + ": " + msg
	}
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("Orçamento #%s vence em %s", facts.Number, plural(facts.DaysLeft, "dia", "dias")),
		message: msg,
		icon:    "file-text",
		color:   colorYellow,
		link:    fmt.Sprintf("/quotes/%d", facts.QuoteID),
	}, recipients(scope, []*int64{facts.SellerID}, model.RoleManager))
}

func planWorkOrderNotStarted(p *plan, scope Scope, f rules.Finding, facts rules.IdleWorkOrderFacts) {
	color := colorOrange
	if facts.HoursIdle > 48 {
		color = colorRed
	}
	msg := fmt.Sprintf("A OS #%s foi aberta em %s e ainda não foi iniciada.",
		facts.Number, facts.CreatedAt.In(scope.Calendar.Location()).Format("02/01/2006 15:04"))
	if facts.Customer != nil {
		msg = facts.Customer.Name + ": " + msg
	}
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("OS #%s sem início há %s", facts.Number, plural(facts.HoursIdle, "hora", "horas")),
		message: msg,
		icon:    "pause-circle",
		color:   color,
		link:    workOrderLink(facts.WorkOrderID),
	}, recipients(scope, []*int64{facts.AssignedTo}, model.RoleSupervisor, model.RoleManager))
}

// pipeline resolves a CRM pipeline and its first stage. A tenant without the
// pipeline cannot receive automated deals.
func (d *Dispatcher) pipeline(ctx context.Context, scope Scope, f rules.Finding, slug string) (*model.CrmPipeline, error) {
	pl, err := d.store.PipelineBySlug(ctx, scope.TenantID, slug)
	if err != nil {
		return nil, err
	}
	if pl == nil || pl.FirstStageID == nil {
		return nil, &rules.ConfigurationError{
			Rule:        f.Rule,
			TenantID:    scope.TenantID,
			SubjectType: f.SubjectType,
			SubjectID:   f.SubjectID,
			Reason:      fmt.Sprintf("pipeline %q missing or has no stages", slug),
		}
	}
	return pl, nil
}

func (p *plan) deal(scope Scope, f rules.Finding, pl *model.CrmPipeline, source string, customer model.Customer, title string, value rules.Money) model.CrmDeal {
	d := model.CrmDeal{
		ID:          uuid.New().String(),
		TenantID:    scope.TenantID,
		CustomerID:  customer.ID,
		PipelineID:  pl.ID,
		StageID:     *pl.FirstStageID,
		Title:       title,
		Value:       float64(value),
		Status:      model.DealStatusOpen,
		Source:      source,
		SubjectType: f.SubjectType,
		SubjectID:   f.SubjectID,
		AssignedTo:  customer.AssignedSellerID,
		CreatedAt:   scope.Now.UTC(),
	}
	p.deals = append(p.deals, d)
	p.dealGuard = &dealGuard{source: source}
	return d
}

func (d *Dispatcher) planCalibrationDeal(ctx context.Context, p *plan, scope Scope, f rules.Finding, facts rules.CalibrationFacts) error {
	pl, err := d.pipeline(ctx, scope, f, rules.PipelineRecalibration)
	if err != nil {
		return err
	}
	deal := p.deal(scope, f, pl, rules.SourceCalibration, facts.Customer, fmt.Sprintf("Recalibração - %s", facts.Label), 0)
	status := calibrationStatus(facts.DaysRemaining)
	p.activity(scope, model.ActivityTypeSystem, facts.Customer.ID, &deal.ID, facts.Customer.AssignedSellerID,
		"Oportunidade de recalibração criada",
		fmt.Sprintf("Calibração do equipamento %s %s (%s).", facts.Label, status, brDate(facts.DueAt)), nil)
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("Calibração vencendo: %s", facts.Label),
		message: fmt.Sprintf("%s: calibração %s. Oportunidade criada no pipeline de recalibração.", facts.Customer.Name, status),
		icon:    "target",
		color:   colorBlue,
		link:    fmt.Sprintf("/crm/deals/%s", deal.ID),
	}, sellerOrManagers(scope, facts.Customer.AssignedSellerID))
	return nil
}

func (d *Dispatcher) planContractRenewal(ctx context.Context, p *plan, scope Scope, f rules.Finding, facts rules.ContractFacts) error {
	if facts.Customer == nil {
		return &rules.DataError{Rule: f.Rule, SubjectType: f.SubjectType, SubjectID: f.SubjectID, Field: "customer_id", Reason: "is null"}
	}
	pl, err := d.pipeline(ctx, scope, f, rules.PipelineContract)
	if err != nil {
		return err
	}
	c := *facts.Customer
	deal := p.deal(scope, f, pl, rules.SourceContractRenewal, c, fmt.Sprintf("Renovação contrato #%s", facts.Number), facts.Value)
	p.activity(scope, model.ActivityTypeSystem, c.ID, &deal.ID, c.AssignedSellerID,
		"Oportunidade de renovação criada",
		fmt.Sprintf("Contrato #%s vence em %s (%s).", facts.Number, brDate(facts.EndDate), plural(facts.DaysLeft, "dia", "dias")), nil)
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("Renovação de contrato: %s", c.Name),
		message: fmt.Sprintf("O contrato #%s de %s vence em %s. Oportunidade de renovação criada.", facts.Number, brl(facts.Value), brDate(facts.EndDate)),
		icon:    "refresh-cw",
		color:   colorBlue,
		link:    fmt.Sprintf("/crm/deals/%s", deal.ID),
	}, sellerOrManagers(scope, c.AssignedSellerID))
	return nil
}

// dueIn returns the first working instant at least d after now.
func dueIn(scope Scope, d time.Duration) *time.Time {
	t := scope.Calendar.NextWorkingInstant(scope.Now.Add(d)).UTC()
	return &t
}

func planNoContact(p *plan, scope Scope, facts rules.CustomerFacts) {
	c := facts.Customer
	desc := fmt.Sprintf("%s nunca teve contato registrado.", c.Name)
	if facts.LastContactAt != nil {
		desc = fmt.Sprintf("Último contato com %s em %s, há %s.", c.Name, brDate(*facts.LastContactAt), plural(facts.DaysSince, "dia", "dias"))
	}
	p.activity(scope, model.ActivityTypeTask, c.ID, nil, c.AssignedSellerID,
		fmt.Sprintf("Retomar contato com %s", c.Name), desc, dueIn(scope, 3*24*time.Hour))
}

func planLowHealth(p *plan, scope Scope, f rules.Finding, facts rules.CustomerFacts) {
	c := facts.Customer
	p.activity(scope, model.ActivityTypeTask, c.ID, nil, c.AssignedSellerID,
		fmt.Sprintf("Cliente em risco: %s", c.Name),
		fmt.Sprintf("Health score de %s caiu para %d.", c.Name, facts.Score), dueIn(scope, 24*time.Hour))
	p.notify(scope, f, alert{
		title:   fmt.Sprintf("Health score baixo: %s", c.Name),
		message: fmt.Sprintf("O health score de %s está em %d. Avalie uma ação de retenção.", c.Name, facts.Score),
		icon:    "heart",
		color:   colorRed,
		link:    fmt.Sprintf("/crm/customers/%d", c.ID),
	}, sellerOrManagers(scope, c.AssignedSellerID))
}

func planFollowUp(p *plan, scope Scope, facts rules.FollowUpFacts) {
	p.activity(scope, model.ActivityTypeTask, facts.CustomerID, nil, facts.AssignedTo,
		fmt.Sprintf("Pós-atendimento OS #%s", facts.Number),
		fmt.Sprintf("OS #%s concluída em %s. Confirme a satisfação do cliente.", facts.Number, brDate(facts.CompletedAt)),
		dueIn(scope, 24*time.Hour))
}

// template loads the tenant's active template for slug, nil when none.
func (d *Dispatcher) template(ctx context.Context, scope Scope, slug string, ch channel.Kind) (*model.MessageTemplate, error) {
	return d.store.MessageTemplate(ctx, scope.TenantID, slug, string(ch))
}

func (p *plan) message(scope Scope, customer model.Customer, ch channel.Kind, to, subject, body, slug string) {
	p.messages = append(p.messages, model.CrmMessage{
		ID:           uuid.New().String(),
		TenantID:     scope.TenantID,
		CustomerID:   customer.ID,
		Channel:      string(ch),
		To:           to,
		Subject:      subject,
		Body:         body,
		TemplateSlug: slug,
		Status:       model.MessageStatusQueued,
		CreatedAt:    scope.Now.UTC(),
	})
}

// compose renders tpl with vars, or falls back to the built-in subject and
// body. It returns the slug actually used.
func compose(tpl *model.MessageTemplate, vars map[string]string, subject, body string) (string, string, string) {
	if tpl == nil {
		return subject, body, ""
	}
	s := subject
	if tpl.Subject != "" {
		s = render(tpl.Subject, vars)
	}
	return s, render(tpl.Body, vars), tpl.Slug
}

func (d *Dispatcher) planCalibrationReminder(ctx context.Context, p *plan, scope Scope, _ rules.Finding, facts rules.CalibrationFacts) error {
	if scope.quiet() {
		p.skip = ReasonQuietHours
		return nil
	}
	tpl, err := d.template(ctx, scope, rules.TemplateCalibration, channel.KindWhatsApp)
	if err != nil {
		return err
	}
	c := facts.Customer
	status := calibrationStatus(facts.DaysRemaining)
	vars := map[string]string{
		"nome":            c.Name,
		"equipamento":     facts.Label,
		"codigo":          facts.Code,
		"status":          status,
		"dias":            fmt.Sprintf("%d", facts.DaysRemaining),
		"data_vencimento": brDate(facts.DueAt),
	}
	body := fmt.Sprintf("Olá %s!\n\nInformamos que a calibração do equipamento %s (cód. %s) %s.\n\nEntre em contato conosco para agendar. Estamos à disposição!",
		c.Name, facts.Label, facts.Code, status)
	subject, body, slug := compose(tpl, vars, "", body)
	p.message(scope, c, channel.KindWhatsApp, c.Phone, subject, body, slug)
	return nil
}

func (d *Dispatcher) planContractNotice(ctx context.Context, p *plan, scope Scope, f rules.Finding, facts rules.ContractFacts) error {
	if facts.Customer == nil {
		return &rules.DataError{Rule: f.Rule, SubjectType: f.SubjectType, SubjectID: f.SubjectID, Field: "customer_id", Reason: "is null"}
	}
	if scope.quiet() {
		p.skip = ReasonQuietHours
		return nil
	}
	tpl, err := d.template(ctx, scope, rules.TemplateContract, channel.KindEmail)
	if err != nil {
		return err
	}
	c := *facts.Customer
	vars := map[string]string{
		"nome":            c.Name,
		"dias":            fmt.Sprintf("%d", facts.DaysLeft),
		"data_vencimento": brDate(facts.EndDate),
		"valor":           brl(facts.Value),
		"codigo":          facts.Number,
	}
	subject := fmt.Sprintf("Aviso: Seu contrato vence em %s", plural(facts.DaysLeft, "dia", "dias"))
	body := fmt.Sprintf("Prezado(a) %s,\n\nGostaríamos de informar que o contrato de serviços #%s vence em %s (%s).\n\n"+
		"Entre em contato conosco para discutir a renovação e condições especiais.\n\nAtenciosamente,\nEquipe Técnica",
		c.Name, facts.Number, brDate(facts.EndDate), plural(facts.DaysLeft, "dia", "dias"))
	subject, body, slug := compose(tpl, vars, subject, body)
	p.message(scope, c, channel.KindEmail, c.Email, subject, body, slug)
	return nil
}

func (d *Dispatcher) planCollection(ctx context.Context, p *plan, scope Scope, f rules.Finding, facts rules.OverdueFacts) error {
	if facts.Customer == nil {
		return &rules.DataError{Rule: f.Rule, SubjectType: f.SubjectType, SubjectID: f.SubjectID, Field: "customer_id", Reason: "is null"}
	}
	if scope.quiet() {
		p.skip = ReasonQuietHours
		return nil
	}
	tpl, err := d.template(ctx, scope, rules.TemplateCollection, channel.KindWhatsApp)
	if err != nil {
		return err
	}
	c := *facts.Customer
	vars := map[string]string{
		"nome":            c.Name,
		"valor":           brl(facts.Amount),
		"descricao":       facts.Description,
		"data_vencimento": brDate(facts.DueDate),
		"dias":            fmt.Sprintf("%d", facts.DaysOverdue),
	}
	body := fmt.Sprintf("Olá %s! Lembrete: a parcela de %s (%s) venceu em %s. Caso já tenha pago, desconsidere.",
		c.Name, brl(facts.Amount), facts.Description, brDate(facts.DueDate))
	subject, body, slug := compose(tpl, vars, "", body)
	p.message(scope, c, channel.KindWhatsApp, c.Phone, subject, body, slug)
	return nil
}
