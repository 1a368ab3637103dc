package dispatch_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/dispatch"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
)

func TestApplyOverdueReceivable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	d := dispatch.New(f.store, nil)

	res, err := d.Apply(ctx, f.scope(rules.OverdueReceivable, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	assert.Equal(t, model.FinanceStatusOverdue, f.seed.ReceivableStatus(f.tenant, finding.SubjectID))

	ns := f.seed.Notifications(f.tenant)
	require.Len(t, ns, 2)
	var to []int64
	for _, n := range ns {
		to = append(to, n.UserID)
		assert.Equal(t, string(rules.OverdueReceivable), n.Type)
		assert.Equal(t, "Conta a receber vencida", n.Title)
		assert.Contains(t, n.Message, "Cliente Um")
		assert.Equal(t, "/finance/receivables/"+strconv.FormatInt(finding.SubjectID, 10), n.Link)
		assert.Equal(t, "overdue_receivable", n.Data["rule"])
	}
	assert.ElementsMatch(t, []int64{f.admin, f.manager}, to)
	assert.Equal(t, 1, f.records())
}

func TestApplyIsIdempotentWithinWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	d := dispatch.New(f.store, nil)

	first, err := d.Apply(ctx, f.scope(rules.OverdueReceivable, friday, nil), finding)
	require.NoError(t, err)
	require.Equal(t, dispatch.OutcomeApplied, first.Outcome)

	second, err := d.Apply(ctx, f.scope(rules.OverdueReceivable, friday.Add(time.Hour), nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeSkipped, second.Outcome)
	assert.Equal(t, dispatch.ReasonSeen, second.Reason)

	assert.Len(t, f.seed.Notifications(f.tenant), 2)
	assert.Equal(t, 1, f.records())
}

// storeOnly exposes nothing beyond store.Store, so the dispatcher can only
// record through the tenant transaction.
type storeOnly struct {
	store.Store
}

func TestApplyThroughStoreInterface(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	d := dispatch.New(storeOnly{Store: f.store}, nil)

	first, err := d.Apply(ctx, f.scope(rules.OverdueReceivable, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, first.Outcome)
	assert.Equal(t, 1, f.records())

	second, err := d.Apply(ctx, f.scope(rules.OverdueReceivable, friday.Add(time.Hour), nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReasonSeen, second.Reason)
	assert.Equal(t, 1, f.records())
}

func TestApplyAfterWindowRespectsStatusMachine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	d := dispatch.New(f.store, nil)

	_, err := d.Apply(ctx, f.scope(rules.OverdueReceivable, friday, nil), finding)
	require.NoError(t, err)

	// The one-day window has lapsed but the receivable is no longer pending.
	res, err := d.Apply(ctx, f.scope(rules.OverdueReceivable, friday.Add(25*time.Hour), nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeSkipped, res.Outcome)
	assert.Equal(t, dispatch.ReasonStale, res.Reason)
	assert.Len(t, f.seed.Notifications(f.tenant), 2)
	assert.Equal(t, 1, f.records())
}

func TestApplyStaleTransition(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	// Paid between evaluation and apply.
	f.seed.Exec(`UPDATE accounts_receivable SET status = 'paid' WHERE id = ?`, finding.SubjectID)

	res, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.OverdueReceivable, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeSkipped, res.Outcome)
	assert.Equal(t, dispatch.ReasonStale, res.Reason)
	assert.Equal(t, model.FinanceStatusPaid, f.seed.ReceivableStatus(f.tenant, finding.SubjectID))
	assert.Empty(t, f.seed.Notifications(f.tenant))
	assert.Zero(t, f.records())
}

func TestApplyLostRaceRollsBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	scope := f.scope(rules.OverdueReceivable, friday, nil)
	racing := &racingStore{SQLiteStore: f.store, key: finding.Key(), window: scope.Setting.Window, now: friday}

	res, err := dispatch.New(racing, nil).Apply(context.Background(), scope, finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeSkipped, res.Outcome)
	assert.Equal(t, dispatch.ReasonLostRace, res.Reason)

	assert.Equal(t, model.FinanceStatusPending, f.seed.ReceivableStatus(f.tenant, finding.SubjectID))
	assert.Empty(t, f.seed.Notifications(f.tenant))
	assert.Equal(t, 1, f.records())
}

func TestApplyDryRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	sender := &mockSender{}
	d := dispatch.New(f.store, sender, dispatch.WithDryRun(true))
	require.True(t, d.DryRun())

	res, err := d.Apply(context.Background(), f.scope(rules.OverdueReceivable, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeDryRun, res.Outcome)
	assert.Equal(t, model.FinanceStatusPending, f.seed.ReceivableStatus(f.tenant, finding.SubjectID))
	assert.Empty(t, f.seed.Notifications(f.tenant))
	assert.Zero(t, f.records())
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestApplyRejectsForeignFinding(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	other := f.seed.Tenant("Outra", model.TenantStatusActive)
	finding.TenantID = other

	_, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.OverdueReceivable, friday, nil), finding)
	require.Error(t, err)
	assert.Equal(t, model.FinanceStatusPending, f.seed.ReceivableStatus(f.tenant, finding.SubjectID))
}

func TestApplySLABreach(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	wo := f.seed.WorkOrder(model.WorkOrder{
		TenantID:   f.tenant,
		Number:     "OS-100",
		AssignedTo: &f.technician,
		CreatedAt:  friday.Add(-48 * time.Hour),
	})
	finding := rules.Finding{
		TenantID:    f.tenant,
		Rule:        rules.SLAResponseBreach,
		SubjectType: rules.SubjectWorkOrder,
		SubjectID:   wo,
		Facts: rules.SLABreachFacts{
			WorkOrderID: wo,
			Number:      "OS-100",
			BreachType:  "response",
			Deadline:    friday.Add(-24 * time.Hour),
			AssignedTo:  &f.technician,
		},
	}

	res, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.SLAResponseBreach, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, f.seed.Count("work_orders", "id = ? AND sla_response_breached = 1", wo))
	assert.Equal(t, 0, f.seed.Count("work_orders", "id = ? AND sla_resolution_breached = 1", wo))

	var to []int64
	for _, n := range f.seed.Notifications(f.tenant) {
		to = append(to, n.UserID)
	}
	assert.ElementsMatch(t, []int64{f.technician, f.manager, f.admin}, to)
}

func TestApplyEscalationAudience(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    rules.EscalationLevel
		assigned bool
		want     func(f *fixture) []int64
	}{
		{"warning to assignee", rules.EscalationWarning, true, func(f *fixture) []int64 { return []int64{f.technician} }},
		{"warning unassigned to supervisors", rules.EscalationWarning, false, func(f *fixture) []int64 { return []int64{f.supervisor} }},
		{"high adds supervisors", rules.EscalationHigh, true, func(f *fixture) []int64 { return []int64{f.technician, f.supervisor} }},
		{"critical adds managers", rules.EscalationCritical, true, func(f *fixture) []int64 {
			return []int64{f.technician, f.supervisor, f.manager}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			facts := rules.SLAEscalationFacts{WorkOrderID: 7, Number: "OS-7", Level: tt.level, PercentUsed: 80, DueAt: friday.Add(4 * time.Hour)}
			if tt.assigned {
				facts.AssignedTo = &f.technician
			}
			finding := rules.Finding{TenantID: f.tenant, Rule: rules.SLAEscalation, SubjectType: rules.SubjectWorkOrder, SubjectID: 7, Facts: facts}

			res, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.SLAEscalation, friday, nil), finding)
			require.NoError(t, err)
			require.Equal(t, dispatch.OutcomeApplied, res.Outcome)

			var to []int64
			for _, n := range f.seed.Notifications(f.tenant) {
				to = append(to, n.UserID)
			}
			assert.ElementsMatch(t, tt.want(f), to)
		})
	}
}

func TestApplyEscalationLevelsAreKeyedSeparately(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	d := dispatch.New(f.store, nil)
	for _, level := range []rules.EscalationLevel{rules.EscalationWarning, rules.EscalationHigh, rules.EscalationWarning} {
		finding := rules.Finding{
			TenantID: f.tenant, Rule: rules.SLAEscalation, SubjectType: rules.SubjectWorkOrder, SubjectID: 9,
			Facts: rules.SLAEscalationFacts{WorkOrderID: 9, Number: "OS-9", Level: level, AssignedTo: &f.technician},
		}
		_, err := d.Apply(context.Background(), f.scope(rules.SLAEscalation, friday, nil), finding)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.records())
}

func TestApplyConfiguredRecipients(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
	stored := &model.RuleSetting{Enabled: true, Recipients: []int64{f.seller, 9999}}

	_, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.OverdueReceivable, friday, stored), finding)
	require.NoError(t, err)

	ns := f.seed.Notifications(f.tenant)
	require.Len(t, ns, 1)
	assert.Equal(t, f.seller, ns[0].UserID)
}

func TestApplyNotificationFanOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		blackout bool
		want     map[channel.Kind]int
	}{
		{"all channels", false, map[channel.Kind]int{channel.KindWhatsApp: 2, channel.KindEmail: 2}},
		{"quiet hours keep e-mail only", true, map[channel.Kind]int{channel.KindEmail: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
			stored := &model.RuleSetting{Enabled: true, Channels: []string{"system", "whatsapp", "email"}}
			if tt.blackout {
				stored.BlackoutStart, stored.BlackoutEnd = "12:00", "18:00"
			}
			sender := &mockSender{}
			sender.On("Send", mock.Anything, mock.Anything).Return("provider-id", nil)

			res, err := dispatch.New(f.store, sender).Apply(context.Background(), f.scope(rules.OverdueReceivable, friday, stored), finding)
			require.NoError(t, err)
			assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)

			got := map[channel.Kind]int{}
			for _, c := range sender.Calls {
				got[c.Arguments.Get(1).(channel.Message).Channel]++
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(sender.Calls), res.Sent)
			assert.Len(t, f.seed.Notifications(f.tenant), 2)
		})
	}
}

func TestApplyCalibrationDeal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer("Laboratório Sul")
	pipeline, stage := f.seed.Pipeline(f.tenant, rules.PipelineRecalibration, "Recalibração", "Novo", "Proposta")
	eq := f.seed.Equipment(model.Equipment{TenantID: f.tenant, CustomerID: &c.ID, Code: "EQ-1", Brand: "Mitutoyo", Model: "500-196", NextCalibrationAt: day(2026, 11, 1)})
	finding := rules.Finding{
		TenantID: f.tenant, Rule: rules.CalibrationDue, SubjectType: rules.SubjectEquipment, SubjectID: eq,
		Facts: rules.CalibrationFacts{EquipmentID: eq, Code: "EQ-1", Label: "EQ-1 Mitutoyo 500-196", Customer: c, DueAt: *day(2026, 11, 1), DaysRemaining: 16},
	}
	d := dispatch.New(f.store, nil)

	res, err := d.Apply(ctx, f.scope(rules.CalibrationDue, friday, nil), finding)
	require.NoError(t, err)
	require.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, f.seed.Count("crm_deals", "tenant_id = ? AND pipeline_id = ? AND stage_id = ? AND source = ? AND subject_id = ?",
		f.tenant, pipeline, stage, rules.SourceCalibration, eq))
	assert.Equal(t, 1, f.seed.Count("crm_activities", "tenant_id = ? AND customer_id = ?", f.tenant, c.ID))

	ns := f.seed.Notifications(f.tenant)
	require.Len(t, ns, 1)
	assert.Equal(t, f.seller, ns[0].UserID)
	assert.Contains(t, ns[0].Link, "/crm/deals/")

	// Past the seven-day window the open deal still blocks a second one.
	res, err = d.Apply(ctx, f.scope(rules.CalibrationDue, friday.Add(8*24*time.Hour), nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeSkipped, res.Outcome)
	assert.Equal(t, dispatch.ReasonOpenDeal, res.Reason)
	assert.Equal(t, 1, f.seed.Count("crm_deals", "tenant_id = ?", f.tenant))
}

func TestApplyCalibrationDealGuardIgnoresClosedDeals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.customer("Laboratório Sul")
	pipeline, stage := f.seed.Pipeline(f.tenant, rules.PipelineRecalibration, "Recalibração", "Novo")
	eq := f.seed.Equipment(model.Equipment{TenantID: f.tenant, CustomerID: &c.ID, Code: "EQ-2", NextCalibrationAt: day(2026, 11, 1)})
	f.seed.Deal(model.CrmDeal{TenantID: f.tenant, CustomerID: c.ID, PipelineID: pipeline, StageID: stage, Title: "old",
		Status: model.DealStatusWon, Source: rules.SourceCalibration, SubjectType: rules.SubjectEquipment, SubjectID: eq})
	finding := rules.Finding{
		TenantID: f.tenant, Rule: rules.CalibrationDue, SubjectType: rules.SubjectEquipment, SubjectID: eq,
		Facts: rules.CalibrationFacts{EquipmentID: eq, Code: "EQ-2", Label: "EQ-2", Customer: c, DueAt: *day(2026, 11, 1), DaysRemaining: 16},
	}

	res, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.CalibrationDue, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, f.seed.Count("crm_deals", "tenant_id = ? AND status = 'open'", f.tenant))
}

func TestApplyCalibrationDealWithoutPipeline(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.customer("Laboratório Sul")
	finding := rules.Finding{
		TenantID: f.tenant, Rule: rules.CalibrationDue, SubjectType: rules.SubjectEquipment, SubjectID: 3,
		Facts: rules.CalibrationFacts{EquipmentID: 3, Code: "EQ-3", Label: "EQ-3", Customer: c, DueAt: *day(2026, 11, 1)},
	}

	_, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.CalibrationDue, friday, nil), finding)
	var cfgErr *rules.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, f.records())
}

func TestApplyFollowUpActivity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.customer("Cliente Um")
	finding := rules.Finding{
		TenantID: f.tenant, Rule: rules.WorkOrderFollowUp, SubjectType: rules.SubjectWorkOrder, SubjectID: 11,
		Facts: rules.FollowUpFacts{WorkOrderID: 11, Number: "OS-11", CustomerID: c.ID, AssignedTo: &f.technician, CompletedAt: friday.Add(-time.Hour)},
	}

	res, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.WorkOrderFollowUp, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	require.Equal(t, 1, f.seed.Count("crm_activities", "tenant_id = ? AND type = 'task' AND automated = 1", f.tenant))

	// Friday 15:00 + 24h is Saturday; the task is due Monday at opening.
	var due time.Time
	require.NoError(t, f.store.DB().QueryRow(`SELECT due_at FROM crm_activities WHERE tenant_id = ?`, f.tenant).Scan(&due))
	assert.True(t, due.Equal(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)), due.String())
	assert.Empty(t, f.seed.Notifications(f.tenant))
}

func collectionFinding(f *fixture, c model.Customer) rules.Finding {
	finding := f.overdueReceivable(c, model.FinanceStatusOverdue)
	finding.Rule = rules.CollectionReminder
	return finding
}

func TestApplyCollectionReminder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		wantBody string
		wantSlug string
	}{
		{"default body", "", "Olá Cliente Um! Lembrete: a parcela de R$", ""},
		{"tenant template", "Oi {{nome}}, a parcela {{descricao}} venceu em {{data_vencimento}}.", "Oi Cliente Um, a parcela Parcela 3/10 venceu em 10/10/2026.", rules.TemplateCollection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			c := f.customer("Cliente Um")
			if tt.template != "" {
				f.seed.Template(model.MessageTemplate{TenantID: f.tenant, Slug: rules.TemplateCollection, Channel: "whatsapp", Body: tt.template, Active: true})
			}
			finding := collectionFinding(f, c)
			sender := &mockSender{}
			sender.On("Send", mock.Anything, mock.MatchedBy(func(m channel.Message) bool {
				return m.Channel == channel.KindWhatsApp && m.To == c.Phone
			})).Return("wamid.1", nil).Once()

			res, err := dispatch.New(f.store, sender).Apply(context.Background(), f.scope(rules.CollectionReminder, friday, nil), finding)
			require.NoError(t, err)
			assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
			assert.Equal(t, 1, res.Sent)
			sender.AssertExpectations(t)

			msgs := f.seed.Messages(f.tenant)
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0].Body, tt.wantBody)
			assert.Equal(t, tt.wantSlug, msgs[0].TemplateSlug)
			assert.Equal(t, model.MessageStatusSent, msgs[0].Status)
			assert.Equal(t, "whatsapp", msgs[0].Channel)
		})
	}
}

func TestApplySendFailureIsNotRolledBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := collectionFinding(f, f.customer("Cliente Um"))
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return("", errors.New("provider down"))

	res, err := dispatch.New(f.store, sender).Apply(context.Background(), f.scope(rules.CollectionReminder, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, res.Failed)

	msgs := f.seed.Messages(f.tenant)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageStatusFailed, msgs[0].Status)
	assert.Contains(t, msgs[0].Error, "provider down")
	assert.Equal(t, 1, f.records())
}

func TestApplyWithoutSenderMarksMessageFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := collectionFinding(f, f.customer("Cliente Um"))

	res, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.CollectionReminder, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	msgs := f.seed.Messages(f.tenant)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageStatusFailed, msgs[0].Status)
}

func TestApplyMessageDuringQuietHours(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	finding := collectionFinding(f, f.customer("Cliente Um"))
	stored := &model.RuleSetting{Enabled: true, BlackoutStart: "14:00", BlackoutEnd: "08:00"}
	sender := &mockSender{}
	d := dispatch.New(f.store, sender)

	res, err := d.Apply(context.Background(), f.scope(rules.CollectionReminder, friday, stored), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeSkipped, res.Outcome)
	assert.Equal(t, dispatch.ReasonQuietHours, res.Reason)
	assert.Empty(t, f.seed.Messages(f.tenant))
	assert.Zero(t, f.records())
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	// Outside the blackout the next pass sends.
	sender.On("Send", mock.Anything, mock.Anything).Return("wamid.2", nil)
	monday := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	res, err = d.Apply(context.Background(), f.scope(rules.CollectionReminder, monday, stored), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	assert.Len(t, f.seed.Messages(f.tenant), 1)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "applied", dispatch.OutcomeApplied.String())
	assert.Equal(t, "skipped", dispatch.OutcomeSkipped.String())
	assert.Equal(t, "dry_run", dispatch.OutcomeDryRun.String())
	assert.Equal(t, "unknown", dispatch.Outcome(42).String())
}

func TestApplyOverdueColorBySeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payable bool
		days    int
		want    string
	}{
		{"receivable a few days late", false, 6, "yellow"},
		{"receivable over a week late", false, 8, "orange"},
		{"receivable over a month late", false, 31, "red"},
		{"payable a few days late", true, 3, "orange"},
		{"payable over a month late", true, 31, "red"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			finding := f.overdueReceivable(f.customer("Cliente Um"), model.FinanceStatusPending)
			if tt.payable {
				id := f.seed.Payable(model.AccountPayable{TenantID: f.tenant, Supplier: "Fornecedor X", Amount: 300, DueDate: day(2026, 10, 10)})
				finding = rules.Finding{
					TenantID: f.tenant, Rule: rules.OverduePayable, SubjectType: rules.SubjectPayable, SubjectID: id,
					Facts: rules.OverdueFacts{ID: id, Supplier: "Fornecedor X", Amount: 300, DueDate: *day(2026, 10, 10)},
				}
			}
			facts := finding.Facts.(rules.OverdueFacts)
			facts.DaysOverdue = tt.days
			finding.Facts = facts

			_, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(finding.Rule, friday, nil), finding)
			require.NoError(t, err)
			ns := f.seed.Notifications(f.tenant)
			require.NotEmpty(t, ns)
			for _, n := range ns {
				assert.Equal(t, tt.want, n.Color)
			}
		})
	}
}

func TestApplyExpiringPayable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	id := f.seed.Payable(model.AccountPayable{TenantID: f.tenant, Supplier: "Fornecedor X", Description: "Aluguel", Amount: 2500, DueDate: day(2026, 10, 20)})
	finding := rules.Finding{
		TenantID: f.tenant, Rule: rules.ExpiringPayable, SubjectType: rules.SubjectPayable, SubjectID: id,
		Facts: rules.PayableDueFacts{ID: id, Description: "Aluguel", Supplier: "Fornecedor X", Amount: 2500, DueDate: *day(2026, 10, 20), DaysLeft: 4},
	}

	res, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.ExpiringPayable, friday, nil), finding)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeApplied, res.Outcome)
	assert.Equal(t, model.FinanceStatusPending, f.seed.PayableStatus(f.tenant, id))

	ns := f.seed.Notifications(f.tenant)
	require.Len(t, ns, 2)
	assert.Equal(t, "Conta a pagar vencendo em 20/10/2026", ns[0].Title)
	assert.Contains(t, ns[0].Message, "Fornecedor X")
	assert.Equal(t, "/finance/payables/"+strconv.FormatInt(id, 10), ns[0].Link)
	assert.Equal(t, 1, f.records())
}

func TestApplyQuoteExpiring(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.customer("Cliente Um")
	finding := rules.Finding{
		TenantID: f.tenant, Rule: rules.QuoteExpiring, SubjectType: rules.SubjectQuote, SubjectID: 11,
		Facts: rules.QuoteExpiringFacts{QuoteID: 11, Number: "ORC-11", Customer: &c, SellerID: &f.seller,
			Total: 900, ValidUntil: *day(2026, 10, 19), DaysLeft: 3},
	}

	_, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.QuoteExpiring, friday, nil), finding)
	require.NoError(t, err)

	ns := f.seed.Notifications(f.tenant)
	var to []int64
	for _, n := range ns {
		to = append(to, n.UserID)
		assert.Equal(t, "Orçamento #ORC-11 vence em 3 dias", n.Title)
		assert.Contains(t, n.Message, "Cliente Um")
		assert.Equal(t, "/quotes/11", n.Link)
	}
	assert.ElementsMatch(t, []int64{f.seller, f.manager}, to)
}

func TestApplyWorkOrderNotStarted(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		hours int
		color string
	}{{30, "orange"}, {60, "red"}} {
		t.Run(strconv.Itoa(tt.hours), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			created := friday.Add(-time.Duration(tt.hours) * time.Hour)
			wo := f.seed.WorkOrder(model.WorkOrder{TenantID: f.tenant, Number: "OS-7", AssignedTo: &f.technician, CreatedAt: created})
			finding := rules.Finding{
				TenantID: f.tenant, Rule: rules.WorkOrderNotStarted, SubjectType: rules.SubjectWorkOrder, SubjectID: wo,
				Facts: rules.IdleWorkOrderFacts{WorkOrderID: wo, Number: "OS-7", AssignedTo: &f.technician, CreatedAt: created, HoursIdle: tt.hours},
			}

			_, err := dispatch.New(f.store, nil).Apply(context.Background(), f.scope(rules.WorkOrderNotStarted, friday, nil), finding)
			require.NoError(t, err)

			ns := f.seed.Notifications(f.tenant)
			var to []int64
			for _, n := range ns {
				to = append(to, n.UserID)
				assert.Equal(t, tt.color, n.Color)
				assert.Contains(t, n.Title, "OS #OS-7 sem início")
			}
			assert.ElementsMatch(t, []int64{f.technician, f.supervisor, f.manager}, to)
		})
	}
}
