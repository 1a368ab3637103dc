package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/store"
	"github.com/sells-group/automation-cli/internal/store/storetest"
)

var ptr = storetest.Ptr[time.Time]

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s := storetest.NewSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestSQLiteStore_ListTenants(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	a := seed.Tenant("Acme", model.TenantStatusActive)
	seed.Tenant("Dormant", model.TenantStatusInactive)
	c := seed.Tenant("Trial", model.TenantStatusTrial)
	ctx := context.Background()

	active, err := s.ListTenants(ctx, store.TenantFilter{Status: model.TenantStatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a, active[0].ID)

	one, err := s.ListTenants(ctx, store.TenantFilter{ID: &c})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, model.TenantStatusTrial, one[0].Status)

	all, err := s.ListTenants(ctx, store.TenantFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_TenantCalendar(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	t1 := seed.Tenant("Acme", model.TenantStatusActive)
	t2 := seed.Tenant("Beta", model.TenantStatusActive)
	seed.Calendar(model.TenantCalendar{
		TenantID: t1, Timezone: "America/Sao_Paulo", WorkStart: "08:00", WorkEnd: "17:00", WorkDays: "1,2,3,4,5",
		Holidays: []model.Holiday{{Date: day("2026-11-02"), Name: "Finados"}},
	})
	ctx := context.Background()

	tc, err := s.TenantCalendar(ctx, t1)
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, "America/Sao_Paulo", tc.Timezone)
	require.Len(t, tc.Holidays, 1)
	assert.Equal(t, "2026-11-02", tc.Holidays[0].Date.UTC().Format("2006-01-02"))

	missing, err := s.TenantCalendar(ctx, t2)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_RuleSettings(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	seed.RuleSetting(model.RuleSetting{
		TenantID: tid, RuleKey: "contract_expiring", Enabled: true, Days: 45, WindowDays: 7,
		Channels: []string{"system", "whatsapp"}, Recipients: []int64{3, 4},
		BlackoutStart: "22:00", BlackoutEnd: "07:00",
	})

	got, err := s.RuleSettings(context.Background(), tid)
	require.NoError(t, err)
	rs, ok := got["contract_expiring"]
	require.True(t, ok)
	assert.True(t, rs.Enabled)
	assert.Equal(t, 45, rs.Days)
	assert.Equal(t, []string{"system", "whatsapp"}, rs.Channels)
	assert.Equal(t, []int64{3, 4}, rs.Recipients)
	assert.Equal(t, "22:00", rs.BlackoutStart)
}

func TestSQLiteStore_ListWorkOrders_JoinsPolicy(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	pid := seed.SlaPolicy(model.SlaPolicy{TenantID: tid, Name: "Gold", ResponseMinutes: 60, ResolutionMinutes: 480})
	created := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	withPolicy := seed.WorkOrder(model.WorkOrder{TenantID: tid, Number: "OS-1", SlaPolicyID: &pid, CreatedAt: created})
	seed.WorkOrder(model.WorkOrder{TenantID: tid, Number: "OS-2", CreatedAt: created})
	seed.WorkOrder(model.WorkOrder{TenantID: tid, Number: "OS-3", Status: model.WorkOrderStatusCancelled, CreatedAt: created})

	wos, err := s.ListWorkOrders(context.Background(), tid, model.WorkOrderStatusOpen, model.WorkOrderStatusInProgress)
	require.NoError(t, err)
	require.Len(t, wos, 2)
	assert.Equal(t, withPolicy, wos[0].ID)
	require.NotNil(t, wos[0].Policy)
	assert.Equal(t, 480, wos[0].Policy.ResolutionMinutes)
	assert.True(t, created.Equal(wos[0].CreatedAt))
	assert.Nil(t, wos[1].Policy)
	assert.Nil(t, wos[1].SlaDueAt)
}

func TestSQLiteStore_TenantScoping(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	a := seed.Tenant("A", model.TenantStatusActive)
	b := seed.Tenant("B", model.TenantStatusActive)
	seed.Receivable(model.AccountReceivable{TenantID: a, Amount: 10, DueDate: ptr(day("2026-10-01"))})
	bID := seed.Receivable(model.AccountReceivable{TenantID: b, Amount: 20, DueDate: ptr(day("2026-10-01"))})
	ctx := context.Background()

	got, err := s.ListReceivables(ctx, a, model.FinanceStatusPending)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0].TenantID)

	err = s.InTenant(ctx, a, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.TransitionReceivable(ctx, a, bID, model.FinanceStatusPending, model.FinanceStatusOverdue)
		require.NoError(t, err)
		assert.False(t, ok, "tenant A must not update tenant B's row")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.FinanceStatusPending, seed.ReceivableStatus(b, bID))

	_, err = s.GetCustomer(ctx, a, 12345)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStore_TransitionIsCompareAndSet(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	id := seed.Receivable(model.AccountReceivable{TenantID: tid, Status: model.FinanceStatusPaid, DueDate: ptr(day("2026-01-01"))})
	ctx := context.Background()

	err := s.InTenant(ctx, tid, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.TransitionReceivable(ctx, tid, id, model.FinanceStatusPending, model.FinanceStatusOverdue)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.FinanceStatusPaid, seed.ReceivableStatus(tid, id))
}

func TestSQLiteStore_InTenant_Rollback(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTenant(ctx, tid, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertNotification(ctx, model.Notification{
			ID: uuid.New().String(), TenantID: tid, UserID: 1, Type: "test", Title: "t", Message: "m",
			CreatedAt: time.Now(),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, seed.Count("notifications", ""))

	assert.Panics(t, func() {
		_ = s.InTenant(ctx, tid, func(context.Context, store.Tx) error { panic("bad row") })
	})
	// The connection must be usable after the panic rolled back.
	_, err = s.ListTenants(ctx, store.TenantFilter{})
	require.NoError(t, err)
}

func TestSQLiteStore_Effects(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	cust := seed.Customer(model.Customer{TenantID: tid, Name: "Lab Ltda", Active: true})
	pipe, stage := seed.Pipeline(tid, "recalibracao", "Recalibração", "Novo", "Proposta")
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	p, err := s.PipelineBySlug(ctx, tid, "recalibracao")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, pipe, p.ID)
	require.NotNil(t, p.FirstStageID)
	assert.Equal(t, stage, *p.FirstStageID)

	msgID := uuid.New().String()
	err = s.InTenant(ctx, tid, func(ctx context.Context, tx store.Tx) error {
		dealID := uuid.New().String()
		require.NoError(t, tx.InsertDeal(ctx, model.CrmDeal{
			ID: dealID, TenantID: tid, CustomerID: cust, PipelineID: pipe, StageID: stage,
			Title: "Recalibração EQ-1", Status: model.DealStatusOpen, Source: "calibracao_vencendo",
			SubjectType: "equipment", SubjectID: 7, CreatedAt: now,
		}))
		require.NoError(t, tx.InsertActivity(ctx, model.CrmActivity{
			ID: uuid.New().String(), TenantID: tid, Type: model.ActivityTypeSystem, CustomerID: cust,
			DealID: &dealID, Title: "Deal criado", Automated: true, CreatedAt: now,
		}))
		require.NoError(t, tx.InsertMessage(ctx, model.CrmMessage{
			ID: msgID, TenantID: tid, CustomerID: cust, Channel: "whatsapp", To: "5511999990000",
			Body: "Olá", Status: model.MessageStatusQueued, CreatedAt: now,
		}))
		return tx.InsertNotification(ctx, model.Notification{
			ID: uuid.New().String(), TenantID: tid, UserID: 2, Type: "calibration_due", Title: "t", Message: "m",
			Data: map[string]any{"equipment_id": 7}, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	open, err := s.HasOpenDeal(ctx, tid, "calibracao_vencendo", "equipment", 7)
	require.NoError(t, err)
	assert.True(t, open)
	open, err = s.HasOpenDeal(ctx, tid, "calibracao_vencendo", "equipment", 8)
	require.NoError(t, err)
	assert.False(t, open)

	sent := now.Add(time.Minute)
	require.NoError(t, s.UpdateMessageStatus(ctx, tid, msgID, model.MessageStatusSent, "", &sent))
	msgs := seed.Messages(tid)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageStatusSent, msgs[0].Status)

	notes := seed.Notifications(tid)
	require.Len(t, notes, 1)
	assert.EqualValues(t, 7, notes[0].Data["equipment_id"])

	err = s.UpdateMessageStatus(ctx, tid, "missing", model.MessageStatusSent, "", &sent)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStore_MessageTemplate(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	seed.Template(model.MessageTemplate{TenantID: tid, Slug: "lembrete-calibracao", Channel: "whatsapp", Body: "Oi {{nome}}", Active: true})
	seed.Template(model.MessageTemplate{TenantID: tid, Slug: "contrato-expirando", Channel: "email", Body: "old", Active: false})
	ctx := context.Background()

	tpl, err := s.MessageTemplate(ctx, tid, "lembrete-calibracao", "whatsapp")
	require.NoError(t, err)
	require.NotNil(t, tpl)
	assert.Equal(t, "Oi {{nome}}", tpl.Body)

	inactive, err := s.MessageTemplate(ctx, tid, "contrato-expirando", "email")
	require.NoError(t, err)
	assert.Nil(t, inactive)
}

func TestSQLiteStore_IdempotencyGuard(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	ctx := context.Background()
	key := idempotency.Key{TenantID: tid, SubjectType: "account_receivable", SubjectID: 1, RuleKey: "overdue_receivable"}
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	clock := start
	guard := idempotency.New(s, func() time.Time { return clock })

	record := func() bool {
		var ok bool
		err := s.InTenant(ctx, tid, func(ctx context.Context, tx store.Tx) error {
			var err error
			ok, err = guard.With(tx).Record(ctx, key, idempotency.Days(7))
			return err
		})
		require.NoError(t, err)
		return ok
	}

	assert.True(t, record())
	assert.False(t, record())

	clock = start.Add(idempotency.Days(6))
	seen, err := guard.Seen(ctx, key, idempotency.Days(7))
	require.NoError(t, err)
	assert.True(t, seen)
	assert.False(t, record())

	clock = start.Add(idempotency.Days(8))
	seen, err = guard.Seen(ctx, key, idempotency.Days(7))
	require.NoError(t, err)
	assert.False(t, seen)
	assert.True(t, record())

	assert.Equal(t, 2, seed.Count("idempotency_records", "tenant_id = ?", tid))
}

func TestSQLiteStore_IdempotencyConcurrent(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	ctx := context.Background()
	key := idempotency.Key{TenantID: tid, SubjectType: "product", SubjectID: 9, RuleKey: "low_stock"}
	guard := idempotency.New(s, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTenant(ctx, tid, func(ctx context.Context, tx store.Tx) error {
				ok, err := guard.With(tx).Record(ctx, key, idempotency.Days(3))
				if err == nil && ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
				return err
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, seed.Count("idempotency_records", ""))
}

func TestSQLiteStore_ListsByStatus(t *testing.T) {
	s := storetest.NewSQLite(t)
	seed := storetest.Seed(t, s)
	tid := seed.Tenant("Acme", model.TenantStatusActive)
	cust := seed.Customer(model.Customer{TenantID: tid, Name: "Lab", Active: true, HealthScore: storetest.Ptr(40)})
	seed.Customer(model.Customer{TenantID: tid, Name: "Old", Active: false})
	seed.Payable(model.AccountPayable{TenantID: tid, Supplier: "Fornecedor", Amount: 99.5, DueDate: ptr(day("2026-10-01"))})
	seed.Contract(model.Contract{TenantID: tid, CustomerID: &cust, Number: "CT-1", EndDate: ptr(day("2026-11-01"))})
	seed.Equipment(model.Equipment{TenantID: tid, CustomerID: &cust, Code: "EQ-1", NextCalibrationAt: ptr(day("2026-10-25"))})
	seed.Product(model.Product{TenantID: tid, Name: "Peso padrão", StockQty: 1, StockMin: 5, Active: true})
	seed.Quote(model.Quote{TenantID: tid, Number: "ORC-1", CustomerID: &cust, Status: model.QuoteStatusSent, ValidUntil: ptr(day("2026-10-01"))})
	seed.User(model.User{TenantID: tid, Name: "Gerente", Role: model.RoleManager, Active: true})
	seed.User(model.User{TenantID: tid, Name: "Técnico", Role: model.RoleTechnician, Active: true})
	ctx := context.Background()

	customers, err := s.ListCustomers(ctx, tid, true)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.NotNil(t, customers[0].HealthScore)
	assert.Equal(t, 40, *customers[0].HealthScore)

	payables, err := s.ListPayables(ctx, tid, model.FinanceStatusPending)
	require.NoError(t, err)
	require.Len(t, payables, 1)
	assert.InDelta(t, 99.5, payables[0].Amount, 0.001)

	contracts, err := s.ListContracts(ctx, tid, model.ContractStatusActive)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	require.NotNil(t, contracts[0].EndDate)

	equipment, err := s.ListEquipment(ctx, tid, model.EquipmentStatusActive)
	require.NoError(t, err)
	require.Len(t, equipment, 1)
	assert.Equal(t, "2026-10-25", equipment[0].NextCalibrationAt.UTC().Format("2006-01-02"))

	products, err := s.ListProducts(ctx, tid, true)
	require.NoError(t, err)
	require.Len(t, products, 1)

	quotes, err := s.ListQuotes(ctx, tid, model.QuoteStatusSent, model.QuoteStatusPending)
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	managers, err := s.ListUsers(ctx, tid, model.RoleManager, model.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, managers, 1)
	assert.Equal(t, "Gerente", managers[0].Name)
}
