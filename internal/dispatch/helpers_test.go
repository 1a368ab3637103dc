package dispatch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/automation-cli/internal/calendar"
	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/dispatch"
	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
	"github.com/sells-group/automation-cli/internal/store/storetest"
)

// friday is Friday 2026-10-16 15:00 UTC, inside business hours.
var friday = time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg channel.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type fixture struct {
	t      *testing.T
	store  *store.SQLiteStore
	seed   *storetest.Seeder
	tenant int64
	cal    *calendar.Calendar

	admin, manager, supervisor, technician, seller int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.NewSQLite(t)
	seed := storetest.Seed(t, st)
	cal, err := calendar.New(calendar.Config{
		Timezone:  "UTC",
		WorkStart: "08:00",
		WorkEnd:   "18:00",
		WorkDays:  []int{1, 2, 3, 4, 5},
	})
	require.NoError(t, err)

	f := &fixture{t: t, store: st, seed: seed, cal: cal}
	f.tenant = seed.Tenant("Acme Metrologia", model.TenantStatusActive)
	n := 0
	user := func(name string, role model.Role, active bool) int64 {
		n++
		return seed.User(model.User{
			TenantID: f.tenant,
			Name:     name,
			Email:    name + "@acme.test",
			Phone:    fmt.Sprintf("+55 11 90000-%04d", n),
			Role:     role,
			Active:   active,
		})
	}
	f.admin = user("ana", model.RoleAdmin, true)
	f.manager = user("bruno", model.RoleManager, true)
	f.supervisor = user("carla", model.RoleSupervisor, true)
	f.technician = user("diego", model.RoleTechnician, true)
	f.seller = user("elisa", model.RoleSeller, true)
	user("fabio", model.RoleManager, false)
	return f
}

// scope builds the dispatch scope for kind with an optional stored setting.
func (f *fixture) scope(kind rules.Kind, now time.Time, stored *model.RuleSetting) dispatch.Scope {
	f.t.Helper()
	setting, err := rules.Resolve(kind, f.tenant, rules.Defaults()[kind], stored, 0)
	require.NoError(f.t, err)
	users, err := f.store.ListUsers(context.Background(), f.tenant)
	require.NoError(f.t, err)
	var active []model.User
	for _, u := range users {
		if u.Active {
			active = append(active, u)
		}
	}
	return dispatch.Scope{
		TenantID: f.tenant,
		Now:      now,
		Calendar: f.cal,
		Setting:  setting,
		Users:    active,
	}
}

func (f *fixture) customer(name string) model.Customer {
	c := model.Customer{
		TenantID:         f.tenant,
		Name:             name,
		Email:            "contato@cliente.test",
		Phone:            "+55 11 98888-7777",
		Active:           true,
		AssignedSellerID: &f.seller,
	}
	c.ID = f.seed.Customer(c)
	return c
}

// overdueReceivable seeds a pending receivable due on 2026-10-10 and returns
// its finding for overdue_receivable.
func (f *fixture) overdueReceivable(c model.Customer, status model.FinanceStatus) rules.Finding {
	id := f.seed.Receivable(model.AccountReceivable{
		TenantID:    f.tenant,
		CustomerID:  &c.ID,
		Description: "Parcela 3/10",
		Amount:      1500,
		DueDate:     day(2026, 10, 10),
		Status:      status,
	})
	return rules.Finding{
		TenantID:    f.tenant,
		Rule:        rules.OverdueReceivable,
		SubjectType: rules.SubjectReceivable,
		SubjectID:   id,
		Facts: rules.OverdueFacts{
			ID:          id,
			Description: "Parcela 3/10",
			Customer:    &c,
			Amount:      1500,
			DueDate:     *day(2026, 10, 10),
			DaysOverdue: 6,
		},
	}
}

func (f *fixture) records() int {
	return f.seed.Count("idempotency_records", "tenant_id = ?", f.tenant)
}

// racingStore commits a competing idempotency record right before the
// dispatcher's own transaction, the way an overlapping pass would.
type racingStore struct {
	*store.SQLiteStore
	key    idempotency.Key
	window time.Duration
	now    time.Time
}

func (r *racingStore) InTenant(ctx context.Context, tenantID int64, fn func(ctx context.Context, tx store.Tx) error) error {
	err := r.SQLiteStore.InTenant(ctx, tenantID, func(ctx context.Context, tx store.Tx) error {
		_, err := idempotency.New(tx, func() time.Time { return r.now }).Record(ctx, r.key, r.window)
		return err
	})
	if err != nil {
		return err
	}
	return r.SQLiteStore.InTenant(ctx, tenantID, fn)
}
