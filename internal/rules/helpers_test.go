package rules_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/automation-cli/internal/calendar"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
	"github.com/sells-group/automation-cli/internal/store/storetest"
)

// friday is the pass clock used across rule tests: Friday 2026-10-16 15:00 UTC.
var friday = time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func businessHours(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(calendar.Config{
		Timezone:  "UTC",
		WorkStart: "08:00",
		WorkEnd:   "18:00",
		WorkDays:  []int{1, 2, 3, 4, 5},
	})
	require.NoError(t, err)
	return cal
}

type fixture struct {
	t      *testing.T
	store  *store.SQLiteStore
	seed   *storetest.Seeder
	tenant int64
	cal    *calendar.Calendar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storetest.NewSQLite(t)
	seed := storetest.Seed(t, st)
	return &fixture{
		t:      t,
		store:  st,
		seed:   seed,
		tenant: seed.Tenant("Acme Metrologia", model.TenantStatusActive),
		cal:    businessHours(t),
	}
}

// eval runs kind for the fixture tenant at now with default settings, or
// with days overriding the horizon when positive.
func (f *fixture) eval(kind rules.Kind, now time.Time, days int) *rules.Result {
	f.t.Helper()
	setting, err := rules.Resolve(kind, f.tenant, rules.Defaults()[kind], nil, days)
	require.NoError(f.t, err)

	rl, err := rules.NewRegistry().Get(kind)
	require.NoError(f.t, err)

	res, err := rl.Evaluate(context.Background(), rules.Env{
		TenantID: f.tenant,
		Now:      now,
		Calendar: f.cal,
		Reader:   f.store,
		Setting:  setting,
	})
	require.NoError(f.t, err)
	return res
}

func subjects(res *rules.Result) []int64 {
	var ids []int64
	for _, f := range res.Findings {
		ids = append(ids, f.SubjectID)
	}
	return ids
}
