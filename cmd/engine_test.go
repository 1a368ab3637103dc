package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/config"
	"github.com/sells-group/automation-cli/internal/rules"
)

func testConfig(dsn string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dsn},
		Log:   config.LogConfig{Level: "info", Format: "json"},
		Calendar: config.CalendarConfig{
			Timezone:  "America/Sao_Paulo",
			WorkStart: "08:00",
			WorkEnd:   "18:00",
			WorkDays:  []int{1, 2, 3, 4, 5},
		},
		Dispatch:  config.DispatchConfig{TimeoutSecs: 5, RatePerSecond: 5, Burst: 5, BreakerThreshold: 5, BreakerResetSecs: 30},
		Scheduler: config.SchedulerConfig{Concurrency: 2, Intervals: map[string]time.Duration{"sla": 5 * time.Minute}},
		Server:    config.ServerConfig{Port: 8080},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "test.db"))

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = testConfig("")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, err = os.Stat(filepath.Join(tmpDir, "automation.db"))
	assert.NoError(t, err)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = testConfig("")
	cfg.Store.Driver = "mysql"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitRouter(t *testing.T) {
	cfg = testConfig("")

	r := initRouter()
	assert.Empty(t, r.Kinds())

	cfg.WhatsApp = config.WhatsAppConfig{Key: "k", Instance: "main", BaseURL: "http://gateway"}
	cfg.Mailer = config.MailerConfig{Key: "re_123", From: "alertas@example.com"}
	cfg.Push = config.PushConfig{WebhookURL: "http://push"}

	r = initRouter()
	assert.True(t, r.Has(channel.KindWhatsApp))
	assert.True(t, r.Has(channel.KindEmail))
	assert.True(t, r.Has(channel.KindPush))
	assert.False(t, r.Has(channel.KindSystem))
}

func TestInitEngine(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "engine.db"))

	env, err := initEngine(context.Background(), "run", engineOptions{DryRun: true})
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Scheduler)
	sum, err := env.Scheduler.RunAll(context.Background(), rules.JobAll, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Tenants)
}

func TestInitEngine_InvalidConfig(t *testing.T) {
	cfg = testConfig(filepath.Join(t.TempDir(), "engine.db"))
	cfg.Scheduler.Concurrency = 0

	_, err := initEngine(context.Background(), "run", engineOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.concurrency")
}

func TestJobIntervals(t *testing.T) {
	got, err := jobIntervals(map[string]time.Duration{"sla": time.Minute, "crm": time.Hour})
	require.NoError(t, err)
	assert.Equal(t, map[rules.Job]time.Duration{rules.JobSLA: time.Minute, rules.JobCRM: time.Hour}, got)

	_, err = jobIntervals(map[string]time.Duration{"weekly": time.Hour})
	assert.Error(t, err)
}
