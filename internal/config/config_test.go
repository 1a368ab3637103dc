package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/rules"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "America/Sao_Paulo", cfg.Calendar.Timezone)
	assert.Equal(t, "08:00", cfg.Calendar.WorkStart)
	assert.Equal(t, "18:00", cfg.Calendar.WorkEnd)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, cfg.Calendar.WorkDays)
	assert.Equal(t, 10, cfg.Dispatch.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.Dispatch.RatePerSecond, 0.001)
	assert.Equal(t, 1, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, "https://api.resend.com", cfg.Mailer.BaseURL)
	assert.Equal(t, 1, cfg.Scheduler.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Intervals["sla"])
	assert.Equal(t, time.Hour, cfg.Scheduler.Intervals["alerts"])
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "automation", cfg.Temporal.TaskQueue)
	assert.Equal(t, "*/5 * * * *", cfg.Temporal.Schedules["sla"])
	assert.Empty(t, cfg.Rules)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:automation.db
log:
  level: debug
  format: console
calendar:
  timezone: America/Manaus
  work_days: [1, 2, 3, 4, 5, 6]
scheduler:
  concurrency: 4
  intervals:
    sla: 2m
rules:
  low_stock:
    enabled: false
  contract_expiring:
    days: 15
    channels: [system, email]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:automation.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "America/Manaus", cfg.Calendar.Timezone)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, cfg.Calendar.WorkDays)
	assert.Equal(t, 4, cfg.Scheduler.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Intervals["sla"])
	// Defaults still apply for unset values
	assert.Equal(t, "08:00", cfg.Calendar.WorkStart)

	defaults, err := cfg.RuleDefaults()
	require.NoError(t, err)
	assert.False(t, defaults[rules.LowStock].Enabled)
	assert.Equal(t, 3, defaults[rules.LowStock].WindowDays)
	assert.Equal(t, 15, defaults[rules.ContractExpiring].Days)
	assert.Equal(t, []string{"system", "email"}, defaults[rules.ContractExpiring].Channels)
	assert.True(t, defaults[rules.OverdueReceivable].Enabled)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("AUTOMATION_STORE_DRIVER", "postgres")
	t.Setenv("AUTOMATION_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("AUTOMATION_SERVER_PORT", "3000")
	t.Setenv("AUTOMATION_SCHEDULER_CONCURRENCY", "6")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Scheduler.Concurrency)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestRuleDefaultsUnknownRule(t *testing.T) {
	cfg := validDefaults()
	cfg.Rules = map[string]RuleConfig{"weekly_digest": {}}

	_, err := cfg.RuleDefaults()
	assert.Error(t, err)
}

func TestCalendarBuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "holidays.yaml")
	require.NoError(t, os.WriteFile(path, []byte("holidays:\n  - date: \"2026-11-02\"\n    name: Finados\n"), 0644))

	cc := CalendarConfig{Timezone: "UTC", WorkStart: "08:00", WorkEnd: "18:00", WorkDays: []int{1, 2, 3, 4, 5}, HolidaysFile: path}
	cal, err := cc.Build()
	require.NoError(t, err)
	require.Len(t, cal.Holidays, 1)
	assert.Equal(t, time.November, cal.Holidays[0].Month())

	cc.HolidaysFile = filepath.Join(dir, "missing.yaml")
	_, err = cc.Build()
	assert.Error(t, err)
}

func TestDispatchRouter(t *testing.T) {
	rc := DispatchConfig{TimeoutSecs: 3, RatePerSecond: 2, Burst: 4, BreakerThreshold: 6, BreakerResetSecs: 45, MaxAttempts: 3, RetryBackoffMS: 250}.Router()
	assert.Equal(t, channel.RouterConfig{
		Timeout:          3 * time.Second,
		RatePerSecond:    2,
		Burst:            4,
		BreakerThreshold: 6,
		BreakerReset:     45 * time.Second,
		MaxAttempts:      3,
		RetryBackoff:     250 * time.Millisecond,
	}, rc)
}

func TestDefaultRouterSendsTransientFailureOnce(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	calls := 0
	r := channel.NewRouter(cfg.Dispatch.Router())
	r.Register(channel.KindWhatsApp, channel.SenderFunc(func(context.Context, channel.Message) (string, error) {
		calls++
		return "", &channel.TransientError{Channel: channel.KindWhatsApp, Err: errors.New("502 bad gateway")}
	}))

	_, err = r.Send(context.Background(), channel.Message{Channel: channel.KindWhatsApp, To: "11987654321", Body: "oi"})
	require.Error(t, err)
	assert.True(t, channel.IsTransient(err))
	assert.Equal(t, 1, calls)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "file:test.db"
	cfg.Log.Level = "info"
	cfg.Calendar = CalendarConfig{Timezone: "America/Sao_Paulo", WorkStart: "08:00", WorkEnd: "18:00", WorkDays: []int{1, 2, 3, 4, 5}}
	cfg.Scheduler.Concurrency = 1
	cfg.Scheduler.Intervals = map[string]time.Duration{"sla": 5 * time.Minute}
	cfg.Server.Port = 8080
	cfg.Temporal = TemporalConfig{HostPort: "localhost:7233", TaskQueue: "automation", Schedules: map[string]string{"alerts": "0 * * * *"}}
	return cfg
}

func TestValidateModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"migrate", "run", "daemon", "serve", "worker"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateMigrateSkipsEngine(t *testing.T) {
	cfg := validDefaults()
	cfg.Calendar.WorkStart = "19:00"

	assert.NoError(t, cfg.Validate("migrate"))
	assert.Error(t, cfg.Validate("run"))
}

func TestValidateEngine(t *testing.T) {
	zero := 0
	negative := -1

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"inverted work hours", func(c *Config) { c.Calendar.WorkStart, c.Calendar.WorkEnd = "18:00", "08:00" }, "calendar"},
		{"bad timezone", func(c *Config) { c.Calendar.Timezone = "Mars/Olympus" }, "calendar"},
		{"unknown rule", func(c *Config) { c.Rules = map[string]RuleConfig{"weekly": {}} }, "rules.weekly: unknown rule"},
		{"zero window", func(c *Config) { c.Rules = map[string]RuleConfig{"low_stock": {WindowDays: &zero}} }, "rules.low_stock.window_days must be > 0"},
		{"negative days", func(c *Config) { c.Rules = map[string]RuleConfig{"low_stock": {Days: &negative}} }, "rules.low_stock.days must be >= 0"},
		{"unknown channel", func(c *Config) { c.Rules = map[string]RuleConfig{"low_stock": {Channels: []string{"fax"}}} }, `unknown channel "fax"`},
		{"concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }, "scheduler.concurrency must be between 1 and 64"},
		{"interval job", func(c *Config) { c.Scheduler.Intervals = map[string]time.Duration{"weekly": time.Hour} }, "scheduler.intervals.weekly: unknown job"},
		{"interval value", func(c *Config) { c.Scheduler.Intervals = map[string]time.Duration{"sla": 0} }, "scheduler.intervals.sla must be > 0"},
		{"schedule job", func(c *Config) { c.Temporal.Schedules = map[string]string{"weekly": "@daily"} }, "temporal.schedules.weekly: unknown job"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("run")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateWorker(t *testing.T) {
	cfg := validDefaults()
	cfg.Temporal.HostPort = ""
	cfg.Temporal.TaskQueue = ""

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporal.host_port is required")
	assert.Contains(t, err.Error(), "temporal.task_queue is required")
}

func TestValidateDaemonNeedsIntervals(t *testing.T) {
	cfg := validDefaults()
	cfg.Scheduler.Intervals = nil

	err := cfg.Validate("daemon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.intervals must name at least one job")
}
