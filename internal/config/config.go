package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/automation-cli/internal/calendar"
	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig           `yaml:"store" mapstructure:"store"`
	Log        LogConfig             `yaml:"log" mapstructure:"log"`
	Calendar   CalendarConfig        `yaml:"calendar" mapstructure:"calendar"`
	Dispatch   DispatchConfig        `yaml:"dispatch" mapstructure:"dispatch"`
	WhatsApp   WhatsAppConfig        `yaml:"whatsapp" mapstructure:"whatsapp"`
	Mailer     MailerConfig          `yaml:"mailer" mapstructure:"mailer"`
	Push       PushConfig            `yaml:"push" mapstructure:"push"`
	Rules      map[string]RuleConfig `yaml:"rules" mapstructure:"rules"`
	Scheduler  SchedulerConfig       `yaml:"scheduler" mapstructure:"scheduler"`
	Monitoring MonitoringConfig      `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig          `yaml:"server" mapstructure:"server"`
	Temporal   TemporalConfig        `yaml:"temporal" mapstructure:"temporal"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CalendarConfig is the default working-hours calendar. Tenants override it
// with their stored calendar.
type CalendarConfig struct {
	Timezone     string `yaml:"timezone" mapstructure:"timezone"`
	WorkStart    string `yaml:"work_start" mapstructure:"work_start"`
	WorkEnd      string `yaml:"work_end" mapstructure:"work_end"`
	WorkDays     []int  `yaml:"work_days" mapstructure:"work_days"`
	HolidaysFile string `yaml:"holidays_file" mapstructure:"holidays_file"`
}

// Build loads the holidays file and returns the calendar configuration.
func (c CalendarConfig) Build() (calendar.Config, error) {
	hs, err := calendar.LoadHolidays(c.HolidaysFile)
	if err != nil {
		return calendar.Config{}, err
	}
	return calendar.Config{
		Timezone:  c.Timezone,
		WorkStart: c.WorkStart,
		WorkEnd:   c.WorkEnd,
		WorkDays:  c.WorkDays,
		Holidays:  calendar.Dates(hs),
	}, nil
}

// DispatchConfig controls outbound delivery.
type DispatchConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond    float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoffMS   int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// Router returns the channel router configuration.
func (d DispatchConfig) Router() channel.RouterConfig {
	return channel.RouterConfig{
		Timeout:          time.Duration(d.TimeoutSecs) * time.Second,
		RatePerSecond:    d.RatePerSecond,
		Burst:            d.Burst,
		BreakerThreshold: d.BreakerThreshold,
		BreakerReset:     time.Duration(d.BreakerResetSecs) * time.Second,
		MaxAttempts:      d.MaxAttempts,
		RetryBackoff:     time.Duration(d.RetryBackoffMS) * time.Millisecond,
	}
}

// WhatsAppConfig holds the WhatsApp gateway settings. An empty key disables
// the channel.
type WhatsAppConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Key      string `yaml:"key" mapstructure:"key"`
	Instance string `yaml:"instance" mapstructure:"instance"`
}

// MailerConfig holds the transactional e-mail API settings. An empty key
// disables the channel.
type MailerConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
	From    string `yaml:"from" mapstructure:"from"`
}

// PushConfig holds the push relay webhook. An empty URL disables the channel.
type PushConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// RuleConfig overrides one rule's built-in defaults. Nil fields keep them.
type RuleConfig struct {
	Enabled    *bool    `yaml:"enabled" mapstructure:"enabled"`
	Days       *int     `yaml:"days" mapstructure:"days"`
	WindowDays *int     `yaml:"window_days" mapstructure:"window_days"`
	Channels   []string `yaml:"channels" mapstructure:"channels"`
}

// SchedulerConfig controls tenant passes.
type SchedulerConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// Intervals are the daemon's run intervals per job.
	Intervals map[string]time.Duration `yaml:"intervals" mapstructure:"intervals"`
}

// MonitoringConfig configures job health alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	SendFailureThreshold int     `yaml:"send_failure_threshold" mapstructure:"send_failure_threshold"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// TemporalConfig configures the Temporal worker and schedules.
type TemporalConfig struct {
	HostPort  string            `yaml:"host_port" mapstructure:"host_port"`
	Namespace string            `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string            `yaml:"task_queue" mapstructure:"task_queue"`
	Schedules map[string]string `yaml:"schedules" mapstructure:"schedules"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AUTOMATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("calendar.timezone", "America/Sao_Paulo")
	v.SetDefault("calendar.work_start", "08:00")
	v.SetDefault("calendar.work_end", "18:00")
	v.SetDefault("calendar.work_days", []int{1, 2, 3, 4, 5})
	v.SetDefault("calendar.holidays_file", "")
	v.SetDefault("dispatch.timeout_secs", 10)
	v.SetDefault("dispatch.rate_per_second", 5.0)
	v.SetDefault("dispatch.burst", 5)
	v.SetDefault("dispatch.breaker_threshold", 5)
	v.SetDefault("dispatch.breaker_reset_secs", 30)
	v.SetDefault("dispatch.max_attempts", 1)
	v.SetDefault("dispatch.retry_backoff_ms", 500)
	v.SetDefault("whatsapp.base_url", "")
	v.SetDefault("whatsapp.key", "")
	v.SetDefault("whatsapp.instance", "")
	v.SetDefault("mailer.base_url", "https://api.resend.com")
	v.SetDefault("mailer.key", "")
	v.SetDefault("mailer.from", "")
	v.SetDefault("push.webhook_url", "")
	v.SetDefault("scheduler.concurrency", 1)
	v.SetDefault("scheduler.intervals", map[string]string{
		string(rules.JobSLA):      "5m",
		string(rules.JobAlerts):   "1h",
		string(rules.JobCRM):      "24h",
		string(rules.JobMessages): "24h",
	})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.send_failure_threshold", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "automation")
	v.SetDefault("temporal.schedules", map[string]string{
		string(rules.JobSLA):      "*/5 * * * *",
		string(rules.JobAlerts):   "0 * * * *",
		string(rules.JobCRM):      "0 7 * * *",
		string(rules.JobMessages): "0 9 * * 1-5",
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// RuleDefaults overlays the configured rule overrides on the built-in
// defaults.
func (c *Config) RuleDefaults() (map[rules.Kind]rules.Default, error) {
	out := rules.Defaults()
	for key, rc := range c.Rules {
		kind, err := rules.ParseKind(key)
		if err != nil {
			return nil, eris.Wrapf(err, "config: rules.%s", key)
		}
		d := out[kind]
		if rc.Enabled != nil {
			d.Enabled = *rc.Enabled
		}
		if rc.Days != nil {
			d.Days = *rc.Days
		}
		if rc.WindowDays != nil {
			d.WindowDays = *rc.WindowDays
		}
		if len(rc.Channels) > 0 {
			d.Channels = rc.Channels
		}
		out[kind] = d
	}
	return out, nil
}

// Validate reports configuration errors for the given command mode
// ("migrate", "run", "daemon", "serve" or "worker") that would otherwise
// surface in the middle of a pass. All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "migrate", "run", "daemon", "serve", "worker":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		add("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	if mode != "migrate" {
		c.validateEngine(add)
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535, got %d", c.Server.Port)
		}
	case "daemon":
		if len(c.Scheduler.Intervals) == 0 {
			add("scheduler.intervals must name at least one job")
		}
	case "worker":
		if c.Temporal.HostPort == "" {
			add("temporal.host_port is required")
		}
		if c.Temporal.TaskQueue == "" {
			add("temporal.task_queue is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEngine(add func(string, ...any)) {
	calCfg, err := c.Calendar.Build()
	if err == nil {
		_, err = calendar.New(calCfg)
	}
	if err != nil {
		add("calendar: %v", err)
	}

	for key, rc := range c.Rules {
		if _, err := rules.ParseKind(key); err != nil {
			add("rules.%s: unknown rule", key)
			continue
		}
		if rc.WindowDays != nil && *rc.WindowDays <= 0 {
			add("rules.%s.window_days must be > 0", key)
		}
		if rc.Days != nil && *rc.Days < 0 {
			add("rules.%s.days must be >= 0", key)
		}
		for _, ch := range rc.Channels {
			if !channel.Kind(ch).Valid() {
				add("rules.%s: unknown channel %q", key, ch)
			}
		}
	}

	if c.Scheduler.Concurrency < 1 || c.Scheduler.Concurrency > 64 {
		add("scheduler.concurrency must be between 1 and 64, got %d", c.Scheduler.Concurrency)
	}
	for job, every := range c.Scheduler.Intervals {
		if _, err := rules.ParseJob(job); err != nil {
			add("scheduler.intervals.%s: unknown job", job)
		} else if every <= 0 {
			add("scheduler.intervals.%s must be > 0", job)
		}
	}
	for job := range c.Temporal.Schedules {
		if _, err := rules.ParseJob(job); err != nil {
			add("temporal.schedules.%s: unknown job", job)
		}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
