package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/dispatch"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/scheduler"
	"github.com/sells-group/automation-cli/internal/store"
	"github.com/sells-group/automation-cli/pkg/mailer"
	"github.com/sells-group/automation-cli/pkg/whatsapp"
)

// engineOptions are the per-command overrides of the configured engine.
type engineOptions struct {
	DryRun      bool
	Concurrency int
	Days        int
}

// engineEnv holds the store and the scheduler built on it.
type engineEnv struct {
	Store     store.Store
	Router    *channel.Router
	Scheduler *scheduler.Scheduler
}

// Close releases resources held by the engine.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "automation.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRouter registers a sender for every configured outbound channel.
func initRouter() *channel.Router {
	r := channel.NewRouter(cfg.Dispatch.Router())

	if cfg.WhatsApp.Key != "" {
		var opts []whatsapp.Option
		if cfg.WhatsApp.BaseURL != "" {
			opts = append(opts, whatsapp.WithBaseURL(cfg.WhatsApp.BaseURL))
		}
		r.Register(channel.KindWhatsApp, channel.NewWhatsApp(whatsapp.NewClient(cfg.WhatsApp.Key, cfg.WhatsApp.Instance, opts...)))
	}
	if cfg.Mailer.Key != "" {
		opts := []mailer.Option{mailer.WithFrom(cfg.Mailer.From)}
		if cfg.Mailer.BaseURL != "" {
			opts = append(opts, mailer.WithBaseURL(cfg.Mailer.BaseURL))
		}
		r.Register(channel.KindEmail, channel.NewEmail(mailer.NewClient(cfg.Mailer.Key, opts...)))
	}
	if cfg.Push.WebhookURL != "" {
		r.Register(channel.KindPush, channel.NewPush(cfg.Push.WebhookURL, nil))
	}

	kinds := make([]string, 0, 3)
	for _, k := range r.Kinds() {
		kinds = append(kinds, string(k))
	}
	zap.L().Info("outbound channels configured", zap.Strings("channels", kinds))
	return r
}

// initEngine validates the config for mode, opens and migrates the store,
// and builds the scheduler. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string, opts engineOptions) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	calCfg, err := cfg.Calendar.Build()
	if err != nil {
		return nil, err
	}
	ruleDefaults, err := cfg.RuleDefaults()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	concurrency := cfg.Scheduler.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}

	router := initRouter()
	disp := dispatch.New(st, router, dispatch.WithDryRun(opts.DryRun))
	sched := scheduler.New(st, rules.NewRegistry(), disp, scheduler.Config{
		Concurrency: concurrency,
		Calendar:    calCfg,
		Rules:       ruleDefaults,
		Days:        opts.Days,
	})

	zap.L().Info("engine ready",
		zap.String("store", cfg.Store.Driver),
		zap.Int("concurrency", concurrency),
		zap.Bool("dry_run", opts.DryRun),
	)
	return &engineEnv{Store: st, Router: router, Scheduler: sched}, nil
}

// jobIntervals converts the configured daemon intervals.
func jobIntervals(in map[string]time.Duration) (map[rules.Job]time.Duration, error) {
	out := make(map[rules.Job]time.Duration, len(in))
	for name, every := range in {
		job, err := rules.ParseJob(name)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler.intervals.%s", name)
		}
		out[job] = every
	}
	return out, nil
}
