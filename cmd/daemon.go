package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/automation-cli/internal/monitoring"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run every job on its configured interval and alert on job health",
	Long:  "In-process scheduler for deployments without Temporal. Each job in scheduler.intervals runs on its own ticker; pass outcomes feed the health checker, which posts alerts to monitoring.webhook_url.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "daemon", engineOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		intervals, err := jobIntervals(cfg.Scheduler.Intervals)
		if err != nil {
			return err
		}

		collector := monitoring.NewCollector(time.Duration(cfg.Monitoring.LookbackWindowHours) * time.Hour)
		runner := monitoring.NewRunner(env.Scheduler, collector, intervals)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)

		zap.L().Info("starting daemon", zap.Int("jobs", len(intervals)))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return runner.Run(gctx)
		})
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
		err = g.Wait()

		zap.L().Info("daemon stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
