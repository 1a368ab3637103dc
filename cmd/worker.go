package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/monitoring"
	"github.com/sells-group/automation-cli/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes scheduled job workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "worker", engineOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		collector := monitoring.NewCollector(time.Duration(cfg.Monitoring.LookbackWindowHours) * time.Hour)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		checkCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go checker.Run(checkCtx)

		w := workflow.NewWorker(c, cfg.Temporal.TaskQueue, &workflow.Activities{
			Jobs:     env.Scheduler,
			Recorder: collector,
		})

		zap.L().Info("starting temporal worker",
			zap.String("host", cfg.Temporal.HostPort),
			zap.String("namespace", cfg.Temporal.Namespace),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "temporal worker")
		}
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Register one Temporal cron schedule per configured job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		c, err := dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		created, err := workflow.EnsureSchedules(ctx, c.ScheduleClient(), cfg.Temporal.TaskQueue, cfg.Temporal.Schedules)
		if err != nil {
			return err
		}

		fmt.Printf("Schedules created: %d of %d\n", len(created), len(cfg.Temporal.Schedules))
		for _, id := range created {
			fmt.Printf("  %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func dialTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "dial temporal")
	}
	return c, nil
}
