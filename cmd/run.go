package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/scheduler"
)

var (
	runTenant      int64
	runDays        int
	runConcurrency int
	runDryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run one job pass over all active tenants",
	Long:  "Runs the rules of a job (sla, alerts, crm, messages or all) once. With --tenant only that tenant is processed, whatever its status. Exits non-zero when any tenant fails.",
	Args:  cobra.ExactArgs(1),
	ValidArgs: []string{
		string(rules.JobSLA), string(rules.JobAlerts), string(rules.JobCRM),
		string(rules.JobMessages), string(rules.JobAll),
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		job, err := rules.ParseJob(args[0])
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "run", engineOptions{
			DryRun:      runDryRun,
			Concurrency: runConcurrency,
			Days:        runDays,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		var tenantID *int64
		if cmd.Flags().Changed("tenant") {
			tenantID = &runTenant
		}

		sum, err := env.Scheduler.RunAll(ctx, job, tenantID)
		if err != nil {
			return eris.Wrap(err, "run job")
		}

		zap.L().Info("job complete",
			zap.String("job", string(job)),
			zap.Int("tenants", sum.Tenants),
			zap.Int("applied", sum.Total()),
			zap.Int("tenant_failures", len(sum.Failures)),
			zap.Duration("duration", sum.Duration),
		)

		formatSummary(os.Stdout, sum)
		if sum.Failed() {
			return eris.Errorf("run job: %d tenant(s) failed", len(sum.Failures))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Int64Var(&runTenant, "tenant", 0, "process only this tenant")
	runCmd.Flags().IntVar(&runDays, "days", 0, "override the horizon in days of every rule in the job")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "tenants processed at once (default from config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "evaluate and plan without writing or sending")
	rootCmd.AddCommand(runCmd)
}

// formatSummary writes per-rule counts and tenant failures to out.
func formatSummary(out io.Writer, sum scheduler.Summary) {
	kinds := make(map[rules.Kind]bool)
	for k := range sum.Counts {
		kinds[k] = true
	}
	for k := range sum.Skipped {
		kinds[k] = true
	}
	ordered := make([]string, 0, len(kinds))
	for k := range kinds {
		ordered = append(ordered, string(k))
	}
	sort.Strings(ordered)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RULE\tAPPLIED\tSKIPPED")
	_, _ = fmt.Fprintln(w, "----\t-------\t-------")
	for _, k := range ordered {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", k, sum.Counts[rules.Kind(k)], sum.Skipped[rules.Kind(k)])
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\njob=%s tenants=%d applied=%d entity_errors=%d sent=%d send_failures=%d duration=%s\n",
		sum.Job, sum.Tenants, sum.Total(), sum.EntityErrors, sum.Sent, sum.SendFailures, sum.Duration.Round(time.Millisecond))

	if len(sum.Failures) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%d tenant(s) failed:\n", len(sum.Failures))
	for _, f := range sum.Failures {
		_, _ = fmt.Fprintf(out, "  %s\n", truncate(strings.ReplaceAll(f.Error(), "\n", " "), 200))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
