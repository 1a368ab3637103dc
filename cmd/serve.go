package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/monitoring"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
	"github.com/sells-group/automation-cli/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for health checks and manual job triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEngine(ctx, "serve", engineOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(time.Duration(cfg.Monitoring.LookbackWindowHours) * time.Hour)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env.Scheduler, env.Store, collector, cfg.Monitoring.LookbackWindowHours, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// pinger reports store health.
type pinger interface {
	Ping(ctx context.Context) error
}

// newRouter builds the HTTP API.
func newRouter(jobs monitoring.JobRunner, db pinger, collector *monitoring.Collector, lookbackHours int, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/jobs/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, collector.Collect(lookbackHours))
	})

	r.Post("/jobs/{job}/run", func(w http.ResponseWriter, r *http.Request) {
		job, err := rules.ParseJob(chi.URLParam(r, "job"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown job"})
			return
		}

		var tenantID *int64
		if raw := r.URL.Query().Get("tenant"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant"})
				return
			}
			tenantID = &id
		}

		sum, err := jobs.RunAll(r.Context(), job, tenantID)
		if r.Context().Err() == nil {
			collector.Record(job, sum, err)
		}
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
			return
		case err != nil:
			zap.L().Error("manual job run failed", zap.String("job", string(job)), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "job failed to run"})
			return
		}

		zap.L().Info("manual job run complete",
			zap.String("job", string(job)),
			zap.Int("tenants", sum.Tenants),
			zap.Int("applied", sum.Total()),
		)
		writeJSON(w, http.StatusOK, workflow.NewJobResult(sum))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
