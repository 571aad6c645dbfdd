package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bsid.es/despertador"
	"bsid.es/despertador/config"
	"bsid.es/despertador/mem"
	"bsid.es/despertador/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the alarm daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(os.Stderr, cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runDaemon(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqlite.NewStore(db)

	// The in-process backend rings while the daemon runs; the ledger
	// keeps what it armed across restarts.
	backend := mem.NewBackend()
	ledger := sqlite.NewLedger(db, backend, backend)
	ledger.Logger = logger.With("component", "ledger")

	reg := prometheus.NewRegistry()
	metrics := despertador.NewMetrics(reg)

	scheduler := despertador.NewScheduler(ledger)
	scheduler.Gate = newGate(cfg)
	scheduler.Logger = logger.With("component", "scheduler")
	scheduler.Metrics = metrics
	scheduler.WakeCheckDelay = cfg.Alarms.WakeCheckDelay
	reg.MustRegister(&despertador.PendingCollector{Scheduler: scheduler})

	// Restored tickets may already be due. The backend loop only starts
	// once the dispatcher listens, so none of their deliveries is lost.
	restored, err := ledger.Restore(ctx)
	if err != nil {
		return err
	}
	scheduler.Adopt(restored)

	dispatcher := despertador.NewDispatcher(scheduler, ledger)
	dispatcher.SnoozeMinutes = cfg.Alarms.SnoozeMinutes
	dispatcher.Logger = logger.With("component", "dispatcher")
	dispatcher.Metrics = metrics
	dispatcher.OnTrigger = func(ctx context.Context, t despertador.Trigger) {
		ringing(ctx, logger, store, t)
	}
	dispatcher.OnSnoozed = func(ctx context.Context, alarmID, ticketID string) {
		logger.Info("alarm snoozed", "alarm", alarmID, "ticket", ticketID)
	}
	dispatcher.OnDismissed = func(ctx context.Context, alarmID string) {
		logger.Info("alarm dismissed", "alarm", alarmID)
	}
	dispatcher.Run(ctx)
	defer dispatcher.Interrupt()

	events := mem.NewEventLogger(backend, logger.With("component", "backend"))
	events.Run(ctx)
	defer events.Interrupt()

	backend.Run(ctx)
	defer backend.Interrupt()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	reconcile := func() {
		if _, err := scheduler.Reconcile(ctx, store); err != nil {
			logger.Error("reconcile failed", "error", err)
		}
	}
	reconcile()

	var tick <-chan time.Time
	if cfg.ReconcileInterval > 0 {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if cfg.Autostart {
		app, err := autostartApp()
		if err == nil {
			err = setAutostart(app, true)
		}
		if err != nil {
			logger.Warn("autostart registration failed", "error", err)
		}
	}

	if err := writePIDFile(cfg.PIDFile); err != nil {
		logger.Warn("pid file not written", "path", cfg.PIDFile, "error", err)
	} else if cfg.PIDFile != "" {
		defer os.Remove(cfg.PIDFile)
	}

	logger.Info("daemon started", "database", cfg.Database, "restored", len(restored))
	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping")
			return nil
		case <-tick:
			reconcile()
		case <-hup:
			reconcile()
		}
	}
}

// ringing surfaces a trigger. A one-shot alarm is disabled once its main
// ticket was delivered, so it stays in the list without arming again.
func ringing(ctx context.Context, logger *slog.Logger, store despertador.AlarmStore, t despertador.Trigger) {
	logger.Info("alarm ringing",
		"alarm", t.AlarmID,
		"kind", t.Kind.String(),
		"event", t.Event.String(),
		"label", t.Payload.Display.Label,
		"time", t.Payload.Time.String(),
	)
	if t.Event != despertador.Delivered || t.Kind != despertador.Main || t.Payload.Recurring {
		return
	}
	if err := store.SetEnabled(ctx, t.AlarmID, false); err != nil {
		logger.Warn("disable one-shot alarm failed", "alarm", t.AlarmID, "error", err)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}))
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
