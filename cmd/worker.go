package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/leave-portal/internal/core/events"
	"github.com/frahmantamala/leave-portal/internal/leave"
	"github.com/frahmantamala/leave-portal/internal/reconcile"
	"github.com/frahmantamala/leave-portal/internal/store/postgres"
	"github.com/frahmantamala/leave-portal/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers that run outside the HTTP server.`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle approved leave whose quota deduction was not recorded",
	Long:  `Periodically find approved leave requests without a recorded quota deduction and settle them on a worker pool.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

var (
	maxWorkers        int
	jobQueueSize      int
	reconcileInterval time.Duration
	reconcileOnce     bool
)

func startReconcileWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Options{
		Level:  config.Observability.Logging.Level,
		Format: config.Observability.Logging.Format,
	})
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		lg.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// the worker talks to the database directly; a mirror would only hide
	// the outage it is meant to recover from
	gdb, err := openGorm(db, config.Database.Driver)
	if err != nil {
		lg.Error("failed to open gorm", "error", err)
		os.Exit(1)
	}
	repo := postgres.NewRepository(gdb)

	eventBus := events.NewEventBus(lg)
	events.RegisterAuditLog(eventBus, lg)
	leaveService := leave.NewService(repo, eventBus, lg)

	reconcileConfig := reconcile.Config{
		Interval:     getDurationFlag(reconcileInterval, config.Sync.ReconcileInterval),
		MaxWorkers:   getIntFlag(maxWorkers, config.Sync.MaxWorkers),
		JobQueueSize: getIntFlag(jobQueueSize, config.Sync.JobQueueSize),
	}

	lg.Info("starting reconcile worker",
		"interval", reconcileConfig.Interval,
		"max_workers", reconcileConfig.MaxWorkers,
		"job_queue_size", reconcileConfig.JobQueueSize)

	reconciler := reconcile.New(repo, leaveService, reconcileConfig, lg)

	if reconcileOnce {
		defer reconciler.Shutdown()
		report, err := reconciler.RunOnce(context.Background())
		if err != nil {
			lg.Error("reconcile pass failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("found=%d settled=%d failed=%d\n", report.Found, report.Settled, report.Failed)
		waitForEvents(eventBus)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("reconcile worker is running. Press Ctrl+C to stop.")
	reconciler.Run(ctx)

	waitForEvents(eventBus)
	lg.Info("reconcile worker shutdown complete")
}

func waitForEvents(bus *events.EventBus) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bus.Wait(ctx); err != nil {
		logger.LoggerWrapper().Warn("shutdown timeout reached, forcing exit")
	}
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	reconcileWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	reconcileWorkerCmd.Flags().DurationVar(&reconcileInterval, "interval", 0, "Time between passes (overrides config)")
	reconcileWorkerCmd.Flags().BoolVar(&reconcileOnce, "once", false, "Run a single pass and exit")

	workerCmd.AddCommand(reconcileWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
