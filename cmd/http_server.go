package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/auth"
	"github.com/frahmantamala/leave-portal/internal/core/events"
	"github.com/frahmantamala/leave-portal/internal/leave"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/reconcile"
	"github.com/frahmantamala/leave-portal/internal/settings"
	"github.com/frahmantamala/leave-portal/internal/store"
	"github.com/frahmantamala/leave-portal/internal/store/fallback"
	"github.com/frahmantamala/leave-portal/internal/store/memory"
	"github.com/frahmantamala/leave-portal/internal/store/postgres"
	"github.com/frahmantamala/leave-portal/internal/transport/rest"
	"github.com/frahmantamala/leave-portal/internal/transport/swagger"
	"github.com/frahmantamala/leave-portal/internal/user"
	"github.com/frahmantamala/leave-portal/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Repository store.Repository
	EventBus   *events.EventBus
	Reconciler *reconcile.Reconciler
	Router     *chi.Mux
	Logger     *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := deps.Logger

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	lg.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var background sync.WaitGroup
	if deps.Config.Sync.ReconcileInServer {
		background.Add(1)
		go func() {
			defer background.Done()
			deps.Reconciler.Run(bgCtx)
		}()
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("Received signal, shutting down...", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("Server failed to start", "error", err)
			stopBackground()
			background.Wait()
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		lg.Error("Server shutdown error", "error", err)
	}

	stopBackground()
	background.Wait()
	deps.Reconciler.Shutdown()

	if err := deps.EventBus.Wait(ctx); err != nil {
		lg.Warn("event handlers still running at shutdown", "error", err)
	}
	if err := deps.DB.Close(); err != nil {
		lg.Error("Database close error", "error", err)
	}

	lg.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(logger.Options{
		Level:  config.Observability.Logging.Level,
		Format: config.Observability.Logging.Format,
	})
	lg := logger.LoggerWrapper()

	ctx := context.Background()
	if _, err := swagger.Load(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	repo, err := newRepository(ctx, db, config, lg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	eventBus := events.NewEventBus(lg)
	events.RegisterAuditLog(eventBus, lg)

	defaultQuotas, err := quota.FromMap(config.Portal.DefaultQuotas, quota.Default())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid default quotas: %w", err)
	}

	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.JWTAccessSecret,
		config.Security.JWTRefreshSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(repo, tokenGen, config.Security.BCryptCost, lg)

	settingsService := settings.NewService(repo, config.Portal.DefaultAccessCode, lg)
	if err := settingsService.EnsureAccessCode(ctx); err != nil {
		lg.Warn("could not store the default access code", "error", err)
	}

	userService := user.NewService(repo, settingsService, authService, defaultQuotas, lg)
	leaveService := leave.NewService(repo, eventBus, lg)

	reconciler := reconcile.New(repo, leaveService, reconcile.Config{
		Interval:     config.Sync.ReconcileInterval,
		MaxWorkers:   config.Sync.MaxWorkers,
		JobQueueSize: config.Sync.JobQueueSize,
	}, lg)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Health:   rest.NewHealthHandler(db, config.Database.Driver, config.Sync.FallbackEnabled),
		Auth:     auth.NewHandler(authService),
		User:     user.NewHandler(userService),
		Leave:    leave.NewHandler(leaveService),
		Settings: settings.NewHandler(settingsService),
	}, config.Server.Origins(), lg)

	return &Dependencies{
		Config:     config,
		DB:         db,
		Repository: repo,
		EventBus:   eventBus,
		Reconciler: reconciler,
		Router:     router,
		Logger:     lg,
	}, nil
}

// newRepository opens GORM on the shared pool. With fallback enabled the
// database is mirrored into memory so the portal keeps serving during an
// outage.
func newRepository(ctx context.Context, db *sqlx.DB, config *internal.Config, lg *slog.Logger) (store.Repository, error) {
	gdb, err := openGorm(db, config.Database.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	primary := postgres.NewRepository(gdb)
	if !config.Sync.FallbackEnabled {
		return primary, nil
	}

	repo := fallback.New(primary, memory.New(), lg)
	if err := repo.Warm(ctx); err != nil {
		lg.Warn("starting with an empty mirror", "error", err)
	}
	return repo, nil
}

func openGorm(db *sqlx.DB, driver string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = &sqlite.Dialector{DriverName: "sqlite3", Conn: db.DB}
	default:
		dialector = gormPostgres.New(gormPostgres.Config{Conn: db.DB})
	}

	return gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
}

// sqlDriverName maps the configured driver to the database/sql driver name.
func sqlDriverName(driver string) string {
	if driver == "sqlite" {
		return "sqlite3"
	}
	return "pgx"
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	driver := sqlDriverName(cfg.Driver)

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
