package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	donationapp "github.com/bloodchain/backend/internal/application/donation"
	inventoryapp "github.com/bloodchain/backend/internal/application/inventory"
	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	requestapp "github.com/bloodchain/backend/internal/application/request"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/cache"
	"github.com/bloodchain/backend/internal/infrastructure/config"
	"github.com/bloodchain/backend/internal/infrastructure/logger"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/persistence"
	"github.com/bloodchain/backend/internal/infrastructure/scheduler"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"github.com/bloodchain/backend/internal/interfaces/http/handler"
	"github.com/bloodchain/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a config file (default: search ./, ./config, /etc/bloodchain)")
	flag.Parse()

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The OTLP log core needs a logger to report its own setup, so the
	// process logger is rebuilt once the provider exists.
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log, err := logger.New(logCfg, logProvider.Core(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting blood bank backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("ops_port", cfg.Ops.Port),
	)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server exited with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		bootLog.Error("Error shutting down log export", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.TracingEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && tracer.IsEnabled() {
		tracer.EnableSpanProfiles()
	}

	meters, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := meters.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	lock, err := cache.NewRunLock(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Close() }()

	clock := shared.NewZonedClock(cfg.App.Location())
	m := metrics.New(prometheus.DefaultRegisterer)
	scope := db.TransactionScope()

	ledgerSvc := ledgerapp.NewService(scope, clock, m, log)
	units := inventoryapp.NewUnitService(scope, ledgerSvc, clock, m, log)
	allocator := inventoryapp.NewAllocator(scope, ledgerSvc, clock, m, log)
	sweep := inventoryapp.NewExpirySweepService(scope, ledgerSvc, units, clock, m, log)

	business, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meters.Meter(cfg.Telemetry.ServiceName),
		Logger: log,
		Stock:  allocator,
	})
	if err != nil {
		return err
	}
	m.WithBusiness(business)
	if meters.IsEnabled() {
		business.StartPeriodicCollection(ctx, cfg.Telemetry.StockMetricsInterval)
		defer business.Stop()
	}

	requests := requestapp.NewService(scope, ledgerSvc, units, allocator, clock, m, log)
	donations := donationapp.NewService(scope, ledgerSvc, units, cfg.Policy.DonationPolicy(), clock, m, log)

	var trigger *scheduler.DailyTrigger
	if cfg.Scheduler.Enabled {
		trigger, err = newSweepTrigger(cfg, sweep, lock, clock, log)
		if err != nil {
			return err
		}
	}

	checks := map[string]handler.ReadinessCheck{"database": db.Ping}
	if redisLock, ok := lock.(*cache.RedisRunLock); ok {
		checks["redis"] = redisLock.Ping
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.NewOpsEngine(router.Deps{
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      log,
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
		Checks:      checks,
		Ledger:      ledgerSvc,
		Units:       units,
		Inventory:   allocator,
		Requests:    requests,
		Donations:   donations,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Ops.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Ops.ReadTimeout,
		WriteTimeout: cfg.Ops.WriteTimeout,
		IdleTimeout:  cfg.Ops.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	if trigger != nil {
		if err := trigger.Start(gctx); err != nil {
			return err
		}
	}
	g.Go(func() error {
		log.Info("Ops server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if trigger != nil {
			if err := trigger.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	log.Info("Server exited")
	return err
}

func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	tracingCfg := telemetry.DefaultDBTracingConfig()
	tracingCfg.Enabled = cfg.Telemetry.TracingEnabled && cfg.Telemetry.DBTraceEnabled
	tracingCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		tracingCfg.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if cfg.Database.Driver == config.DriverSQLite {
		tracingCfg.DBSystem = "sqlite"
	}
	plugin := telemetry.NewDBTracingPlugin(tracingCfg, log)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(tracingCfg.SlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(gormLog),
		persistence.WithPlugin(plugin.RegisterOtelGorm),
	)
	if err != nil {
		return nil, err
	}

	// Postgres schemas are owned by cmd/migrate.
	if cfg.Database.Driver == config.DriverSQLite {
		if err := persistence.AutoMigrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))
	return db, nil
}

func newSweepTrigger(cfg *config.Config, sweep *inventoryapp.ExpirySweepService, lock scheduler.RunLock, clock shared.Clock, log *zap.Logger) (*scheduler.DailyTrigger, error) {
	tcfg := scheduler.DefaultDailyTriggerConfig("expiry_sweep")
	tcfg.Hour = cfg.Scheduler.ExpirySweepHour
	tcfg.Minute = cfg.Scheduler.ExpirySweepMinute
	tcfg.Location = cfg.App.Location()
	if cfg.Scheduler.CheckInterval > 0 {
		tcfg.CheckInterval = cfg.Scheduler.CheckInterval
	}
	if cfg.Scheduler.LockTTL > 0 {
		tcfg.LockTTL = cfg.Scheduler.LockTTL
	}
	if cfg.Scheduler.JobTimeout > 0 {
		tcfg.JobTimeout = cfg.Scheduler.JobTimeout
	}

	job := func(ctx context.Context) error {
		_, err := sweep.Sweep(ctx)
		return err
	}
	return scheduler.NewDailyTrigger(tcfg, job, lock, clock, log)
}
