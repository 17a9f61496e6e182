package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/clinic-security-monitor/internal/api/rest"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/archive"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/cache"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/database"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/events"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/instrumentation"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/mail"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/repository"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/telemetry"
	"github.com/davidleathers/clinic-security-monitor/internal/metrics"
	"github.com/davidleathers/clinic-security-monitor/internal/service/anomaly"
	"github.com/davidleathers/clinic-security-monitor/internal/service/baseline"
	"github.com/davidleathers/clinic-security-monitor/internal/service/detection"
	"github.com/davidleathers/clinic-security-monitor/internal/service/incident"
	"github.com/davidleathers/clinic-security-monitor/internal/service/ingest"
	"github.com/davidleathers/clinic-security-monitor/internal/service/notification"
	"github.com/davidleathers/clinic-security-monitor/internal/service/remediation"
)

const serviceName = "clinic-security-monitor"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting clinic security monitor",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port)

	zlog, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("zap logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	provider, err := telemetry.InitializeOpenTelemetry(ctx, cfg.Telemetry, cfg.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if cfg.Database.MigrateOnStart {
		if err := migrateUp(cfg.Database.URL, zlog); err != nil {
			return err
		}
	}

	pool, err := database.NewConnectionPool(ctx, cfg.Database, zlog)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	repos := repository.NewRepositories(pool)
	registry, err := metrics.NewRegistry(serviceName)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	checkers := []rest.HealthChecker{rest.NewPingChecker("database", pool.Ping, false)}

	var baselineStore behavior.BaselineRepository = repos.Baselines
	var rateLimiter cache.RateLimiter
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, zlog)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()

		baselineStore = cache.NewBaselineCache(repos.Baselines, cache.NewRedisCache(redisClient, zlog), cfg.Redis.BaselineTTL, zlog)
		rateLimiter = cache.NewRedisRateLimiter(redisClient, zlog)
		checkers = append(checkers, rest.NewPingChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}, true))
	}

	tz, err := time.LoadLocation(cfg.Behavior.DefaultTimezone)
	if err != nil {
		return fmt.Errorf("behavior.default_timezone: %w", err)
	}
	policy := cfg.Behavior.Policy()

	baselines := baseline.NewService(zlog, baseline.Config{
		Policy:             policy,
		LookbackDays:       cfg.Behavior.LookbackDays,
		MaxEvents:          cfg.Behavior.MaxEvents,
		CalculationTimeout: cfg.Behavior.CalculationTimeout,
		DefaultTimezone:    tz,
	}, repos.Users, repos.Events, baselineStore, registry)

	detector := detection.NewService(zlog, detection.Config{
		Policy:            policy,
		Workers:           cfg.Behavior.Workers,
		QueueSize:         cfg.Behavior.QueueSize,
		DetectionTimeout:  cfg.Behavior.DetectionTimeout,
		ReconcileInterval: cfg.Behavior.ReconcileInterval,
		ReconcileAfter:    cfg.Behavior.ReconcileAfter,
		ReconcileBatch:    cfg.Behavior.ReconcileBatch,
	}, repos.Users, repos.Events, baselineStore, repos.Anomalies, registry)
	checkers = append(checkers, &detectorChecker{detector: detector, queueSize: cfg.Behavior.QueueSize})

	archiver, err := archive.NewArchiver(ctx, cfg.Archive, zlog)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	sender, err := mail.NewSender(ctx, cfg.Notification, zlog)
	if err != nil {
		return fmt.Errorf("mail: %w", err)
	}

	ingestService := ingest.NewService(zlog, repos.Events, detector, registry)
	services := rest.Services{
		Baselines: baselines,
		Anomalies: anomaly.NewService(zlog, repos.Anomalies),
		Ingest:    ingestService,
		Incidents: instrumentation.NewIncidentTracedService(
			incident.NewService(zlog, repos.Incidents, repos.Notifications, repos.Remediations, archiver, registry)),
		Notifications: instrumentation.NewNotificationTracedService(
			notification.NewService(zlog, notification.Config{SendTimeout: cfg.Notification.SendTimeout},
				repos.Incidents, repos.Notifications, sender, registry)),
		Remediations: remediation.NewService(zlog, repos.Incidents, repos.Remediations),
	}

	var subscriber *events.Subscriber
	if cfg.NATS.Enabled {
		nc, err := events.Connect(cfg.NATS, serviceName, zlog)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()

		subscriber = events.NewSubscriber(nc, cfg.NATS.Subject, cfg.NATS.QueueGroup,
			func(ctx context.Context, e *behavior.Event) error {
				_, err := ingestService.Accept(ctx, e, ingest.SourceNATS)
				return err
			}, zlog)
		checkers = append(checkers, rest.NewPingChecker("nats", func(context.Context) error {
			if status := nc.Status(); status != nats.CONNECTED {
				return fmt.Errorf("connection %s", status)
			}
			return nil
		}, true))
	}

	routerCfg := rest.DefaultConfig()
	routerCfg.Version = cfg.Version
	routerCfg.MaxBodyBytes = cfg.Server.MaxBodyBytes
	routerCfg.RequestTimeout = cfg.Server.RequestTimeout
	routerCfg.Debug = !cfg.IsProduction()
	routerCfg.ContractValidation = cfg.Server.ContractValidation
	routerCfg.Auth = rest.AuthConfig{
		Enabled: cfg.Security.AuthEnabled,
		Secret:  []byte(cfg.Security.JWTSecret),
		Issuer:  cfg.Security.JWTIssuer,
	}
	routerCfg.RequestsPerSecond = cfg.Security.RateLimit.RequestsPerSecond
	routerCfg.Burst = cfg.Security.RateLimit.BurstSize
	routerCfg.DistributedLimiter = rateLimiter
	routerCfg.Logger = logger
	routerCfg.Registerer = prometheus.DefaultRegisterer
	routerCfg.Gatherer = prometheus.DefaultGatherer
	routerCfg.Health = rest.NewHealthService(cfg.Version, 5*time.Second, checkers...)

	handler, err := rest.NewRouter(routerCfg, services)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	server := rest.NewServer(rest.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler, logger)

	detector.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		detector.Stop(stopCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if subscriber != nil {
		g.Go(func() error {
			if err := subscriber.Start(gctx); err != nil {
				return fmt.Errorf("nats subscribe: %w", err)
			}
			<-gctx.Done()
			if err := subscriber.Drain(); err != nil {
				zlog.Warn("nats drain failed", zap.Error(err))
			}
			stats := subscriber.Stats()
			zlog.Info("nats subscriber stopped",
				zap.Int64("received", stats.Received),
				zap.Int64("accepted", stats.Accepted),
				zap.Int64("rejected", stats.Rejected),
				zap.Int64("failed", stats.Failed))
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutting down gracefully")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func migrateUp(databaseURL string, logger *zap.Logger) error {
	m, err := database.NewMigrator(databaseURL, logger)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(0); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// detectorChecker warns while the detection queue is saturated
type detectorChecker struct {
	detector  detection.Service
	queueSize int
}

func (c *detectorChecker) Name() string { return "detector" }

func (c *detectorChecker) Check(context.Context) rest.HealthCheckResult {
	st := c.detector.Status()
	res := rest.HealthCheckResult{
		Status: rest.HealthStatusPass,
		Metadata: map[string]interface{}{
			"active_workers":  st.ActiveWorkers,
			"queued_tasks":    st.QueuedTasks,
			"completed_tasks": st.CompletedTasks,
			"failed_tasks":    st.FailedTasks,
		},
	}
	if c.queueSize > 0 && st.QueuedTasks >= c.queueSize {
		res.Status = rest.HealthStatusWarn
		res.Message = "detection queue full; events are deferred to reconciliation"
	}
	return res
}
