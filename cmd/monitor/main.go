package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/rumi-monitor/internal/api/http"
	"github.com/spec-kit/rumi-monitor/internal/api/http/handlers"
	"github.com/spec-kit/rumi-monitor/internal/auth"
	"github.com/spec-kit/rumi-monitor/internal/clock"
	"github.com/spec-kit/rumi-monitor/internal/config"
	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/events"
	"github.com/spec-kit/rumi-monitor/internal/governor"
	"github.com/spec-kit/rumi-monitor/internal/helpdesk"
	"github.com/spec-kit/rumi-monitor/internal/kafka"
	"github.com/spec-kit/rumi-monitor/internal/observability"
	"github.com/spec-kit/rumi-monitor/internal/persistence"
	"github.com/spec-kit/rumi-monitor/internal/repository"
	"github.com/spec-kit/rumi-monitor/internal/service"
	"github.com/spec-kit/rumi-monitor/internal/trigger"
	"github.com/spec-kit/rumi-monitor/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, level, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real()
	metrics := observability.NewMetrics()

	gov := governor.New(governor.Config{
		RateLimitPerMinute: cfg.Helpdesk.RateLimitPerMinute,
		CircuitThreshold:   cfg.Monitor.CircuitThreshold,
	}, clk)
	client := helpdesk.NewClient(helpdesk.Config{
		BaseURL:       cfg.Helpdesk.BaseURL,
		Email:         cfg.Helpdesk.Email,
		APIToken:      cfg.Helpdesk.APIToken,
		CSRFToken:     cfg.Helpdesk.CSRFToken,
		AgentPagePath: cfg.Helpdesk.AgentPagePath,
		Timeout:       cfg.Helpdesk.Timeout(),
		RetryDelay:    cfg.Helpdesk.RetryDelay(),
		MaxViewPages:  cfg.Helpdesk.MaxViewPages,
	}, gov, clk, logger.Named("helpdesk"))

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var settings repository.SettingsRepository
	healthRedis := redis
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redis.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, settings kept in memory", zap.Error(err))
		settings = repository.NewMemorySettingsRepository()
		healthRedis = nil
	} else {
		settings = repository.NewRedisSettingsRepository(redis.Client, cfg.Redis.KeyPrefix, cfg.Redis.SessionTTL())
	}
	pingCancel()

	dispatcher := events.NewInMemoryDispatcher()
	var (
		sinks   []events.EventHandler
		closers []io.Closer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("kafka"))
		sinks = append(sinks, producer.Handle)
		closers = append(closers, producer)
	}
	notificationService := service.NewNotificationService(dispatcher, logger.Named("events"), sinks...)
	worker.StartNotificationWorker(ctx, notificationService, logger, closers...)

	analyzer := trigger.NewAnalyzer(client, cfg.Trigger.Phrases, cfg.Trigger.RequiredAuthorID, logger.Named("trigger"))
	if cfg.Trigger.RequiredAuthorID == 0 {
		logger.Warn("TRIGGER_REQUIRED_AUTHOR_ID not set, no comment will match")
	}

	history := repository.NewTicketHistoryRepository()
	processor := service.NewTicketProcessor(service.ProcessorDependencies{
		API:        client,
		Analyzer:   analyzer,
		History:    history,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      clk,
		Logger:     logger.Named("processor"),
		Rule:       statusRule(cfg.Monitor),
		DryRun:     cfg.Monitor.DryRun,
	})
	monitor := service.NewMonitor(service.MonitorDependencies{
		API:              client,
		Governor:         gov,
		Processor:        processor,
		History:          history,
		Settings:         settings,
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Clock:            clk,
		Logger:           logger.Named("monitor"),
		Catalog:          cfg.Trigger.Views,
		Phrases:          analyzer.Phrases(),
		RequiredAuthorID: analyzer.RequiredAuthorID(),
		Config:           service.SettingsFromConfig(cfg.Monitor),
	})
	if views, err := monitor.RestoreViews(ctx); err != nil {
		logger.Warn("could not restore monitored views", zap.Error(err))
	} else if len(views) > 0 {
		logger.Info("restored monitored views", zap.Int("views", len(views)))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, tokens)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthRedis, client),
		Auth:           handlers.NewAuthHandler(authService),
		Monitor:        handlers.NewMonitorHandler(monitor, level, logger),
		History:        handlers.NewHistoryHandler(monitor),
		Preferences:    handlers.NewPreferencesHandler(settings),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		logger.Info("control api listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if monitor.Status().State != service.StateStopped {
		monitor.Stop()
	}
	cancel()
	_ = app.ShutdownWithTimeout(5 * time.Second)
}

func statusRule(cfg config.MonitorConfig) service.StatusRule {
	elevated := make([]domain.TicketPriority, 0, len(cfg.ElevatedPriorities))
	for _, p := range cfg.ElevatedPriorities {
		elevated = append(elevated, domain.TicketPriority(p))
	}
	return service.StatusRule{
		TargetStatus:       domain.TicketStatusPending,
		ViewMarkers:        cfg.DowngradeViewMarkers,
		ElevatedPriorities: elevated,
		DowngradePriority:  domain.TicketPriority(cfg.DowngradePriority),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
