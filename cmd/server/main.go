package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/mGhassen/WildEnergy-sub005/internal/config"
	"github.com/mGhassen/WildEnergy-sub005/internal/database"
	"github.com/mGhassen/WildEnergy-sub005/internal/events"
	"github.com/mGhassen/WildEnergy-sub005/internal/handlers"
	"github.com/mGhassen/WildEnergy-sub005/internal/logging"
	"github.com/mGhassen/WildEnergy-sub005/internal/metrics"
	"github.com/mGhassen/WildEnergy-sub005/internal/middleware"
	"github.com/mGhassen/WildEnergy-sub005/internal/routes"
	"github.com/mGhassen/WildEnergy-sub005/internal/scheduler"
	"github.com/mGhassen/WildEnergy-sub005/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepTimeout    = 10 * time.Minute
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	pool, err := database.Connect(ctx, cfg.DBUrl, database.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// 3. Observability and messaging
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	publisher := events.New(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	defer publisher.Close()

	// 4. Services
	tx := services.NewPostgresTransactor(pool, cfg.TxMaxRetries)
	registrationService := services.NewRegistrationService(tx, services.RegistrationPolicy{
		Location:       cfg.Location,
		RefundWindow:   cfg.CancelRefundWindow,
		PreventOverlap: cfg.PreventOverlap,
	}, publisher, bookingMetrics, logger.Named("registrations"))
	checkinRecorder := services.NewCheckinRecorder(tx, registrationService)
	absenceSweep := services.NewAbsenceSweep(
		tx,
		cfg.Location,
		cfg.AbsenceSweepBatchSize,
		publisher,
		bookingMetrics,
		logger.Named("absence_sweep"),
	)

	deps := routes.Dependencies{
		JWTSecret:         cfg.JWTSecret,
		Registrations:     handlers.NewRegistrationHandler(registrationService),
		Admin:             handlers.NewAdminHandler(registrationService, checkinRecorder, absenceSweep),
		BookingRateLimit:  cfg.BookingRateLimit,
		BookingRateWindow: cfg.BookingRateWindow,
		Logger:            logger,
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, booking rate limit fails open until it recovers", zap.Error(err))
		}
		deps.BookingLimiter = middleware.NewRedisRateLimiter(redisClient, "class_booking")
	}

	var sweepScheduler *scheduler.Scheduler
	if cfg.AbsenceSweepEnabled {
		sweepScheduler = scheduler.New(absenceSweep, sweepTimeout, logger)
		if err := sweepScheduler.ScheduleAbsenceSweep(cfg.AbsenceSweepSchedule); err != nil {
			logger.Fatal("failed to schedule absence sweep", zap.Error(err))
		}
		sweepScheduler.Start()
	}

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.IsDevelopment()})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(helmet.New())
	app.Use(cors.New())
	app.Use(httpMetrics.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := pool.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	routes.RegisterRoutes(app, deps)

	// 6. Start Server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if sweepScheduler != nil {
		select {
		case <-sweepScheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("absence sweep still running at shutdown")
		}
	}
}
