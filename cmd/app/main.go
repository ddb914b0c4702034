package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/bootstrap"
	"github.com/Domenick1991/agrirent/internal/cache"
	"github.com/Domenick1991/agrirent/internal/kafka"
	"github.com/Domenick1991/agrirent/internal/migrations"
	"github.com/Domenick1991/agrirent/internal/repository"
	"github.com/Domenick1991/agrirent/internal/service/booking"
	"github.com/Domenick1991/agrirent/internal/service/otp"
	"github.com/Domenick1991/agrirent/internal/service/pricing"
	"github.com/Domenick1991/agrirent/internal/service/settlement"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	cfgPath := pflag.String("config", defaultPath, "path to the YAML config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := bootstrap.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(cfg.Database.MigrateURL(), logger)
		if err := runner.Up(); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		if err := runner.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisClient := cache.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	redisCache := cache.NewRedisCache(redisClient, cfg.Pricing.RulesCacheTTL())

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()

	bookingRepo := repository.NewBookingRepository(pool, cfg.Database.RetryAttempts)
	itemRepo := repository.NewItemRepository(pool, cfg.Database.RetryAttempts)
	ruleRepo := repository.NewPricingRuleRepository(pool, cfg.Database.RetryAttempts)

	pricingService := pricing.NewPricingService(
		itemRepo,
		ruleRepo,
		bookingRepo,
		pricing.NewEngine(pricing.CoefficientsFromConfig(cfg.Pricing)),
		pricing.WithLogger(logger),
		pricing.WithRuleCache(redisCache),
	)
	bookingService := booking.NewBookingService(
		bookingRepo,
		otp.NewGate(cfg.OTP),
		settlement.NewCalculator(cfg.Settlement),
		cfg.Booking,
		booking.WithProducer(producer, cfg.Kafka.BookingEventsTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithLocker(redisCache),
		booking.WithPriceEstimator(pricingService),
		booking.WithItemAvailability(itemRepo),
		booking.WithLogger(logger),
	)

	deps := bootstrap.Dependencies{
		Bookings: bookingService,
		Pricing:  pricingService,
		Checks: map[string]bootstrap.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisCache.Ping,
			"kafka":    producer.CheckConnection,
		},
		Logger: logger,
	}
	if err := bootstrap.Run(ctx, cfg, deps); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
