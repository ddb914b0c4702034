package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/autoprice"
	"github.com/Domenick1991/agrirent/internal/bootstrap"
	"github.com/Domenick1991/agrirent/internal/cache"
	"github.com/Domenick1991/agrirent/internal/kafka"
	"github.com/Domenick1991/agrirent/internal/notify"
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
		booking.WithItemAvailability(itemRepo),
		booking.WithLogger(logger),
		booking.WithSweepBatchSize(cfg.Worker.SweepBatchSize),
	)

	var wg sync.WaitGroup

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer consumer.Close()
	sender := notify.NewSender(logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		deliver := func(ctx context.Context, event kafka.BookingEvent) error {
			if err := sender.Send(ctx, event); err != nil {
				logger.Warn("notification delivery failed",
					slog.String("booking_id", event.BookingID),
					slog.String("type", event.Type),
					slog.Any("error", err))
			}
			return nil
		}
		if err := consumer.Consume(ctx, kafka.BookingEventHandler(logger, deliver)); err != nil {
			logger.Error("notification consumer stopped", slog.Any("error", err))
		}
	}()

	activities := autoprice.NewActivities(pricingService, logger)
	if cfg.Temporal.Enabled() {
		temporalClient, err := autoprice.Dial(cfg.Temporal)
		if err != nil {
			log.Fatalf("dial temporal: %v", err)
		}
		defer temporalClient.Close()

		w := autoprice.NewWorker(temporalClient, cfg.Temporal, activities)
		if err := w.Start(); err != nil {
			log.Fatalf("start temporal worker: %v", err)
		}
		defer w.Stop()

		if err := autoprice.StartCron(ctx, temporalClient, cfg.Temporal, logger); err != nil {
			log.Fatalf("schedule auto price: %v", err)
		}
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			autoprice.RunTicker(ctx, time.Duration(cfg.Worker.AutoPriceIntervalHours)*time.Hour, activities, logger)
		}()
	}

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()

	logger.Info("worker started", slog.Bool("temporal", cfg.Temporal.Enabled()))
	for {
		select {
		case <-expireTicker.C:
			expired, err := bookingService.ExpireOverdue(ctx)
			if err != nil {
				logger.Error("expire bookings", slog.Any("error", err))
				continue
			}
			if len(expired) > 0 {
				logger.Info("expired bookings", slog.Int("count", len(expired)))
			}
		case <-ctx.Done():
			logger.Info("shutting down worker")
			wg.Wait()
			return
		}
	}
}
