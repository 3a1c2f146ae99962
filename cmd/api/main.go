package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/expertrait/expertrait-backend/api/routes"
	"github.com/expertrait/expertrait-backend/internal/bookings"
	"github.com/expertrait/expertrait-backend/internal/handlers"
	"github.com/expertrait/expertrait-backend/internal/notifications"
	"github.com/expertrait/expertrait-backend/internal/payouts"
	"github.com/expertrait/expertrait-backend/internal/settlement"
	"github.com/expertrait/expertrait-backend/internal/wallet"
	stripewebhook "github.com/expertrait/expertrait-backend/internal/webhooks/stripe"
	"github.com/expertrait/expertrait-backend/pkg/config"
	"github.com/expertrait/expertrait-backend/pkg/db"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/metrics"
	"github.com/expertrait/expertrait-backend/pkg/migrate"
	"github.com/expertrait/expertrait-backend/pkg/outbox"
	"github.com/expertrait/expertrait-backend/pkg/redis"
	"github.com/expertrait/expertrait-backend/pkg/stripe"
)

// stripeEventTTL covers Stripe's webhook retry window.
const stripeEventTTL = 72 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	domainMetrics := metrics.NewDomainMetrics(registry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	settlementService, err := settlement.NewService(dbClient, logg, domainMetrics, cfg.Settlement)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	bookingsService, err := bookings.NewService(
		bookings.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		settlementService,
		logg,
		cfg.Bookings,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create bookings service", err)
		os.Exit(1)
	}

	walletRepo := wallet.NewRepository(dbClient.DB())
	walletService, err := wallet.NewService(walletRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	handlersRepo := handlers.NewRepository(dbClient.DB())
	handlersService, err := handlers.NewService(handlersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create handlers service", err)
		os.Exit(1)
	}

	payoutsService, err := payouts.NewService(
		payouts.NewRepository(dbClient.DB()),
		handlersRepo,
		walletRepo,
		dbClient,
		stripeClient,
		outboxService,
		logg,
		domainMetrics,
		cfg.Payouts,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(payoutsService)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, stripeEventTTL, "stripe-events")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			redisClient,
			bookingsService,
			walletService,
			payoutsService,
			handlersService,
			notificationsService,
			stripeClient,
			webhookService,
			webhookGuard,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
