package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/expertrait/expertrait-backend/api/controllers"
	webhookcontrollers "github.com/expertrait/expertrait-backend/api/controllers/webhooks"
	"github.com/expertrait/expertrait-backend/api/middleware"
	"github.com/expertrait/expertrait-backend/internal/bookings"
	"github.com/expertrait/expertrait-backend/internal/handlers"
	"github.com/expertrait/expertrait-backend/internal/notifications"
	"github.com/expertrait/expertrait-backend/internal/payouts"
	"github.com/expertrait/expertrait-backend/internal/wallet"
	stripewebhook "github.com/expertrait/expertrait-backend/internal/webhooks/stripe"
	"github.com/expertrait/expertrait-backend/pkg/config"
	"github.com/expertrait/expertrait-backend/pkg/db"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/redis"
	"github.com/expertrait/expertrait-backend/pkg/stripe"
)

// redisStore is the slice of the Redis client the request middlewares need.
type redisStore interface {
	redis.IdempotencyStore
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	store redisStore,
	bookingsService bookings.Service,
	walletService wallet.Service,
	payoutsService payouts.Service,
	handlersService handlers.Service,
	notificationsService notifications.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	apiPolicy := middleware.NewRateLimitPolicy(
		"api",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.UserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))
		r.Use(middleware.RateLimit(apiPolicy, store, logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", controllers.ListBookings(bookingsService, logg))
			r.Get("/{bookingId}", controllers.BookingDetail(bookingsService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireHandler(logg))
				r.Post("/{bookingId}/assign", controllers.AssignBooking(bookingsService, logg))
				r.Post("/{bookingId}/check-in", controllers.CheckInBooking(bookingsService, logg))
				r.Post("/{bookingId}/check-out", controllers.CheckOutBooking(bookingsService, logg))
			})

			r.Post("/{bookingId}/cancel", controllers.CancelBooking(bookingsService, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Use(middleware.RequireHandler(logg))
			r.Get("/", controllers.WalletBalance(walletService, logg))
			r.Get("/entries", controllers.WalletEntries(walletService, logg))
			r.Route("/payouts", func(r chi.Router) {
				r.Post("/", controllers.RequestPayout(payoutsService, logg))
				r.Get("/", controllers.ListPayouts(payoutsService, logg))
			})
		})

		r.Route("/handlers/me", func(r chi.Router) {
			r.Use(middleware.RequireHandler(logg))
			r.Get("/", controllers.HandlerProfile(handlersService, logg))
			r.Patch("/availability", controllers.HandlerAvailability(handlersService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
