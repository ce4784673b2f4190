package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	"github.com/frahmantamala/stay-booking/internal/booking"
	"github.com/frahmantamala/stay-booking/internal/identity"
	"github.com/frahmantamala/stay-booking/internal/payment"
	"github.com/frahmantamala/stay-booking/internal/scheduler"
	"github.com/frahmantamala/stay-booking/internal/transport/middleware"
)

// RegisterAllRoutes wires every HTTP surface of the service. The provider
// callback stays outside the actor group: it is authenticated by the gateway
// signature, not by a user header.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	cfg *apperrors.Config,
	identityProvider identity.Provider,
	bookingHandler *booking.Handler,
	paymentHandler *payment.Handler,
	webhookHandler *payment.WebhookHandler,
	schedulerHandler *scheduler.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/payments/callback", webhookHandler.HandleProviderCallback)
		}

		// Operator triggers for the deadline sweeps
		if schedulerHandler != nil {
			r.Route("/admin/scheduler", func(ar chi.Router) {
				ar.Post("/expire", schedulerHandler.TriggerExpire)
				ar.Post("/reminders", schedulerHandler.TriggerReminders)
			})
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.ActorContext(identityProvider, logger))

			if bookingHandler != nil {
				pr.Route("/bookings", func(br chi.Router) {
					br.Post("/", bookingHandler.CreateBooking)
					br.Get("/", bookingHandler.ListBookings)
					br.Get("/awaiting-payment", bookingHandler.ListAwaitingPayment)
					br.Get("/{id}", bookingHandler.GetBooking)
					br.Patch("/{id}/respond", bookingHandler.RespondToBooking)
					br.Patch("/{id}/cancel", bookingHandler.CancelBooking)
					br.Patch("/{id}/checkin", bookingHandler.CheckIn)
					br.Patch("/{id}/complete", bookingHandler.Complete)
					br.Patch("/{id}/payment-proof", bookingHandler.VerifyPaymentProof)

					if paymentHandler != nil {
						br.Get("/{id}/payments", paymentHandler.ListBookingPayments)
					}
				})
			}

			if paymentHandler != nil {
				pr.Post("/payments", paymentHandler.ProcessPayment)
			}
		})
	})
}
