package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	paymentdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/payment"
	"github.com/frahmantamala/stay-booking/internal/transport"
	"github.com/frahmantamala/stay-booking/pkg/logger"
)

type ServiceAPI interface {
	ProcessPayment(guestID int64, dto *ProcessPaymentDTO) (*Result, error)
	HandleProviderCallback(dto *ProviderCallbackDTO) error
	ListForBooking(bookingID, actorID int64) ([]*paymentdm.Payment, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// ProcessPayment captures one payment leg for a booking. Retries with the
// same idempotency key get the original outcome back, never a second charge.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.Logger.Error("ProcessPayment: actor not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto ProcessPaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("ProcessPayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.ProcessPayment(actorID, &dto)
	if err != nil {
		h.Logger.Error("ProcessPayment: service error",
			"error", err,
			"booking_id", dto.BookingID,
			"payment_type", dto.PaymentType,
			"guest_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyProcessed {
		status = http.StatusOK
	}

	h.Logger.Info("ProcessPayment: payment settled",
		"payment_id", result.PaymentID,
		"booking_id", result.BookingID,
		"payment_type", result.PaymentType,
		"amount_cents", result.AmountCents,
		"already_processed", result.AlreadyProcessed)

	h.WriteJSON(w, status, result)
}

func (h *Handler) ListBookingPayments(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingIDStr := chi.URLParam(r, "id")
	bookingID, err := strconv.ParseInt(bookingIDStr, 10, 64)
	if err != nil {
		h.Logger.Error("ListBookingPayments: invalid booking ID", "id", bookingIDStr)
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	payments, err := h.Service.ListForBooking(bookingID, actorID)
	if err != nil {
		h.Logger.Error("ListBookingPayments: service error", "error", err, "booking_id", bookingID, "actor_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"count":    len(payments),
	})
}
