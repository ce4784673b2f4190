package booking

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	"github.com/frahmantamala/stay-booking/internal/transport"
	"github.com/frahmantamala/stay-booking/pkg/logger"
)

type ServiceAPI interface {
	CreateBooking(guestID int64, dto *CreateBookingDTO) (*Booking, error)
	RespondToBooking(bookingID, hostID int64, dto *RespondToBookingDTO) (*Booking, error)
	CancelBooking(bookingID, actorID int64, dto *CancelBookingDTO) (*Booking, error)
	CheckIn(bookingID, actorID int64) (*Booking, error)
	Complete(bookingID, actorID int64) (*Booking, error)
	VerifyPaymentProof(bookingID, verifierID int64, dto *PaymentProofDTO) (*Booking, error)
	GetBooking(bookingID, actorID int64) (*Booking, error)
	ListBookings(userID int64, limit, offset int) ([]*Booking, error)
	ListAwaitingPayment() ([]*AwaitingPaymentView, error)
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

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.Logger.Error("CreateBooking: actor not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateBookingDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateBooking: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.Service.CreateBooking(actorID, &dto)
	if err != nil {
		h.Logger.Error("CreateBooking: service error", "error", err, "guest_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateBooking: booking created",
		"booking_id", booking.ID,
		"guest_id", actorID,
		"listing_id", booking.ListingID,
		"total_price_cents", booking.TotalPriceCents)

	h.WriteJSON(w, http.StatusCreated, booking)
}

func (h *Handler) RespondToBooking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	var dto RespondToBookingDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RespondToBooking: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.Service.RespondToBooking(bookingID, actorID, &dto)
	if err != nil {
		h.Logger.Error("RespondToBooking: service error", "error", err, "booking_id", bookingID, "host_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RespondToBooking: host responded",
		"booking_id", bookingID,
		"host_id", actorID,
		"response", dto.Response,
		"status", booking.Status)

	h.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	var dto CancelBookingDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error("CancelBooking: invalid request body", "error", err)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	booking, err := h.Service.CancelBooking(bookingID, actorID, &dto)
	if err != nil {
		h.Logger.Error("CancelBooking: service error", "error", err, "booking_id", bookingID, "actor_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CancelBooking: booking cancelled",
		"booking_id", bookingID,
		"actor_id", actorID,
		"status", booking.Status)

	h.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	booking, err := h.Service.CheckIn(bookingID, actorID)
	if err != nil {
		h.Logger.Error("CheckIn: service error", "error", err, "booking_id", bookingID, "actor_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CheckIn: guest checked in", "booking_id", bookingID, "host_id", actorID)
	h.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	booking, err := h.Service.Complete(bookingID, actorID)
	if err != nil {
		h.Logger.Error("Complete: service error", "error", err, "booking_id", bookingID, "actor_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Complete: stay completed", "booking_id", bookingID, "host_id", actorID)
	h.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) VerifyPaymentProof(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	var dto PaymentProofDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("VerifyPaymentProof: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	booking, err := h.Service.VerifyPaymentProof(bookingID, actorID, &dto)
	if err != nil {
		h.Logger.Error("VerifyPaymentProof: service error", "error", err, "booking_id", bookingID, "verifier_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("VerifyPaymentProof: proof recorded", "booking_id", bookingID, "verifier_id", actorID)
	h.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bookingID, err := h.bookingIDParam(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid booking ID")
		return
	}

	booking, err := h.Service.GetBooking(bookingID, actorID)
	if err != nil {
		h.Logger.Error("GetBooking: service error", "error", err, "booking_id", bookingID, "actor_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, booking)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actorID, ok := apperrors.ActorIDFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	bookings, err := h.Service.ListBookings(actorID, limit, offset)
	if err != nil {
		h.Logger.Error("ListBookings: service error", "error", err, "actor_id", actorID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"limit":    limit,
		"offset":   offset,
	})
}

// ListAwaitingPayment is the back-office view of bookings that still owe
// money, with the amount due for each.
func (h *Handler) ListAwaitingPayment(w http.ResponseWriter, r *http.Request) {
	views, err := h.Service.ListAwaitingPayment()
	if err != nil {
		h.Logger.Error("ListAwaitingPayment: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": views,
		"count":    len(views),
	})
}

func (h *Handler) bookingIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
