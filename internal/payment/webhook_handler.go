package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/stay-booking/internal/transport"
)

// WebhookHandler receives asynchronous settlement notices from the charge
// provider. Its job is to resolve payments the synchronous path left in
// processing after a timeout.
type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		logger:         logger,
	}
}

type ProviderCallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *WebhookHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	var dto ProviderCallbackDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.logger.Error("invalid provider callback request", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("received provider callback",
		"payment_id", dto.PaymentID,
		"external_charge_id", dto.ExternalChargeID,
		"outcome", dto.Outcome)

	if err := dto.Validate(); err != nil {
		h.logger.Error("provider callback validation failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	if err := h.paymentService.HandleProviderCallback(&dto); err != nil {
		h.logger.Error("failed to process provider callback",
			"error", err,
			"payment_id", dto.PaymentID,
			"outcome", dto.Outcome)
		h.HandleServiceError(w, err)
		return
	}

	h.logger.Info("provider callback processed",
		"payment_id", dto.PaymentID,
		"outcome", dto.Outcome)

	h.WriteJSON(w, http.StatusOK, ProviderCallbackResponse{
		Status:  "success",
		Message: "callback processed",
	})
}
