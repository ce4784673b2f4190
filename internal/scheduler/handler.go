package scheduler

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/stay-booking/internal/transport"
	"github.com/frahmantamala/stay-booking/pkg/logger"
)

// Handler exposes manual triggers for the scheduler passes, used by
// operators to force a sweep without waiting for the next tick.
type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(service *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) TriggerExpire(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.Service.ExpireOverduePayments()
	if err != nil {
		h.Logger.Error("TriggerExpire: pass failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "completed",
		"cancelled": cancelled,
	})
}

func (h *Handler) TriggerReminders(w http.ResponseWriter, r *http.Request) {
	reminded, err := h.Service.SendPaymentReminders()
	if err != nil {
		h.Logger.Error("TriggerReminders: pass failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "completed",
		"reminded": reminded,
	})
}
