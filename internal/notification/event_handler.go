package notification

import (
	"context"
	"fmt"
	"log/slog"

	notificationtypes "github.com/frahmantamala/stay-booking/internal/core/datamodel/notification"
	"github.com/frahmantamala/stay-booking/internal/core/events"
)

// Gateway is what the event handler needs from the delivery client.
type Gateway interface {
	Send(userID int64, template string, data map[string]interface{}) error
}

// EventHandler translates domain events into guest and host notifications.
type EventHandler struct {
	gateway Gateway
	logger  *slog.Logger
}

func NewEventHandler(gateway Gateway, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		gateway: gateway,
		logger:  logger,
	}
}

func (h *EventHandler) RegisterHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeBookingConfirmed, h.handleBookingConfirmed)
	bus.Subscribe(events.EventTypeBookingCancelled, h.handleBookingCancelled)
	bus.Subscribe(events.EventTypePaymentReminder, h.handlePaymentReminder)
	bus.Subscribe(events.EventTypePaymentExpired, h.handlePaymentExpired)
	bus.Subscribe(events.EventTypePaymentCompleted, h.handlePaymentCompleted)
	bus.Subscribe(events.EventTypePaymentFailed, h.handlePaymentFailed)
}

func (h *EventHandler) handleBookingConfirmed(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.BookingConfirmedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	data := map[string]interface{}{
		"booking_id":       e.BookingID,
		"payment_deadline": e.PaymentDeadline,
		"amount_due_cents": e.AmountDueCents,
	}

	if err := h.gateway.Send(e.GuestID, notificationtypes.TemplateBookingConfirmed, data); err != nil {
		return err
	}
	return h.gateway.Send(e.HostID, notificationtypes.TemplateBookingConfirmed, data)
}

func (h *EventHandler) handleBookingCancelled(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.BookingCancelledEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	data := map[string]interface{}{
		"booking_id": e.BookingID,
		"status":     e.Status,
		"reason":     e.Reason,
	}

	if err := h.gateway.Send(e.GuestID, notificationtypes.TemplateBookingCancelled, data); err != nil {
		return err
	}
	return h.gateway.Send(e.HostID, notificationtypes.TemplateBookingCancelled, data)
}

func (h *EventHandler) handlePaymentReminder(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentReminderEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	return h.gateway.Send(e.GuestID, notificationtypes.TemplatePaymentReminder, map[string]interface{}{
		"booking_id":       e.BookingID,
		"payment_deadline": e.PaymentDeadline,
		"amount_due_cents": e.AmountDueCents,
	})
}

func (h *EventHandler) handlePaymentExpired(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentExpiredEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	data := map[string]interface{}{
		"booking_id": e.BookingID,
	}

	if err := h.gateway.Send(e.GuestID, notificationtypes.TemplatePaymentExpired, data); err != nil {
		return err
	}
	return h.gateway.Send(e.HostID, notificationtypes.TemplatePaymentExpired, data)
}

func (h *EventHandler) handlePaymentCompleted(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	return h.gateway.Send(e.GuestID, notificationtypes.TemplatePaymentReceipt, map[string]interface{}{
		"booking_id":         e.BookingID,
		"payment_id":         e.PaymentID,
		"payment_type":       e.PaymentType,
		"external_charge_id": e.ExternalChargeID,
		"amount_cents":       e.AmountCents,
	})
}

func (h *EventHandler) handlePaymentFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	h.logger.Info("notifying guest of failed payment",
		"payment_id", e.PaymentID,
		"booking_id", e.BookingID,
		"reason", e.FailureReason)

	return h.gateway.Send(e.GuestID, notificationtypes.TemplatePaymentFailed, map[string]interface{}{
		"payment_id":     e.PaymentID,
		"booking_id":     e.BookingID,
		"payment_type":   e.PaymentType,
		"failure_reason": e.FailureReason,
	})
}
