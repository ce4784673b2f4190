package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeBookingConfirmed = "booking.confirmed"
	EventTypeBookingCancelled = "booking.cancelled"
	EventTypePaymentReminder  = "booking.payment_reminder"
	EventTypePaymentExpired   = "booking.payment_expired"
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

type BookingConfirmedEvent struct {
	BaseEvent
	BookingID       int64     `json:"booking_id"`
	GuestID         int64     `json:"guest_id"`
	HostID          int64     `json:"host_id"`
	PaymentDeadline time.Time `json:"payment_deadline"`
	AmountDueCents  int64     `json:"amount_due_cents"`
}

func NewBookingConfirmedEvent(bookingID, guestID, hostID int64, deadline time.Time, amountDueCents int64) *BookingConfirmedEvent {
	return &BookingConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBookingConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"booking_id":       bookingID,
				"guest_id":         guestID,
				"host_id":          hostID,
				"payment_deadline": deadline,
				"amount_due_cents": amountDueCents,
			},
		},
		BookingID:       bookingID,
		GuestID:         guestID,
		HostID:          hostID,
		PaymentDeadline: deadline,
		AmountDueCents:  amountDueCents,
	}
}

type BookingCancelledEvent struct {
	BaseEvent
	BookingID int64  `json:"booking_id"`
	GuestID   int64  `json:"guest_id"`
	HostID    int64  `json:"host_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

func NewBookingCancelledEvent(bookingID, guestID, hostID int64, status, reason string) *BookingCancelledEvent {
	return &BookingCancelledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBookingCancelled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"booking_id": bookingID,
				"guest_id":   guestID,
				"host_id":    hostID,
				"status":     status,
				"reason":     reason,
			},
		},
		BookingID: bookingID,
		GuestID:   guestID,
		HostID:    hostID,
		Status:    status,
		Reason:    reason,
	}
}

type PaymentReminderEvent struct {
	BaseEvent
	BookingID       int64     `json:"booking_id"`
	GuestID         int64     `json:"guest_id"`
	PaymentDeadline time.Time `json:"payment_deadline"`
	AmountDueCents  int64     `json:"amount_due_cents"`
}

func NewPaymentReminderEvent(bookingID, guestID int64, deadline time.Time, amountDueCents int64) *PaymentReminderEvent {
	return &PaymentReminderEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentReminder,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"booking_id":       bookingID,
				"guest_id":         guestID,
				"payment_deadline": deadline,
				"amount_due_cents": amountDueCents,
			},
		},
		BookingID:       bookingID,
		GuestID:         guestID,
		PaymentDeadline: deadline,
		AmountDueCents:  amountDueCents,
	}
}

type PaymentExpiredEvent struct {
	BaseEvent
	BookingID int64 `json:"booking_id"`
	GuestID   int64 `json:"guest_id"`
	HostID    int64 `json:"host_id"`
}

func NewPaymentExpiredEvent(bookingID, guestID, hostID int64) *PaymentExpiredEvent {
	return &PaymentExpiredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentExpired,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"booking_id": bookingID,
				"guest_id":   guestID,
				"host_id":    hostID,
			},
		},
		BookingID: bookingID,
		GuestID:   guestID,
		HostID:    hostID,
	}
}

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID        int64  `json:"payment_id"`
	BookingID        int64  `json:"booking_id"`
	GuestID          int64  `json:"guest_id"`
	PaymentType      string `json:"payment_type"`
	ExternalChargeID string `json:"external_charge_id"`
	AmountCents      int64  `json:"amount_cents"`
}

func NewPaymentCompletedEvent(paymentID, bookingID, guestID int64, paymentType, externalChargeID string, amountCents int64) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":         paymentID,
				"booking_id":         bookingID,
				"guest_id":           guestID,
				"payment_type":       paymentType,
				"external_charge_id": externalChargeID,
				"amount_cents":       amountCents,
			},
		},
		PaymentID:        paymentID,
		BookingID:        bookingID,
		GuestID:          guestID,
		PaymentType:      paymentType,
		ExternalChargeID: externalChargeID,
		AmountCents:      amountCents,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	BookingID     int64  `json:"booking_id"`
	GuestID       int64  `json:"guest_id"`
	PaymentType   string `json:"payment_type"`
	AmountCents   int64  `json:"amount_cents"`
	FailureReason string `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID, bookingID, guestID int64, paymentType string, amountCents int64, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"booking_id":     bookingID,
				"guest_id":       guestID,
				"payment_type":   paymentType,
				"amount_cents":   amountCents,
				"failure_reason": failureReason,
			},
		},
		PaymentID:     paymentID,
		BookingID:     bookingID,
		GuestID:       guestID,
		PaymentType:   paymentType,
		AmountCents:   amountCents,
		FailureReason: failureReason,
	}
}
