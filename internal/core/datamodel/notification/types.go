package notification

import (
	"errors"
)

// Template names the notification gateway knows how to render.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingCancelled = "booking_cancelled"
	TemplatePaymentReminder  = "payment_reminder"
	TemplatePaymentExpired   = "payment_expired"
	TemplatePaymentReceipt   = "payment_receipt"
	TemplatePaymentFailed    = "payment_failed"
)

type Message struct {
	UserID   int64                  `json:"user_id"`
	Template string                 `json:"template"`
	Data     map[string]interface{} `json:"data"`
}

func (m *Message) Validate() error {
	if m.UserID <= 0 {
		return errors.New("user_id is required")
	}
	if m.Template == "" {
		return errors.New("template is required")
	}
	return nil
}
