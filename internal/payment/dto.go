package payment

import (
	errors "github.com/frahmantamala/stay-booking/internal"
	"github.com/frahmantamala/stay-booking/internal/core/common/validation"
	paymentdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/payment"
)

// ProcessPaymentDTO is the capture request. The idempotency key is chosen by
// the caller; resubmitting with the same key is always safe.
type ProcessPaymentDTO struct {
	BookingID      int64  `json:"booking_id"`
	PaymentType    string `json:"payment_type"`
	ChargeToken    string `json:"charge_token"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (d *ProcessPaymentDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("booking_id", d.BookingID).Required()
	validator.Field("payment_type", d.PaymentType).Required()
	validator.Field("charge_token", d.ChargeToken).Required().MaxLength(256)
	validator.Field("idempotency_key", d.IdempotencyKey).Required().MinLength(8).MaxLength(128)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	switch d.PaymentType {
	case paymentdm.TypeReservation, paymentdm.TypeCheckin, paymentdm.TypeFull:
		return nil
	default:
		// refunds are recorded by the booking aggregate, never charged here
		return errors.NewValidationFieldError("payment_type", "payment_type must be reservation, checkin or full", errors.ErrCodeValidationFailed)
	}
}

// Result is what every caller converges on: N concurrent submissions with one
// key all report the same completed payment and charge id.
type Result struct {
	PaymentID        int64  `json:"payment_id"`
	BookingID        int64  `json:"booking_id"`
	PaymentType      string `json:"payment_type"`
	Status           string `json:"status"`
	AmountCents      int64  `json:"amount_cents"`
	ExternalChargeID string `json:"external_charge_id,omitempty"`
	AlreadyProcessed bool   `json:"already_processed"`
}

func resultFrom(p *paymentdm.Payment, alreadyProcessed bool) *Result {
	r := &Result{
		PaymentID:        p.ID,
		BookingID:        p.BookingID,
		PaymentType:      p.PaymentType,
		Status:           p.Status,
		AmountCents:      p.AmountCents,
		AlreadyProcessed: alreadyProcessed,
	}
	if p.ExternalChargeID != nil {
		r.ExternalChargeID = *p.ExternalChargeID
	}
	return r
}

// ProviderCallbackDTO is the asynchronous settlement notice from the charge
// provider, used to resolve payments stuck in processing after a timeout.
type ProviderCallbackDTO struct {
	PaymentID        int64  `json:"payment_id"`
	ExternalChargeID string `json:"external_charge_id"`
	Outcome          string `json:"outcome"`
	FailureReason    string `json:"failure_reason,omitempty"`
}

func (d *ProviderCallbackDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("payment_id", d.PaymentID).Required()
	validator.Field("outcome", d.Outcome).Required()
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
