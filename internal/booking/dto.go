package booking

import (
	"time"

	errors "github.com/frahmantamala/stay-booking/internal"
	"github.com/frahmantamala/stay-booking/internal/core/common/validation"
)

type CreateBookingDTO struct {
	ListingID          int64     `json:"listing_id"`
	ListingCreatedAt   time.Time `json:"listing_created_at"`
	HostID             int64     `json:"host_id"`
	CheckIn            time.Time `json:"check_in"`
	CheckOut           time.Time `json:"check_out"`
	Guests             int       `json:"guests"`
	PricePerNightCents int64     `json:"price_per_night_cents"`
	ServiceFeeCents    int64     `json:"service_fee_cents"`
	CleaningFeeCents   int64     `json:"cleaning_fee_cents"`
}

func (d *CreateBookingDTO) Validate(maxNights, maxGuests int) error {
	validator := validation.NewValidator()
	validator.Field("listing_id", d.ListingID).Required()
	validator.Field("host_id", d.HostID).Required()
	validator.Field("guests", d.Guests).Required().MinInt(1, errors.ErrCodeInvalidGuests).MaxInt(int64(maxGuests), errors.ErrCodeInvalidGuests)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if appErr := validation.ValidateStayRange(d.CheckIn, d.CheckOut); appErr != nil {
		return appErr
	}
	if nights := int(d.CheckOut.Sub(d.CheckIn).Hours() / 24); nights > maxNights {
		return errors.NewValidationFieldError("check_out", "stay exceeds the maximum bookable length", errors.ErrCodeInvalidDateRange)
	}
	if appErr := validation.ValidateNightlyPrice(d.PricePerNightCents); appErr != nil {
		return appErr
	}
	if d.ServiceFeeCents < 0 || d.CleaningFeeCents < 0 {
		return errors.NewValidationError("fees cannot be negative", errors.ErrCodeInvalidAmount)
	}
	return nil
}

const (
	ResponseAccept = "accept"
	ResponseReject = "reject"
)

type RespondToBookingDTO struct {
	Response string `json:"response"`
}

func (d *RespondToBookingDTO) Validate() error {
	if d.Response != ResponseAccept && d.Response != ResponseReject {
		return errors.NewValidationFieldError("response", "response must be accept or reject", errors.ErrCodeValidationFailed)
	}
	return nil
}

type CancelBookingDTO struct {
	Reason string `json:"reason"`
}

// Validate allows an empty reason; the service substitutes a default so the
// cancel path never fails on a bare request.
func (d *CancelBookingDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("reason", d.Reason).MaxLength(500)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type PaymentProofDTO struct {
	ProofURL string `json:"proof_url"`
}

func (d *PaymentProofDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("proof_url", d.ProofURL).Required().MaxLength(2048)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// AwaitingPaymentView is the operational read model: bookings that still owe
// money, with the remaining window precomputed for the dashboard.
type AwaitingPaymentView struct {
	BookingID       int64      `json:"booking_id"`
	GuestID         int64      `json:"guest_id"`
	HostID          int64      `json:"host_id"`
	ListingID       int64      `json:"listing_id"`
	Status          string     `json:"status"`
	AmountDueCents  int64      `json:"amount_due_cents"`
	PaymentDeadline *time.Time `json:"payment_deadline,omitempty"`
	HoursRemaining  float64    `json:"hours_remaining"`
}
