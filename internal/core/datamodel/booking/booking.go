package booking

import "time"

// Status is the closed set of booking lifecycle states. Transitions outside
// Transitions are rejected, never applied silently.
type Status string

const (
	StatusPendingConfirmation     Status = "pending_confirmation"
	StatusConfirmed               Status = "confirmed"
	StatusReservationPaid         Status = "reservation_paid"
	StatusCheckedIn               Status = "checked_in"
	StatusCompleted               Status = "completed"
	StatusCancelledByGuest        Status = "cancelled_by_guest"
	StatusCancelledByHost         Status = "cancelled_by_host"
	StatusCancelledNoPayment      Status = "cancelled_no_payment"
	StatusCancelledPaymentExpired Status = "cancelled_payment_expired"
	StatusRefunded                Status = "refunded"
)

// Transitions is the booking state machine. Terminal states have no entry:
// they are sinks.
var Transitions = map[Status][]Status{
	StatusPendingConfirmation: {
		StatusConfirmed,
		StatusCancelledByGuest,
		StatusCancelledByHost,
	},
	StatusConfirmed: {
		StatusReservationPaid,
		StatusCancelledPaymentExpired,
		StatusCancelledNoPayment,
		StatusCancelledByGuest,
		StatusCancelledByHost,
	},
	StatusReservationPaid: {
		StatusCheckedIn,
		StatusCancelledByGuest,
		StatusCancelledByHost,
		StatusRefunded,
	},
	StatusCheckedIn: {
		StatusCompleted,
		StatusCancelledByGuest,
		StatusCancelledByHost,
		StatusRefunded,
	},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range Transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(Transitions[s]) == 0
}

func (s Status) IsCancelled() bool {
	switch s {
	case StatusCancelledByGuest, StatusCancelledByHost,
		StatusCancelledNoPayment, StatusCancelledPaymentExpired:
		return true
	}
	return false
}

type Booking struct {
	ID               int64     `gorm:"primaryKey"`
	ListingID        int64     `gorm:"column:listing_id;not null;index:idx_bookings_listing"`
	ListingCreatedAt time.Time `gorm:"column:listing_created_at;not null"`
	GuestID          int64     `gorm:"column:guest_id;not null;index"`
	HostID           int64     `gorm:"column:host_id;not null;index"`

	CheckIn  time.Time `gorm:"column:check_in;type:date;not null"`
	CheckOut time.Time `gorm:"column:check_out;type:date;not null"`
	Nights   int       `gorm:"column:nights;not null"`
	Guests   int       `gorm:"column:guests;not null"`

	PricePerNightCents     int64 `gorm:"column:price_per_night_cents;not null"`
	TotalPriceCents        int64 `gorm:"column:total_price_cents;not null"`
	ReservationAmountCents int64 `gorm:"column:reservation_amount_cents;not null"`
	CheckinAmountCents     int64 `gorm:"column:checkin_amount_cents;not null"`
	ServiceFeeCents        int64 `gorm:"column:service_fee_cents;default:0"`
	CleaningFeeCents       int64 `gorm:"column:cleaning_fee_cents;default:0"`

	Status          Status     `gorm:"column:status;default:pending_confirmation;index"`
	PaymentDeadline *time.Time `gorm:"column:payment_deadline;index"`
	ReminderSentAt  *time.Time `gorm:"column:reminder_sent_at"`

	PaymentProofURL        *string    `gorm:"column:payment_proof_url"`
	PaymentProofVerifiedBy *int64     `gorm:"column:payment_proof_verified_by"`
	PaymentProofVerifiedAt *time.Time `gorm:"column:payment_proof_verified_at"`

	CancelReason *string   `gorm:"column:cancel_reason"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Booking) TableName() string {
	return "bookings"
}
