package booking

import (
	"time"

	bookingdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/booking"
)

// Booking is the aggregate the engine revolves around: one guest's stay
// request on one listing, with the money split and the lifecycle status.
type Booking struct {
	ID               int64     `json:"id"`
	ListingID        int64     `json:"listing_id"`
	ListingCreatedAt time.Time `json:"listing_created_at"`
	GuestID          int64     `json:"guest_id"`
	HostID           int64     `json:"host_id"`

	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
	Nights   int       `json:"nights"`
	Guests   int       `json:"guests"`

	PricePerNightCents     int64 `json:"price_per_night_cents"`
	TotalPriceCents        int64 `json:"total_price_cents"`
	ReservationAmountCents int64 `json:"reservation_amount_cents"`
	CheckinAmountCents     int64 `json:"checkin_amount_cents"`
	ServiceFeeCents        int64 `json:"service_fee_cents"`
	CleaningFeeCents       int64 `json:"cleaning_fee_cents"`

	Status          bookingdm.Status `json:"status"`
	PaymentDeadline *time.Time       `json:"payment_deadline,omitempty"`
	ReminderSentAt  *time.Time       `json:"reminder_sent_at,omitempty"`

	PaymentProofURL        *string    `json:"payment_proof_url,omitempty"`
	PaymentProofVerifiedBy *int64     `json:"payment_proof_verified_by,omitempty"`
	PaymentProofVerifiedAt *time.Time `json:"payment_proof_verified_at,omitempty"`

	CancelReason *string   `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SplitAmounts divides a total into the 50% reservation share and the 50%
// due at check-in. The reservation share takes the odd cent so the two always
// sum back to the total.
func SplitAmounts(totalCents int64) (reservationCents, checkinCents int64) {
	reservationCents = (totalCents + 1) / 2
	checkinCents = totalCents - reservationCents
	return reservationCents, checkinCents
}

func (b *Booking) IsGuest(userID int64) bool {
	return b.GuestID == userID
}

func (b *Booking) IsHost(userID int64) bool {
	return b.HostID == userID
}

func (b *Booking) IsParty(userID int64) bool {
	return b.IsGuest(userID) || b.IsHost(userID)
}

// DeadlinePassed reports whether the reservation payment window has lapsed.
// A booking without a deadline has nothing to miss.
func (b *Booking) DeadlinePassed(now time.Time) bool {
	return b.PaymentDeadline != nil && now.After(*b.PaymentDeadline)
}

// HoursToDeadline is the remaining payment window in hours, negative once
// the deadline has passed. Used by the operational status view.
func (b *Booking) HoursToDeadline(now time.Time) float64 {
	if b.PaymentDeadline == nil {
		return 0
	}
	return b.PaymentDeadline.Sub(now).Hours()
}

func ToDataModel(b *Booking) *bookingdm.Booking {
	return &bookingdm.Booking{
		ID:                     b.ID,
		ListingID:              b.ListingID,
		ListingCreatedAt:       b.ListingCreatedAt,
		GuestID:                b.GuestID,
		HostID:                 b.HostID,
		CheckIn:                b.CheckIn,
		CheckOut:               b.CheckOut,
		Nights:                 b.Nights,
		Guests:                 b.Guests,
		PricePerNightCents:     b.PricePerNightCents,
		TotalPriceCents:        b.TotalPriceCents,
		ReservationAmountCents: b.ReservationAmountCents,
		CheckinAmountCents:     b.CheckinAmountCents,
		ServiceFeeCents:        b.ServiceFeeCents,
		CleaningFeeCents:       b.CleaningFeeCents,
		Status:                 b.Status,
		PaymentDeadline:        b.PaymentDeadline,
		ReminderSentAt:         b.ReminderSentAt,
		PaymentProofURL:        b.PaymentProofURL,
		PaymentProofVerifiedBy: b.PaymentProofVerifiedBy,
		PaymentProofVerifiedAt: b.PaymentProofVerifiedAt,
		CancelReason:           b.CancelReason,
		CreatedAt:              b.CreatedAt,
		UpdatedAt:              b.UpdatedAt,
	}
}

func FromDataModel(b *bookingdm.Booking) *Booking {
	return &Booking{
		ID:                     b.ID,
		ListingID:              b.ListingID,
		ListingCreatedAt:       b.ListingCreatedAt,
		GuestID:                b.GuestID,
		HostID:                 b.HostID,
		CheckIn:                b.CheckIn,
		CheckOut:               b.CheckOut,
		Nights:                 b.Nights,
		Guests:                 b.Guests,
		PricePerNightCents:     b.PricePerNightCents,
		TotalPriceCents:        b.TotalPriceCents,
		ReservationAmountCents: b.ReservationAmountCents,
		CheckinAmountCents:     b.CheckinAmountCents,
		ServiceFeeCents:        b.ServiceFeeCents,
		CleaningFeeCents:       b.CleaningFeeCents,
		Status:                 b.Status,
		PaymentDeadline:        b.PaymentDeadline,
		ReminderSentAt:         b.ReminderSentAt,
		PaymentProofURL:        b.PaymentProofURL,
		PaymentProofVerifiedBy: b.PaymentProofVerifiedBy,
		PaymentProofVerifiedAt: b.PaymentProofVerifiedAt,
		CancelReason:           b.CancelReason,
		CreatedAt:              b.CreatedAt,
		UpdatedAt:              b.UpdatedAt,
	}
}

func FromDataModelSlice(bookings []*bookingdm.Booking) []*Booking {
	result := make([]*Booking, len(bookings))
	for i, b := range bookings {
		result[i] = FromDataModel(b)
	}
	return result
}
