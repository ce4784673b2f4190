package postgres

import (
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	calendarpg "github.com/frahmantamala/stay-booking/internal/calendar/postgres"
	bookingdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/booking"
)

type BookingRepository struct {
	db       *gorm.DB
	calendar *calendarpg.CalendarRepository
}

func NewBookingRepository(db *gorm.DB, calendar *calendarpg.CalendarRepository) *BookingRepository {
	return &BookingRepository{db: db, calendar: calendar}
}

// CreateWithHold persists the booking and claims its calendar days in one
// transaction, so losing the calendar race leaves no booking row behind.
func (r *BookingRepository) CreateWithHold(b *bookingdm.Booking) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(b).Error; err != nil {
			return err
		}
		return r.calendar.ReserveTx(tx, b.ListingID, b.CheckIn, b.CheckOut, b.ID)
	})
}

func (r *BookingRepository) GetByID(id int64) (*bookingdm.Booking, error) {
	var b bookingdm.Booking
	if err := r.db.First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) ListByUser(userID int64, limit, offset int) ([]*bookingdm.Booking, error) {
	var bookings []*bookingdm.Booking
	err := r.db.
		Where("guest_id = ? OR host_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&bookings).Error
	return bookings, err
}

// Confirm is the host-accept transition: pending_confirmation -> confirmed
// with the payment deadline set in the same conditional update.
func (r *BookingRepository) Confirm(id int64, deadline time.Time) (bool, error) {
	res := r.db.Model(&bookingdm.Booking{}).
		Where("id = ? AND status = ?", id, bookingdm.StatusPendingConfirmation).
		Updates(map[string]interface{}{
			"status":           bookingdm.StatusConfirmed,
			"payment_deadline": deadline,
		})
	return res.RowsAffected > 0, res.Error
}

// Transition performs a conditional status update. Zero rows affected means
// the booking was no longer in the expected state; the caller decides what
// that means for it.
func (r *BookingRepository) Transition(id int64, from, to bookingdm.Status, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.Model(&bookingdm.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

// TransitionWithRelease runs the status change and the calendar release in
// one transaction, so a crash mid-cancellation cannot leave booked days
// owned by a cancelled booking.
func (r *BookingRepository) TransitionWithRelease(id int64, from, to bookingdm.Status, reason *string) (bool, error) {
	var moved bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		values := map[string]interface{}{"status": to}
		if reason != nil {
			values["cancel_reason"] = *reason
		}
		res := tx.Model(&bookingdm.Booking{}).
			Where("id = ? AND status = ?", id, from).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		moved = true
		return r.calendar.ReleaseTx(tx, id)
	})
	return moved, err
}

func (r *BookingRepository) SetPaymentProof(id int64, proofURL string, verifierID int64, at time.Time) (bool, error) {
	res := r.db.Model(&bookingdm.Booking{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payment_proof_url":         proofURL,
			"payment_proof_verified_by": verifierID,
			"payment_proof_verified_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// ListAwaitingPayment feeds the operational status view. Confirmed bookings
// already past their deadline are excluded: the scheduler is about to cancel
// them and they are reported by the expiry pass instead.
func (r *BookingRepository) ListAwaitingPayment(now time.Time) ([]*bookingdm.Booking, error) {
	var bookings []*bookingdm.Booking
	err := r.db.
		Where("status = ? OR (status = ? AND (payment_deadline IS NULL OR payment_deadline > ?))",
			bookingdm.StatusReservationPaid, bookingdm.StatusConfirmed, now).
		Order("payment_deadline ASC").
		Find(&bookings).Error
	return bookings, err
}

// ListPaymentExpired returns confirmed bookings whose deadline is behind now.
// The scheduler re-checks state with a conditional update before cancelling,
// so this read being stale is harmless.
func (r *BookingRepository) ListPaymentExpired(now time.Time, limit int) ([]*bookingdm.Booking, error) {
	var bookings []*bookingdm.Booking
	err := r.db.
		Where("status = ? AND payment_deadline < ?", bookingdm.StatusConfirmed, now).
		Order("payment_deadline ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

// ListNeedingReminder returns confirmed bookings inside the warning window
// that have not been reminded yet.
func (r *BookingRepository) ListNeedingReminder(now time.Time, window time.Duration, limit int) ([]*bookingdm.Booking, error) {
	var bookings []*bookingdm.Booking
	err := r.db.
		Where("status = ? AND reminder_sent_at IS NULL AND payment_deadline >= ? AND payment_deadline <= ?",
			bookingdm.StatusConfirmed, now, now.Add(window)).
		Order("payment_deadline ASC").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

// MarkReminderSent flips the dedup flag. The IS NULL guard makes repeated
// scheduler passes send at most one reminder per booking.
func (r *BookingRepository) MarkReminderSent(id int64, at time.Time) (bool, error) {
	res := r.db.Model(&bookingdm.Booking{}).
		Where("id = ? AND status = ? AND reminder_sent_at IS NULL", id, bookingdm.StatusConfirmed).
		Update("reminder_sent_at", at)
	return res.RowsAffected > 0, res.Error
}

// MarkReservationPaidTx is used by the payment engine inside its settlement
// transaction: confirmed -> reservation_paid plus the calendar commit.
func MarkReservationPaidTx(tx *gorm.DB, cal *calendarpg.CalendarRepository, bookingID int64, from, to bookingdm.Status, commitCalendar bool) error {
	res := tx.Model(&bookingdm.Booking{}).
		Where("id = ? AND status = ?", bookingID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrInvalidTransition
	}
	if commitCalendar {
		return cal.CommitTx(tx, bookingID)
	}
	return nil
}
