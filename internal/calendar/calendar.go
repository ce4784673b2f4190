// Package calendar owns per-listing, per-day availability. It is the unit of
// mutual exclusion for booking creation: a day can be held by at most one
// live booking, enforced by the database rather than any in-process lock so
// the guarantee survives multiple service instances.
package calendar

import (
	"time"

	calendardm "github.com/frahmantamala/stay-booking/internal/core/datamodel/calendar"
)

type Store interface {
	// Reserve claims every day in [checkIn, checkOut) for bookingID,
	// available -> held. All or nothing: if any day is taken the whole call
	// fails with ErrDateRangeUnavailable and no day is mutated.
	Reserve(listingID int64, checkIn, checkOut time.Time, bookingID int64) error

	// Commit flips the booking's days held -> booked.
	Commit(bookingID int64) error

	// Release returns the booking's days to available and clears the owner.
	// Idempotent: releasing an already released range is a no-op.
	Release(bookingID int64) error

	DaysFor(bookingID int64) ([]*calendardm.Entry, error)
}

// DaysIn enumerates the stay days of [checkIn, checkOut), one per night.
func DaysIn(checkIn, checkOut time.Time) []time.Time {
	var days []time.Time
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
