package postgres

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	"github.com/frahmantamala/stay-booking/internal/calendar"
	calendardm "github.com/frahmantamala/stay-booking/internal/core/datamodel/calendar"
)

type CalendarRepository struct {
	db *gorm.DB
}

func NewCalendarRepository(db *gorm.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

var _ calendar.Store = (*CalendarRepository)(nil)

func (r *CalendarRepository) Reserve(listingID int64, checkIn, checkOut time.Time, bookingID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return r.ReserveTx(tx, listingID, checkIn, checkOut, bookingID)
	})
}

// ReserveTx claims every day of the range inside the caller's transaction.
// Days with an existing available row are claimed with a conditional UPDATE,
// which takes a row lock: a concurrent claimer blocks until we commit, then
// sees zero rows affected. Days with no row yet are claimed with an INSERT
// that the unique index over (listing_id, day) arbitrates. Either way exactly
// one caller wins; the loser rolls back having mutated nothing.
func (r *CalendarRepository) ReserveTx(tx *gorm.DB, listingID int64, checkIn, checkOut time.Time, bookingID int64) error {
	days := calendar.DaysIn(checkIn, checkOut)
	if len(days) == 0 {
		return apperrors.NewValidationError("date range contains no nights", apperrors.ErrCodeInvalidDateRange)
	}

	for _, day := range days {
		res := tx.Model(&calendardm.Entry{}).
			Where("listing_id = ? AND day = ? AND status = ?", listingID, day, calendardm.StatusAvailable).
			Updates(map[string]interface{}{
				"status":     calendardm.StatusHeld,
				"booking_id": bookingID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			continue
		}

		entry := &calendardm.Entry{
			ListingID: listingID,
			Day:       day,
			Status:    calendardm.StatusHeld,
			BookingID: &bookingID,
		}
		if err := tx.Create(entry).Error; err != nil {
			if IsUniqueViolation(err) {
				return apperrors.ErrDateRangeUnavailable
			}
			return err
		}
	}

	return nil
}

func (r *CalendarRepository) Commit(bookingID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return r.CommitTx(tx, bookingID)
	})
}

func (r *CalendarRepository) CommitTx(tx *gorm.DB, bookingID int64) error {
	return tx.Model(&calendardm.Entry{}).
		Where("booking_id = ? AND status = ?", bookingID, calendardm.StatusHeld).
		Update("status", calendardm.StatusBooked).Error
}

func (r *CalendarRepository) Release(bookingID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return r.ReleaseTx(tx, bookingID)
	})
}

// ReleaseTx matches on booking_id only, so calling it for a booking that owns
// no days affects zero rows and reports no error.
func (r *CalendarRepository) ReleaseTx(tx *gorm.DB, bookingID int64) error {
	return tx.Model(&calendardm.Entry{}).
		Where("booking_id = ?", bookingID).
		Updates(map[string]interface{}{
			"status":     calendardm.StatusAvailable,
			"booking_id": nil,
		}).Error
}

func (r *CalendarRepository) DaysFor(bookingID int64) ([]*calendardm.Entry, error) {
	var entries []*calendardm.Entry
	err := r.db.Where("booking_id = ?", bookingID).Order("day ASC").Find(&entries).Error
	return entries, err
}

// IsUniqueViolation reports whether err is a uniqueness-constraint rejection,
// across the drivers we run against (pgx in production, sqlite in tests).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsTransient reports whether err is a serialization failure or deadlock,
// the two postgres outcomes where rerunning the transaction is the fix.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
