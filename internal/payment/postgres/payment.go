package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	bookingpg "github.com/frahmantamala/stay-booking/internal/booking/postgres"
	calendarpg "github.com/frahmantamala/stay-booking/internal/calendar/postgres"
	paymentdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/stay-booking/internal/payment"
)

type PaymentRepository struct {
	db           *gorm.DB
	calendar     *calendarpg.CalendarRepository
	maxTxRetries int
}

func NewPaymentRepository(db *gorm.DB, calendar *calendarpg.CalendarRepository, maxTxRetries int) *PaymentRepository {
	if maxTxRetries <= 0 {
		maxTxRetries = apperrors.DefaultMaxTxRetries
	}
	return &PaymentRepository{db: db, calendar: calendar, maxTxRetries: maxTxRetries}
}

// InsertOrGet is the race-free check-then-act: the unique index over
// (booking_id, payment_type, idempotency_key) arbitrates concurrent inserts,
// and the loser reads back the winner's row instead of creating a second one.
func (r *PaymentRepository) InsertOrGet(p *paymentdm.Payment) (*paymentdm.Payment, bool, error) {
	if err := r.db.Create(p).Error; err != nil {
		if !calendarpg.IsUniqueViolation(err) {
			return nil, false, err
		}
		existing, getErr := r.GetByKey(p.BookingID, p.PaymentType, p.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	return p, true, nil
}

func (r *PaymentRepository) GetByKey(bookingID int64, paymentType, idempotencyKey string) (*paymentdm.Payment, error) {
	var p paymentdm.Payment
	err := r.db.
		Where("booking_id = ? AND payment_type = ? AND idempotency_key = ?", bookingID, paymentType, idempotencyKey).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByID(id int64) (*paymentdm.Payment, error) {
	var p paymentdm.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ClaimRetry moves a failed attempt back to processing. The status guard
// picks one winner among concurrent retriers of the same key.
func (r *PaymentRepository) ClaimRetry(id int64) (bool, error) {
	res := r.db.Model(&paymentdm.Payment{}).
		Where("id = ? AND status = ?", id, paymentdm.StatusFailed).
		Updates(map[string]interface{}{
			"status":      paymentdm.StatusProcessing,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *PaymentRepository) MarkFailed(id int64, reason string, gatewayResponse json.RawMessage) error {
	updates := map[string]interface{}{
		"status":         paymentdm.StatusFailed,
		"failure_reason": reason,
	}
	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}
	return r.db.Model(&paymentdm.Payment{}).
		Where("id = ? AND status = ?", id, paymentdm.StatusProcessing).
		Updates(updates).Error
}

// Settle is the single settlement transaction: payment row completed
// with its external charge id, booking transitioned off its prior status,
// calendar committed. A reader can never observe a completed payment next to
// a stale booking because they change together or not at all. Serialization
// failures and deadlocks rerun the transaction a bounded number of times;
// by this point the provider has already charged, so giving up on a
// transient error would strand a real charge without a ledger entry.
func (r *PaymentRepository) Settle(s paymentpkg.Settlement) error {
	backoff := retry.WithMaxRetries(uint64(r.maxTxRetries), retry.NewConstant(50*time.Millisecond))
	return retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		err := r.settleOnce(s)
		if calendarpg.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *PaymentRepository) settleOnce(s paymentpkg.Settlement) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{
			"status":             paymentdm.StatusCompleted,
			"external_charge_id": s.ExternalChargeID,
			"paid_at":            now,
		}
		if s.GatewayResponse != nil {
			updates["gateway_response"] = s.GatewayResponse
		}
		res := tx.Model(&paymentdm.Payment{}).
			Where("id = ? AND status = ?", s.PaymentID, paymentdm.StatusProcessing).
			Updates(updates)
		if res.Error != nil {
			if calendarpg.IsUniqueViolation(res.Error) {
				// another payment row already owns this provider charge id
				return apperrors.ErrChargeIDConflict
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			// the row exists but left processing already; another path
			// settled or failed this attempt first
			return apperrors.ErrPaymentAlreadySettled
		}

		return bookingpg.MarkReservationPaidTx(tx, r.calendar, s.BookingID, s.FromStatus, s.ToStatus, s.CommitCalendar)
	})
}

// MarkUnsettled preserves a charge that succeeded at the provider but lost
// its settlement: the row moves to failed with the charge id recorded so a
// reconciliation pass can refund it.
func (r *PaymentRepository) MarkUnsettled(id int64, externalChargeID, reason string, gatewayResponse json.RawMessage) error {
	updates := map[string]interface{}{
		"status":             paymentdm.StatusFailed,
		"failure_reason":     reason,
		"external_charge_id": externalChargeID,
	}
	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}
	return r.db.Model(&paymentdm.Payment{}).
		Where("id = ? AND status = ?", id, paymentdm.StatusProcessing).
		Updates(updates).Error
}

func (r *PaymentRepository) ListByBooking(bookingID int64) ([]*paymentdm.Payment, error) {
	var payments []*paymentdm.Payment
	err := r.db.Where("booking_id = ?", bookingID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) HasCompleted(bookingID int64, paymentType string) (bool, error) {
	var count int64
	err := r.db.Model(&paymentdm.Payment{}).
		Where("booking_id = ? AND payment_type = ? AND status = ?", bookingID, paymentType, paymentdm.StatusCompleted).
		Count(&count).Error
	return count > 0, err
}
