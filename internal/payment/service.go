package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/stay-booking/internal"
	bookingdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/booking"
	paymentdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/payment"
	"github.com/frahmantamala/stay-booking/internal/core/events"
	"github.com/frahmantamala/stay-booking/internal/paymentprovider"
)

// Repository is the payments table plus the settlement transaction. The two
// uniqueness constraints it enforces, (booking_id, payment_type,
// idempotency_key) and the global external_charge_id, turn concurrent
// retries into exactly one monetary effect.
type Repository interface {
	// InsertOrGet atomically inserts p, or returns the row that already holds
	// its (booking_id, payment_type, idempotency_key). The bool reports
	// whether p was inserted, i.e. whether the caller won the key.
	InsertOrGet(p *paymentdm.Payment) (*paymentdm.Payment, bool, error)
	GetByKey(bookingID int64, paymentType, idempotencyKey string) (*paymentdm.Payment, error)
	GetByID(id int64) (*paymentdm.Payment, error)
	// ClaimRetry conditionally moves a failed row back to processing; the
	// single winner of that update re-attempts the charge.
	ClaimRetry(id int64) (bool, error)
	MarkFailed(id int64, reason string, gatewayResponse json.RawMessage) error
	// Settle completes the payment row, transitions the booking, and commits
	// the calendar in ONE transaction.
	Settle(s Settlement) error
	// MarkUnsettled preserves a charge that succeeded at the provider but
	// could not be settled locally: the row moves to failed with the charge
	// id recorded so reconciliation can refund it.
	MarkUnsettled(id int64, externalChargeID, reason string, gatewayResponse json.RawMessage) error
	ListByBooking(bookingID int64) ([]*paymentdm.Payment, error)
	HasCompleted(bookingID int64, paymentType string) (bool, error)
}

// Settlement carries everything the one-transaction completion needs.
type Settlement struct {
	PaymentID        int64
	BookingID        int64
	ExternalChargeID string
	GatewayResponse  json.RawMessage
	FromStatus       bookingdm.Status
	ToStatus         bookingdm.Status
	CommitCalendar   bool
}

type BookingReader interface {
	GetByID(id int64) (*bookingdm.Booking, error)
}

type Provider interface {
	Charge(ctx context.Context, token string, amountCents int64, metadata map[string]string) (*paymentprovider.ChargeResult, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Service struct {
	repo     Repository
	bookings BookingReader
	provider Provider
	bus      EventPublisher
	logger   *slog.Logger

	chargeTimeout time.Duration
	// how long a losing concurrent caller waits for the winner's outcome
	// before giving up with ErrPaymentInProgress
	awaitBudget  time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(repo Repository, bookings BookingReader, provider Provider, bus EventPublisher, chargeTimeout time.Duration, logger *slog.Logger) *Service {
	if chargeTimeout <= 0 {
		chargeTimeout = errors.DefaultChargeTimeout
	}
	return &Service{
		repo:          repo,
		bookings:      bookings,
		provider:      provider,
		bus:           bus,
		logger:        logger,
		chargeTimeout: chargeTimeout,
		awaitBudget:   chargeTimeout + 5*time.Second,
		pollInterval:  100 * time.Millisecond,
		now:           time.Now,
	}
}

// ProcessPayment is the idempotent capture path. Concurrent submissions with
// one idempotency key converge on a single provider charge: the insert-or-get
// on the key picks one winner, losers wait for and return the winner's result.
func (s *Service) ProcessPayment(guestID int64, dto *ProcessPaymentDTO) (*Result, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("payment request validation failed", "error", err, "booking_id", dto.BookingID)
		return nil, err
	}

	booking, err := s.bookings.GetByID(dto.BookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	if booking.GuestID != guestID {
		s.logger.Warn("payment denied: caller is not the guest", "booking_id", dto.BookingID, "user_id", guestID)
		return nil, errors.ErrUnauthorizedAccess
	}

	amount, fromStatus, toStatus, commitCalendar, err := s.eligibility(booking, dto.PaymentType, true)
	if err != nil {
		// A replay of a key that already settled finds the booking moved on
		// and fails the status gate. The recorded attempt, not the state
		// error, is the answer for that key.
		if row, getErr := s.repo.GetByKey(dto.BookingID, dto.PaymentType, dto.IdempotencyKey); getErr == nil {
			switch row.Status {
			case paymentdm.StatusCompleted:
				s.logger.Info("payment already processed", "payment_id", row.ID, "booking_id", row.BookingID)
				return resultFrom(row, true), nil
			case paymentdm.StatusProcessing:
				return s.awaitOutcome(dto.BookingID, dto.PaymentType, dto.IdempotencyKey)
			}
		}
		return nil, err
	}

	attempt := &paymentdm.Payment{
		BookingID:      dto.BookingID,
		PaymentType:    dto.PaymentType,
		IdempotencyKey: dto.IdempotencyKey,
		AmountCents:    amount,
		Status:         paymentdm.StatusProcessing,
	}

	row, inserted, err := s.repo.InsertOrGet(attempt)
	if err != nil {
		s.logger.Error("failed to insert payment attempt", "error", err, "booking_id", dto.BookingID)
		return nil, errors.NewInternalError("failed to record payment attempt", err)
	}

	if !inserted {
		switch row.Status {
		case paymentdm.StatusCompleted:
			s.logger.Info("payment already processed", "payment_id", row.ID, "booking_id", row.BookingID)
			return resultFrom(row, true), nil
		case paymentdm.StatusProcessing:
			// another caller holds this key right now; observe its outcome
			return s.awaitOutcome(dto.BookingID, dto.PaymentType, dto.IdempotencyKey)
		case paymentdm.StatusFailed:
			won, err := s.repo.ClaimRetry(row.ID)
			if err != nil {
				return nil, errors.NewInternalError("failed to claim payment retry", err)
			}
			if !won {
				return s.awaitOutcome(dto.BookingID, dto.PaymentType, dto.IdempotencyKey)
			}
		default:
			return nil, errors.ErrPaymentInProgress
		}
	}

	return s.charge(booking, row, dto, amount, fromStatus, toStatus, commitCalendar)
}

// eligibility maps the payment type onto the state machine: which prior
// status it requires, what it costs, and where it moves the booking. The
// deadline is enforced only for fresh captures; the callback path skips it
// because the charge already happened, and the conditional transition inside
// Settle decides any race with the expiry pass.
func (s *Service) eligibility(b *bookingdm.Booking, paymentType string, enforceDeadline bool) (amount int64, from, to bookingdm.Status, commitCalendar bool, err error) {
	switch paymentType {
	case paymentdm.TypeReservation, paymentdm.TypeFull:
		if b.Status != bookingdm.StatusConfirmed {
			return 0, "", "", false, errors.ErrInvalidTransition
		}
		if enforceDeadline && b.PaymentDeadline != nil && s.now().After(*b.PaymentDeadline) {
			return 0, "", "", false, errors.ErrPaymentDeadlinePassed
		}
		amount = b.ReservationAmountCents
		if paymentType == paymentdm.TypeFull {
			amount = b.TotalPriceCents
		}
		return amount, bookingdm.StatusConfirmed, bookingdm.StatusReservationPaid, true, nil
	case paymentdm.TypeCheckin:
		if b.Status != bookingdm.StatusReservationPaid {
			return 0, "", "", false, errors.ErrInvalidTransition
		}
		return b.CheckinAmountCents, bookingdm.StatusReservationPaid, bookingdm.StatusCheckedIn, false, nil
	}
	return 0, "", "", false, errors.NewValidationError("unsupported payment type", errors.ErrCodeValidationFailed)
}

// charge is the winning caller's path: exactly one provider call, then the
// single settlement transaction.
func (s *Service) charge(booking *bookingdm.Booking, row *paymentdm.Payment, dto *ProcessPaymentDTO, amount int64, fromStatus, toStatus bookingdm.Status, commitCalendar bool) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.chargeTimeout)
	defer cancel()

	chargeRes, err := s.provider.Charge(ctx, dto.ChargeToken, amount, map[string]string{
		"booking_id":      formatID(dto.BookingID),
		"payment_id":      formatID(row.ID),
		"payment_type":    dto.PaymentType,
		"idempotency_key": dto.IdempotencyKey,
	})
	if err != nil {
		// outcome unknown: the row stays processing so a retry with the same
		// key replays the idempotency check instead of charging again
		s.logger.Error("charge outcome unknown", "error", err, "payment_id", row.ID, "booking_id", dto.BookingID)
		return nil, errors.ErrPaymentOutcomeUnknown.WithCause(err)
	}

	if chargeRes.Outcome != paymentprovider.OutcomeSucceeded {
		reason := "declined by provider"
		if markErr := s.repo.MarkFailed(row.ID, reason, chargeRes.Raw); markErr != nil {
			s.logger.Error("failed to mark payment failed", "error", markErr, "payment_id", row.ID)
		}
		s.logger.Warn("payment declined", "payment_id", row.ID, "booking_id", dto.BookingID, "charge_id", chargeRes.ID)
		s.publish(events.NewPaymentFailedEvent(row.ID, dto.BookingID, booking.GuestID, dto.PaymentType, amount, reason))
		return nil, errors.ErrPaymentDeclined
	}

	settlement := Settlement{
		PaymentID:        row.ID,
		BookingID:        dto.BookingID,
		ExternalChargeID: chargeRes.ID,
		GatewayResponse:  chargeRes.Raw,
		FromStatus:       fromStatus,
		ToStatus:         toStatus,
		CommitCalendar:   commitCalendar,
	}
	if err := s.repo.Settle(settlement); err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			if appErr.Code == errors.ErrCodeInvalidTransition {
				// the booking expired or was cancelled between the provider
				// charge succeeding and the settlement transaction
				if recErr := s.recordStrandedCharge(row, booking, chargeRes.ID, chargeRes.Raw); recErr != nil {
					return nil, recErr
				}
				return nil, appErr
			}
			s.logger.Error("settlement rejected", "error", appErr, "payment_id", row.ID, "charge_id", chargeRes.ID)
			return nil, appErr
		}
		s.logger.Error("settlement failed", "error", err, "payment_id", row.ID, "charge_id", chargeRes.ID)
		return nil, errors.NewInternalError("failed to settle payment", err)
	}

	settled, err := s.repo.GetByID(row.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to reload payment", err)
	}

	s.logger.Info("payment completed",
		"payment_id", settled.ID,
		"booking_id", dto.BookingID,
		"payment_type", dto.PaymentType,
		"amount_cents", amount,
		"charge_id", chargeRes.ID)

	s.publish(events.NewPaymentCompletedEvent(settled.ID, dto.BookingID, booking.GuestID, dto.PaymentType, chargeRes.ID, amount))
	return resultFrom(settled, false), nil
}

// awaitOutcome polls the winner's row until it leaves processing. Losers of
// the idempotency race never talk to the provider.
func (s *Service) awaitOutcome(bookingID int64, paymentType, idempotencyKey string) (*Result, error) {
	deadline := s.now().Add(s.awaitBudget)
	for {
		row, err := s.repo.GetByKey(bookingID, paymentType, idempotencyKey)
		if err != nil {
			return nil, errors.NewInternalError("failed to read payment attempt", err)
		}
		switch row.Status {
		case paymentdm.StatusCompleted:
			return resultFrom(row, true), nil
		case paymentdm.StatusFailed:
			return nil, errors.ErrPaymentDeclined
		}
		if s.now().After(deadline) {
			return nil, errors.ErrPaymentInProgress
		}
		time.Sleep(s.pollInterval)
	}
}

// HandleProviderCallback resolves a payment the provider settled
// asynchronously, the reconciliation path for charges whose synchronous
// outcome was unknown.
func (s *Service) HandleProviderCallback(dto *ProviderCallbackDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	row, err := s.repo.GetByID(dto.PaymentID)
	if err != nil {
		return errors.ErrPaymentNotFound
	}
	if row.Status != paymentdm.StatusProcessing {
		// already resolved through the synchronous path; nothing to do
		s.logger.Info("callback for settled payment ignored", "payment_id", row.ID, "status", row.Status)
		return nil
	}

	booking, err := s.bookings.GetByID(row.BookingID)
	if err != nil {
		return errors.ErrBookingNotFound
	}

	if dto.Outcome != string(paymentprovider.OutcomeSucceeded) {
		reason := dto.FailureReason
		if reason == "" {
			reason = "provider reported failure"
		}
		if err := s.repo.MarkFailed(row.ID, reason, nil); err != nil {
			return errors.NewInternalError("failed to mark payment failed", err)
		}
		s.publish(events.NewPaymentFailedEvent(row.ID, row.BookingID, booking.GuestID, row.PaymentType, row.AmountCents, reason))
		return nil
	}

	_, fromStatus, toStatus, commitCalendar, err := s.eligibility(booking, row.PaymentType, false)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeInvalidTransition {
			// the booking is no longer payable but the money moved; keep the
			// charge on the row so it can be refunded
			return s.recordStrandedCharge(row, booking, dto.ExternalChargeID, nil)
		}
		return err
	}
	if err := s.repo.Settle(Settlement{
		PaymentID:        row.ID,
		BookingID:        row.BookingID,
		ExternalChargeID: dto.ExternalChargeID,
		FromStatus:       fromStatus,
		ToStatus:         toStatus,
		CommitCalendar:   commitCalendar,
	}); err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			switch appErr.Code {
			case errors.ErrCodeInvalidTransition:
				return s.recordStrandedCharge(row, booking, dto.ExternalChargeID, nil)
			case errors.ErrCodeAlreadySettled:
				// the synchronous path won the settlement while this callback
				// was in flight
				s.logger.Info("callback lost the settlement race", "payment_id", row.ID)
				return nil
			}
			return appErr
		}
		return errors.NewInternalError("failed to settle payment from callback", err)
	}

	s.logger.Info("payment settled via provider callback", "payment_id", row.ID, "charge_id", dto.ExternalChargeID)
	s.publish(events.NewPaymentCompletedEvent(row.ID, row.BookingID, booking.GuestID, row.PaymentType, dto.ExternalChargeID, row.AmountCents))
	return nil
}

// recordStrandedCharge handles a charge that succeeded at the provider
// against a booking that can no longer accept it. The charge id and reason
// are persisted on the failed row and a pending refund is recorded, so the
// money is never represented only by a log line.
func (s *Service) recordStrandedCharge(row *paymentdm.Payment, b *bookingdm.Booking, chargeID string, raw json.RawMessage) error {
	reason := "booking no longer payable, charge held for refund"
	if err := s.repo.MarkUnsettled(row.ID, chargeID, reason, raw); err != nil {
		s.logger.Error("failed to record unsettled charge", "error", err, "payment_id", row.ID, "charge_id", chargeID)
		return errors.NewInternalError("failed to record unsettled charge", err)
	}
	if err := s.RecordRefund(row.BookingID, row.AmountCents, reason); err != nil {
		s.logger.Error("failed to record refund for unsettled charge", "error", err, "payment_id", row.ID, "charge_id", chargeID)
	}
	s.logger.Warn("charge stranded by concurrent booking transition",
		"payment_id", row.ID,
		"booking_id", row.BookingID,
		"charge_id", chargeID,
		"booking_status", b.Status)
	s.publish(events.NewPaymentFailedEvent(row.ID, row.BookingID, b.GuestID, row.PaymentType, row.AmountCents, reason))
	return nil
}

// RecordRefund appends a pending refund row for the booking aggregate. The
// actual money movement is reconciled with the provider out of band.
func (s *Service) RecordRefund(bookingID int64, amountCents int64, reason string) error {
	refund := &paymentdm.Payment{
		BookingID:      bookingID,
		PaymentType:    paymentdm.TypeRefund,
		IdempotencyKey: uuid.New().String(),
		AmountCents:    amountCents,
		Status:         paymentdm.StatusPending,
		FailureReason:  nil,
	}
	if _, _, err := s.repo.InsertOrGet(refund); err != nil {
		return err
	}
	s.logger.Info("refund recorded", "booking_id", bookingID, "amount_cents", amountCents, "reason", reason)
	return nil
}

// ListForBooking returns the payment history, visible to either party.
func (s *Service) ListForBooking(bookingID, actorID int64) ([]*paymentdm.Payment, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	if booking.GuestID != actorID && booking.HostID != actorID {
		return nil, errors.ErrUnauthorizedAccess
	}
	return s.repo.ListByBooking(bookingID)
}

func (s *Service) publish(event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), event); err != nil {
		s.logger.Error("failed to publish event", "error", err, "event_type", event.EventType())
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
