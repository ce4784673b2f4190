package booking

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/stay-booking/internal"
	bookingdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/booking"
	"github.com/frahmantamala/stay-booking/internal/core/events"
)

// Repository is the data access surface the aggregate needs. Every state
// change is a conditional write: the bool result reports whether the row was
// still in the expected prior state, which is how races are decided.
type Repository interface {
	CreateWithHold(b *bookingdm.Booking) error
	GetByID(id int64) (*bookingdm.Booking, error)
	ListByUser(userID int64, limit, offset int) ([]*bookingdm.Booking, error)
	Confirm(id int64, deadline time.Time) (bool, error)
	Transition(id int64, from, to bookingdm.Status, updates map[string]interface{}) (bool, error)
	TransitionWithRelease(id int64, from, to bookingdm.Status, reason *string) (bool, error)
	SetPaymentProof(id int64, proofURL string, verifierID int64, at time.Time) (bool, error)
	ListAwaitingPayment(now time.Time) ([]*bookingdm.Booking, error)
}

// RefundRecorder appends a refund row against a booking; the payment engine
// owns the payments table, the aggregate only asks for the entry.
type RefundRecorder interface {
	RecordRefund(bookingID int64, amountCents int64, reason string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type ServiceConfig struct {
	PaymentWindow time.Duration
	MaxNights     int
	MaxGuests     int
}

type Service struct {
	repo    Repository
	refunds RefundRecorder
	bus     EventPublisher
	cfg     ServiceConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, refunds RefundRecorder, bus EventPublisher, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = errors.DefaultPaymentWindow
	}
	if cfg.MaxNights <= 0 {
		cfg.MaxNights = 90
	}
	if cfg.MaxGuests <= 0 {
		cfg.MaxGuests = 16
	}
	return &Service{
		repo:    repo,
		refunds: refunds,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateBooking validates the request, prices the stay, and persists the
// booking together with the calendar hold in one transaction. Losing the
// calendar race surfaces as ErrDateRangeUnavailable with nothing written.
func (s *Service) CreateBooking(guestID int64, dto *CreateBookingDTO) (*Booking, error) {
	if err := dto.Validate(s.cfg.MaxNights, s.cfg.MaxGuests); err != nil {
		s.logger.Error("booking validation failed", "error", err, "guest_id", guestID)
		return nil, err
	}
	if guestID == dto.HostID {
		return nil, errors.NewValidationError("guest cannot book their own listing", errors.ErrCodeValidationFailed)
	}

	nights := int(dto.CheckOut.Sub(dto.CheckIn).Hours() / 24)
	total := dto.PricePerNightCents*int64(nights) + dto.ServiceFeeCents + dto.CleaningFeeCents
	reservation, checkin := SplitAmounts(total)

	model := &bookingdm.Booking{
		ListingID:              dto.ListingID,
		ListingCreatedAt:       dto.ListingCreatedAt,
		GuestID:                guestID,
		HostID:                 dto.HostID,
		CheckIn:                dto.CheckIn,
		CheckOut:               dto.CheckOut,
		Nights:                 nights,
		Guests:                 dto.Guests,
		PricePerNightCents:     dto.PricePerNightCents,
		TotalPriceCents:        total,
		ReservationAmountCents: reservation,
		CheckinAmountCents:     checkin,
		ServiceFeeCents:        dto.ServiceFeeCents,
		CleaningFeeCents:       dto.CleaningFeeCents,
		Status:                 bookingdm.StatusPendingConfirmation,
	}

	if err := s.repo.CreateWithHold(model); err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			return nil, appErr
		}
		s.logger.Error("failed to create booking", "error", err, "guest_id", guestID, "listing_id", dto.ListingID)
		return nil, errors.NewInternalError("failed to create booking", err)
	}

	s.logger.Info("booking created",
		"booking_id", model.ID,
		"guest_id", guestID,
		"listing_id", dto.ListingID,
		"check_in", dto.CheckIn.Format("2006-01-02"),
		"nights", nights,
		"total_cents", total)

	return FromDataModel(model), nil
}

// RespondToBooking is the host's accept/reject decision. Accepting starts the
// payment clock; rejecting releases the held dates.
func (s *Service) RespondToBooking(bookingID, hostID int64, dto *RespondToBookingDTO) (*Booking, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	model, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	if model.HostID != hostID {
		s.logger.Warn("respond denied: not the host", "booking_id", bookingID, "user_id", hostID)
		return nil, errors.ErrUnauthorizedAccess
	}

	if dto.Response == ResponseAccept {
		deadline := s.now().Add(s.cfg.PaymentWindow)
		ok, err := s.repo.Confirm(bookingID, deadline)
		if err != nil {
			s.logger.Error("failed to confirm booking", "error", err, "booking_id", bookingID)
			return nil, errors.NewInternalError("failed to confirm booking", err)
		}
		if !ok {
			return nil, errors.ErrInvalidTransition
		}

		s.logger.Info("booking confirmed", "booking_id", bookingID, "host_id", hostID, "payment_deadline", deadline)
		s.publish(events.NewBookingConfirmedEvent(bookingID, model.GuestID, model.HostID, deadline, model.ReservationAmountCents))
		return s.reload(bookingID)
	}

	reason := "rejected by host"
	ok, err := s.repo.TransitionWithRelease(bookingID, bookingdm.StatusPendingConfirmation, bookingdm.StatusCancelledByHost, &reason)
	if err != nil {
		s.logger.Error("failed to reject booking", "error", err, "booking_id", bookingID)
		return nil, errors.NewInternalError("failed to reject booking", err)
	}
	if !ok {
		return nil, errors.ErrInvalidTransition
	}

	s.logger.Info("booking rejected", "booking_id", bookingID, "host_id", hostID)
	s.publish(events.NewBookingCancelledEvent(bookingID, model.GuestID, model.HostID, string(bookingdm.StatusCancelledByHost), reason))
	return s.reload(bookingID)
}

// CancelBooking handles guest and host cancellations from any non-terminal
// state the table permits. Cancelling a paid booking also records a refund.
func (s *Service) CancelBooking(bookingID, actorID int64, dto *CancelBookingDTO) (*Booking, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	model, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	var target bookingdm.Status
	switch {
	case model.GuestID == actorID:
		target = bookingdm.StatusCancelledByGuest
	case model.HostID == actorID:
		target = bookingdm.StatusCancelledByHost
	default:
		s.logger.Warn("cancel denied: not a party to the booking", "booking_id", bookingID, "user_id", actorID)
		return nil, errors.ErrUnauthorizedAccess
	}

	if !model.Status.CanTransitionTo(target) {
		s.logger.Warn("cancel rejected by state machine", "booking_id", bookingID, "status", model.Status)
		return nil, errors.ErrInvalidTransition
	}

	reason := dto.Reason
	if reason == "" {
		if target == bookingdm.StatusCancelledByGuest {
			reason = "cancelled by guest"
		} else {
			reason = "cancelled by host"
		}
	}

	ok, err := s.repo.TransitionWithRelease(bookingID, model.Status, target, &reason)
	if err != nil {
		s.logger.Error("failed to cancel booking", "error", err, "booking_id", bookingID)
		return nil, errors.NewInternalError("failed to cancel booking", err)
	}
	if !ok {
		// lost a race against payment, expiry, or another cancel
		return nil, errors.ErrInvalidTransition
	}

	if refundable := refundableAmount(model); refundable > 0 {
		if err := s.refunds.RecordRefund(bookingID, refundable, reason); err != nil {
			// the cancellation stands; the refund row is recovered manually
			s.logger.Error("failed to record refund", "error", err, "booking_id", bookingID, "amount_cents", refundable)
		}
	}

	s.logger.Info("booking cancelled", "booking_id", bookingID, "actor_id", actorID, "from_status", model.Status, "to_status", target)
	s.publish(events.NewBookingCancelledEvent(bookingID, model.GuestID, model.HostID, string(target), reason))
	return s.reload(bookingID)
}

// refundableAmount is what the guest has actually settled so far.
func refundableAmount(b *bookingdm.Booking) int64 {
	switch b.Status {
	case bookingdm.StatusReservationPaid:
		return b.ReservationAmountCents
	case bookingdm.StatusCheckedIn:
		return b.TotalPriceCents
	}
	return 0
}

// CheckIn marks the stay as started through the manual path: the host
// confirms arrival once the check-in date is reached or a payment proof has
// been verified. The paid path goes through the payment engine instead.
func (s *Service) CheckIn(bookingID, actorID int64) (*Booking, error) {
	model, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	if model.HostID != actorID {
		return nil, errors.ErrUnauthorizedAccess
	}

	now := s.now()
	dateReached := !now.Before(model.CheckIn)
	proofVerified := model.PaymentProofVerifiedAt != nil
	if !dateReached && !proofVerified {
		return nil, errors.NewStateError("check-in requires the check-in date or a verified payment proof", errors.ErrCodeInvalidTransition)
	}

	ok, err := s.repo.Transition(bookingID, bookingdm.StatusReservationPaid, bookingdm.StatusCheckedIn, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to check in booking", err)
	}
	if !ok {
		return nil, errors.ErrInvalidTransition
	}

	s.logger.Info("booking checked in", "booking_id", bookingID, "host_id", actorID)
	return s.reload(bookingID)
}

// Complete closes out a stay after check-out.
func (s *Service) Complete(bookingID, actorID int64) (*Booking, error) {
	model, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	if model.HostID != actorID {
		return nil, errors.ErrUnauthorizedAccess
	}

	ok, err := s.repo.Transition(bookingID, bookingdm.StatusCheckedIn, bookingdm.StatusCompleted, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to complete booking", err)
	}
	if !ok {
		return nil, errors.ErrInvalidTransition
	}

	s.logger.Info("booking completed", "booking_id", bookingID, "host_id", actorID)
	return s.reload(bookingID)
}

// VerifyPaymentProof records offline-payment evidence against the booking.
// Only the host can vouch for a proof, and only while money is still owed.
func (s *Service) VerifyPaymentProof(bookingID, verifierID int64, dto *PaymentProofDTO) (*Booking, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	model, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	if model.HostID != verifierID {
		return nil, errors.ErrUnauthorizedAccess
	}
	if model.Status != bookingdm.StatusConfirmed && model.Status != bookingdm.StatusReservationPaid {
		return nil, errors.ErrInvalidTransition
	}

	ok, err := s.repo.SetPaymentProof(bookingID, dto.ProofURL, verifierID, s.now())
	if err != nil {
		return nil, errors.NewInternalError("failed to record payment proof", err)
	}
	if !ok {
		return nil, errors.ErrInvalidTransition
	}

	s.logger.Info("payment proof verified", "booking_id", bookingID, "verifier_id", verifierID)
	return s.reload(bookingID)
}

func (s *Service) GetBooking(bookingID, actorID int64) (*Booking, error) {
	model, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, errors.ErrBookingNotFound
	}
	if !FromDataModel(model).IsParty(actorID) {
		return nil, errors.ErrUnauthorizedAccess
	}
	return FromDataModel(model), nil
}

func (s *Service) ListBookings(userID int64, limit, offset int) ([]*Booking, error) {
	models, err := s.repo.ListByUser(userID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list bookings", "error", err, "user_id", userID)
		return nil, errors.NewInternalError("failed to list bookings", err)
	}
	return FromDataModelSlice(models), nil
}

// ListAwaitingPayment is the operational status view: every booking still
// owing money, with hours to deadline precomputed.
func (s *Service) ListAwaitingPayment() ([]*AwaitingPaymentView, error) {
	now := s.now()
	models, err := s.repo.ListAwaitingPayment(now)
	if err != nil {
		s.logger.Error("failed to list bookings awaiting payment", "error", err)
		return nil, errors.NewInternalError("failed to list bookings awaiting payment", err)
	}

	views := make([]*AwaitingPaymentView, 0, len(models))
	for _, m := range models {
		b := FromDataModel(m)
		due := m.ReservationAmountCents
		if m.Status == bookingdm.StatusReservationPaid {
			due = m.CheckinAmountCents
		}
		views = append(views, &AwaitingPaymentView{
			BookingID:       m.ID,
			GuestID:         m.GuestID,
			HostID:          m.HostID,
			ListingID:       m.ListingID,
			Status:          string(m.Status),
			AmountDueCents:  due,
			PaymentDeadline: m.PaymentDeadline,
			HoursRemaining:  b.HoursToDeadline(now),
		})
	}
	return views, nil
}

func (s *Service) reload(bookingID int64) (*Booking, error) {
	model, err := s.repo.GetByID(bookingID)
	if err != nil {
		return nil, errors.NewInternalError("failed to reload booking", err)
	}
	return FromDataModel(model), nil
}

func (s *Service) publish(event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), event); err != nil {
		s.logger.Error("failed to publish event", "error", err, "event_type", event.EventType())
	}
}
