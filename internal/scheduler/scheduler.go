// Package scheduler owns the time-driven half of the booking lifecycle:
// cancelling bookings whose payment window lapsed and warning guests whose
// deadline is close. Both passes are idempotent and safe to run concurrently
// with live payment traffic and with other scheduler instances, because every
// decision is re-checked by a conditional update at write time.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	bookingdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/booking"
	paymentdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/payment"
	"github.com/frahmantamala/stay-booking/internal/core/events"
)

type BookingStore interface {
	ListPaymentExpired(now time.Time, limit int) ([]*bookingdm.Booking, error)
	ListNeedingReminder(now time.Time, window time.Duration, limit int) ([]*bookingdm.Booking, error)
	TransitionWithRelease(id int64, from, to bookingdm.Status, reason *string) (bool, error)
	MarkReminderSent(id int64, at time.Time) (bool, error)
}

type PaymentStore interface {
	HasCompleted(bookingID int64, paymentType string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Config struct {
	TickInterval   time.Duration
	ReminderWindow time.Duration
	BatchSize      int
}

type Service struct {
	bookings BookingStore
	payments PaymentStore
	bus      EventPublisher
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(bookings BookingStore, payments PaymentStore, bus EventPublisher, cfg Config, logger *slog.Logger) *Service {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Service{
		bookings: bookings,
		payments: payments,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("deadline scheduler started",
		"tick_interval", s.cfg.TickInterval,
		"reminder_window", s.cfg.ReminderWindow)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("deadline scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.ExpireOverduePayments(); err != nil {
				s.logger.Error("expire pass failed", "error", err)
			}
			if _, err := s.SendPaymentReminders(); err != nil {
				s.logger.Error("reminder pass failed", "error", err)
			}
		}
	}
}

// ExpireOverduePayments cancels confirmed bookings whose deadline passed
// without a completed reservation payment. The conditional update inside
// TransitionWithRelease means a booking paid between our read and our write
// is simply skipped: the payment wins that race, always.
func (s *Service) ExpireOverduePayments() (int, error) {
	now := s.now()
	overdue, err := s.bookings.ListPaymentExpired(now, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, b := range overdue {
		paid, err := s.payments.HasCompleted(b.ID, paymentdm.TypeReservation)
		if err != nil {
			s.logger.Error("expire: payment lookup failed, skipping booking", "error", err, "booking_id", b.ID)
			continue
		}
		if paid {
			continue
		}

		reason := "reservation payment not received before deadline"
		moved, err := s.bookings.TransitionWithRelease(b.ID, bookingdm.StatusConfirmed, bookingdm.StatusCancelledPaymentExpired, &reason)
		if err != nil {
			// one bad row never aborts the pass; this booking is retried next tick
			s.logger.Error("expire: transition failed, skipping booking", "error", err, "booking_id", b.ID)
			continue
		}
		if !moved {
			// lost the race against a concurrent payment or cancellation
			s.logger.Info("expire: booking no longer confirmed, skipped", "booking_id", b.ID)
			continue
		}

		cancelled++
		s.logger.Info("booking cancelled for payment expiry", "booking_id", b.ID, "deadline", b.PaymentDeadline)
		s.publish(events.NewPaymentExpiredEvent(b.ID, b.GuestID, b.HostID))
	}

	if len(overdue) > 0 {
		s.logger.Info("expire pass finished", "candidates", len(overdue), "cancelled", cancelled)
	}
	return cancelled, nil
}

// SendPaymentReminders warns guests whose deadline falls inside the warning
// window. MarkReminderSent's IS NULL guard is the dedup: ticks after the
// first affect zero rows and send nothing.
func (s *Service) SendPaymentReminders() (int, error) {
	now := s.now()
	due, err := s.bookings.ListNeedingReminder(now, s.cfg.ReminderWindow, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	reminded := 0
	for _, b := range due {
		marked, err := s.bookings.MarkReminderSent(b.ID, now)
		if err != nil {
			s.logger.Error("remind: mark failed, skipping booking", "error", err, "booking_id", b.ID)
			continue
		}
		if !marked {
			continue
		}

		reminded++
		if b.PaymentDeadline != nil {
			s.publish(events.NewPaymentReminderEvent(b.ID, b.GuestID, *b.PaymentDeadline, b.ReservationAmountCents))
		}
		s.logger.Info("payment reminder queued", "booking_id", b.ID, "deadline", b.PaymentDeadline)
	}

	if len(due) > 0 {
		s.logger.Info("reminder pass finished", "candidates", len(due), "reminded", reminded)
	}
	return reminded, nil
}

func (s *Service) publish(event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), event); err != nil {
		s.logger.Error("failed to publish event", "error", err, "event_type", event.EventType())
	}
}
