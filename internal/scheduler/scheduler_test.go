package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	bookingdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/booking"
	"github.com/frahmantamala/stay-booking/internal/core/events"
	"github.com/frahmantamala/stay-booking/internal/scheduler"
)

func TestScheduler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scheduler Suite")
}

type mockBookingStore struct {
	mu       sync.Mutex
	expired  []*bookingdm.Booking
	needing  []*bookingdm.Booking
	statuses map[int64]bookingdm.Status
	reminded map[int64]bool
	released []int64

	transitionErr map[int64]error
	markErr       map[int64]error
}

func newMockBookingStore() *mockBookingStore {
	return &mockBookingStore{
		statuses:      make(map[int64]bookingdm.Status),
		reminded:      make(map[int64]bool),
		transitionErr: make(map[int64]error),
		markErr:       make(map[int64]error),
	}
}

func (m *mockBookingStore) addExpired(b *bookingdm.Booking) {
	m.expired = append(m.expired, b)
	m.statuses[b.ID] = b.Status
}

func (m *mockBookingStore) addNeedingReminder(b *bookingdm.Booking) {
	m.needing = append(m.needing, b)
	m.statuses[b.ID] = b.Status
}

func (m *mockBookingStore) ListPaymentExpired(now time.Time, limit int) ([]*bookingdm.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expired, nil
}

func (m *mockBookingStore) ListNeedingReminder(now time.Time, window time.Duration, limit int) ([]*bookingdm.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needing, nil
}

func (m *mockBookingStore) TransitionWithRelease(id int64, from, to bookingdm.Status, reason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transitionErr[id]; err != nil {
		return false, err
	}
	if m.statuses[id] != from {
		return false, nil
	}
	m.statuses[id] = to
	m.released = append(m.released, id)
	return true, nil
}

func (m *mockBookingStore) MarkReminderSent(id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markErr[id]; err != nil {
		return false, err
	}
	if m.reminded[id] || m.statuses[id] != bookingdm.StatusConfirmed {
		return false, nil
	}
	m.reminded[id] = true
	return true, nil
}

type mockPaymentStore struct {
	mu        sync.Mutex
	completed map[int64]bool
	err       error
}

func (m *mockPaymentStore) HasCompleted(bookingID int64, paymentType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.completed[bookingID], nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.EventType())
	}
	return out
}

var _ = Describe("Scheduler", func() {
	var (
		svc      *scheduler.Service
		bookings *mockBookingStore
		payments *mockPaymentStore
		bus      *recordingBus
	)

	confirmedBooking := func(id int64, deadlineIn time.Duration) *bookingdm.Booking {
		deadline := time.Now().Add(deadlineIn)
		return &bookingdm.Booking{
			ID:                     id,
			GuestID:                id + 1000,
			HostID:                 id + 2000,
			Status:                 bookingdm.StatusConfirmed,
			ReservationAmountCents: 10000,
			PaymentDeadline:        &deadline,
		}
	}

	BeforeEach(func() {
		bookings = newMockBookingStore()
		payments = &mockPaymentStore{completed: make(map[int64]bool)}
		bus = &recordingBus{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = scheduler.NewService(bookings, payments, bus, scheduler.Config{
			TickInterval:   time.Minute,
			ReminderWindow: time.Hour,
			BatchSize:      100,
		}, logger)
	})

	Describe("ExpireOverduePayments", func() {
		It("should cancel overdue confirmed bookings and release their days", func() {
			bookings.addExpired(confirmedBooking(1, -time.Hour))
			bookings.addExpired(confirmedBooking(2, -2*time.Hour))

			cancelled, err := svc.ExpireOverduePayments()

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(Equal(2))
			Expect(bookings.statuses[1]).To(Equal(bookingdm.StatusCancelledPaymentExpired))
			Expect(bookings.statuses[2]).To(Equal(bookingdm.StatusCancelledPaymentExpired))
			Expect(bookings.released).To(ConsistOf(int64(1), int64(2)))
			Expect(bus.types()).To(ConsistOf(events.EventTypePaymentExpired, events.EventTypePaymentExpired))
		})

		It("should skip a booking whose reservation payment completed", func() {
			bookings.addExpired(confirmedBooking(1, -time.Hour))
			payments.completed[1] = true

			cancelled, err := svc.ExpireOverduePayments()

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(BeZero())
			Expect(bookings.statuses[1]).To(Equal(bookingdm.StatusConfirmed))
			Expect(bus.types()).To(BeEmpty())
		})

		It("should skip a booking that left confirmed before the write", func() {
			b := confirmedBooking(1, -time.Hour)
			bookings.addExpired(b)
			bookings.statuses[1] = bookingdm.StatusReservationPaid

			cancelled, err := svc.ExpireOverduePayments()

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(BeZero())
			Expect(bookings.statuses[1]).To(Equal(bookingdm.StatusReservationPaid))
		})

		It("should keep going when one row fails", func() {
			bookings.addExpired(confirmedBooking(1, -time.Hour))
			bookings.addExpired(confirmedBooking(2, -time.Hour))
			bookings.transitionErr[1] = errors.New("deadlock detected")

			cancelled, err := svc.ExpireOverduePayments()

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(Equal(1))
			Expect(bookings.statuses[2]).To(Equal(bookingdm.StatusCancelledPaymentExpired))
		})

		It("should skip a booking whose payment lookup fails", func() {
			bookings.addExpired(confirmedBooking(1, -time.Hour))
			payments.err = errors.New("connection refused")

			cancelled, err := svc.ExpireOverduePayments()

			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(BeZero())
			Expect(bookings.statuses[1]).To(Equal(bookingdm.StatusConfirmed))
		})

		It("should be a no-op on a second pass", func() {
			bookings.addExpired(confirmedBooking(1, -time.Hour))

			cancelled, err := svc.ExpireOverduePayments()
			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(Equal(1))

			cancelled, err = svc.ExpireOverduePayments()
			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(BeZero())
		})
	})

	Describe("SendPaymentReminders", func() {
		It("should remind each booking exactly once", func() {
			bookings.addNeedingReminder(confirmedBooking(1, 30*time.Minute))

			reminded, err := svc.SendPaymentReminders()
			Expect(err).ToNot(HaveOccurred())
			Expect(reminded).To(Equal(1))
			Expect(bus.types()).To(ConsistOf(events.EventTypePaymentReminder))

			reminded, err = svc.SendPaymentReminders()
			Expect(err).ToNot(HaveOccurred())
			Expect(reminded).To(BeZero())
			Expect(bus.types()).To(HaveLen(1))
		})

		It("should carry the deadline and amount due in the event", func() {
			b := confirmedBooking(1, 30*time.Minute)
			bookings.addNeedingReminder(b)

			_, err := svc.SendPaymentReminders()
			Expect(err).ToNot(HaveOccurred())

			Expect(bus.events).To(HaveLen(1))
			reminder, ok := bus.events[0].(*events.PaymentReminderEvent)
			Expect(ok).To(BeTrue())
			Expect(reminder.BookingID).To(Equal(int64(1)))
			Expect(reminder.AmountDueCents).To(Equal(int64(10000)))
			Expect(reminder.PaymentDeadline).To(BeTemporally("==", *b.PaymentDeadline))
		})

		It("should keep going when one mark fails", func() {
			bookings.addNeedingReminder(confirmedBooking(1, 30*time.Minute))
			bookings.addNeedingReminder(confirmedBooking(2, 30*time.Minute))
			bookings.markErr[1] = errors.New("deadlock detected")

			reminded, err := svc.SendPaymentReminders()

			Expect(err).ToNot(HaveOccurred())
			Expect(reminded).To(Equal(1))
			Expect(bookings.reminded[2]).To(BeTrue())
		})

		It("should not remind a booking that is no longer confirmed", func() {
			bookings.addNeedingReminder(confirmedBooking(1, 30*time.Minute))
			bookings.statuses[1] = bookingdm.StatusReservationPaid

			reminded, err := svc.SendPaymentReminders()

			Expect(err).ToNot(HaveOccurred())
			Expect(reminded).To(BeZero())
			Expect(bus.types()).To(BeEmpty())
		})
	})

	Describe("Run", func() {
		It("should run passes on each tick until the context ends", func() {
			bookings.addExpired(confirmedBooking(1, -time.Hour))
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
			svc = scheduler.NewService(bookings, payments, bus, scheduler.Config{
				TickInterval:   10 * time.Millisecond,
				ReminderWindow: time.Hour,
				BatchSize:      100,
			}, logger)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				svc.Run(ctx)
			}()

			Eventually(func() bookingdm.Status {
				bookings.mu.Lock()
				defer bookings.mu.Unlock()
				return bookings.statuses[1]
			}).Should(Equal(bookingdm.StatusCancelledPaymentExpired))

			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
