package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	bookingdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/booking"
	paymentdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/payment"
	"github.com/frahmantamala/stay-booking/internal/payment"
	"github.com/frahmantamala/stay-booking/internal/paymentprovider"
)

// mockPaymentRepository reproduces the two uniqueness constraints the real
// table enforces, guarded by a mutex so concurrent callers race exactly the
// way they would against the database.
type mockPaymentRepository struct {
	mu       sync.Mutex
	rows     map[int64]*paymentdm.Payment
	byKey    map[string]int64
	byCharge map[string]int64
	nextID   int64

	bookings    map[int64]*bookingdm.Booking
	settleError error
}

func newMockPaymentRepository(bookings map[int64]*bookingdm.Booking) *mockPaymentRepository {
	return &mockPaymentRepository{
		rows:     make(map[int64]*paymentdm.Payment),
		byKey:    make(map[string]int64),
		byCharge: make(map[string]int64),
		nextID:   1,
		bookings: bookings,
	}
}

func key(bookingID int64, paymentType, idempotencyKey string) string {
	return fmt.Sprintf("%d|%s|%s", bookingID, paymentType, idempotencyKey)
}

func (m *mockPaymentRepository) InsertOrGet(p *paymentdm.Payment) (*paymentdm.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(p.BookingID, p.PaymentType, p.IdempotencyKey)
	if id, exists := m.byKey[k]; exists {
		copied := *m.rows[id]
		return &copied, false, nil
	}
	p.ID = m.nextID
	m.nextID++
	p.CreatedAt = time.Now()
	stored := *p
	m.rows[p.ID] = &stored
	m.byKey[k] = p.ID
	copied := stored
	return &copied, true, nil
}

func (m *mockPaymentRepository) GetByKey(bookingID int64, paymentType, idempotencyKey string) (*paymentdm.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key(bookingID, paymentType, idempotencyKey)]
	if !ok {
		return nil, apperrors.ErrPaymentNotFound
	}
	copied := *m.rows[id]
	return &copied, nil
}

func (m *mockPaymentRepository) GetByID(id int64) (*paymentdm.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, apperrors.ErrPaymentNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *mockPaymentRepository) ClaimRetry(id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != paymentdm.StatusFailed {
		return false, nil
	}
	row.Status = paymentdm.StatusProcessing
	row.RetryCount++
	return true, nil
}

func (m *mockPaymentRepository) MarkFailed(id int64, reason string, gatewayResponse json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != paymentdm.StatusProcessing {
		return nil
	}
	row.Status = paymentdm.StatusFailed
	row.FailureReason = &reason
	return nil
}

func (m *mockPaymentRepository) Settle(s payment.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleError != nil {
		return m.settleError
	}
	row, ok := m.rows[s.PaymentID]
	if !ok {
		return apperrors.ErrPaymentNotFound
	}
	if row.Status != paymentdm.StatusProcessing {
		return apperrors.ErrPaymentAlreadySettled
	}
	if _, taken := m.byCharge[s.ExternalChargeID]; taken {
		return apperrors.ErrChargeIDConflict
	}
	booking, ok := m.bookings[s.BookingID]
	if !ok || booking.Status != s.FromStatus {
		return apperrors.ErrInvalidTransition
	}
	now := time.Now()
	row.Status = paymentdm.StatusCompleted
	chargeID := s.ExternalChargeID
	row.ExternalChargeID = &chargeID
	row.PaidAt = &now
	m.byCharge[s.ExternalChargeID] = s.PaymentID
	booking.Status = s.ToStatus
	return nil
}

func (m *mockPaymentRepository) MarkUnsettled(id int64, externalChargeID, reason string, gatewayResponse json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != paymentdm.StatusProcessing {
		return nil
	}
	row.Status = paymentdm.StatusFailed
	row.FailureReason = &reason
	chargeID := externalChargeID
	row.ExternalChargeID = &chargeID
	m.byCharge[externalChargeID] = id
	return nil
}

func (m *mockPaymentRepository) ListByBooking(bookingID int64) ([]*paymentdm.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*paymentdm.Payment
	for _, row := range m.rows {
		if row.BookingID == bookingID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockPaymentRepository) HasCompleted(bookingID int64, paymentType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.BookingID == bookingID && row.PaymentType == paymentType && row.Status == paymentdm.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

// mockBookingReader shares the repository's mutex because Settle mutates the
// same booking rows concurrent readers observe.
type mockBookingReader struct {
	repo *mockPaymentRepository
}

func (m *mockBookingReader) GetByID(id int64) (*bookingdm.Booking, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	b, ok := m.repo.bookings[id]
	if !ok {
		return nil, apperrors.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

// countingProvider counts charges; the count is the whole point of the
// idempotency tests.
type countingProvider struct {
	charges   atomic.Int64
	outcome   paymentprovider.Outcome
	chargeErr error
	delay     time.Duration
}

func (p *countingProvider) Charge(ctx context.Context, token string, amountCents int64, metadata map[string]string) (*paymentprovider.ChargeResult, error) {
	n := p.charges.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.chargeErr != nil {
		return nil, p.chargeErr
	}
	return &paymentprovider.ChargeResult{
		ID:      fmt.Sprintf("ch_%d", n),
		Outcome: p.outcome,
	}, nil
}

var _ = Describe("PaymentService", func() {
	var (
		service  *payment.Service
		repo     *mockPaymentRepository
		reader   *mockBookingReader
		provider *countingProvider
		logger   *slog.Logger

		guestID   = int64(100)
		bookingID = int64(1)
	)

	newConfirmedBooking := func() map[int64]*bookingdm.Booking {
		deadline := time.Now().Add(6 * time.Hour)
		return map[int64]*bookingdm.Booking{
			bookingID: {
				ID:                     bookingID,
				GuestID:                guestID,
				HostID:                 int64(200),
				Status:                 bookingdm.StatusConfirmed,
				TotalPriceCents:        20000,
				ReservationAmountCents: 10000,
				CheckinAmountCents:     10000,
				PaymentDeadline:        &deadline,
			},
		}
	}

	validDTO := func() *payment.ProcessPaymentDTO {
		return &payment.ProcessPaymentDTO{
			BookingID:      bookingID,
			PaymentType:    paymentdm.TypeReservation,
			ChargeToken:    "tok_visa",
			IdempotencyKey: "idem-key-0001",
		}
	}

	BeforeEach(func() {
		bookings := newConfirmedBooking()
		repo = newMockPaymentRepository(bookings)
		reader = &mockBookingReader{repo: repo}
		provider = &countingProvider{outcome: paymentprovider.OutcomeSucceeded}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = payment.NewService(repo, reader, provider, nil, 2*time.Second, logger)
	})

	Describe("ProcessPayment", func() {
		It("should charge once and settle the reservation leg", func() {
			result, err := service.ProcessPayment(guestID, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Status).To(Equal(paymentdm.StatusCompleted))
			Expect(result.AmountCents).To(Equal(int64(10000)))
			Expect(result.ExternalChargeID).ToNot(BeEmpty())
			Expect(result.AlreadyProcessed).To(BeFalse())
			Expect(provider.charges.Load()).To(Equal(int64(1)))
			Expect(repo.bookings[bookingID].Status).To(Equal(bookingdm.StatusReservationPaid))
		})

		It("should return the original result on a sequential retry without charging again", func() {
			first, err := service.ProcessPayment(guestID, validDTO())
			Expect(err).ToNot(HaveOccurred())

			second, err := service.ProcessPayment(guestID, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(second.AlreadyProcessed).To(BeTrue())
			Expect(second.PaymentID).To(Equal(first.PaymentID))
			Expect(second.ExternalChargeID).To(Equal(first.ExternalChargeID))
			Expect(provider.charges.Load()).To(Equal(int64(1)))
		})

		It("should replay the settled result when the booking has already moved on", func() {
			first, err := service.ProcessPayment(guestID, validDTO())
			Expect(err).ToNot(HaveOccurred())
			Expect(repo.bookings[bookingID].Status).To(Equal(bookingdm.StatusReservationPaid))

			// the deadline lapsing after settlement must not break the replay either
			past := time.Now().Add(-time.Hour)
			repo.bookings[bookingID].PaymentDeadline = &past

			second, err := service.ProcessPayment(guestID, validDTO())

			Expect(err).ToNot(HaveOccurred())
			Expect(second.AlreadyProcessed).To(BeTrue())
			Expect(second.PaymentID).To(Equal(first.PaymentID))
			Expect(provider.charges.Load()).To(Equal(int64(1)))
		})

		It("should converge 20 concurrent submissions with one key onto a single charge", func() {
			provider.delay = 50 * time.Millisecond

			const callers = 20
			results := make([]*payment.Result, callers)
			errs := make([]error, callers)

			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = service.ProcessPayment(guestID, validDTO())
				}(i)
			}
			wg.Wait()

			Expect(provider.charges.Load()).To(Equal(int64(1)))
			for i := 0; i < callers; i++ {
				Expect(errs[i]).ToNot(HaveOccurred())
				Expect(results[i].Status).To(Equal(paymentdm.StatusCompleted))
				Expect(results[i].PaymentID).To(Equal(results[0].PaymentID))
				Expect(results[i].ExternalChargeID).To(Equal(results[0].ExternalChargeID))
			}
			Expect(repo.bookings[bookingID].Status).To(Equal(bookingdm.StatusReservationPaid))
		})

		It("should keep distinct keys distinct", func() {
			first, err := service.ProcessPayment(guestID, validDTO())
			Expect(err).ToNot(HaveOccurred())

			dto := validDTO()
			dto.PaymentType = paymentdm.TypeCheckin
			dto.IdempotencyKey = "idem-key-0002"
			second, err := service.ProcessPayment(guestID, dto)

			Expect(err).ToNot(HaveOccurred())
			Expect(second.PaymentID).ToNot(Equal(first.PaymentID))
			Expect(provider.charges.Load()).To(Equal(int64(2)))
		})

		Context("when the provider declines", func() {
			BeforeEach(func() {
				provider.outcome = paymentprovider.OutcomeDeclined
			})

			It("should fail the payment and leave the booking unchanged", func() {
				_, err := service.ProcessPayment(guestID, validDTO())

				Expect(err).To(Equal(apperrors.ErrPaymentDeclined))
				Expect(repo.bookings[bookingID].Status).To(Equal(bookingdm.StatusConfirmed))

				row, getErr := repo.GetByKey(bookingID, paymentdm.TypeReservation, "idem-key-0001")
				Expect(getErr).ToNot(HaveOccurred())
				Expect(row.Status).To(Equal(paymentdm.StatusFailed))
			})

			It("should allow a retry with the same key to claim and succeed", func() {
				_, err := service.ProcessPayment(guestID, validDTO())
				Expect(err).To(Equal(apperrors.ErrPaymentDeclined))

				provider.outcome = paymentprovider.OutcomeSucceeded
				result, err := service.ProcessPayment(guestID, validDTO())

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Status).To(Equal(paymentdm.StatusCompleted))
				Expect(provider.charges.Load()).To(Equal(int64(2)))
			})
		})

		Context("when the provider outcome is unknown", func() {
			BeforeEach(func() {
				provider.chargeErr = context.DeadlineExceeded
			})

			It("should surface the unknown outcome and keep the row processing", func() {
				_, err := service.ProcessPayment(guestID, validDTO())

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrPaymentOutcomeUnknown.Code))

				row, getErr := repo.GetByKey(bookingID, paymentdm.TypeReservation, "idem-key-0001")
				Expect(getErr).ToNot(HaveOccurred())
				Expect(row.Status).To(Equal(paymentdm.StatusProcessing))
				Expect(repo.bookings[bookingID].Status).To(Equal(bookingdm.StatusConfirmed))
			})
		})

		Context("when the charge id is already taken", func() {
			It("should refuse the settlement", func() {
				repo.settleError = apperrors.ErrChargeIDConflict

				_, err := service.ProcessPayment(guestID, validDTO())

				Expect(err).To(Equal(apperrors.ErrChargeIDConflict))
			})
		})

		Context("when the booking is cancelled between the charge and the settlement", func() {
			It("should persist the charge id on the failed row and record a refund", func() {
				repo.settleError = apperrors.ErrInvalidTransition

				_, err := service.ProcessPayment(guestID, validDTO())

				Expect(err).To(Equal(apperrors.ErrInvalidTransition))

				row, getErr := repo.GetByKey(bookingID, paymentdm.TypeReservation, "idem-key-0001")
				Expect(getErr).ToNot(HaveOccurred())
				Expect(row.Status).To(Equal(paymentdm.StatusFailed))
				Expect(row.ExternalChargeID).ToNot(BeNil())
				Expect(*row.ExternalChargeID).To(Equal("ch_1"))

				rows, _ := repo.ListByBooking(bookingID)
				var refund *paymentdm.Payment
				for _, r := range rows {
					if r.PaymentType == paymentdm.TypeRefund {
						refund = r
					}
				}
				Expect(refund).ToNot(BeNil())
				Expect(refund.Status).To(Equal(paymentdm.StatusPending))
				Expect(refund.AmountCents).To(Equal(int64(10000)))
			})
		})

		Context("eligibility", func() {
			It("should refuse a caller who is not the guest", func() {
				_, err := service.ProcessPayment(int64(999), validDTO())

				Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
				Expect(provider.charges.Load()).To(BeZero())
			})

			It("should refuse a reservation payment after the deadline", func() {
				past := time.Now().Add(-time.Hour)
				repo.bookings[bookingID].PaymentDeadline = &past

				_, err := service.ProcessPayment(guestID, validDTO())

				Expect(err).To(Equal(apperrors.ErrPaymentDeadlinePassed))
				Expect(provider.charges.Load()).To(BeZero())
			})

			It("should refuse a check-in payment before the reservation is paid", func() {
				dto := validDTO()
				dto.PaymentType = paymentdm.TypeCheckin

				_, err := service.ProcessPayment(guestID, dto)

				Expect(err).To(Equal(apperrors.ErrInvalidTransition))
			})

			It("should charge the full price for a full payment", func() {
				dto := validDTO()
				dto.PaymentType = paymentdm.TypeFull

				result, err := service.ProcessPayment(guestID, dto)

				Expect(err).ToNot(HaveOccurred())
				Expect(result.AmountCents).To(Equal(int64(20000)))
			})
		})
	})

	Describe("HandleProviderCallback", func() {
		It("should settle a payment stuck in processing", func() {
			provider.chargeErr = context.DeadlineExceeded
			_, err := service.ProcessPayment(guestID, validDTO())
			Expect(err).To(HaveOccurred())

			row, err := repo.GetByKey(bookingID, paymentdm.TypeReservation, "idem-key-0001")
			Expect(err).ToNot(HaveOccurred())

			err = service.HandleProviderCallback(&payment.ProviderCallbackDTO{
				PaymentID:        row.ID,
				ExternalChargeID: "ch_async_1",
				Outcome:          string(paymentprovider.OutcomeSucceeded),
			})

			Expect(err).ToNot(HaveOccurred())
			settled, _ := repo.GetByID(row.ID)
			Expect(settled.Status).To(Equal(paymentdm.StatusCompleted))
			Expect(repo.bookings[bookingID].Status).To(Equal(bookingdm.StatusReservationPaid))
		})

		It("should hold the charge for refund when the booking was cancelled while stuck", func() {
			provider.chargeErr = context.DeadlineExceeded
			_, err := service.ProcessPayment(guestID, validDTO())
			Expect(err).To(HaveOccurred())

			repo.bookings[bookingID].Status = bookingdm.StatusCancelledPaymentExpired

			row, err := repo.GetByKey(bookingID, paymentdm.TypeReservation, "idem-key-0001")
			Expect(err).ToNot(HaveOccurred())

			err = service.HandleProviderCallback(&payment.ProviderCallbackDTO{
				PaymentID:        row.ID,
				ExternalChargeID: "ch_async_2",
				Outcome:          string(paymentprovider.OutcomeSucceeded),
			})

			Expect(err).ToNot(HaveOccurred())
			failed, _ := repo.GetByID(row.ID)
			Expect(failed.Status).To(Equal(paymentdm.StatusFailed))
			Expect(*failed.ExternalChargeID).To(Equal("ch_async_2"))

			rows, _ := repo.ListByBooking(bookingID)
			var refund *paymentdm.Payment
			for _, r := range rows {
				if r.PaymentType == paymentdm.TypeRefund {
					refund = r
				}
			}
			Expect(refund).ToNot(BeNil())
			Expect(refund.AmountCents).To(Equal(int64(10000)))
		})

		It("should settle past the deadline while the booking is still confirmed", func() {
			provider.chargeErr = context.DeadlineExceeded
			_, err := service.ProcessPayment(guestID, validDTO())
			Expect(err).To(HaveOccurred())

			past := time.Now().Add(-time.Hour)
			repo.bookings[bookingID].PaymentDeadline = &past

			row, err := repo.GetByKey(bookingID, paymentdm.TypeReservation, "idem-key-0001")
			Expect(err).ToNot(HaveOccurred())

			err = service.HandleProviderCallback(&payment.ProviderCallbackDTO{
				PaymentID:        row.ID,
				ExternalChargeID: "ch_async_3",
				Outcome:          string(paymentprovider.OutcomeSucceeded),
			})

			Expect(err).ToNot(HaveOccurred())
			settled, _ := repo.GetByID(row.ID)
			Expect(settled.Status).To(Equal(paymentdm.StatusCompleted))
			Expect(repo.bookings[bookingID].Status).To(Equal(bookingdm.StatusReservationPaid))
		})

		It("should ignore a callback for an already settled payment", func() {
			result, err := service.ProcessPayment(guestID, validDTO())
			Expect(err).ToNot(HaveOccurred())

			err = service.HandleProviderCallback(&payment.ProviderCallbackDTO{
				PaymentID:        result.PaymentID,
				ExternalChargeID: "ch_other",
				Outcome:          string(paymentprovider.OutcomeSucceeded),
			})

			Expect(err).ToNot(HaveOccurred())
			settled, _ := repo.GetByID(result.PaymentID)
			Expect(*settled.ExternalChargeID).To(Equal(result.ExternalChargeID))
		})
	})

	Describe("RecordRefund", func() {
		It("should append a pending refund row", func() {
			err := service.RecordRefund(bookingID, 10000, "guest cancelled")

			Expect(err).ToNot(HaveOccurred())
			rows, _ := repo.ListByBooking(bookingID)
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].PaymentType).To(Equal(paymentdm.TypeRefund))
			Expect(rows[0].Status).To(Equal(paymentdm.StatusPending))
			Expect(rows[0].AmountCents).To(Equal(int64(10000)))
		})
	})
})
