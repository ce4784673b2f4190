package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	paymentdm "github.com/frahmantamala/stay-booking/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/stay-booking/internal/payment"
)

type mockPaymentService struct {
	processError  error
	callbackError error
	listError     error
	result        *paymentpkg.Result
	payments      []*paymentdm.Payment

	lastGuestID  int64
	lastCallback *paymentpkg.ProviderCallbackDTO
}

func (m *mockPaymentService) ProcessPayment(guestID int64, dto *paymentpkg.ProcessPaymentDTO) (*paymentpkg.Result, error) {
	m.lastGuestID = guestID
	if m.processError != nil {
		return nil, m.processError
	}
	return m.result, nil
}

func (m *mockPaymentService) HandleProviderCallback(dto *paymentpkg.ProviderCallbackDTO) error {
	m.lastCallback = dto
	return m.callbackError
}

func (m *mockPaymentService) ListForBooking(bookingID, actorID int64) ([]*paymentdm.Payment, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.payments, nil
}

var _ = ginkgo.Describe("PaymentHandler", func() {
	var (
		handler *paymentpkg.Handler
		service *mockPaymentService
	)

	processBody := func() *bytes.Buffer {
		body, _ := json.Marshal(map[string]interface{}{
			"booking_id":      1,
			"payment_type":    "reservation",
			"charge_token":    "tok_visa",
			"idempotency_key": "idem-key-0001",
		})
		return bytes.NewBuffer(body)
	}

	ginkgo.BeforeEach(func() {
		service = &mockPaymentService{
			result: &paymentpkg.Result{
				PaymentID:        7,
				BookingID:        1,
				PaymentType:      "reservation",
				Status:           paymentdm.StatusCompleted,
				AmountCents:      10000,
				ExternalChargeID: "ch_001",
			},
		}
		handler = paymentpkg.NewHandler(service)
	})

	ginkgo.Describe("ProcessPayment", func() {
		ginkgo.It("should return 201 for a fresh capture", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", processBody())
			req = req.WithContext(apperrors.ContextWithActorID(req.Context(), 100))
			rec := httptest.NewRecorder()

			handler.ProcessPayment(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
			gomega.Expect(service.lastGuestID).To(gomega.Equal(int64(100)))

			var result paymentpkg.Result
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(gomega.Succeed())
			gomega.Expect(result.PaymentID).To(gomega.Equal(int64(7)))
			gomega.Expect(result.ExternalChargeID).To(gomega.Equal("ch_001"))
		})

		ginkgo.It("should return 200 when the key was already processed", func() {
			service.result.AlreadyProcessed = true
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", processBody())
			req = req.WithContext(apperrors.ContextWithActorID(req.Context(), 100))
			rec := httptest.NewRecorder()

			handler.ProcessPayment(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should return 401 without an actor", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", processBody())
			rec := httptest.NewRecorder()

			handler.ProcessPayment(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should return 400 for a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString("{not json"))
			req = req.WithContext(apperrors.ContextWithActorID(req.Context(), 100))
			rec := httptest.NewRecorder()

			handler.ProcessPayment(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should map a declined payment to 402", func() {
			service.processError = apperrors.ErrPaymentDeclined
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", processBody())
			req = req.WithContext(apperrors.ContextWithActorID(req.Context(), 100))
			rec := httptest.NewRecorder()

			handler.ProcessPayment(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusPaymentRequired))
		})

		ginkgo.It("should map a deadline miss to the state error status", func() {
			service.processError = apperrors.ErrPaymentDeadlinePassed
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", processBody())
			req = req.WithContext(apperrors.ContextWithActorID(req.Context(), 100))
			rec := httptest.NewRecorder()

			handler.ProcessPayment(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(apperrors.ErrPaymentDeadlinePassed.StatusCode))
		})
	})

	ginkgo.Describe("ListBookingPayments", func() {
		newListRequest := func(id string) *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/"+id+"/payments", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", id)
			ctx := apperrors.ContextWithActorID(req.Context(), 100)
			return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
		}

		ginkgo.It("should list the booking's payments", func() {
			service.payments = []*paymentdm.Payment{
				{ID: 7, BookingID: 1, PaymentType: "reservation", Status: paymentdm.StatusCompleted},
			}
			rec := httptest.NewRecorder()

			handler.ListBookingPayments(rec, newListRequest("1"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			var body map[string]interface{}
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
			gomega.Expect(body["count"]).To(gomega.BeEquivalentTo(1))
		})

		ginkgo.It("should return 400 for a non-numeric booking id", func() {
			rec := httptest.NewRecorder()

			handler.ListBookingPayments(rec, newListRequest("abc"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should map an access refusal to 403", func() {
			service.listError = apperrors.ErrUnauthorizedAccess
			rec := httptest.NewRecorder()

			handler.ListBookingPayments(rec, newListRequest("1"))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
		})
	})
})
