package internal_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/stay-booking/internal"
)

func TestAppErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AppErrors Suite")
}

var _ = Describe("AppError", func() {
	Describe("WithCause", func() {
		It("should leave the sentinel untouched", func() {
			causeA := errors.New("connection reset")
			causeB := errors.New("read timeout")

			errA := apperrors.ErrPaymentOutcomeUnknown.WithCause(causeA)
			errB := apperrors.ErrPaymentOutcomeUnknown.WithCause(causeB)

			Expect(apperrors.ErrPaymentOutcomeUnknown.Cause).To(BeNil())
			Expect(errA.Cause).To(Equal(causeA))
			Expect(errB.Cause).To(Equal(causeB))
			Expect(errA).NotTo(BeIdenticalTo(apperrors.ErrPaymentOutcomeUnknown))
		})

		It("should keep the sentinel's code and status on the copy", func() {
			wrapped := apperrors.ErrPaymentOutcomeUnknown.WithCause(errors.New("boom"))

			Expect(wrapped.Code).To(Equal(apperrors.ErrPaymentOutcomeUnknown.Code))
			Expect(wrapped.StatusCode).To(Equal(apperrors.ErrPaymentOutcomeUnknown.StatusCode))
			Expect(errors.Unwrap(wrapped)).To(MatchError("boom"))
		})
	})

	Describe("WithDetails", func() {
		It("should leave the receiver untouched", func() {
			base := apperrors.NewValidationError("bad input", apperrors.ErrCodeValidationFailed)
			detailed := base.WithDetails(map[string]string{"field": "guests"})

			Expect(base.Details).To(BeNil())
			Expect(detailed.Details).NotTo(BeNil())
		})
	})
})
