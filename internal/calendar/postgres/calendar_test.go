package postgres

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/stay-booking/internal"
	calendardm "github.com/frahmantamala/stay-booking/internal/core/datamodel/calendar"
)

func TestCalendarRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CalendarRepository Suite")
}

var _ = Describe("CalendarRepository", func() {
	var (
		db   *gorm.DB
		repo *CalendarRepository

		listingID = int64(10)
		day0      time.Time
	)

	day := func(n int) time.Time {
		return day0.AddDate(0, 0, n)
	}

	openDays := func(listing int64, from, count int) {
		for i := from; i < from+count; i++ {
			err := db.Create(&calendardm.Entry{
				ListingID: listing,
				Day:       day(i),
				Status:    calendardm.StatusAvailable,
			}).Error
			Expect(err).NotTo(HaveOccurred())
		}
	}

	entryFor := func(listing int64, d time.Time) *calendardm.Entry {
		var e calendardm.Entry
		err := db.Where("listing_id = ? AND day = ?", listing, d).First(&e).Error
		Expect(err).NotTo(HaveOccurred())
		return &e
	}

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&calendardm.Entry{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewCalendarRepository(db)

		day0 = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		err = sqlDB.Close()
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Reserve", func() {
		It("should claim open days for the booking", func() {
			openDays(listingID, 0, 3)

			err := repo.Reserve(listingID, day(0), day(3), 100)
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 3; i++ {
				e := entryFor(listingID, day(i))
				Expect(e.Status).To(Equal(calendardm.StatusHeld))
				Expect(*e.BookingID).To(Equal(int64(100)))
			}
		})

		It("should claim days that have no calendar row yet", func() {
			err := repo.Reserve(listingID, day(0), day(2), 100)
			Expect(err).NotTo(HaveOccurred())

			Expect(entryFor(listingID, day(0)).Status).To(Equal(calendardm.StatusHeld))
			Expect(entryFor(listingID, day(1)).Status).To(Equal(calendardm.StatusHeld))
		})

		It("should reject a range that overlaps a held booking", func() {
			openDays(listingID, 0, 4)
			err := repo.Reserve(listingID, day(0), day(3), 100)
			Expect(err).NotTo(HaveOccurred())

			err = repo.Reserve(listingID, day(2), day(4), 200)
			Expect(err).To(Equal(apperrors.ErrDateRangeUnavailable))

			e := entryFor(listingID, day(2))
			Expect(*e.BookingID).To(Equal(int64(100)))
		})

		It("should leave no days behind when a later day in the range is taken", func() {
			openDays(listingID, 0, 2)
			err := repo.Reserve(listingID, day(2), day(4), 100)
			Expect(err).NotTo(HaveOccurred())

			err = repo.Reserve(listingID, day(0), day(3), 200)
			Expect(err).To(Equal(apperrors.ErrDateRangeUnavailable))

			Expect(entryFor(listingID, day(0)).Status).To(Equal(calendardm.StatusAvailable))
			Expect(entryFor(listingID, day(1)).Status).To(Equal(calendardm.StatusAvailable))
			Expect(entryFor(listingID, day(0)).BookingID).To(BeNil())
		})

		It("should keep listings independent", func() {
			otherListing := int64(20)
			err := repo.Reserve(listingID, day(0), day(2), 100)
			Expect(err).NotTo(HaveOccurred())

			err = repo.Reserve(otherListing, day(0), day(2), 200)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject an empty range", func() {
			err := repo.Reserve(listingID, day(2), day(2), 100)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Commit", func() {
		It("should move held days to booked", func() {
			openDays(listingID, 0, 2)
			Expect(repo.Reserve(listingID, day(0), day(2), 100)).To(Succeed())

			Expect(repo.Commit(100)).To(Succeed())

			Expect(entryFor(listingID, day(0)).Status).To(Equal(calendardm.StatusBooked))
			Expect(entryFor(listingID, day(1)).Status).To(Equal(calendardm.StatusBooked))
		})

		It("should not touch another booking's days", func() {
			openDays(listingID, 0, 4)
			Expect(repo.Reserve(listingID, day(0), day(2), 100)).To(Succeed())
			Expect(repo.Reserve(listingID, day(2), day(4), 200)).To(Succeed())

			Expect(repo.Commit(100)).To(Succeed())

			Expect(entryFor(listingID, day(2)).Status).To(Equal(calendardm.StatusHeld))
		})
	})

	Describe("Release", func() {
		It("should reopen held and booked days", func() {
			openDays(listingID, 0, 2)
			Expect(repo.Reserve(listingID, day(0), day(2), 100)).To(Succeed())
			Expect(repo.Commit(100)).To(Succeed())

			Expect(repo.Release(100)).To(Succeed())

			e := entryFor(listingID, day(0))
			Expect(e.Status).To(Equal(calendardm.StatusAvailable))
			Expect(e.BookingID).To(BeNil())
		})

		It("should allow the range to be reserved again after release", func() {
			openDays(listingID, 0, 2)
			Expect(repo.Reserve(listingID, day(0), day(2), 100)).To(Succeed())
			Expect(repo.Release(100)).To(Succeed())

			Expect(repo.Reserve(listingID, day(0), day(2), 200)).To(Succeed())
			Expect(*entryFor(listingID, day(0)).BookingID).To(Equal(int64(200)))
		})

		It("should be a no-op for a booking that owns no days", func() {
			Expect(repo.Release(999)).To(Succeed())
		})
	})

	Describe("DaysFor", func() {
		It("should list the booking's days in order", func() {
			openDays(listingID, 0, 3)
			Expect(repo.Reserve(listingID, day(0), day(3), 100)).To(Succeed())

			entries, err := repo.DaysFor(100)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[0].Day.Before(entries[2].Day)).To(BeTrue())
		})
	})
})
