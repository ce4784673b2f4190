package calendar

import "time"

const (
	StatusAvailable = "available"
	StatusHeld      = "held"
	StatusBooked    = "booked"
)

// Entry is one availability row per (listing, day). The unique index over
// (listing_id, day) is the invariant that makes concurrent reservation
// attempts for overlapping ranges produce exactly one winner.
type Entry struct {
	ID                 int64      `gorm:"primaryKey"`
	ListingID          int64      `gorm:"column:listing_id;not null;uniqueIndex:uq_calendar_listing_day"`
	Day                time.Time  `gorm:"column:day;type:date;not null;uniqueIndex:uq_calendar_listing_day"`
	Status             string     `gorm:"column:status;default:available"`
	BookingID          *int64     `gorm:"column:booking_id;index"`
	OverridePriceCents *int64     `gorm:"column:override_price_cents"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Entry) TableName() string {
	return "calendar_entries"
}
