package payment

import (
	"encoding/json"
	"time"
)

const (
	StatusPending           = "pending"
	StatusProcessing        = "processing"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
)

const (
	TypeReservation = "reservation"
	TypeCheckin     = "checkin"
	TypeFull        = "full"
	TypeRefund      = "refund"
)

// Payment is one settlement event against a booking. Rows are append-only in
// effect: refunds are new rows of type refund, completed rows are never
// deleted. Two schema-level invariants carry the exactly-once guarantee:
// UNIQUE(booking_id, payment_type, idempotency_key) and the partial unique
// index over external_charge_id.
type Payment struct {
	ID               int64           `gorm:"primaryKey"`
	BookingID        int64           `gorm:"column:booking_id;not null;uniqueIndex:uq_payments_idem"`
	PaymentType      string          `gorm:"column:payment_type;not null;uniqueIndex:uq_payments_idem"`
	IdempotencyKey   string          `gorm:"column:idempotency_key;not null;uniqueIndex:uq_payments_idem"`
	AmountCents      int64           `gorm:"column:amount_cents;not null"`
	Status           string          `gorm:"column:status;default:pending"`
	ExternalChargeID *string         `gorm:"column:external_charge_id;uniqueIndex"`
	GatewayResponse  json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	FailureReason    *string         `gorm:"column:failure_reason"`
	RetryCount       int             `gorm:"column:retry_count;default:0"`
	PaidAt           *time.Time      `gorm:"column:paid_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}
