package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expertrait/expertrait-backend/pkg/enums"
)

// PayoutRequest tracks a handler cash-out through the processor handshake.
// The wallet debit is written only after the processor accepts the payout.
type PayoutRequest struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	HandlerID         uuid.UUID          `gorm:"column:handler_id;type:uuid;not null;index:ix_payout_requests_handler"`
	Amount            decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status            enums.PayoutStatus `gorm:"column:status;type:payout_status_enum;not null;default:'requested'"`
	ProcessorPayoutID *string            `gorm:"column:processor_payout_id;type:text;uniqueIndex:ux_payout_requests_processor_id"`
	FailureReason     *string            `gorm:"column:failure_reason;type:text"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
