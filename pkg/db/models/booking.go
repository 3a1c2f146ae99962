package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expertrait/expertrait-backend/pkg/enums"
	"github.com/expertrait/expertrait-backend/pkg/types"
)

// Booking represents a fixed-price service job through its lifecycle.
// SettlementRef is set exactly once when the wallet credit is written.
type Booking struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID       uuid.UUID             `gorm:"column:customer_id;type:uuid;not null"`
	HandlerID        *uuid.UUID            `gorm:"column:handler_id;type:uuid"`
	ServiceName      string                `gorm:"column:service_name;type:text;not null"`
	PriceAmount      decimal.Decimal       `gorm:"column:price_amount;type:numeric(12,2);not null"`
	Currency         enums.Currency        `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status           enums.BookingStatus   `gorm:"column:status;type:booking_status_enum;not null;default:'pending'"`
	ServiceAddress   string                `gorm:"column:service_address;type:text;not null"`
	ServiceLocation  *types.GeographyPoint `gorm:"column:service_location;type:jsonb;serializer:json"`
	ScheduledAt      time.Time             `gorm:"column:scheduled_at;type:timestamptz;not null"`
	CheckInAt        *time.Time            `gorm:"column:check_in_at;type:timestamptz"`
	CheckInLocation  *types.GeographyPoint `gorm:"column:check_in_location;type:jsonb;serializer:json"`
	CheckOutAt       *time.Time            `gorm:"column:check_out_at;type:timestamptz"`
	CheckOutLocation *types.GeographyPoint `gorm:"column:check_out_location;type:jsonb;serializer:json"`
	SettlementRef    *uuid.UUID            `gorm:"column:settlement_ref;type:uuid;uniqueIndex:ux_bookings_settlement_ref"`
	CancelledAt      *time.Time            `gorm:"column:cancelled_at;type:timestamptz"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
