package models

import (
	"time"

	"github.com/google/uuid"
)

// Handler represents a field professional who fulfills bookings and
// accumulates earnings in the wallet ledger.
type Handler struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DisplayName        string    `gorm:"column:display_name;type:text;not null"`
	Available          bool      `gorm:"column:available;not null;default:true"`
	ProcessorAccountID string    `gorm:"column:processor_account_id;type:text;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
