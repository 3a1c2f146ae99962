package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expertrait/expertrait-backend/pkg/enums"
)

// WalletLedgerEntry is an append-only wallet movement. Credits reference
// the settled booking; debits reference the payout request that drained
// the balance. Rows are never updated or deleted.
type WalletLedgerEntry struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	HandlerID        uuid.UUID             `gorm:"column:handler_id;type:uuid;not null;index:ix_wallet_ledger_handler_created,priority:1"`
	Kind             enums.LedgerEntryKind `gorm:"column:kind;type:ledger_entry_kind_enum;not null"`
	Amount           decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         enums.Currency        `gorm:"column:currency;type:text;not null;default:'USD'"`
	RelatedBookingID *uuid.UUID            `gorm:"column:related_booking_id;type:uuid"`
	RelatedPayoutID  *uuid.UUID            `gorm:"column:related_payout_id;type:uuid"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime;index:ix_wallet_ledger_handler_created,priority:2"`
}
