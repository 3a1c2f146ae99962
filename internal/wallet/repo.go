package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
)

// Repository manages the append-only wallet ledger. Entries are only
// ever inserted; balance is derived from the rows at read time.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.WalletLedgerEntry) error
	Balance(ctx context.Context, handlerID uuid.UUID) (decimal.Decimal, error)
	List(ctx context.Context, params ListEntriesParams) ([]models.WalletLedgerEntry, *pagination.Cursor, error)
	FindCreditByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.WalletLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// ListEntriesParams scopes a ledger listing to one handler's entries.
type ListEntriesParams struct {
	HandlerID uuid.UUID
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, entry *models.WalletLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Balance(ctx context.Context, handlerID uuid.UUID) (decimal.Decimal, error) {
	var raw decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.WalletLedgerEntry{}).
		Select("SUM(CASE WHEN kind = 'credit' THEN amount ELSE -amount END)").
		Where("handler_id = ?", handlerID).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !raw.Valid {
		return decimal.Zero, nil
	}
	return raw.Decimal, nil
}

func (r *repository) List(ctx context.Context, params ListEntriesParams) ([]models.WalletLedgerEntry, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.WalletLedgerEntry{}).Where("handler_id = ?", params.HandlerID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var entries []models.WalletLedgerEntry
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	if len(entries) > normalized {
		entries = entries[:normalized]
		// The cursor marks the last row handed out; the next query
		// resumes strictly after it.
		last := entries[normalized-1]
		return entries, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return entries, nil, nil
}

func (r *repository) FindCreditByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.WalletLedgerEntry, error) {
	var entry models.WalletLedgerEntry
	err := r.db.WithContext(ctx).
		Where("related_booking_id = ? AND kind = 'credit'", bookingID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
