package bookings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
)

// Repository persists bookings and the lifecycle columns that change
// as they move through their statuses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listBookingsParams struct {
	// CustomerID and HandlerID scope the result set; PendingFeed lists
	// unassigned pending bookings instead.
	CustomerID  *uuid.UUID
	HandlerID   *uuid.UUID
	Status      *enums.BookingStatus
	PendingFeed bool
	Limit       int
	Cursor      *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate locks the row so concurrent lifecycle actions on
// the same booking serialize instead of racing.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) List(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Booking{})
	switch {
	case params.PendingFeed:
		query = query.Where("status = ? AND handler_id IS NULL", enums.BookingStatusPending)
	case params.HandlerID != nil:
		query = query.Where("handler_id = ?", *params.HandlerID)
	case params.CustomerID != nil:
		query = query.Where("customer_id = ?", *params.CustomerID)
	}
	if params.Status != nil && !params.PendingFeed {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var results []models.Booking
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&results).Error; err != nil {
		return nil, nil, err
	}

	if len(results) > normalized {
		results = results[:normalized]
		// The cursor marks the last row handed out; the next query
		// resumes strictly after it.
		last := results[normalized-1]
		return results, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return results, nil, nil
}
