package payouts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
)

// Repository persists payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, request *models.PayoutRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	FindOpenByHandler(ctx context.Context, handlerID uuid.UUID) (*models.PayoutRequest, error)
	FindByProcessorID(ctx context.Context, processorPayoutID string) (*models.PayoutRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, updates map[string]any) (int64, error)
	List(ctx context.Context, params listPayoutsParams) ([]models.PayoutRequest, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type listPayoutsParams struct {
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

func (r *repository) Insert(ctx context.Context, request *models.PayoutRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var request models.PayoutRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindOpenByHandler returns the in-flight request for the handler, or
// nil when none is open.
func (r *repository) FindOpenByHandler(ctx context.Context, handlerID uuid.UUID) (*models.PayoutRequest, error) {
	var request models.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("handler_id = ? AND status = ?", handlerID, enums.PayoutStatusRequested).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindByProcessorID(ctx context.Context, processorPayoutID string) (*models.PayoutRequest, error) {
	var request models.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("processor_payout_id = ?", processorPayoutID).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// UpdateStatus applies updates only when the row is still in the
// expected status. Zero rows affected means another writer got there
// first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.PayoutStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, params listPayoutsParams) ([]models.PayoutRequest, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("handler_id = ?", params.HandlerID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var requests []models.PayoutRequest
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&requests).Error; err != nil {
		return nil, nil, err
	}

	if len(requests) > normalized {
		requests = requests[:normalized]
		// The cursor marks the last row handed out; the next query
		// resumes strictly after it.
		last := requests[normalized-1]
		return requests, &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return requests, nil, nil
}
