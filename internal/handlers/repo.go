package handlers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/expertrait/expertrait-backend/pkg/db/models"
)

// Repository persists handler profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Handler, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Handler, error)
	UpdateAvailability(ctx context.Context, id uuid.UUID, available bool) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a handlers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Handler, error) {
	var handler models.Handler
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&handler).Error
	if err != nil {
		return nil, err
	}
	return &handler, nil
}

// FindByIDForUpdate locks the handler row. Payout requests take this
// lock so per-handler payout processing serializes.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Handler, error) {
	var handler models.Handler
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&handler).Error
	if err != nil {
		return nil, err
	}
	return &handler, nil
}

func (r *repository) UpdateAvailability(ctx context.Context, id uuid.UUID, available bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Handler{}).
		Where("id = ?", id).
		Update("available", available)
	return res.RowsAffected, res.Error
}
