package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/expertrait/expertrait-backend/pkg/db/models"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
)

// Service exposes handler profile operations.
type Service interface {
	Get(ctx context.Context, handlerID uuid.UUID) (*models.Handler, error)
	SetAvailability(ctx context.Context, handlerID uuid.UUID, available bool) (*models.Handler, error)
}

type service struct {
	repo Repository
}

// NewService wires a handlers service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("handlers repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, handlerID uuid.UUID) (*models.Handler, error) {
	if handlerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "handler id required")
	}
	handler, err := s.repo.FindByID(ctx, handlerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "handler not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load handler")
	}
	return handler, nil
}

func (s *service) SetAvailability(ctx context.Context, handlerID uuid.UUID, available bool) (*models.Handler, error) {
	if handlerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "handler id required")
	}

	affected, err := s.repo.UpdateAvailability(ctx, handlerID, available)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update availability")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "handler not found")
	}
	return s.Get(ctx, handlerID)
}
