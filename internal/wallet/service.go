package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expertrait/expertrait-backend/pkg/db/models"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
)

// Service exposes the handler-facing wallet read surface.
type Service interface {
	Balance(ctx context.Context, handlerID uuid.UUID) (decimal.Decimal, error)
	ListEntries(ctx context.Context, handlerID uuid.UUID, params pagination.Params) (*EntriesPage, error)
}

// EntriesPage is one page of ledger entries plus the cursor for the next.
type EntriesPage struct {
	Entries    []models.WalletLedgerEntry
	NextCursor string
}

type service struct {
	repo Repository
}

// NewService wires a wallet service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Balance(ctx context.Context, handlerID uuid.UUID) (decimal.Decimal, error) {
	if handlerID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "handler id is required")
	}
	return s.repo.Balance(ctx, handlerID)
}

func (s *service) ListEntries(ctx context.Context, handlerID uuid.UUID, params pagination.Params) (*EntriesPage, error) {
	if handlerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "handler id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	entries, next, err := s.repo.List(ctx, ListEntriesParams{
		HandlerID: handlerID,
		Limit:     params.Limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, err
	}

	page := &EntriesPage{Entries: entries}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}
