package payouts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/expertrait/expertrait-backend/internal/handlers"
	"github.com/expertrait/expertrait-backend/internal/wallet"
	"github.com/expertrait/expertrait-backend/pkg/config"
	"github.com/expertrait/expertrait-backend/pkg/db"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/metrics"
	"github.com/expertrait/expertrait-backend/pkg/outbox"
	"github.com/expertrait/expertrait-backend/pkg/outbox/payloads"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Processor is the payment processor surface the coordinator needs.
// *stripe.Client satisfies it.
type Processor interface {
	PayoutsEnabled(ctx context.Context, accountID string) (bool, error)
	CreatePayout(ctx context.Context, accountID string, amountMinor int64, currency string, idempotencyKey string) (string, error)
}

// Page is one page of payout requests plus the cursor for the next.
type Page struct {
	Requests   []models.PayoutRequest
	NextCursor string
}

// Service coordinates handler cash-outs. The ledger debit is written
// only after the processor accepts the payout; every external failure
// leaves the wallet balance untouched.
type Service interface {
	RequestPayout(ctx context.Context, handlerID uuid.UUID) (*models.PayoutRequest, error)
	ApplyProcessorStatus(ctx context.Context, processorPayoutID string, status enums.PayoutStatus, failureReason *string) error
	List(ctx context.Context, handlerID uuid.UUID, params pagination.Params) (*Page, error)
}

type service struct {
	repo      Repository
	handlers  handlers.Repository
	wallet    wallet.Repository
	tx        txRunner
	processor Processor
	outbox    outboxPublisher
	log       *logger.Logger
	metrics   *metrics.DomainMetrics
	cfg       config.PayoutsConfig
}

// NewService builds a payout coordinator with the required dependencies.
func NewService(
	repo Repository,
	handlerRepo handlers.Repository,
	walletRepo wallet.Repository,
	tx txRunner,
	processor Processor,
	publisher outboxPublisher,
	log *logger.Logger,
	domainMetrics *metrics.DomainMetrics,
	cfg config.PayoutsConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if handlerRepo == nil {
		return nil, fmt.Errorf("handlers repository required")
	}
	if walletRepo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		handlers:  handlerRepo,
		wallet:    walletRepo,
		tx:        tx,
		processor: processor,
		outbox:    publisher,
		log:       log,
		metrics:   domainMetrics,
		cfg:       cfg,
	}, nil
}

func (s *service) RequestPayout(ctx context.Context, handlerID uuid.UUID) (*models.PayoutRequest, error) {
	if handlerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "handler id required")
	}

	handler, err := s.handlers.FindByID(ctx, handlerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "handler not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load handler")
	}

	// Live check, never cached. A disabled account fails before any row
	// is written.
	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.AccountCheckTimeout)
	enabled, err := s.processor.PayoutsEnabled(checkCtx, handler.ProcessorAccountID)
	cancel()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payout eligibility")
	}
	if !enabled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payouts are not enabled for this account")
	}

	request, err := s.openRequest(ctx, handler)
	if err != nil {
		return nil, err
	}

	// The request row is committed before the processor call so a crash
	// mid-submit leaves an auditable `requested` record and no debit.
	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	processorID, submitErr := s.processor.CreatePayout(
		submitCtx,
		handler.ProcessorAccountID,
		amountMinorUnits(request.Amount),
		request.Currency.String(),
		request.ID.String(),
	)
	cancel()

	if submitErr != nil {
		if failErr := s.markFailed(ctx, request, submitErr.Error()); failErr != nil {
			return nil, failErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, submitErr, "submit payout")
	}

	if err := s.markSubmitted(ctx, request, processorID); err != nil {
		return nil, err
	}
	return request, nil
}

// openRequest runs the first transaction: serialize on the handler row,
// reject a second in-flight request, snapshot the balance, and insert
// the `requested` row.
func (s *service) openRequest(ctx context.Context, handler *models.Handler) (*models.PayoutRequest, error) {
	var request *models.PayoutRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.handlers.WithTx(tx).FindByIDForUpdate(ctx, handler.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock handler")
		}

		repo := s.repo.WithTx(tx)
		open, err := repo.FindOpenByHandler(ctx, handler.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open payout requests")
		}
		if open != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "a payout request is already in flight")
		}

		balance, err := s.wallet.WithTx(tx).Balance(ctx, handler.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot wallet balance")
		}
		if !balance.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no balance available for payout")
		}

		request = &models.PayoutRequest{
			ID:        uuid.New(),
			HandlerID: handler.ID,
			Amount:    balance,
			Currency:  enums.CurrencyUSD,
			Status:    enums.PayoutStatusRequested,
		}
		if err := repo.Insert(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "ux_payout_requests_handler_open") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a payout request is already in flight")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payout request")
		}

		s.metrics.IncPayout(enums.PayoutStatusRequested.String())
		return s.emitStatusChanged(ctx, tx, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// markSubmitted records processor acceptance and only then writes the
// wallet debit, in one transaction.
func (s *service) markSubmitted(ctx context.Context, request *models.PayoutRequest, processorID string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateStatus(ctx, request.ID, enums.PayoutStatusRequested, map[string]any{
			"status":              enums.PayoutStatusSubmitted,
			"processor_payout_id": processorID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout submitted")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout request is no longer open")
		}

		debit := &models.WalletLedgerEntry{
			ID:              uuid.New(),
			HandlerID:       request.HandlerID,
			Kind:            enums.LedgerEntryKindDebit,
			Amount:          request.Amount,
			Currency:        request.Currency,
			RelatedPayoutID: &request.ID,
		}
		if err := s.wallet.WithTx(tx).Insert(ctx, debit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payout debit")
		}

		request.Status = enums.PayoutStatusSubmitted
		request.ProcessorPayoutID = &processorID
		s.metrics.IncPayout(enums.PayoutStatusSubmitted.String())

		logCtx := s.log.WithFields(ctx, map[string]any{
			"payout_request_id":   request.ID.String(),
			"processor_payout_id": processorID,
			"amount":              request.Amount.String(),
		})
		s.log.Info(logCtx, "payout submitted and debit recorded")
		return s.emitStatusChanged(ctx, tx, request)
	})
}

// markFailed closes the request without touching the ledger.
func (s *service) markFailed(ctx context.Context, request *models.PayoutRequest, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateStatus(ctx, request.ID, enums.PayoutStatusRequested, map[string]any{
			"status":         enums.PayoutStatusFailed,
			"failure_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout failed")
		}
		if affected == 0 {
			return nil
		}

		request.Status = enums.PayoutStatusFailed
		request.FailureReason = &reason
		s.metrics.IncPayout(enums.PayoutStatusFailed.String())

		logCtx := s.log.WithField(ctx, "payout_request_id", request.ID.String())
		s.log.Warn(logCtx, "payout submission failed, no debit written")
		return s.emitStatusChanged(ctx, tx, request)
	})
}

// ApplyProcessorStatus advances a submitted payout from a processor
// webhook. Transitions only ever move forward; repeats are no-ops.
func (s *service) ApplyProcessorStatus(ctx context.Context, processorPayoutID string, status enums.PayoutStatus, failureReason *string) error {
	if processorPayoutID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "processor payout id required")
	}
	if status != enums.PayoutStatusPaid && status != enums.PayoutStatusFailed {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("processor cannot set status %s", status))
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByProcessorID(ctx, processorPayoutID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payout request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout request")
		}

		if request.Status == status {
			return nil
		}
		if !request.Status.CanAdvanceTo(status) {
			return pkgerrors.New(
				pkgerrors.CodeStateConflict,
				fmt.Sprintf("payout in status %s cannot move to %s", request.Status, status),
			)
		}

		updates := map[string]any{"status": status}
		if status == enums.PayoutStatusFailed && failureReason != nil {
			updates["failure_reason"] = *failureReason
		}
		affected, err := repo.UpdateStatus(ctx, request.ID, request.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance payout status")
		}
		if affected == 0 {
			return nil
		}

		request.Status = status
		if status == enums.PayoutStatusFailed {
			request.FailureReason = failureReason
		}
		s.metrics.IncPayout(status.String())
		return s.emitStatusChanged(ctx, tx, request)
	})
}

func (s *service) List(ctx context.Context, handlerID uuid.UUID, params pagination.Params) (*Page, error) {
	if handlerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "handler id required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	requests, next, err := s.repo.List(ctx, listPayoutsParams{
		HandlerID: handlerID,
		Limit:     params.Limit,
		Cursor:    cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout requests")
	}

	page := &Page{Requests: requests}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, request *models.PayoutRequest) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutStatusChanged,
		AggregateType: enums.AggregatePayoutRequest,
		AggregateID:   request.ID,
		Version:       1,
		Data: payloads.PayoutStatusChangedEvent{
			PayoutRequestID:   request.ID,
			HandlerID:         request.HandlerID,
			Status:            request.Status,
			Amount:            request.Amount,
			Currency:          request.Currency,
			ProcessorPayoutID: request.ProcessorPayoutID,
			FailureReason:     request.FailureReason,
		},
	})
}

// amountMinorUnits converts a two-decimal amount into processor minor
// units (cents).
func amountMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
