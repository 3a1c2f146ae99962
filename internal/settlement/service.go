package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/expertrait/expertrait-backend/pkg/config"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service writes the wallet credit for completed bookings. The
// settlement ref on the booking row is set at most once and doubles as
// the id of the credit ledger entry; the partial unique index on
// settlement_ref backs the one-credit-per-booking invariant.
type Service interface {
	// SettleTx settles inside the caller's transaction and returns the
	// settlement ref and credited amount. Already settled bookings
	// return the existing ref and amount.
	SettleTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (uuid.UUID, decimal.Decimal, error)
	// Settle is the standalone re-drive entry point for bookings that
	// somehow reached completed without a credit.
	Settle(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, decimal.Decimal, error)
}

type service struct {
	tx      txRunner
	log     *logger.Logger
	metrics *metrics.DomainMetrics
	fee     decimal.Decimal
}

// NewService builds a settlement service. The fee percent comes from
// configuration and is never inferred.
func NewService(tx txRunner, log *logger.Logger, domainMetrics *metrics.DomainMetrics, cfg config.SettlementConfig) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	fee := decimal.NewFromFloat(cfg.FeePercent)
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("settlement fee percent must be in [0, 100)")
	}
	return &service{
		tx:      tx,
		log:     log,
		metrics: domainMetrics,
		fee:     fee,
	}, nil
}

func (s *service) Settle(ctx context.Context, bookingID uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	var ref uuid.UUID
	var credited decimal.Decimal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var innerErr error
		ref, credited, innerErr = s.SettleTx(ctx, tx, bookingID)
		return innerErr
	})
	if err != nil {
		return uuid.Nil, decimal.Zero, err
	}
	return ref, credited, nil
}

func (s *service) SettleTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	if tx == nil {
		return uuid.Nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for settlement")
	}
	if bookingID == uuid.Nil {
		return uuid.Nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}

	booking, err := s.lockBooking(ctx, tx, bookingID)
	if err != nil {
		return uuid.Nil, decimal.Zero, err
	}

	if booking.Status != enums.BookingStatusCompleted {
		return uuid.Nil, decimal.Zero, pkgerrors.New(
			pkgerrors.CodeStateConflict,
			fmt.Sprintf("booking in status %s cannot be settled", booking.Status),
		)
	}
	if booking.HandlerID == nil {
		return uuid.Nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "completed booking has no handler")
	}

	if booking.SettlementRef != nil {
		return s.existingSettlement(ctx, tx, booking)
	}

	credited := s.creditedAmount(booking.PriceAmount)
	ref := uuid.New()

	res := tx.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND settlement_ref IS NULL", booking.ID).
		Update("settlement_ref", ref)
	if res.Error != nil {
		return uuid.Nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "set settlement ref")
	}
	if res.RowsAffected == 0 {
		// A concurrent settle won the race; surface its result.
		reloaded, err := s.lockBooking(ctx, tx, booking.ID)
		if err != nil {
			return uuid.Nil, decimal.Zero, err
		}
		return s.existingSettlement(ctx, tx, reloaded)
	}

	entry := &models.WalletLedgerEntry{
		ID:               ref,
		HandlerID:        *booking.HandlerID,
		Kind:             enums.LedgerEntryKindCredit,
		Amount:           credited,
		Currency:         booking.Currency,
		RelatedBookingID: &booking.ID,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return uuid.Nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert settlement credit")
	}

	s.metrics.IncSettlement("settled")
	logCtx := s.log.WithFields(ctx, map[string]any{
		"booking_id":     booking.ID.String(),
		"settlement_ref": ref.String(),
		"amount":         credited.String(),
	})
	s.log.Info(logCtx, "booking settled")
	return ref, credited, nil
}

func (s *service) lockBooking(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", bookingID).
		First(&booking).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return &booking, nil
}

// existingSettlement resolves the idempotent path: the credit is already
// written, so return its ref and amount as a success.
func (s *service) existingSettlement(ctx context.Context, tx *gorm.DB, booking *models.Booking) (uuid.UUID, decimal.Decimal, error) {
	if booking.SettlementRef == nil {
		return uuid.Nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "settlement ref missing after settle race")
	}

	var entry models.WalletLedgerEntry
	err := tx.WithContext(ctx).
		Where("related_booking_id = ? AND kind = ?", booking.ID, enums.LedgerEntryKindCredit).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Ref without credit breaks the settlement invariant; do not patch it here.
			logCtx := s.log.WithField(ctx, "booking_id", booking.ID.String())
			s.log.Error(logCtx, "settlement ref set but credit entry missing", nil)
			return uuid.Nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeDependency, "settlement credit missing")
		}
		return uuid.Nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement credit")
	}

	s.metrics.IncSettlement("already_settled")
	return *booking.SettlementRef, entry.Amount, nil
}

func (s *service) creditedAmount(price decimal.Decimal) decimal.Decimal {
	if s.fee.IsZero() {
		return price
	}
	keep := decimal.NewFromInt(100).Sub(s.fee)
	return price.Mul(keep).Div(decimal.NewFromInt(100)).Round(2)
}
