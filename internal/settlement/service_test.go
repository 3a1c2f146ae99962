package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/expertrait/expertrait-backend/pkg/config"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

func setupSettlementTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	bookings := `
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  handler_id TEXT,
  service_name TEXT NOT NULL,
  price_amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  service_address TEXT NOT NULL,
  service_location TEXT,
  scheduled_at DATETIME,
  check_in_at DATETIME,
  check_in_location TEXT,
  check_out_at DATETIME,
  check_out_location TEXT,
  settlement_ref TEXT UNIQUE,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	entries := `
CREATE TABLE IF NOT EXISTS wallet_ledger_entries (
  id TEXT PRIMARY KEY,
  handler_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  related_booking_id TEXT,
  related_payout_id TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(bookings).Error)
	require.NoError(t, db.Exec(entries).Error)
	return db
}

func newSettlementService(t *testing.T, db *gorm.DB, feePercent float64) Service {
	t.Helper()

	svc, err := NewService(
		gormTxRunner{db: db},
		logger.New(logger.Options{ServiceName: "settlement-test"}),
		nil,
		config.SettlementConfig{FeePercent: feePercent},
	)
	require.NoError(t, err)
	return svc
}

func seedCompletedBooking(t *testing.T, db *gorm.DB, price string) *models.Booking {
	t.Helper()

	handlerID := uuid.New()
	now := time.Now().UTC()
	checkIn := now.Add(-2 * time.Hour)
	booking := &models.Booking{
		ID:             uuid.New(),
		CustomerID:     uuid.New(),
		HandlerID:      &handlerID,
		ServiceName:    "gutter repair",
		PriceAmount:    decimal.RequireFromString(price),
		Currency:       enums.CurrencyUSD,
		Status:         enums.BookingStatusCompleted,
		ServiceAddress: "9 Oak Ave",
		ScheduledAt:    checkIn,
		CheckInAt:      &checkIn,
		CheckOutAt:     &now,
		CreatedAt:      now,
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

func TestSettleCreditsFullPrice(t *testing.T) {
	db := setupSettlementTestDB(t)
	svc := newSettlementService(t, db, 0)
	booking := seedCompletedBooking(t, db, "45.00")

	ref, credited, err := svc.Settle(context.Background(), booking.ID)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, ref)
	assert.True(t, credited.Equal(decimal.RequireFromString("45.00")), "got %s", credited)

	var reloaded models.Booking
	require.NoError(t, db.First(&reloaded, "id = ?", booking.ID).Error)
	require.NotNil(t, reloaded.SettlementRef)
	assert.Equal(t, ref, *reloaded.SettlementRef)

	var entry models.WalletLedgerEntry
	require.NoError(t, db.First(&entry, "id = ?", ref).Error)
	assert.Equal(t, enums.LedgerEntryKindCredit, entry.Kind)
	assert.Equal(t, *booking.HandlerID, entry.HandlerID)
	require.NotNil(t, entry.RelatedBookingID)
	assert.Equal(t, booking.ID, *entry.RelatedBookingID)
}

func TestSettleTwiceReturnsSameRefOnce(t *testing.T) {
	db := setupSettlementTestDB(t)
	svc := newSettlementService(t, db, 0)
	booking := seedCompletedBooking(t, db, "45.00")

	first, firstAmount, err := svc.Settle(context.Background(), booking.ID)
	require.NoError(t, err)

	second, secondAmount, err := svc.Settle(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, firstAmount.Equal(secondAmount))

	var count int64
	require.NoError(t, db.Model(&models.WalletLedgerEntry{}).
		Where("related_booking_id = ?", booking.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count, "expected exactly one credit entry")
}

func TestSettleAppliesFeePercent(t *testing.T) {
	db := setupSettlementTestDB(t)
	svc := newSettlementService(t, db, 20)
	booking := seedCompletedBooking(t, db, "45.00")

	_, credited, err := svc.Settle(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.True(t, credited.Equal(decimal.RequireFromString("36.00")), "got %s", credited)
}

func TestSettleRejectsUncompletedBooking(t *testing.T) {
	db := setupSettlementTestDB(t)
	svc := newSettlementService(t, db, 0)

	booking := seedCompletedBooking(t, db, "45.00")
	require.NoError(t, db.Model(&models.Booking{}).
		Where("id = ?", booking.ID).
		Update("status", enums.BookingStatusInProgress).Error)

	_, _, err := svc.Settle(context.Background(), booking.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	var count int64
	require.NoError(t, db.Model(&models.WalletLedgerEntry{}).
		Where("related_booking_id = ?", booking.ID).
		Count(&count).Error)
	assert.Zero(t, count)
}

func TestSettleUnknownBookingNotFound(t *testing.T) {
	db := setupSettlementTestDB(t)
	svc := newSettlementService(t, db, 0)

	_, _, err := svc.Settle(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestSettleTxRequiresTransaction(t *testing.T) {
	db := setupSettlementTestDB(t)
	svc := newSettlementService(t, db, 0)

	_, _, err := svc.SettleTx(context.Background(), nil, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestNewServiceRejectsInvalidFee(t *testing.T) {
	db := setupSettlementTestDB(t)
	_, err := NewService(
		gormTxRunner{db: db},
		logger.New(logger.Options{ServiceName: "settlement-test"}),
		nil,
		config.SettlementConfig{FeePercent: 100},
	)
	require.Error(t, err)
}
