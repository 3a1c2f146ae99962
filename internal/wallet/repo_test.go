package wallet

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

	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

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
	require.NoError(t, db.Exec(entries).Error)
	return db
}

func newCredit(t *testing.T, db *gorm.DB, handlerID uuid.UUID, amount string, createdAt time.Time) *models.WalletLedgerEntry {
	t.Helper()

	bookingID := uuid.New()
	entry := &models.WalletLedgerEntry{
		ID:               uuid.New(),
		HandlerID:        handlerID,
		Kind:             enums.LedgerEntryKindCredit,
		Amount:           decimal.RequireFromString(amount),
		Currency:         enums.CurrencyUSD,
		RelatedBookingID: &bookingID,
		CreatedAt:        createdAt,
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func newDebit(t *testing.T, db *gorm.DB, handlerID uuid.UUID, amount string, createdAt time.Time) *models.WalletLedgerEntry {
	t.Helper()

	payoutID := uuid.New()
	entry := &models.WalletLedgerEntry{
		ID:              uuid.New(),
		HandlerID:       handlerID,
		Kind:            enums.LedgerEntryKindDebit,
		Amount:          decimal.RequireFromString(amount),
		Currency:        enums.CurrencyUSD,
		RelatedPayoutID: &payoutID,
		CreatedAt:       createdAt,
	}
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func TestBalanceSumsCreditsMinusDebits(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	handlerID := uuid.New()
	now := time.Now().UTC()

	newCredit(t, db, handlerID, "45.00", now.Add(-3*time.Hour))
	newCredit(t, db, handlerID, "30.50", now.Add(-2*time.Hour))
	newDebit(t, db, handlerID, "20.00", now.Add(-time.Hour))

	balance, err := repo.Balance(context.Background(), handlerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("55.50")), "got %s", balance)
}

func TestBalanceEmptyLedgerIsZero(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)

	balance, err := repo.Balance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestBalanceIgnoresOtherHandlers(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	handlerID := uuid.New()
	otherID := uuid.New()
	now := time.Now().UTC()

	newCredit(t, db, handlerID, "10.00", now)
	newCredit(t, db, otherID, "99.00", now)

	balance, err := repo.Balance(context.Background(), handlerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("10.00")), "got %s", balance)
}

func TestListPaginatesWithCursor(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	handlerID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		newCredit(t, db, handlerID, "5.00", base.Add(time.Duration(i)*time.Minute))
	}

	first, cursor, err := repo.List(context.Background(), ListEntriesParams{
		HandlerID: handlerID,
		Limit:     3,
	})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, cursor)

	second, next, err := repo.List(context.Background(), ListEntriesParams{
		HandlerID: handlerID,
		Limit:     3,
		Cursor:    cursor,
	})
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Nil(t, next)

	// Newest first, no overlap between pages.
	seen := map[uuid.UUID]bool{}
	for _, entry := range append(first, second...) {
		assert.False(t, seen[entry.ID])
		seen[entry.ID] = true
	}
}

func TestFindCreditByBookingID(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	handlerID := uuid.New()
	entry := newCredit(t, db, handlerID, "45.00", time.Now().UTC())

	found, err := repo.FindCreditByBookingID(context.Background(), *entry.RelatedBookingID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entry.ID, found.ID)

	missing, err := repo.FindCreditByBookingID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListEntriesServiceEncodesCursor(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	svc, err := NewService(repo)
	require.NoError(t, err)

	handlerID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 4; i++ {
		newCredit(t, db, handlerID, "1.00", base.Add(time.Duration(i)*time.Minute))
	}

	page, err := svc.ListEntries(context.Background(), handlerID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.ListEntries(context.Background(), handlerID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Entries, 2)
	assert.Empty(t, rest.NextCursor)
}
