package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/expertrait/expertrait-backend/pkg/config"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/outbox"
	"github.com/expertrait/expertrait-backend/pkg/outbox/payloads"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
	"github.com/expertrait/expertrait-backend/pkg/types"
)

type fakeRepository struct {
	createFn        func(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	findByIDFn      func(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	findForUpdateFn func(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	updateFn        func(ctx context.Context, id uuid.UUID, updates map[string]any) error
	listFn          func(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if f.createFn != nil {
		return f.createFn(ctx, booking)
	}
	return booking, nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if f.findForUpdateFn != nil {
		return f.findForUpdateFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, updates)
	}
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if f.err != nil {
		return f.err
	}
	for _, existing := range f.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	f.events = append(f.events, event)
	return nil
}

type fakeSettler struct {
	ref    uuid.UUID
	amount decimal.Decimal
	err    error
	calls  int
}

func (f *fakeSettler) SettleTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return uuid.Nil, decimal.Zero, f.err
	}
	return f.ref, f.amount, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "bookings-test"})
}

func newTestService(t *testing.T, repo Repository, publisher *fakeOutbox, settle *fakeSettler, cfg config.BookingsConfig) Service {
	t.Helper()

	svc, err := NewService(repo, fakeTxRunner{}, publisher, settle, testLogger(), cfg)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func handlerActor(handlerID uuid.UUID) Actor {
	return Actor{UserID: uuid.New(), HandlerID: &handlerID, Role: enums.ActorRoleHandler}
}

func pendingBooking() *models.Booking {
	return &models.Booking{
		ID:          uuid.New(),
		CustomerID:  uuid.New(),
		ServiceName: "deep clean",
		PriceAmount: decimal.RequireFromString("45.00"),
		Currency:    enums.CurrencyUSD,
		Status:      enums.BookingStatusPending,
		ScheduledAt: time.Now().UTC(),
	}
}

func TestAssignAcceptsPendingBooking(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	var captured map[string]any

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, updates map[string]any) error {
			captured = updates
			return nil
		},
	}
	publisher := &fakeOutbox{}
	svc := newTestService(t, repo, publisher, &fakeSettler{}, config.BookingsConfig{})

	err := svc.Assign(context.Background(), AssignInput{BookingID: booking.ID, Actor: handlerActor(handlerID)})
	if err != nil {
		t.Fatalf("unexpected assign error: %v", err)
	}
	if captured["status"] != enums.BookingStatusAccepted {
		t.Fatalf("expected accepted status, got %v", captured["status"])
	}
	if captured["handler_id"] != handlerID {
		t.Fatalf("expected handler id recorded")
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventBookingAssigned {
		t.Fatalf("expected booking assigned event, got %+v", publisher.events)
	}
}

func TestAssignAlreadyAssignedConflict(t *testing.T) {
	booking := pendingBooking()
	other := uuid.New()
	booking.HandlerID = &other
	booking.Status = enums.BookingStatusAccepted

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	err := svc.Assign(context.Background(), AssignInput{BookingID: booking.ID, Actor: handlerActor(uuid.New())})
	if err == nil {
		t.Fatal("expected conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAssignSameHandlerIsIdempotent(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusAccepted

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, updates map[string]any) error {
			t.Fatal("no update expected on idempotent assign")
			return nil
		},
	}
	publisher := &fakeOutbox{}
	svc := newTestService(t, repo, publisher, &fakeSettler{}, config.BookingsConfig{})

	if err := svc.Assign(context.Background(), AssignInput{BookingID: booking.ID, Actor: handlerActor(handlerID)}); err != nil {
		t.Fatalf("expected idempotent success, got %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no event on idempotent assign")
	}
}

func TestCancelInProgressRejected(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusInProgress

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	actor := Actor{UserID: booking.CustomerID, Role: enums.ActorRoleCustomer}
	err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, Actor: actor})
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCancelRecordsTimestampAndEvent(t *testing.T) {
	booking := pendingBooking()
	var captured map[string]any

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, updates map[string]any) error {
			captured = updates
			return nil
		},
	}
	publisher := &fakeOutbox{}
	svc := newTestService(t, repo, publisher, &fakeSettler{}, config.BookingsConfig{})

	actor := Actor{UserID: booking.CustomerID, Role: enums.ActorRoleCustomer}
	if err := svc.Cancel(context.Background(), CancelInput{BookingID: booking.ID, Actor: actor, Reason: "customer request"}); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if captured["status"] != enums.BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %v", captured["status"])
	}
	if _, ok := captured["cancelled_at"]; !ok {
		t.Fatal("expected cancelled_at recorded")
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventBookingCancelled {
		t.Fatalf("expected cancellation event, got %+v", publisher.events)
	}
}

func TestCheckInWrongHandlerForbidden(t *testing.T) {
	booking := pendingBooking()
	assigned := uuid.New()
	booking.HandlerID = &assigned
	booking.Status = enums.BookingStatusAccepted

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	err := svc.CheckIn(context.Background(), CheckInInput{BookingID: booking.ID, Actor: handlerActor(uuid.New())})
	if err == nil {
		t.Fatal("expected forbidden")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCheckInAlreadyRecordedConflict(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	now := time.Now().UTC()
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusInProgress
	booking.CheckInAt = &now

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	err := svc.CheckIn(context.Background(), CheckInInput{BookingID: booking.ID, Actor: handlerActor(handlerID)})
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCheckInDistanceGateRejectsFarLocation(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusAccepted
	booking.ServiceLocation = &types.GeographyPoint{Lat: 40.7128, Lng: -74.0060}

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{MaxCheckInDistanceMeters: 500})

	// Roughly 8.5km away across the river.
	far := &types.GeographyPoint{Lat: 40.6892, Lng: -74.0445}
	err := svc.CheckIn(context.Background(), CheckInInput{BookingID: booking.ID, Actor: handlerActor(handlerID), Location: far})
	if err == nil {
		t.Fatal("expected distance rejection")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckInAdvancesToInProgress(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusAccepted
	var captured map[string]any

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, updates map[string]any) error {
			captured = updates
			return nil
		},
	}
	publisher := &fakeOutbox{}
	svc := newTestService(t, repo, publisher, &fakeSettler{}, config.BookingsConfig{})

	location := &types.GeographyPoint{Lat: 40.7128, Lng: -74.0060}
	if err := svc.CheckIn(context.Background(), CheckInInput{BookingID: booking.ID, Actor: handlerActor(handlerID), Location: location}); err != nil {
		t.Fatalf("unexpected check-in error: %v", err)
	}
	if captured["status"] != enums.BookingStatusInProgress {
		t.Fatalf("expected in_progress, got %v", captured["status"])
	}
	if _, ok := captured["check_in_at"]; !ok {
		t.Fatal("expected check_in_at recorded")
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventBookingCheckedIn {
		t.Fatalf("expected check-in event, got %+v", publisher.events)
	}
}

func TestCheckOutSettlesAndEmitsCompletion(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	checkIn := time.Now().UTC().Add(-time.Hour)
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusInProgress
	booking.CheckInAt = &checkIn

	settle := &fakeSettler{ref: uuid.New(), amount: decimal.RequireFromString("45.00")}
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	publisher := &fakeOutbox{}
	svc := newTestService(t, repo, publisher, settle, config.BookingsConfig{})

	if err := svc.CheckOut(context.Background(), CheckOutInput{BookingID: booking.ID, Actor: handlerActor(handlerID)}); err != nil {
		t.Fatalf("unexpected check-out error: %v", err)
	}
	if settle.calls != 1 {
		t.Fatalf("expected one settlement call, got %d", settle.calls)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.EventType != enums.EventBookingCompleted {
		t.Fatalf("expected completed event, got %s", event.EventType)
	}
}

func TestCheckOutSettlementFailureAborts(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	checkIn := time.Now().UTC().Add(-time.Hour)
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusInProgress
	booking.CheckInAt = &checkIn

	settle := &fakeSettler{err: errors.New("ledger unavailable")}
	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	publisher := &fakeOutbox{}
	svc := newTestService(t, repo, publisher, settle, config.BookingsConfig{})

	err := svc.CheckOut(context.Background(), CheckOutInput{BookingID: booking.ID, Actor: handlerActor(handlerID)})
	if err == nil {
		t.Fatal("expected settlement failure to propagate")
	}
	if len(publisher.events) != 0 {
		t.Fatal("no completion event should be emitted when settlement fails")
	}
}

func TestCheckOutWithoutCheckInRejected(t *testing.T) {
	booking := pendingBooking()
	handlerID := uuid.New()
	booking.HandlerID = &handlerID
	booking.Status = enums.BookingStatusInProgress

	repo := &fakeRepository{
		findForUpdateFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	err := svc.CheckOut(context.Background(), CheckOutInput{BookingID: booking.ID, Actor: handlerActor(handlerID)})
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestIngestSkipsDuplicateBooking(t *testing.T) {
	repo := &fakeRepository{
		createFn: func(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
			return nil, errors.New(`duplicate key value violates unique constraint "bookings_pkey"`)
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	event := ingestEvent()
	if err := svc.Ingest(context.Background(), event); err != nil {
		t.Fatalf("expected duplicate to be a no-op, got %v", err)
	}
}

func TestIngestEmitsCreatedEventOnce(t *testing.T) {
	created := false
	repo := &fakeRepository{
		createFn: func(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
			if created {
				return nil, errors.New(`duplicate key value violates unique constraint "bookings_pkey"`)
			}
			created = true
			return booking, nil
		},
	}
	publisher := &fakeOutbox{}
	svc := newTestService(t, repo, publisher, &fakeSettler{}, config.BookingsConfig{})

	event := ingestEvent()
	if err := svc.Ingest(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.Ingest(context.Background(), event); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one created event, got %d", len(publisher.events))
	}
	if publisher.events[0].EventType != enums.EventBookingCreated {
		t.Fatalf("expected booking created event, got %s", publisher.events[0].EventType)
	}
	if publisher.events[0].AggregateID != event.BookingID {
		t.Fatalf("expected aggregate %s, got %s", event.BookingID, publisher.events[0].AggregateID)
	}
}

func TestIngestRejectsNonPositivePrice(t *testing.T) {
	svc := newTestService(t, &fakeRepository{}, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	event := ingestEvent()
	event.PriceAmount = decimal.Zero
	err := svc.Ingest(context.Background(), event)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetForbiddenForOtherCustomer(t *testing.T) {
	booking := pendingBooking()
	repo := &fakeRepository{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
			return booking, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	_, err := svc.Get(context.Background(), booking.ID, Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer})
	if err == nil {
		t.Fatal("expected forbidden")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListScopesToCustomer(t *testing.T) {
	customerID := uuid.New()
	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listBookingsParams) ([]models.Booking, *pagination.Cursor, error) {
			if params.CustomerID == nil || *params.CustomerID != customerID {
				t.Fatalf("expected customer scope, got %+v", params)
			}
			return []models.Booking{*pendingBooking()}, nil, nil
		},
	}
	svc := newTestService(t, repo, &fakeOutbox{}, &fakeSettler{}, config.BookingsConfig{})

	page, err := svc.List(context.Background(), ListInput{Actor: Actor{UserID: customerID, Role: enums.ActorRoleCustomer}})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(page.Bookings) != 1 {
		t.Fatalf("expected one booking, got %d", len(page.Bookings))
	}
}

func ingestEvent() payloads.BookingCreatedEvent {
	return payloads.BookingCreatedEvent{
		BookingID:      uuid.New(),
		CustomerID:     uuid.New(),
		ServiceName:    "lawn care",
		PriceAmount:    decimal.RequireFromString("60.00"),
		Currency:       enums.CurrencyUSD,
		ServiceAddress: "12 Elm St",
		ScheduledAt:    time.Now().UTC().Add(24 * time.Hour),
	}
}
