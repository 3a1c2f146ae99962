package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/expertrait/expertrait-backend/pkg/config"
	"github.com/expertrait/expertrait-backend/pkg/db"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/outbox"
	"github.com/expertrait/expertrait-backend/pkg/outbox/payloads"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
	"github.com/expertrait/expertrait-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// settler writes the wallet credit for a completed booking inside the
// caller's transaction and returns the settlement ref and credited amount.
type settler interface {
	SettleTx(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (uuid.UUID, decimal.Decimal, error)
}

// Actor identifies who is performing a booking operation.
type Actor struct {
	UserID    uuid.UUID
	HandlerID *uuid.UUID
	Role      enums.ActorRole
}

// AssignInput carries a handler's attempt to accept a pending booking.
type AssignInput struct {
	BookingID uuid.UUID
	Actor     Actor
}

// CancelInput carries a pre-work cancellation.
type CancelInput struct {
	BookingID uuid.UUID
	Actor     Actor
	Reason    string
}

// CheckInInput records the handler arriving on site.
type CheckInInput struct {
	BookingID  uuid.UUID
	Actor      Actor
	Location   *types.GeographyPoint
	RecordedAt *time.Time
}

// CheckOutInput records the handler finishing the job.
type CheckOutInput struct {
	BookingID  uuid.UUID
	Actor      Actor
	Location   *types.GeographyPoint
	RecordedAt *time.Time
}

// ListInput scopes a booking listing to the caller.
type ListInput struct {
	Actor      Actor
	Status     *enums.BookingStatus
	Feed       bool
	Pagination pagination.Params
}

// Page is one page of bookings plus the cursor for the next.
type Page struct {
	Bookings   []models.Booking
	NextCursor string
}

// Service drives the booking lifecycle from ingestion to completion.
type Service interface {
	Ingest(ctx context.Context, event payloads.BookingCreatedEvent) error
	Assign(ctx context.Context, input AssignInput) error
	Cancel(ctx context.Context, input CancelInput) error
	CheckIn(ctx context.Context, input CheckInInput) error
	CheckOut(ctx context.Context, input CheckOutInput) error
	Get(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error)
	List(ctx context.Context, input ListInput) (*Page, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	settler     settler
	log         *logger.Logger
	maxDistance float64
}

// NewService builds a booking service with the required dependencies.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, settler settler, log *logger.Logger, cfg config.BookingsConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if settler == nil {
		return nil, fmt.Errorf("settler required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		outbox:      publisher,
		settler:     settler,
		log:         log,
		maxDistance: cfg.MaxCheckInDistanceMeters,
	}, nil
}

// Ingest creates a pending booking from the catalog's announcement.
// Redeliveries of the same event are no-ops.
func (s *service) Ingest(ctx context.Context, event payloads.BookingCreatedEvent) error {
	if event.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if event.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if !event.PriceAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price amount must be positive")
	}
	if !event.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", event.Currency))
	}

	booking := &models.Booking{
		ID:             event.BookingID,
		CustomerID:     event.CustomerID,
		ServiceName:    event.ServiceName,
		PriceAmount:    event.PriceAmount,
		Currency:       event.Currency,
		Status:         enums.BookingStatusPending,
		ServiceAddress: event.ServiceAddress,
		ScheduledAt:    event.ScheduledAt,
	}
	if event.Lat != nil && event.Lng != nil {
		booking.ServiceLocation = &types.GeographyPoint{Lat: *event.Lat, Lng: *event.Lng}
	}

	if _, err := s.repo.Create(ctx, booking); err != nil {
		if !db.IsUniqueViolation(err, "bookings_pkey") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
		}
		s.log.Info(ctx, "booking already ingested")
	}

	// Redeliveries fall through to here as well; the dedup emit keeps
	// the domain stream at one created event per booking.
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Data:          event,
		})
	})
}

func (s *service) Assign(ctx context.Context, input AssignInput) error {
	if input.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	handlerID, err := requireHandler(input.Actor)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := loadForUpdate(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}

		if booking.HandlerID != nil {
			if *booking.HandlerID == handlerID && booking.Status == enums.BookingStatusAccepted {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "booking already assigned")
		}

		target, err := nextStatus(booking.Status, ActionAssign)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"handler_id": handlerID,
			"status":     target,
		}
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign booking")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingAssigned,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: payloads.BookingAssignedEvent{
				BookingID:  booking.ID,
				CustomerID: booking.CustomerID,
				HandlerID:  handlerID,
			},
		})
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := loadForUpdate(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if err := authorizeActor(booking, input.Actor); err != nil {
			return err
		}

		if booking.Status == enums.BookingStatusCancelled {
			return nil
		}

		target, err := nextStatus(booking.Status, ActionCancel)
		if err != nil {
			return err
		}

		cancelledAt := time.Now().UTC()
		updates := map[string]any{
			"status":       target,
			"cancelled_at": cancelledAt,
		}
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel booking")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCancelled,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: payloads.BookingCancelledEvent{
				BookingID:   booking.ID,
				CustomerID:  booking.CustomerID,
				HandlerID:   booking.HandlerID,
				CancelledAt: cancelledAt,
				Reason:      input.Reason,
			},
		})
	})
}

func (s *service) CheckIn(ctx context.Context, input CheckInInput) error {
	if input.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	handlerID, err := requireHandler(input.Actor)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := loadForUpdate(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if booking.HandlerID == nil || *booking.HandlerID != handlerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "booking is not assigned to this handler")
		}
		if booking.CheckInAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "check-in already recorded")
		}

		target, err := nextStatus(booking.Status, ActionCheckIn)
		if err != nil {
			return err
		}

		if err := s.verifyDistance(booking, input.Location); err != nil {
			return err
		}

		checkInAt := recordedAt(input.RecordedAt)
		updates := map[string]any{
			"status":      target,
			"check_in_at": checkInAt,
		}
		if input.Location != nil {
			updates["check_in_location"] = *input.Location
		}
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record check-in")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCheckedIn,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: payloads.BookingCheckedInEvent{
				BookingID: booking.ID,
				HandlerID: handlerID,
				CheckInAt: checkInAt,
			},
		})
	})
}

// CheckOut completes the booking and settles the wallet credit inside
// the same transaction. A committed completed booking always has its
// settlement ref and credit entry.
func (s *service) CheckOut(ctx context.Context, input CheckOutInput) error {
	if input.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	handlerID, err := requireHandler(input.Actor)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := loadForUpdate(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if booking.HandlerID == nil || *booking.HandlerID != handlerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "booking is not assigned to this handler")
		}
		if booking.CheckInAt == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "check-out requires a recorded check-in")
		}
		if booking.CheckOutAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "check-out already recorded")
		}

		target, err := nextStatus(booking.Status, ActionCheckOut)
		if err != nil {
			return err
		}

		checkOutAt := recordedAt(input.RecordedAt)
		updates := map[string]any{
			"status":       target,
			"check_out_at": checkOutAt,
		}
		if input.Location != nil {
			updates["check_out_location"] = *input.Location
		}
		if err := repo.Update(ctx, booking.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record check-out")
		}

		ref, credited, err := s.settler.SettleTx(ctx, tx, booking.ID)
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCompleted,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: payloads.BookingCompletedEvent{
				BookingID:     booking.ID,
				CustomerID:    booking.CustomerID,
				HandlerID:     handlerID,
				CheckOutAt:    checkOutAt,
				SettlementRef: ref,
				CreditAmount:  credited,
				Currency:      booking.Currency,
			},
		})
	})
}

func (s *service) Get(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}

	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	if err := authorizeActor(booking, actor); err != nil {
		return nil, err
	}

	if booking.Status == enums.BookingStatusCompleted && booking.SettlementRef == nil {
		ctx = s.log.WithField(ctx, "booking_id", booking.ID.String())
		s.log.Error(ctx, "completed booking has no settlement ref", nil)
	}
	return booking, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*Page, error) {
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	params := listBookingsParams{
		Status: input.Status,
		Limit:  input.Pagination.Limit,
		Cursor: cursor,
	}
	switch {
	case input.Feed:
		if _, err := requireHandler(input.Actor); err != nil {
			return nil, err
		}
		params.PendingFeed = true
	case input.Actor.Role == enums.ActorRoleHandler:
		handlerID, err := requireHandler(input.Actor)
		if err != nil {
			return nil, err
		}
		params.HandlerID = &handlerID
	case input.Actor.Role == enums.ActorRoleAdmin:
		// Admins list across all customers and handlers.
	default:
		if input.Actor.UserID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
		}
		customerID := input.Actor.UserID
		params.CustomerID = &customerID
	}

	results, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}

	page := &Page{Bookings: results}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) verifyDistance(booking *models.Booking, location *types.GeographyPoint) error {
	if s.maxDistance <= 0 || booking.ServiceLocation == nil || location == nil {
		return nil
	}
	if booking.ServiceLocation.DistanceMeters(*location) > s.maxDistance {
		return pkgerrors.New(pkgerrors.CodeValidation, "check-in location is too far from the service address")
	}
	return nil
}

func loadForUpdate(ctx context.Context, repo Repository, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := repo.FindByIDForUpdate(ctx, bookingID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

func requireHandler(actor Actor) (uuid.UUID, error) {
	if actor.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.Role != enums.ActorRoleHandler || actor.HandlerID == nil || *actor.HandlerID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "handler context missing")
	}
	return *actor.HandlerID, nil
}

func authorizeActor(booking *models.Booking, actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleHandler:
		if actor.HandlerID != nil && booking.HandlerID != nil && *actor.HandlerID == *booking.HandlerID {
			return nil
		}
	default:
		if booking.CustomerID == actor.UserID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to caller")
}

func recordedAt(override *time.Time) time.Time {
	if override != nil {
		return override.UTC()
	}
	return time.Now().UTC()
}

func buildActor(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:    actor.UserID,
		HandlerID: actor.HandlerID,
		Role:      actor.Role.String(),
	}
}
