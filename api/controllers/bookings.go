package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/expertrait/expertrait-backend/api/responses"
	"github.com/expertrait/expertrait-backend/api/validators"
	"github.com/expertrait/expertrait-backend/internal/bookings"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
	"github.com/expertrait/expertrait-backend/pkg/types"
)

type bookingResponse struct {
	ID              uuid.UUID             `json:"id"`
	CustomerID      uuid.UUID             `json:"customer_id"`
	HandlerID       *uuid.UUID            `json:"handler_id,omitempty"`
	ServiceName     string                `json:"service_name"`
	PriceAmount     string                `json:"price_amount"`
	Currency        string                `json:"currency"`
	Status          string                `json:"status"`
	ServiceAddress  string                `json:"service_address"`
	ServiceLocation *types.GeographyPoint `json:"service_location,omitempty"`
	ScheduledAt     time.Time             `json:"scheduled_at"`
	CheckInAt       *time.Time            `json:"check_in_at,omitempty"`
	CheckOutAt      *time.Time            `json:"check_out_at,omitempty"`
	SettlementRef   *uuid.UUID            `json:"settlement_ref,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

type bookingPageResponse struct {
	Items  []bookingResponse `json:"items"`
	Cursor string            `json:"cursor,omitempty"`
}

func toBookingResponse(b models.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		CustomerID:      b.CustomerID,
		HandlerID:       b.HandlerID,
		ServiceName:     b.ServiceName,
		PriceAmount:     b.PriceAmount.StringFixed(2),
		Currency:        string(b.Currency),
		Status:          string(b.Status),
		ServiceAddress:  b.ServiceAddress,
		ServiceLocation: b.ServiceLocation,
		ScheduledAt:     b.ScheduledAt,
		CheckInAt:       b.CheckInAt,
		CheckOutAt:      b.CheckOutAt,
		SettlementRef:   b.SettlementRef,
		CancelledAt:     b.CancelledAt,
		CreatedAt:       b.CreatedAt,
	}
}

// ListBookings returns the caller's bookings. Handlers may request the
// pending feed with feed=true; customers always see their own bookings.
func ListBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := bookings.ListInput{
			Actor: actor,
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseBookingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			input.Status = &status
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("feed")); raw != "" {
			feed, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feed value"))
				return
			}
			input.Feed = feed
		}

		page, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := bookingPageResponse{Items: make([]bookingResponse, 0, len(page.Bookings)), Cursor: page.NextCursor}
		for _, booking := range page.Bookings {
			resp.Items = append(resp.Items, toBookingResponse(booking))
		}
		responses.WriteSuccess(w, resp)
	}
}

// BookingDetail returns a single booking visible to the caller.
func BookingDetail(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Get(r.Context(), bookingID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBookingResponse(*booking))
	}
}

// AssignBooking lets a handler accept a pending booking.
func AssignBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Assign(r.Context(), bookings.AssignInput{BookingID: bookingID, Actor: actor}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.BookingStatusAccepted)})
	}
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CancelBooking cancels a booking that has not started yet.
func CancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelBookingRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		input := bookings.CancelInput{
			BookingID: bookingID,
			Actor:     actor,
			Reason:    validators.SanitizeString(req.Reason, 500),
		}
		if err := svc.Cancel(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.BookingStatusCancelled)})
	}
}

type checkpointRequest struct {
	Lat        *float64   `json:"lat" validate:"required"`
	Lng        *float64   `json:"lng" validate:"required"`
	RecordedAt *time.Time `json:"recorded_at"`
}

func (req checkpointRequest) location() *types.GeographyPoint {
	if req.Lat == nil || req.Lng == nil {
		return nil
	}
	return &types.GeographyPoint{Lat: *req.Lat, Lng: *req.Lng}
}

// CheckInBooking records the handler's on-site arrival.
func CheckInBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkpointRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := bookings.CheckInInput{
			BookingID:  bookingID,
			Actor:      actor,
			Location:   req.location(),
			RecordedAt: req.RecordedAt,
		}
		if err := svc.CheckIn(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.BookingStatusInProgress)})
	}
}

// CheckOutBooking records the job finishing and settles the handler's
// earnings in the same transaction.
func CheckOutBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bookings service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bookingID, err := parseBookingID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkpointRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := bookings.CheckOutInput{
			BookingID:  bookingID,
			Actor:      actor,
			Location:   req.location(),
			RecordedAt: req.RecordedAt,
		}
		if err := svc.CheckOut(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.BookingStatusCompleted)})
	}
}

func parseBookingID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	bookingID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id")
	}
	return bookingID, nil
}
