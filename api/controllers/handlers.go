package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/expertrait/expertrait-backend/api/responses"
	"github.com/expertrait/expertrait-backend/api/validators"
	"github.com/expertrait/expertrait-backend/internal/handlers"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
)

type handlerResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
}

func toHandlerResponse(h models.Handler) handlerResponse {
	return handlerResponse{
		ID:          h.ID,
		DisplayName: h.DisplayName,
		Available:   h.Available,
		CreatedAt:   h.CreatedAt,
	}
}

// HandlerProfile returns the authenticated handler's profile.
func HandlerProfile(svc handlers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "handlers service unavailable"))
			return
		}

		handlerID, err := handlerIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		handler, err := svc.Get(r.Context(), handlerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toHandlerResponse(*handler))
	}
}

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

// HandlerAvailability toggles whether the handler appears in the
// pending booking feed.
func HandlerAvailability(svc handlers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "handlers service unavailable"))
			return
		}

		handlerID, err := handlerIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req availabilityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		handler, err := svc.SetAvailability(r.Context(), handlerID, *req.Available)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toHandlerResponse(*handler))
	}
}
