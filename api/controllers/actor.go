package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/expertrait/expertrait-backend/api/middleware"
	"github.com/expertrait/expertrait-backend/internal/bookings"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
)

// actorFromRequest rebuilds the acting principal from the auth context.
func actorFromRequest(r *http.Request) (bookings.Actor, error) {
	rawUser := middleware.UserIDFromContext(r.Context())
	if rawUser == "" {
		return bookings.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return bookings.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}

	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return bookings.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor role")
	}

	actor := bookings.Actor{UserID: userID, Role: role}
	if raw := middleware.HandlerIDFromContext(r.Context()); raw != "" {
		handlerID, err := uuid.Parse(raw)
		if err != nil {
			return bookings.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid handler id")
		}
		actor.HandlerID = &handlerID
	}
	return actor, nil
}

// handlerIDFromRequest resolves the handler identity required by wallet
// and payout routes.
func handlerIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.HandlerIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "handler context missing")
	}
	handlerID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid handler id")
	}
	return handlerID, nil
}
