package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/expertrait/expertrait-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	HandlerID *uuid.UUID
	Role      enums.ActorRole
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients.
// HandlerID is present only for handler principals.
type AccessTokenClaims struct {
	UserID    uuid.UUID       `json:"user_id"`
	HandlerID *uuid.UUID      `json:"handler_id,omitempty"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
