package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
)

// JWTService defines operations for managing JWT authentication tokens.
// Tokens are normally issued by the identity provider; GenerateToken exists for
// tests and local development.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the identity.
	// Returns the token string or an error if token generation fails.
	GenerateToken(ctx context.Context, identity domain.Identity) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation fails
	// (expired, invalid signature, unknown role, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated content of an access token.
type Claims struct {
	// AccountID is parsed from the sub claim.
	AccountID uuid.UUID

	// Role is parsed from the role claim.
	Role domain.Role

	// Label is the name claim, recorded as the reviewer label on catalog changes.
	Label string

	// Standard registered JWT claims
	Issuer    string    `json:"iss,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// Identity returns the caller identity carried by the claims.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{
		AccountID: c.AccountID,
		Role:      c.Role,
		Label:     c.Label,
	}
}
