package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the payload of a bearer token.
type TokenClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the caller attached to a request after the gateway has
// re-loaded the user. Role comes from the store, not the token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the identity holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
