package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/harvestly/harvestly/internal/models"
)

// DefaultTokenExpiry is the lifetime of a bearer token when none is configured
const DefaultTokenExpiry = 7 * 24 * time.Hour

// TokenManager issues and verifies HS256 bearer tokens
type TokenManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &TokenManager{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for issuing and verifying tokens
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

// Expiry returns the configured token lifetime
func (tm *TokenManager) Expiry() time.Duration {
	return tm.expiry
}

// GenerateToken signs a token carrying the user's id, email and role
func (tm *TokenManager) GenerateToken(user *models.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("cannot issue token: %w", models.ErrBadRequest)
	}

	// JWT NumericDate has second precision; truncate so iat compares cleanly
	// against the revocation cutoff.
	issuedAt := tm.now().UTC().Truncate(time.Second)

	claims := &models.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(tm.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies signature and validity window and returns the claims.
// Expired tokens fail with models.ErrTokenExpired, everything else with
// models.ErrTokenInvalid.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}

	if !token.Valid || claims.UserID == "" || claims.IssuedAt == nil {
		return nil, models.ErrTokenInvalid
	}

	if claims.Subject != "" && claims.Subject != claims.UserID {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}
