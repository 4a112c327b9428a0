package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/harvestly/harvestly/internal/models"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey holds the *models.Identity of the caller
	IdentityContextKey contextKey = "identity"
	// ClaimsContextKey holds the verified *models.TokenClaims
	ClaimsContextKey contextKey = "claims"
)

const (
	MsgTokenMissing = "Not authorized, token missing"
	MsgTokenInvalid = "Not authorized, token invalid"
	MsgTokenExpired = "Not authorized, token expired"
	MsgAdminOnly    = "Access denied. Admin privileges required"
)

// TokenVerifier verifies a bearer token and returns its claims
type TokenVerifier interface {
	ValidateToken(tokenString string) (*models.TokenClaims, error)
}

// UserLoader re-reads the caller on every authenticated request
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticate guards a route with a bearer token. A verified token is not
// enough on its own: the user must still exist and the token must not
// predate the user's revocation cutoff. The role attached to the request is
// the stored one.
func Authenticate(verifier TokenVerifier, users UserLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, MsgTokenMissing)
				return
			}

			claims, err := verifier.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, models.ErrTokenExpired) {
					pkghttp.WriteUnauthorized(w, MsgTokenExpired)
					return
				}
				pkghttp.WriteUnauthorized(w, MsgTokenInvalid)
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, MsgTokenInvalid)
					return
				}
				slog.Error("failed to load authenticated user", "user_id", claims.UserID, "error", err)
				pkghttp.WriteInternalError(w, "Server error")
				return
			}

			if user.TokenIssuedBeforeCutoff(claims.IssuedAt.Time) {
				pkghttp.WriteUnauthorized(w, MsgTokenInvalid)
				return
			}

			identity := &models.Identity{
				UserID: user.ID,
				Email:  user.Email,
				Role:   user.Role,
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			ctx = context.WithValue(ctx, ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose stored role differs from role.
// Must be mounted after Authenticate.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentityFromContext(r.Context())
			if identity == nil {
				pkghttp.WriteUnauthorized(w, MsgTokenMissing)
				return
			}

			if identity.Role != role {
				pkghttp.WriteForbidden(w, MsgAdminOnly)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetIdentityFromContext returns the authenticated caller, or nil
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetClaimsFromContext returns the verified token claims, or nil
func GetClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithIdentity attaches an identity to ctx. Used by tests and by callers
// that authenticate out of band.
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}
