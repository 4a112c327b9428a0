package handlers

import (
	"errors"
	"net/http"

	"github.com/harvestly/harvestly/internal/models"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
)

const (
	MsgInvalidBody        = "Invalid request body"
	MsgInvalidCredentials = "Invalid email or password"
	MsgNotVerified        = "Please verify your email address before logging in"
	MsgUserExists         = "User already exists with this email"
	MsgUserNotFound       = "User not found"
	MsgInvalidUserID      = "Invalid user ID"
	MsgInvalidResetToken  = "Token is invalid or has expired"
	MsgInvalidVerifyToken = "Invalid verification token"
	MsgServerError        = "Server error"
)

// writeServiceError maps a service error onto the response envelope.
// Unrecognised errors become a generic 500; services log the detail.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		pkghttp.WriteBadRequest(w, verr.Message)
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteDuplicate(w, MsgUserExists)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, MsgInvalidCredentials)
	case errors.Is(err, models.ErrEmailNotVerified):
		pkghttp.WriteUnauthorized(w, MsgNotVerified)
	case errors.Is(err, models.ErrWrongPassword):
		pkghttp.WriteUnauthorized(w, "Current password is incorrect")
	case errors.Is(err, models.ErrInvalidResetToken):
		pkghttp.WriteBadRequest(w, MsgInvalidResetToken)
	case errors.Is(err, models.ErrInvalidVerificationToken):
		pkghttp.WriteBadRequest(w, MsgInvalidVerifyToken)
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Not authorized")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Access denied")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, MsgUserNotFound)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrServiceUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		pkghttp.WriteInternalError(w, MsgServerError)
	}
}
