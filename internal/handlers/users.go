package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/harvestly/harvestly/internal/auth"
	"github.com/harvestly/harvestly/internal/models"
	"github.com/harvestly/harvestly/internal/services"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
)

// MaxPictureBytes caps profile picture uploads
const MaxPictureBytes = 5 << 20

// UserService defines the interface for user business logic
type UserService interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, int64, error)
	GetUser(ctx context.Context, id string) (*services.UserResponse, error)
	UpdateProfile(ctx context.Context, actor *models.Identity, id string, patch models.UserPatch) (*services.UserResponse, error)
	ChangePassword(ctx context.Context, actor *models.Identity, id, currentPassword, newPassword string) (string, error)
	DeleteUser(ctx context.Context, actor *models.Identity, id string) error
	UploadProfilePicture(ctx context.Context, actor *models.Identity, id string, file io.Reader) (*services.UserResponse, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Request/Response DTOs

// UpdateUserRequest represents the request body for a profile update.
// Absent or empty fields are left unchanged.
type UpdateUserRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=50"`
	LastName  *string `json:"lastName" validate:"omitempty,max=50"`
	Phone     *string `json:"phone" validate:"omitempty,len=10,number"`
	State     *string `json:"state" validate:"omitempty,max=100"`
	Role      *string `json:"role" validate:"omitempty,oneof=user admin"`
}

// normalize trims the fields and drops the blank ones, which mean "unchanged"
func (req *UpdateUserRequest) normalize() {
	for _, f := range []**string{&req.FirstName, &req.LastName, &req.Phone, &req.State, &req.Role} {
		if *f == nil {
			continue
		}
		v := strings.TrimSpace(**f)
		if v == "" {
			*f = nil
			continue
		}
		*f = &v
	}
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// UserEnvelope wraps a single user, with an optional message
type UserEnvelope struct {
	User    *services.UserResponse `json:"user"`
	Message string                 `json:"message,omitempty"`
}

// ListUsersResponse represents a page of users
type ListUsersResponse struct {
	Users []*services.UserResponse `json:"users"`
	Total int64                    `json:"total"`
}

// ChangePasswordResponse carries the replacement token after a password change
type ChangePasswordResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// userIDParam returns the {id} path parameter when it is a well-formed UUID
func userIDParam(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// ListUsers retrieves a page of users
//
// @Summary List users
// @Param limit query int false "Limit (default 50)"
// @Param offset query int false "Offset (default 0)"
// @Produce json
// @Success 200 {object} ListUsersResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := 0, 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			pkghttp.WriteBadRequest(w, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	users, total, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListUsersResponse{Users: users, Total: total})
}

// GetUser retrieves a user by ID
//
// @Summary Get user by ID
// @Param id path string true "User ID"
// @Produce json
// @Success 200 {object} UserEnvelope
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		pkghttp.WriteBadRequest(w, MsgInvalidUserID)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserEnvelope{User: user})
}

// UpdateUser applies a profile patch
// @Router /users/{id} [put]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		pkghttp.WriteBadRequest(w, MsgInvalidUserID)
		return
	}

	var req UpdateUserRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, MsgInvalidBody)
		return
	}

	req.normalize()
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	patch := models.UserPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		State:     req.State,
		Role:      req.Role,
	}

	user, err := h.service.UpdateProfile(r.Context(), auth.GetIdentityFromContext(r.Context()), id, patch)
	if err != nil {
		if errors.Is(err, models.ErrForbidden) {
			pkghttp.WriteForbidden(w, "Not authorized to update this profile")
			return
		}
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserEnvelope{User: user, Message: "Profile updated successfully"})
}

// ChangePassword replaces the caller's own password
// @Router /users/{id}/password [put]
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		pkghttp.WriteBadRequest(w, MsgInvalidUserID)
		return
	}

	var req ChangePasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, MsgInvalidBody)
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	token, err := h.service.ChangePassword(r.Context(), auth.GetIdentityFromContext(r.Context()), id, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, models.ErrForbidden) {
			pkghttp.WriteForbidden(w, "Not authorized to change this password")
			return
		}
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ChangePasswordResponse{Message: "Password changed successfully", Token: token})
}

// DeleteUser removes an account
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		pkghttp.WriteBadRequest(w, MsgInvalidUserID)
		return
	}

	if err := h.service.DeleteUser(r.Context(), auth.GetIdentityFromContext(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, "User deleted successfully")
}

// UploadProfilePicture accepts a multipart image in the "file" field
// @Router /users/{id}/profile-picture [put]
func (h *UserHandler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		pkghttp.WriteBadRequest(w, MsgInvalidUserID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxPictureBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		pkghttp.WriteBadRequest(w, "An image file is required")
		return
	}
	defer file.Close()

	user, err := h.service.UploadProfilePicture(r.Context(), auth.GetIdentityFromContext(r.Context()), id, file)
	if err != nil {
		if errors.Is(err, models.ErrForbidden) {
			pkghttp.WriteForbidden(w, "Not authorized to update this profile")
			return
		}
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserEnvelope{User: user, Message: "Profile picture updated successfully"})
}
