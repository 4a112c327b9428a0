package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/harvestly/harvestly/internal/auth"
	"github.com/harvestly/harvestly/internal/models"
	"github.com/harvestly/harvestly/internal/services"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput, ip string) (*services.AuthResponse, error)
	Login(ctx context.Context, email, password, ip string) (*services.AuthResponse, error)
	Me(ctx context.Context, userID string) (*services.UserResponse, error)
	LogoutAll(ctx context.Context, userID, ip string) error
}

// PasswordResetServiceInterface defines the forgot/reset password flow
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email, ip string) (*services.ResetRequestResult, error)
	ConsumeReset(ctx context.Context, token, newPassword, ip string) (*services.AuthResponse, error)
}

// EmailVerifierInterface consumes email verification tokens
type EmailVerifierInterface interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	resets   PasswordResetServiceInterface
	verifier EmailVerifierInterface
	ips      *pkghttp.ClientIPResolver
	demoMode bool
}

// NewAuthHandler creates a new AuthHandler. In demo mode forgot-password
// echoes the reset token in its response.
func NewAuthHandler(service AuthServiceInterface, resets PasswordResetServiceInterface, verifier EmailVerifierInterface, ips *pkghttp.ClientIPResolver, demoMode bool) *AuthHandler {
	return &AuthHandler{
		service:  service,
		resets:   resets,
		verifier: verifier,
		ips:      ips,
		demoMode: demoMode,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,max=50"`
	LastName  string `json:"lastName" validate:"required,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,len=10,number"`
	State     string `json:"state" validate:"required,max=100"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

// normalize trims the text fields; passwords are taken as typed
func (req *RegisterRequest) normalize() {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.State = strings.TrimSpace(req.State)
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (req *LoginRequest) normalize() {
	req.Email = strings.TrimSpace(req.Email)
}

// ForgotPasswordRequest represents the request body for a reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (req *ForgotPasswordRequest) normalize() {
	req.Email = strings.TrimSpace(req.Email)
}

// ResetPasswordRequest represents the request body for consuming a reset token
type ResetPasswordRequest struct {
	ResetToken string `json:"resetToken" validate:"required"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
}

// ForgotPasswordResponse is the success-shaped reset request reply.
// ResetToken is only populated in demo mode.
type ForgotPasswordResponse struct {
	Message    string `json:"message"`
	ResetToken string `json:"resetToken,omitempty"`
}

// MeResponse wraps the caller's own record
type MeResponse struct {
	User *services.UserResponse `json:"user"`
}

const (
	MsgRegistered        = "Registration successful"
	MsgRegisteredVerify  = "Registration successful. Please check your email to verify your account."
	MsgLoggedIn          = "Login successful"
	MsgResetRequested    = "If your email exists in our system, you will receive a password reset link"
	MsgPasswordReset     = "Password has been reset successfully"
	MsgEmailVerified     = "Email verified successfully. You can now log in."
	MsgLoggedOutEveryone = "Logged out from all devices"
)

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} services.AuthResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, MsgInvalidBody)
		return
	}

	req.normalize()
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.service.Register(r.Context(), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		State:     req.State,
		Password:  req.Password,
	}, h.ips.ClientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if resp.Token != "" {
		resp.Message = MsgRegistered
	} else {
		resp.Message = MsgRegisteredVerify
	}
	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, MsgInvalidBody)
		return
	}

	req.normalize()
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.service.Login(r.Context(), req.Email, req.Password, h.ips.ClientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp.Message = MsgLoggedIn
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Me returns the authenticated caller's record
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, auth.MsgTokenMissing)
		return
	}

	user, err := h.service.Me(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MeResponse{User: user})
}

// ForgotPassword starts a password reset. The reply is identical whether or
// not the address belongs to an account.
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, MsgInvalidBody)
		return
	}

	req.normalize()
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.resets.RequestReset(r.Context(), req.Email, h.ips.ClientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := ForgotPasswordResponse{Message: MsgResetRequested}
	if h.demoMode && result != nil {
		resp.ResetToken = result.Token
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ResetPassword consumes a reset token and sets a new password
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := pkghttp.DecodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, MsgInvalidBody)
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resp, err := h.resets.ConsumeReset(r.Context(), req.ResetToken, req.Password, h.ips.ClientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp.Message = MsgPasswordReset
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// VerifyEmail consumes the token from a verification link
// @Router /auth/verify-email/{verificationToken} [get]
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "verificationToken")
	if token == "" {
		pkghttp.WriteBadRequest(w, MsgInvalidVerifyToken)
		return
	}

	if _, err := h.verifier.Verify(r.Context(), token); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, MsgEmailVerified)
}

// LogoutAll revokes every token issued to the caller before this request
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r.Context())
	if identity == nil {
		pkghttp.WriteUnauthorized(w, auth.MsgTokenMissing)
		return
	}

	if err := h.service.LogoutAll(r.Context(), identity.UserID, h.ips.ClientIP(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, MsgLoggedOutEveryone)
}
