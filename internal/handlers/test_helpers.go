package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/harvestly/harvestly/internal/auth"
	"github.com/harvestly/harvestly/internal/models"
	"github.com/harvestly/harvestly/internal/services"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches a user identity as the gateway would
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &models.Identity{
		UserID: userID,
		Email:  email,
		Role:   models.RoleUser,
	}))
}

// WithAdminContext attaches an admin identity as the gateway would
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &models.Identity{
		UserID: userID,
		Email:  email,
		Role:   models.RoleAdmin,
	}))
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks status, error code and message of an error envelope
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError, expectedMessage string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	if expectedMessage != "" {
		assert.Equal(t, expectedMessage, resp.Message, "Error message mismatch")
	} else {
		assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	}
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc  func(ctx context.Context, in services.RegisterInput, ip string) (*services.AuthResponse, error)
	LoginFunc     func(ctx context.Context, email, password, ip string) (*services.AuthResponse, error)
	MeFunc        func(ctx context.Context, userID string) (*services.UserResponse, error)
	LogoutAllFunc func(ctx context.Context, userID, ip string) error
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput, ip string) (*services.AuthResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in, ip)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ip string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, ip)
}

func (m *MockAuthService) Me(ctx context.Context, userID string) (*services.UserResponse, error) {
	if m.MeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.MeFunc(ctx, userID)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID, ip string) error {
	if m.LogoutAllFunc == nil {
		return nil
	}
	return m.LogoutAllFunc(ctx, userID, ip)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestResetFunc func(ctx context.Context, email, ip string) (*services.ResetRequestResult, error)
	ConsumeResetFunc func(ctx context.Context, token, newPassword, ip string) (*services.AuthResponse, error)
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, email, ip string) (*services.ResetRequestResult, error) {
	if m.RequestResetFunc == nil {
		return &services.ResetRequestResult{}, nil
	}
	return m.RequestResetFunc(ctx, email, ip)
}

func (m *MockPasswordResetService) ConsumeReset(ctx context.Context, token, newPassword, ip string) (*services.AuthResponse, error) {
	if m.ConsumeResetFunc == nil {
		return nil, models.ErrInvalidResetToken
	}
	return m.ConsumeResetFunc(ctx, token, newPassword, ip)
}

// MockEmailVerifier implements EmailVerifierInterface for testing
type MockEmailVerifier struct {
	VerifyFunc func(ctx context.Context, token string) (*models.User, error)
}

func (m *MockEmailVerifier) Verify(ctx context.Context, token string) (*models.User, error) {
	if m.VerifyFunc == nil {
		return nil, models.ErrInvalidVerificationToken
	}
	return m.VerifyFunc(ctx, token)
}

// MockUserService implements UserService for testing
type MockUserService struct {
	ListUsersFunc            func(ctx context.Context, limit, offset int) ([]*services.UserResponse, int64, error)
	GetUserFunc              func(ctx context.Context, id string) (*services.UserResponse, error)
	UpdateProfileFunc        func(ctx context.Context, actor *models.Identity, id string, patch models.UserPatch) (*services.UserResponse, error)
	ChangePasswordFunc       func(ctx context.Context, actor *models.Identity, id, currentPassword, newPassword string) (string, error)
	DeleteUserFunc           func(ctx context.Context, actor *models.Identity, id string) error
	UploadProfilePictureFunc func(ctx context.Context, actor *models.Identity, id string, file io.Reader) (*services.UserResponse, error)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, int64, error) {
	if m.ListUsersFunc == nil {
		return []*services.UserResponse{}, 0, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockUserService) GetUser(ctx context.Context, id string) (*services.UserResponse, error) {
	if m.GetUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserFunc(ctx, id)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, actor *models.Identity, id string, patch models.UserPatch) (*services.UserResponse, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, actor, id, patch)
}

func (m *MockUserService) ChangePassword(ctx context.Context, actor *models.Identity, id, currentPassword, newPassword string) (string, error) {
	if m.ChangePasswordFunc == nil {
		return "", models.ErrNotFound
	}
	return m.ChangePasswordFunc(ctx, actor, id, currentPassword, newPassword)
}

func (m *MockUserService) DeleteUser(ctx context.Context, actor *models.Identity, id string) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, actor, id)
}

func (m *MockUserService) UploadProfilePicture(ctx context.Context, actor *models.Identity, id string, file io.Reader) (*services.UserResponse, error) {
	if m.UploadProfilePictureFunc == nil {
		return nil, models.ErrServiceUnavailable
	}
	return m.UploadProfilePictureFunc(ctx, actor, id, file)
}
