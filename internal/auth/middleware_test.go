package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harvestly/harvestly/internal/models"
	pkghttp "github.com/harvestly/harvestly/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserLoader struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUserLoader) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}

func loaderFor(user *models.User) *mockUserLoader {
	return &mockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if user == nil || id != user.ID {
				return nil, models.ErrNotFound
			}
			return user, nil
		},
	}
}

// captureIdentity records the identity the downstream handler sees
func captureIdentity(dst **models.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*dst = GetIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthenticate_MissingToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	var got *models.Identity
	h := Authenticate(tm, loaderFor(testUser()))(captureIdentity(&got))

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		w := serve(h, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.Equal(t, MsgTokenMissing, decodeError(t, w).Message)
	}
	assert.Nil(t, got)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	var got *models.Identity
	h := Authenticate(tm, loaderFor(testUser()))(captureIdentity(&got))

	w := serve(h, "Bearer garbage")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgTokenInvalid, decodeError(t, w).Message)
	assert.Nil(t, got)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tm := NewTokenManager(testSecret, time.Hour)
	tm.SetClock(fixedClock(issued))
	token, err := tm.GenerateToken(testUser())
	require.NoError(t, err)

	tm.SetClock(fixedClock(issued.Add(2 * time.Hour)))
	var got *models.Identity
	w := serve(Authenticate(tm, loaderFor(testUser()))(captureIdentity(&got)), "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgTokenExpired, decodeError(t, w).Message)
}

func TestAuthenticate_AttachesStoredRole(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	user := testUser()
	token, err := tm.GenerateToken(user)
	require.NoError(t, err)

	// Promoted after the token was issued
	stored := *user
	stored.Role = models.RoleAdmin

	var got *models.Identity
	w := serve(Authenticate(tm, loaderFor(&stored))(captureIdentity(&got)), "Bearer "+token)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.UserID)
	assert.Equal(t, models.RoleAdmin, got.Role)
}

func TestAuthenticate_DeletedUser(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	token, err := tm.GenerateToken(testUser())
	require.NoError(t, err)

	var got *models.Identity
	w := serve(Authenticate(tm, loaderFor(nil))(captureIdentity(&got)), "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, MsgTokenInvalid, decodeError(t, w).Message)
	assert.Nil(t, got)
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	token, err := tm.GenerateToken(testUser())
	require.NoError(t, err)

	loader := &mockUserLoader{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	var got *models.Identity
	w := serve(Authenticate(tm, loader)(captureIdentity(&got)), "Bearer "+token)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Nil(t, got)
}

func TestAuthenticate_RevocationCutoff(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tm := NewTokenManager(testSecret, 24*time.Hour)
	tm.SetClock(fixedClock(issued))
	token, err := tm.GenerateToken(testUser())
	require.NoError(t, err)
	tm.SetClock(fixedClock(issued.Add(time.Minute)))

	tests := []struct {
		name       string
		cutoff     time.Time
		wantStatus int
	}{
		{name: "cutoff after issue", cutoff: issued.Add(time.Second), wantStatus: http.StatusUnauthorized},
		{name: "cutoff at issue", cutoff: issued, wantStatus: http.StatusOK},
		{name: "cutoff before issue", cutoff: issued.Add(-time.Hour), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testUser()
			cutoff := tt.cutoff
			user.TokensValidAfter = &cutoff

			var got *models.Identity
			w := serve(Authenticate(tm, loaderFor(user))(captureIdentity(&got)), "Bearer "+token)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireRole(models.RoleAdmin)(next)

	tests := []struct {
		name       string
		identity   *models.Identity
		wantStatus int
	}{
		{name: "no identity", identity: nil, wantStatus: http.StatusUnauthorized},
		{name: "user role", identity: &models.Identity{UserID: "u1", Role: models.RoleUser}, wantStatus: http.StatusForbidden},
		{name: "admin role", identity: &models.Identity{UserID: "u2", Role: models.RoleAdmin}, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/users/u3", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.identity))
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.Equal(t, MsgAdminOnly, decodeError(t, w).Message)
			}
		})
	}
}
