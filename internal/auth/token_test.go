package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harvestly/harvestly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-bytes-long"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testUser() *models.User {
	return &models.User{ID: "11111111-2222-3333-4444-555555555555", Email: "asha@farm.test", Role: models.RoleUser}
}

func TestGenerateToken_Claims(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	tm := NewTokenManager(testSecret, time.Hour)
	tm.SetClock(fixedClock(issued))

	token, err := tm.GenerateToken(testUser())
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "11111111-2222-3333-4444-555555555555", claims.UserID)
	assert.Equal(t, claims.UserID, claims.Subject)
	assert.Equal(t, "asha@farm.test", claims.Email)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, issued, claims.IssuedAt.Time.UTC())
	assert.Equal(t, issued.Add(time.Hour), claims.ExpiresAt.Time.UTC())
	assert.NotEmpty(t, claims.ID)
}

func TestGenerateToken_DefaultExpiry(t *testing.T) {
	tm := NewTokenManager(testSecret, 0)
	assert.Equal(t, 7*24*time.Hour, tm.Expiry())
}

func TestGenerateToken_RequiresUser(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	_, err := tm.GenerateToken(nil)
	assert.Error(t, err)

	_, err = tm.GenerateToken(&models.User{})
	assert.Error(t, err)
}

func TestValidateToken_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	tm := NewTokenManager(testSecret, time.Hour)
	tm.SetClock(fixedClock(issued))

	token, err := tm.GenerateToken(testUser())
	require.NoError(t, err)

	tm.SetClock(fixedClock(issued.Add(time.Hour - time.Second)))
	_, err = tm.ValidateToken(token)
	assert.NoError(t, err, "token should be valid one second before exp")

	tm.SetClock(fixedClock(issued.Add(time.Hour)))
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrTokenExpired, "token should be expired at exp")

	tm.SetClock(fixedClock(issued.Add(2 * time.Hour)))
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewTokenManager(testSecret, time.Hour)
	verifier := NewTokenManager("another-secret-key-that-is-at-least-32-bytes", time.Hour)

	token, err := issuer.GenerateToken(testUser())
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestValidateToken_Malformed(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := tm.ValidateToken(token)
		assert.ErrorIs(t, err, models.ErrTokenInvalid, "token %q", token)
	}
}

func TestValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	now := time.Now()

	claims := &models.TokenClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tm.ValidateToken(hs512)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tm.ValidateToken(none)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestValidateToken_MissingUserID(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	now := time.Now()

	claims := &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.True(t, errors.Is(err, models.ErrTokenInvalid))
}
