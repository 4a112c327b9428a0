package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	os.Clearenv()
	t.Cleanup(os.Clearenv)
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!!")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.False(t, cfg.Server.DemoMode)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenExpiry)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenExpiry)
	assert.Equal(t, time.Minute, cfg.Auth.ResetRequestCooldown)
	assert.Equal(t, time.Hour, cfg.Auth.CleanupInterval)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.Empty(t, cfg.Redis.URL)
	assert.False(t, cfg.Cloudinary.Enabled())
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost:5173")
}

func TestLoad_MissingSecret(t *testing.T) {
	os.Clearenv()
	t.Cleanup(os.Clearenv)

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	os.Setenv("TOKEN_EXPIRY", "2d")
	os.Setenv("SERVER_READ_TIMEOUT", "30s")
	os.Setenv("STORE_DRIVER", "Postgres")
	os.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/harvestly")
	os.Setenv("DEMO_MODE", "true")
	os.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	os.Setenv("CLOUDINARY_CLOUD_NAME", "farm")
	os.Setenv("CLOUDINARY_API_KEY", "key")
	os.Setenv("CLOUDINARY_API_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Auth.TokenExpiry)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.True(t, cfg.Server.DemoMode)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Cloudinary.Enabled())
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequired(t)
	os.Setenv("TOKEN_EXPIRY", "forever")
	os.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenExpiry)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "demo mode in production",
			env:     map[string]string{"ENV": "production", "DEMO_MODE": "true"},
			wantErr: "DEMO_MODE",
		},
		{
			name:    "memory store in production",
			env:     map[string]string{"ENV": "production", "STORE_DRIVER": "memory"},
			wantErr: "memory store",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"STORE_DRIVER": "postgres"},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"STORE_DRIVER": "sqlite"},
			wantErr: "STORE_DRIVER",
		},
		{
			name:    "unknown email provider",
			env:     map[string]string{"EMAIL_PROVIDER": "smtp"},
			wantErr: "EMAIL_PROVIDER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			_, err := Load()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		env     string
		wantErr bool
	}{
		{"dev minimum", "0123456789abcdef", "development", false},
		{"dev too short", "short", "development", true},
		{"prod needs 32", "0123456789abcdef0123", "production", true},
		{"prod ok", "0123456789abcdef0123456789abcdef", "production", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJWTSecret(tt.secret, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, d)

	d, err = parseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseDuration("xd")
	assert.Error(t, err)
}
