package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureLogger_Redacts(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantPath string
	}{
		{name: "plain", target: "/users?limit=5", wantPath: "/users?limit=5"},
		{name: "verification token in path", target: "/auth/verify-email/0123abcd", wantPath: "/auth/verify-email/[REDACTED]"},
		{name: "token in query", target: "/auth/reset?token=abc", wantPath: "/auth/reset?[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			handler := SecureLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", tt.target, nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantPath, entry["path"])
			assert.Equal(t, float64(http.StatusTeapot), entry["status"])
			assert.NotContains(t, buf.String(), "0123abcd")
		})
	}
}
