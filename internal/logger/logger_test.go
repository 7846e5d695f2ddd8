package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		xRealIP  string
		remote   string
		expected string
	}{
		{
			name:     "x-forwarded-for single",
			xff:      "203.0.113.1",
			expected: "203.0.113.1",
		},
		{
			name:     "x-forwarded-for takes first",
			xff:      "203.0.113.1, 198.51.100.1",
			expected: "203.0.113.1",
		},
		{
			name:     "x-real-ip",
			xRealIP:  "192.168.1.100",
			expected: "192.168.1.100",
		},
		{
			name:     "remote addr strips port",
			remote:   "10.0.0.7:51234",
			expected: "10.0.0.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}

			require.Equal(t, tt.expected, clientIP(r))
		})
	}
}

func TestRequests_LogsStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	handler := Requests(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Contains(t, buf.String(), `"status":418`)
	require.Contains(t, buf.String(), `"path":"/healthz"`)
}
