package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JonMunkholm/shiptrack/internal/config"
)

func TestTrustedRealIP(t *testing.T) {
	handler := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr"})

	tests := []struct {
		name    string
		remote  string
		realIP  string
		forward string
		want    string
	}{
		{"trusted proxy with X-Real-IP", "10.1.2.3:5000", "203.0.113.9", "", "203.0.113.9"},
		{"trusted proxy with X-Forwarded-For", "10.1.2.3:5000", "", "203.0.113.7, 10.1.2.3", "203.0.113.7"},
		{"trusted single IP", "192.168.1.5:80", "198.51.100.1", "", "198.51.100.1"},
		{"untrusted client spoofing header", "198.51.100.20:4000", "1.2.3.4", "", "198.51.100.20"},
		{"trusted proxy with invalid header", "10.1.2.3:5000", "garbage", "", "10.1.2.3"},
		{"trusted proxy without headers", "10.1.2.3:5000", "", "", "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forward != "" {
				req.Header.Set("X-Forwarded-For", tt.forward)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIKeyAuth_NoKeysConfigured(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true}
	h := APIKeyAuth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a valid key")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/manifests", nil)
	req.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestLogger_CapturesStatusAndSize(t *testing.T) {
	var inner *responseWriter
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK) // ignored
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot || inner.status != http.StatusTeapot {
		t.Errorf("status = %d / %d, want 418", rec.Code, inner.status)
	}
	if inner.bytes != len("short and stout") {
		t.Errorf("bytes = %d", inner.bytes)
	}
	if inner.Unwrap() != rec {
		t.Error("Unwrap() did not return the underlying writer")
	}
}
