package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		hsts     bool
		wantHSTS bool
	}{
		{"plain http", false, false},
		{"behind tls", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := SecurityHeaders(tt.hsts)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
			if err := h(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("expected nosniff")
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Error("expected no-store")
			}
			if got := rec.Header().Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Errorf("hsts header present = %v, want %v", got, tt.wantHSTS)
			}
		})
	}
}
