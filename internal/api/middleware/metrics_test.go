package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health/live":      "/health/live",
		"/metrics":          "/metrics",
		"/api/files":        "/api/files",
		"/api/files/upload": "/api/files/upload",
		"/api/files/42":     "/api/files/{id}",
		"/download/0b6f1f0e-3a5b-4c4e-9d8f-1a2b3c4d5e6f":          "/download/{token}",
		"/api/download/0b6f1f0e-3a5b-4c4e-9d8f-1a2b3c4d5e6f":      "/api/download/{token}",
		"/api/download/0b6f1f0e-3a5b-4c4e-9d8f-1a2b3c4d5e6f/meta": "/api/download/{token}/meta",
		"/download/garbage/meta": "/download/{token}/meta",
		"/wp-admin/login.php":    "other",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}

func TestMetricsMiddleware_PassesThrough(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/files/upload", nil))
	if rec.Code != http.StatusCreated {
		t.Errorf("статус = %d", rec.Code)
	}
}
