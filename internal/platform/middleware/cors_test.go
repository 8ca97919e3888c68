package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wrenchbay/wrenchbay/internal/platform/middleware"
)

func corsHandler(origins ...string) http.Handler {
	return middleware.CORS(origins)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/customers", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	corsHandler("http://localhost:3000/").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, middleware.RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/customers", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec := httptest.NewRecorder()

	corsHandler("http://localhost:3000").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	// Caches must key on Origin even when the origin is refused.
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_WildcardNeverAllowsCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/customers", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()

	corsHandler("*").ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		status  int
		methods string
	}{
		{"allowed", []string{"http://localhost:3000"}, "http://localhost:3000", http.StatusNoContent, "GET, POST, DELETE, OPTIONS"},
		{"wildcard", []string{"*"}, "http://localhost:3000", http.StatusNoContent, "GET, POST, DELETE, OPTIONS"},
		{"refused", []string{"http://localhost:3000"}, "http://evil.com", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/superadmin/session", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()

			corsHandler(tt.origins...).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.methods, rec.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestCORS_PlainOptionsReachesHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/records/customers", nil)
	rec := httptest.NewRecorder()

	corsHandler("http://localhost:3000").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
