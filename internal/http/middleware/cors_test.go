package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(allowed []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/leads", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestCORSListedOrigin(t *testing.T) {
	rec, called := corsRequest([]string{"https://panel.ventas.pe/"}, http.MethodGet, "https://panel.ventas.pe")
	assert.True(t, called)
	assert.Equal(t, "https://panel.ventas.pe", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Webhook-Secret")
}

func TestCORSUnknownOrigin(t *testing.T) {
	rec, called := corsRequest([]string{"https://panel.ventas.pe"}, http.MethodGet, "https://evil.example")
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	rec, _ := corsRequest([]string{"*"}, http.MethodGet, "https://any.example")
	assert.Equal(t, "https://any.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	rec, called := corsRequest([]string{"https://panel.ventas.pe"}, http.MethodOptions, "https://panel.ventas.pe")
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSNoOrigin(t *testing.T) {
	rec, called := corsRequest(nil, http.MethodGet, "")
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
