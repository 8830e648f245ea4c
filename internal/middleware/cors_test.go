package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(allowed []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/sessions", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestCORSAllowedOrigin(t *testing.T) {
	resp := serveCORS([]string{"https://app.example.com"}, http.MethodGet, "https://app.example.com")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSUnknownOriginGetsNoCredentials(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		resp := serveCORS([]string{"https://app.example.com"}, method, "https://evil.example")

		assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"), method)
		assert.Empty(t, resp.Header().Get("Access-Control-Allow-Credentials"), method)
	}
}

func TestCORSEmptyAllowList(t *testing.T) {
	resp := serveCORS(nil, http.MethodOptions, "https://app.example.com")

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Credentials"))

	resp = serveCORS(nil, http.MethodGet, "")
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}
