package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthRequiredWhenKeyConfigured(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: "secret-token"})
	routes := env.server.Routes()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Token secret-token", http.StatusUnauthorized},
		{"empty token", "Bearer   ", http.StatusUnauthorized},
		{"wrong token", "Bearer not-the-token", http.StatusUnauthorized},
		{"correct token", "Bearer secret-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/version", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			routes.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHealthzBypassesAuth(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: "secret-token"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestNoAuthWhenKeyEmpty(t *testing.T) {
	env := newTestEnv(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestValidToken(t *testing.T) {
	assert.True(t, validToken("abc", "abc"))
	assert.False(t, validToken("abc", "abd"))
	assert.False(t, validToken("abc", "abcd"))
	assert.False(t, validToken("", "abc"))
	assert.False(t, validToken("abc", ""))
}
