package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aandersen2323/filemaker-mcp-server/pkg/kit"
)

func TestTokenRoundTrip(t *testing.T) {
	a := New("s3cret", 60)

	tok, err := a.GenerateToken("front-desk")
	require.NoError(t, err)

	claims, err := a.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "front-desk", claims.Client)
	assert.Equal(t, "front-desk", claims.Subject)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	tok, err := New("one", 60).GenerateToken("x")
	require.NoError(t, err)

	_, err = New("two", 60).ValidateToken(tok)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	a := New("s3cret", -1)
	tok, err := a.GenerateToken("x")
	require.NoError(t, err)

	_, err = a.ValidateToken(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestGenerateWithoutSecret(t *testing.T) {
	_, err := New("", 60).GenerateToken("x")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := New("s3cret", 60)
	var seen string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = kit.GetUserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := a.GenerateToken("reports")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reports", seen)
}

func TestMiddlewareDisabled(t *testing.T) {
	h := New("", 60).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
