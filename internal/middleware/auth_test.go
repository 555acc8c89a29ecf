package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viemarket/storefront/internal/platform/requestctx"
)

var authNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return token
}

func authHandler(t *testing.T, header string) (*httptest.ResponseRecorder, requestctx.Identity, bool) {
	t.Helper()
	var (
		got   requestctx.Identity
		found bool
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = requestctx.IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := SessionAuth(func() time.Time { return authNow })(next)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got, found
}

func TestSessionAuthPassesAnonymous(t *testing.T) {
	rec, _, found := authHandler(t, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, found)
}

func TestSessionAuthExtractsIdentity(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": authNow.Add(time.Hour).Unix(),
	})
	rec, id, found := authHandler(t, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	assert.Equal(t, "user-42", id.UserID)
	assert.Equal(t, token, id.Token)
}

func TestSessionAuthRejectsExpiredToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": authNow.Add(-time.Minute).Unix(),
	})
	rec, _, found := authHandler(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, found)
	assert.Contains(t, rec.Body.String(), "token_expired")
}

func TestSessionAuthRejectsMalformedToken(t *testing.T) {
	rec, _, found := authHandler(t, "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, found)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}

func TestSessionAuthRejectsMissingSubject(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"exp": authNow.Add(time.Hour).Unix()})
	rec, _, found := authHandler(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, found)
}

func TestRequireUserBlocksAnonymous(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireUser(next)

	req := httptest.NewRequest(http.MethodPost, "/cart/voucher", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	authed := req.WithContext(requestctx.WithIdentity(req.Context(), requestctx.Identity{UserID: "user-1", Token: "t"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authed)
	assert.Equal(t, http.StatusOK, rec.Code)
}
