package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyumbahub/rentals/internal/directory"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject string, role directory.Role, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token := jwt.NewWithClaims(method, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestParseToken(t *testing.T) {
	t.Run("valid owner token", func(t *testing.T) {
		token := signToken(t, "42", directory.RoleOwner, jwt.SigningMethodHS256, []byte(testSecret))
		p, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, directory.Principal{UserID: 42, Role: directory.RoleOwner}, p)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "42", directory.RoleOwner, jwt.SigningMethodHS256, []byte("other"))
		_, err := ParseToken(token, testSecret)
		assert.Error(t, err)
	})

	t.Run("system role cannot be claimed", func(t *testing.T) {
		token := signToken(t, "42", directory.RoleSystem, jwt.SigningMethodHS256, []byte(testSecret))
		_, err := ParseToken(token, testSecret)
		assert.Error(t, err)
	})

	t.Run("non numeric subject", func(t *testing.T) {
		token := signToken(t, "abc", directory.RoleTenant, jwt.SigningMethodHS256, []byte(testSecret))
		_, err := ParseToken(token, testSecret)
		assert.Error(t, err)
	})
}

func TestAuthMiddleware(t *testing.T) {
	var seen directory.Principal
	h := AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "7", directory.RoleTenant, jwt.SigningMethodHS256, []byte(testSecret)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, int64(7), seen.UserID)
		assert.Equal(t, directory.RoleTenant, seen.Role)
	})
}

func TestRequireRole(t *testing.T) {
	h := TestUserMiddleware(RequireRole(directory.RoleOwner, directory.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Test-User-ID", "3")
	req.Header.Set("X-Test-User-Role", "tenant")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("X-Test-User-Role", "owner")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
