package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
)

func newTestKeys(t *testing.T) (*rsa.PrivateKey, *BaseValidator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, NewBaseValidator(&key.PublicKey)
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims *domain.CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestMiddlewarePutsClaimsIntoContext(t *testing.T) {
	key, validator := newTestKeys(t)

	tokenStr := signToken(t, key, &domain.CustomClaims{
		UserID: "op-42",
		Scopes: map[string]bool{"decisions.write": true},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	var gotID string
	var gotScopes map[string]bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		gotID = id
		scopes, ok := ScopesFromContext(r.Context())
		require.True(t, ok)
		gotScopes = scopes
	})

	mw := NewMiddleware(validator, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()

	mw(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-42", gotID)
	assert.True(t, gotScopes["decisions.write"])
}

func TestMiddlewareRejectsMissingAndGarbageTokens(t *testing.T) {
	_, validator := newTestKeys(t)
	mw := NewMiddleware(validator, zap.NewNop())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})

	// Нет заголовка
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Мусор вместо токена
	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidatorRejectsTokenWithoutUserID(t *testing.T) {
	key, validator := newTestKeys(t)

	tokenStr := signToken(t, key, &domain.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := validator.VerifyToken(tokenStr)
	require.Error(t, err)
}
