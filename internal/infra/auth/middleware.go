package auth

import (
	"context"
	"net/http"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, который должны реализовать и шлюз, и консоль
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// ctxKey — приватный тип ключей контекста, строковые ключи
// пересекаются с чужими пакетами
type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyScopes
)

// UserIDFromContext достает идентификатор оператора, положенный middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(string)
	return id, ok
}

// ScopesFromContext достает scopes токена.
func ScopesFromContext(ctx context.Context) (map[string]bool, bool) {
	s, ok := ctx.Value(ctxKeyScopes).(map[string]bool)
	return s, ok
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ctxKeyScopes, claims.Scopes)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
