// Package middlewarectx содержит middleware HTTP-сервера: проверку JWT,
// гейт по активной подписке и ограничение частоты запросов.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/savelyevra/mechanic-access/internal/http/response"
	"github.com/savelyevra/mechanic-access/internal/lib/jwt"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
)

// Key — типизированный ключ значений контекста запроса.
type Key string

// Ключи контекста, которые выставляет JWTMiddleware.
const (
	// User — username аутентифицированного пользователя.
	User Key = "username"
	// Role — роль аутентифицированного пользователя.
	Role Key = "role"
	// UserUID — UID аутентифицированного пользователя.
	UserUID Key = "user_uid"
)

// SubscriptionChecker сообщает о наличии действующего доступа.
type SubscriptionChecker interface {
	HasActiveSubscription(ctx context.Context, userUID string) (bool, error)
}

// JWTMiddleware создает middleware аутентификации по заголовку
// Authorization: Bearer. Успешно разобранные claims кладутся в контекст.
func JWTMiddleware(log *slog.Logger, maker jwt.Maker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := maker.ParseToken(token)
			if err != nil {
				log.Error("failed to parse token", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), User, claims.Username)
			ctx = context.WithValue(ctx, Role, claims.Role)
			ctx = context.WithValue(ctx, UserUID, claims.UserUID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubscriptionGateMiddleware создает middleware, пропускающий только
// пользователей с действующим доступом.
//
// Статус всегда проверяется живым запросом в учёт подписок, а не по
// кешированному флагу пользователя.
func SubscriptionGateMiddleware(log *slog.Logger, checker SubscriptionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userUID, ok := r.Context().Value(UserUID).(string)
			if !ok || userUID == "" {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			active, err := checker.HasActiveSubscription(r.Context(), userUID)
			if err != nil {
				log.Error("failed to check subscription status", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}
			if !active {
				log.Info("subscription required, access denied", slog.String("user_uid", userUID))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("active subscription required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnlyMiddleware создает middleware, пропускающий только роль admin.
func AdminOnlyMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(Role).(string)
			if !ok || role != "admin" {
				log.Info("admin access denied", slog.String("role", role))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var limiter = rate.NewLimiter(5, 10)

// RateLimitMiddleware создает middleware ограничения частоты запросов.
func RateLimitMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("rate limit exceeded", slog.String("remote_addr", r.RemoteAddr))
				w.WriteHeader(http.StatusTooManyRequests)
				render.JSON(w, r, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
