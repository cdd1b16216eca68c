package middlewarectx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/time/rate"

	"github.com/savelyevra/mechanic-access/internal/lib/jwt"
)

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) HasActiveSubscription(ctx context.Context, userUID string) (bool, error) {
	args := m.Called(ctx, userUID)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func okHandler(capturedCtx *context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capturedCtx != nil {
			*capturedCtx = r.Context()
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTMiddleware(t *testing.T) {
	maker := jwt.NewMaker("test-secret", time.Hour)
	validToken, err := maker.GenerateToken("ivan", "user", "user-1")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedCtx    map[Key]any
	}{
		{
			name:           "Успех - корректный токен",
			authHeader:     "Bearer " + validToken,
			expectedStatus: http.StatusOK,
			expectedCtx: map[Key]any{
				User:    "ivan",
				Role:    "user",
				UserUID: "user-1",
			},
		},
		{
			name:           "Ошибка - заголовок отсутствует",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Ошибка - неверный формат заголовка",
			authHeader:     "Basic abc",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Ошибка - токен не разбирается",
			authHeader:     "Bearer not-a-token",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := JWTMiddleware(newNoopLogger(), maker)

			var capturedCtx context.Context
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			middleware(okHandler(&capturedCtx)).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCtx != nil {
				for key, expected := range tt.expectedCtx {
					assert.Equal(t, expected, capturedCtx.Value(key))
				}
			}
		})
	}
}

func TestSubscriptionGateMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		userUID        string
		setupMocks     func(*MockChecker)
		expectedStatus int
	}{
		{
			name:    "Успех - активная подписка пропускает",
			userUID: "user-1",
			setupMocks: func(c *MockChecker) {
				c.On("HasActiveSubscription", mock.Anything, "user-1").Return(true, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:    "Ошибка - подписки нет",
			userUID: "user-1",
			setupMocks: func(c *MockChecker) {
				c.On("HasActiveSubscription", mock.Anything, "user-1").Return(false, nil).Once()
			},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Ошибка - нет идентификации пользователя",
			userUID:        "",
			setupMocks:     func(*MockChecker) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:    "Ошибка - учёт подписок недоступен",
			userUID: "user-1",
			setupMocks: func(c *MockChecker) {
				c.On("HasActiveSubscription", mock.Anything, "user-1").
					Return(false, assert.AnError).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := new(MockChecker)
			tt.setupMocks(checker)
			middleware := SubscriptionGateMiddleware(newNoopLogger(), checker)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.userUID != "" {
				req = req.WithContext(context.WithValue(req.Context(), UserUID, tt.userUID))
			}
			w := httptest.NewRecorder()

			middleware(okHandler(nil)).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			checker.AssertExpectations(t)
		})
	}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		role           string
		expectedStatus int
	}{
		{name: "Успех - роль admin", role: "admin", expectedStatus: http.StatusOK},
		{name: "Ошибка - роль user", role: "user", expectedStatus: http.StatusForbidden},
		{name: "Ошибка - роль отсутствует", role: "", expectedStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := AdminOnlyMiddleware(newNoopLogger())

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.role != "" {
				req = req.WithContext(context.WithValue(req.Context(), Role, tt.role))
			}
			w := httptest.NewRecorder()

			middleware(okHandler(nil)).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	middleware := RateLimitMiddleware(newNoopLogger())

	t.Run("Пропускает запросы в пределах лимита", func(t *testing.T) {
		originalLimiter := limiter
		limiter = rate.NewLimiter(10, 10)
		defer func() { limiter = originalLimiter }()

		for range 10 {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()
			middleware(okHandler(nil)).ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("Блокирует запросы сверх лимита", func(t *testing.T) {
		originalLimiter := limiter
		limiter = rate.NewLimiter(1, 1)
		defer func() { limiter = originalLimiter }()

		req := httptest.NewRequest(http.MethodGet, "/test", nil)

		w := httptest.NewRecorder()
		middleware(okHandler(nil)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		middleware(okHandler(nil)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}
