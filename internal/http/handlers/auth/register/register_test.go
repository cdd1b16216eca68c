package register

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	authservice "github.com/savelyevra/mechanic-access/internal/services/auth"
	referralservice "github.com/savelyevra/mechanic-access/internal/services/referral"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, username, email, password, referralCode string) (string, error) {
	args := m.Called(ctx, username, email, password, referralCode)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*MockAuthService)
		expectedStatus int
		expectedError  string
	}{
		{
			name: "Успех - регистрация без реферального кода",
			body: `{"username":"ivan","email":"ivan@example.com","password":"secret123"}`,
			setupMocks: func(s *MockAuthService) {
				s.On("Register", mock.Anything, "ivan", "ivan@example.com", "secret123", "").
					Return("new-uid", nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Успех - регистрация с реферальным кодом",
			body: `{"username":"ivan","email":"ivan@example.com","password":"secret123","referral_code":"ABCD2345"}`,
			setupMocks: func(s *MockAuthService) {
				s.On("Register", mock.Anything, "ivan", "ivan@example.com", "secret123", "ABCD2345").
					Return("new-uid", nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Ошибка - некорректный JSON",
			body:           `{invalid`,
			setupMocks:     func(*MockAuthService) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request body",
		},
		{
			name:           "Ошибка - короткий пароль",
			body:           `{"username":"ivan","email":"ivan@example.com","password":"123"}`,
			setupMocks:     func(*MockAuthService) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "Ошибка - некорректный email",
			body:           `{"username":"ivan","email":"not-an-email","password":"secret123"}`,
			setupMocks:     func(*MockAuthService) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "Ошибка - нераспознанный реферальный код",
			body: `{"username":"ivan","email":"ivan@example.com","password":"secret123","referral_code":"ZZZZ9999"}`,
			setupMocks: func(s *MockAuthService) {
				s.On("Register", mock.Anything, "ivan", "ivan@example.com", "secret123", "ZZZZ9999").
					Return("", fmt.Errorf("services.auth.Register: %w", referralservice.ErrInvalidReferralCode)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid referral code",
		},
		{
			name: "Ошибка - username уже занят",
			body: `{"username":"ivan","email":"ivan@example.com","password":"secret123"}`,
			setupMocks: func(s *MockAuthService) {
				s.On("Register", mock.Anything, "ivan", "ivan@example.com", "secret123", "").
					Return("", fmt.Errorf("services.auth.Register: %w", authservice.ErrUserExists)).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedError:  "user already exists",
		},
		{
			name: "Ошибка - внутренняя ошибка сервиса",
			body: `{"username":"ivan","email":"ivan@example.com","password":"secret123"}`,
			setupMocks: func(s *MockAuthService) {
				s.On("Register", mock.Anything, "ivan", "ivan@example.com", "secret123", "").
					Return("", assert.AnError).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockAuthService)
			tt.setupMocks(service)
			handler := New(newNoopLogger(), service)

			req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
			service.AssertExpectations(t)
		})
	}
}
