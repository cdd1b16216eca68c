package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/savelyevra/mechanic-access/internal/http/middlewarectx"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/paymentprovider"
)

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Grant(ctx context.Context, userUID string, durationDays int, amountPaid float64) (*models.Subscription, error) {
	args := m.Called(ctx, userUID, durationDays, amountPaid)
	if s, ok := args.Get(0).(*models.Subscription); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockReferralService struct {
	mock.Mock
}

func (m *MockReferralService) OnReferredUserActivated(ctx context.Context, referredUID string) error {
	args := m.Called(ctx, referredUID)
	return args.Error(0)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyPayment(ctx context.Context, paymentID string, amount float64) error {
	args := m.Called(ctx, paymentID, amount)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newAuthenticatedRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/verify", bytes.NewBufferString(body))
	ctx := context.WithValue(req.Context(), middlewarectx.UserUID, "user-1")
	return req.WithContext(ctx)
}

func TestVerifyHandler(t *testing.T) {
	sub := &models.Subscription{
		ID:        "sub-1",
		UserUID:   "user-1",
		Status:    models.SubscriptionStatusActive,
		ExpiresAt: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name           string
		body           string
		authenticated  bool
		setupMocks     func(*MockSubscriptionService, *MockReferralService, *MockVerifier)
		expectedStatus int
		expectedError  string
	}{
		{
			name:          "Успех - платёж подтверждён и доступ начислен",
			body:          `{"payment_id":"pay-1","amount":49.99}`,
			authenticated: true,
			setupMocks: func(s *MockSubscriptionService, r *MockReferralService, v *MockVerifier) {
				v.On("VerifyPayment", mock.Anything, "pay-1", 49.99).Return(nil).Once()
				s.On("Grant", mock.Anything, "user-1", 30, 49.99).Return(sub, nil).Once()
				r.On("OnReferredUserActivated", mock.Anything, "user-1").Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:          "Успех - сбой реферального учёта не ломает ответ",
			body:          `{"payment_id":"pay-1","amount":49.99}`,
			authenticated: true,
			setupMocks: func(s *MockSubscriptionService, r *MockReferralService, v *MockVerifier) {
				v.On("VerifyPayment", mock.Anything, "pay-1", 49.99).Return(nil).Once()
				s.On("Grant", mock.Anything, "user-1", 30, 49.99).Return(sub, nil).Once()
				r.On("OnReferredUserActivated", mock.Anything, "user-1").Return(assert.AnError).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Ошибка - нет идентификации пользователя",
			body:           `{"payment_id":"pay-1","amount":49.99}`,
			authenticated:  false,
			setupMocks:     func(*MockSubscriptionService, *MockReferralService, *MockVerifier) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Ошибка - некорректный JSON",
			body:           `{invalid`,
			authenticated:  true,
			setupMocks:     func(*MockSubscriptionService, *MockReferralService, *MockVerifier) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid request body",
		},
		{
			name:           "Ошибка - сумма вне таблицы тарифов",
			body:           `{"payment_id":"pay-1","amount":10.00}`,
			authenticated:  true,
			setupMocks:     func(*MockSubscriptionService, *MockReferralService, *MockVerifier) {},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "unknown payment amount",
		},
		{
			name:          "Ошибка - провайдер не подтвердил платёж",
			body:          `{"payment_id":"pay-1","amount":49.99}`,
			authenticated: true,
			setupMocks: func(_ *MockSubscriptionService, _ *MockReferralService, v *MockVerifier) {
				v.On("VerifyPayment", mock.Anything, "pay-1", 49.99).
					Return(fmt.Errorf("paymentprovider.VerifyPayment: %w", paymentprovider.ErrPaymentNotConfirmed)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "payment not confirmed",
		},
		{
			name:          "Ошибка - начисление доступа не удалось",
			body:          `{"payment_id":"pay-1","amount":49.99}`,
			authenticated: true,
			setupMocks: func(s *MockSubscriptionService, _ *MockReferralService, v *MockVerifier) {
				v.On("VerifyPayment", mock.Anything, "pay-1", 49.99).Return(nil).Once()
				s.On("Grant", mock.Anything, "user-1", 30, 49.99).Return(nil, assert.AnError).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subscriptions := new(MockSubscriptionService)
			referrals := new(MockReferralService)
			verifier := new(MockVerifier)
			tt.setupMocks(subscriptions, referrals, verifier)
			handler := New(newNoopLogger(), subscriptions, referrals, verifier)

			var req *http.Request
			if tt.authenticated {
				req = newAuthenticatedRequest(tt.body)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/payments/verify", bytes.NewBufferString(tt.body))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
			subscriptions.AssertExpectations(t)
			referrals.AssertExpectations(t)
			verifier.AssertExpectations(t)
		})
	}
}
