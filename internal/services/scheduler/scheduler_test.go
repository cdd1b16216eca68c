package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/savelyevra/mechanic-access/internal/lib/clock"
	"github.com/savelyevra/mechanic-access/internal/models"
)

type MockExpiringRepository struct {
	mock.Mock
}

func (m *MockExpiringRepository) FindSubscriptionsExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*models.ExpiringSubscription, error) {
	args := m.Called(ctx, now, within)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ExpiringSubscription), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestScanExpiring(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockExpiringRepository)
	}{
		{
			name: "Успех - истекающих подписок нет",
			setupMocks: func(r *MockExpiringRepository) {
				r.On("FindSubscriptionsExpiringSoon", mock.Anything, testNow, expiryWindow).
					Return([]*models.ExpiringSubscription{}, nil).Once()
			},
		},
		{
			name: "Ошибка - хранилище недоступно, скан не падает",
			setupMocks: func(r *MockExpiringRepository) {
				r.On("FindSubscriptionsExpiringSoon", mock.Anything, testNow, expiryWindow).
					Return(nil, errors.New("db error")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockExpiringRepository)
			tt.setupMocks(repo)
			service := NewSchedulerService(repo, clock.Fixed{Time: testNow}, newNoopLogger())

			service.scanExpiring(context.Background(), nil)

			repo.AssertExpectations(t)
		})
	}
}
