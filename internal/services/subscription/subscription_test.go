package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/savelyevra/mechanic-access/internal/lib/clock"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/storage/repository"
)

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if u, ok := args.Get(0).(*models.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubscriptionRepository) HasActiveSubscription(ctx context.Context, userUID string, now time.Time) (bool, error) {
	args := m.Called(ctx, userUID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubscriptionRepository) FindLatestActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	args := m.Called(ctx, userUID, now)
	if s, ok := args.Get(0).(*models.Subscription); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSubscriptionRepository) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ExtendSubscription(ctx context.Context, subID, userUID string, oldExpiry, newExpiry time.Time) (bool, error) {
	args := m.Called(ctx, subID, userUID, oldExpiry, newExpiry)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubscriptionRepository) ListSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if s, ok := args.Get(0).([]*models.Subscription); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *MockSubscriptionRepository) *SubscriptionService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSubscriptionService(repo, clock.Fixed{Time: testNow}, log)
}

func TestDurationForAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		wantDays int
		wantErr  error
	}{
		{name: "Базовый тариф даёт один день", amount: 14.99, wantDays: 1},
		{name: "Профессиональный тариф даёт месяц", amount: 49.99, wantDays: 30},
		{name: "Экспертный тариф даёт год", amount: 79.99, wantDays: 366},
		{name: "Неизвестная сумма отклоняется", amount: 10.00, wantErr: ErrUnknownAmount},
		{name: "Нулевая сумма отклоняется", amount: 0, wantErr: ErrUnknownAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, err := DurationForAmount(tt.amount)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, days)
		})
	}
}

func TestGrant(t *testing.T) {
	const userUID = "user-1"
	user := &models.User{UID: userUID, Username: "ivan"}

	t.Run("Успех - без активной записи создаётся новая", func(t *testing.T) {
		repo := new(MockSubscriptionRepository)
		repo.On("GetUser", mock.Anything, userUID).Return(user, nil)
		repo.On("FindLatestActiveSubscription", mock.Anything, userUID, testNow).
			Return(nil, repository.ErrNotFound)
		repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(s models.Subscription) bool {
			return s.UserUID == userUID &&
				s.Status == models.SubscriptionStatusActive &&
				s.ExpiresAt.Equal(testNow.AddDate(0, 0, 30))
		})).Return(nil)
		svc := newTestService(repo)

		sub, err := svc.Grant(context.Background(), userUID, 30, 49.99)

		require.NoError(t, err)
		assert.Equal(t, testNow.AddDate(0, 0, 30), sub.ExpiresAt)
		repo.AssertExpectations(t)
	})

	t.Run("Успех - активная запись продлевается от своего срока", func(t *testing.T) {
		currentExpiry := testNow.AddDate(0, 0, 10)
		current := &models.Subscription{
			ID: "sub-1", UserUID: userUID,
			Status: models.SubscriptionStatusActive, ExpiresAt: currentExpiry,
		}
		repo := new(MockSubscriptionRepository)
		repo.On("GetUser", mock.Anything, userUID).Return(user, nil)
		repo.On("FindLatestActiveSubscription", mock.Anything, userUID, testNow).
			Return(current, nil)
		repo.On("ExtendSubscription", mock.Anything, "sub-1", userUID,
			currentExpiry, currentExpiry.AddDate(0, 0, 30)).Return(true, nil)
		svc := newTestService(repo)

		sub, err := svc.Grant(context.Background(), userUID, 30, 49.99)

		require.NoError(t, err)
		assert.Equal(t, currentExpiry.AddDate(0, 0, 30), sub.ExpiresAt)
		repo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
	})

	t.Run("Успех - конфликт продления разрешается повтором", func(t *testing.T) {
		firstExpiry := testNow.AddDate(0, 0, 10)
		movedExpiry := testNow.AddDate(0, 0, 40)
		first := &models.Subscription{
			ID: "sub-1", UserUID: userUID,
			Status: models.SubscriptionStatusActive, ExpiresAt: firstExpiry,
		}
		moved := &models.Subscription{
			ID: "sub-1", UserUID: userUID,
			Status: models.SubscriptionStatusActive, ExpiresAt: movedExpiry,
		}
		repo := new(MockSubscriptionRepository)
		repo.On("GetUser", mock.Anything, userUID).Return(user, nil)
		repo.On("FindLatestActiveSubscription", mock.Anything, userUID, testNow).
			Return(first, nil).Once()
		repo.On("ExtendSubscription", mock.Anything, "sub-1", userUID,
			firstExpiry, firstExpiry.AddDate(0, 0, 30)).Return(false, nil).Once()
		repo.On("FindLatestActiveSubscription", mock.Anything, userUID, testNow).
			Return(moved, nil).Once()
		repo.On("ExtendSubscription", mock.Anything, "sub-1", userUID,
			movedExpiry, movedExpiry.AddDate(0, 0, 30)).Return(true, nil).Once()
		svc := newTestService(repo)

		sub, err := svc.Grant(context.Background(), userUID, 30, 49.99)

		require.NoError(t, err)
		assert.Equal(t, movedExpiry.AddDate(0, 0, 30), sub.ExpiresAt)
		repo.AssertExpectations(t)
	})

	t.Run("Ошибка - конфликт исчерпывает повторы", func(t *testing.T) {
		currentExpiry := testNow.AddDate(0, 0, 10)
		current := &models.Subscription{
			ID: "sub-1", UserUID: userUID,
			Status: models.SubscriptionStatusActive, ExpiresAt: currentExpiry,
		}
		repo := new(MockSubscriptionRepository)
		repo.On("GetUser", mock.Anything, userUID).Return(user, nil)
		repo.On("FindLatestActiveSubscription", mock.Anything, userUID, testNow).
			Return(current, nil)
		repo.On("ExtendSubscription", mock.Anything, "sub-1", userUID,
			currentExpiry, currentExpiry.AddDate(0, 0, 30)).Return(false, nil)
		svc := newTestService(repo)

		_, err := svc.Grant(context.Background(), userUID, 30, 49.99)

		require.ErrorIs(t, err, ErrConcurrentUpdate)
	})

	t.Run("Ошибка - пользователь не найден", func(t *testing.T) {
		repo := new(MockSubscriptionRepository)
		repo.On("GetUser", mock.Anything, userUID).Return(nil, repository.ErrNotFound)
		svc := newTestService(repo)

		_, err := svc.Grant(context.Background(), userUID, 30, 49.99)

		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("Ошибка - неположительное число дней", func(t *testing.T) {
		repo := new(MockSubscriptionRepository)
		svc := newTestService(repo)

		_, err := svc.Grant(context.Background(), userUID, 0, 49.99)

		require.ErrorIs(t, err, ErrInvalidDuration)
		repo.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	})
}

// grantTwice выдаёт пользователю два гранта подряд на мок-хранилище и
// возвращает срок после второго: первый создаёт запись, второй продлевает её.
func grantTwice(t *testing.T, firstDays, secondDays int) time.Time {
	t.Helper()
	const userUID = "user-1"

	firstExpiry := testNow.AddDate(0, 0, firstDays)
	repo := new(MockSubscriptionRepository)
	repo.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, Username: "ivan"}, nil)
	repo.On("FindLatestActiveSubscription", mock.Anything, userUID, testNow).
		Return(nil, repository.ErrNotFound).Once()
	repo.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("FindLatestActiveSubscription", mock.Anything, userUID, testNow).
		Return(&models.Subscription{
			ID: "sub-1", UserUID: userUID,
			Status: models.SubscriptionStatusActive, ExpiresAt: firstExpiry,
		}, nil).Once()
	repo.On("ExtendSubscription", mock.Anything, "sub-1", userUID,
		firstExpiry, firstExpiry.AddDate(0, 0, secondDays)).Return(true, nil).Once()
	svc := newTestService(repo)

	first, err := svc.Grant(context.Background(), userUID, firstDays, 0)
	require.NoError(t, err)
	require.Equal(t, firstExpiry, first.ExpiresAt)

	second, err := svc.Grant(context.Background(), userUID, secondDays, 0)
	require.NoError(t, err)
	repo.AssertExpectations(t)
	return second.ExpiresAt
}

func TestGrantStackingOrder(t *testing.T) {
	t.Run("Успех - итоговый срок не зависит от порядка грантов", func(t *testing.T) {
		dayThenMonth := grantTwice(t, 1, 30)
		monthThenDay := grantTwice(t, 30, 1)

		assert.Equal(t, dayThenMonth, monthThenDay)
		assert.Equal(t, testNow.AddDate(0, 0, 31), dayThenMonth)
	})
}

func TestHasActiveSubscription(t *testing.T) {
	repo := new(MockSubscriptionRepository)
	repo.On("HasActiveSubscription", mock.Anything, "user-1", testNow).Return(true, nil)
	svc := newTestService(repo)

	active, err := svc.HasActiveSubscription(context.Background(), "user-1")

	require.NoError(t, err)
	assert.True(t, active)
}
