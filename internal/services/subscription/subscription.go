// Package services содержит бизнес-логику учёта подписок: проверку
// активного доступа, начисление и продление оплаченных и подарочных дней.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/savelyevra/mechanic-access/internal/lib/clock"
	"github.com/savelyevra/mechanic-access/internal/lib/userlock"
	"github.com/savelyevra/mechanic-access/internal/metrics"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/storage/repository"
)

// Ошибки бизнес-уровня учёта подписок.
var (
	// ErrUserNotFound — операция ссылается на несуществующего пользователя.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidDuration — запрошено начисление неположительного числа дней.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrUnknownAmount — сумма не входит в таблицу тарифов.
	ErrUnknownAmount = errors.New("unknown amount")
	// ErrConcurrentUpdate — исчерпаны повторы условного обновления записи.
	ErrConcurrentUpdate = errors.New("concurrent update conflict")
)

// grantAttempts — число повторов решения "продлить или создать" при
// конфликте условного обновления.
const grantAttempts = 3

// Тарифы: оплаченная сумма → дни доступа.
const (
	tierBasicCents        = 1499
	tierProfessionalCents = 4999
	tierExpertCents       = 7999

	tierBasicDays        = 1
	tierProfessionalDays = 30
	tierExpertDays       = 366
)

// SubscriptionRepository определяет методы хранилища, которые нужны учёту подписок.
type SubscriptionRepository interface {
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// HasActiveSubscription сообщает о наличии активной записи на момент now.
	HasActiveSubscription(ctx context.Context, userUID string, now time.Time) (bool, error)
	// FindLatestActiveSubscription возвращает активную запись с самым поздним сроком.
	FindLatestActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error)
	// CreateSubscription вставляет запись и выставляет флаг has_subscription атомарно.
	CreateSubscription(ctx context.Context, sub models.Subscription) error
	// ExtendSubscription условно сдвигает срок записи, false при конфликте.
	ExtendSubscription(ctx context.Context, subID, userUID string, oldExpiry, newExpiry time.Time) (bool, error)
	// ListSubscriptions возвращает все записи пользователя.
	ListSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error)
}

// SubscriptionService реализует учёт подписок.
type SubscriptionService struct {
	repo  SubscriptionRepository
	clk   clock.Clock
	locks *userlock.Registry
	log   *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, clk clock.Clock, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:  repo,
		clk:   clk,
		locks: userlock.New(),
		log:   log,
	}
}

// DurationForAmount возвращает количество дней доступа для оплаченной суммы.
// Суммы вне таблицы тарифов отклоняются до обращения к учёту.
func DurationForAmount(amount float64) (int, error) {
	switch int(math.Round(amount * 100)) {
	case tierBasicCents:
		return tierBasicDays, nil
	case tierProfessionalCents:
		return tierProfessionalDays, nil
	case tierExpertCents:
		return tierExpertDays, nil
	default:
		return 0, fmt.Errorf("%w: %.2f", ErrUnknownAmount, amount)
	}
}

// HasActiveSubscription сообщает, есть ли у пользователя действующий доступ.
//
// Проверка всегда идёт в хранилище: кешированный флаг has_subscription
// в принятии решения не участвует.
func (s *SubscriptionService) HasActiveSubscription(ctx context.Context, userUID string) (bool, error) {
	return s.repo.HasActiveSubscription(ctx, userUID, s.clk.Now())
}

// ListSubscriptions возвращает записи подписок пользователя для отображения.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	return s.repo.ListSubscriptions(ctx, userUID)
}

// Grant начисляет пользователю durationDays дней доступа.
//
// Если у пользователя есть активная запись, её срок сдвигается вперёд
// на durationDays (дни складываются). Иначе создается новая запись со
// сроком now + durationDays. amountPaid равен 0 для наград и админских
// начислений.
func (s *SubscriptionService) Grant(ctx context.Context, userUID string, durationDays int, amountPaid float64) (*models.Subscription, error) {
	const op = "services.subscription.Grant"

	if durationDays <= 0 {
		return nil, fmt.Errorf("%s: %w: %d days", op, ErrInvalidDuration, durationDays)
	}
	if _, err := s.repo.GetUser(ctx, userUID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	unlock := s.locks.Lock(userUID)
	defer unlock()

	for range grantAttempts {
		now := s.clk.Now()

		current, err := s.repo.FindLatestActiveSubscription(ctx, userUID, now)
		if errors.Is(err, repository.ErrNotFound) {
			sub, err := models.NewSubscription(userUID, amountPaid, now, durationDays)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if err := s.repo.CreateSubscription(ctx, *sub); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			s.log.Info("created subscription",
				slog.String("user_uid", userUID),
				slog.Int("days", durationDays),
				slog.Time("expires_at", sub.ExpiresAt))
			metrics.SubscriptionGrants.WithLabelValues(grantSource(amountPaid)).Inc()
			return sub, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		newExpiry := current.ExpiresAt.AddDate(0, 0, durationDays)
		ok, err := s.repo.ExtendSubscription(ctx, current.ID, userUID, current.ExpiresAt, newExpiry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			// Запись изменил параллельный вызов, решаем заново.
			continue
		}
		current.ExpiresAt = newExpiry
		s.log.Info("extended subscription",
			slog.String("user_uid", userUID),
			slog.Int("days", durationDays),
			slog.Time("expires_at", newExpiry))
		metrics.SubscriptionGrants.WithLabelValues(grantSource(amountPaid)).Inc()
		return current, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}

func grantSource(amountPaid float64) string {
	if amountPaid > 0 {
		return "paid"
	}
	return "free"
}
