// Package services содержит бизнес-логику реферальной программы:
// выдачу реферальных кодов, учёт прогресса циклов и начисление наград.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/savelyevra/mechanic-access/internal/lib/clock"
	"github.com/savelyevra/mechanic-access/internal/lib/refcode"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/lib/userlock"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/storage/repository"
)

// Ошибки бизнес-уровня реферальной программы.
var (
	// ErrUserNotFound — операция ссылается на несуществующего пользователя.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidReferralCode — код не принадлежит ни одному пользователю.
	ErrInvalidReferralCode = errors.New("invalid referral code")
	// ErrCodeGenerationFailed — исчерпаны попытки сгенерировать уникальный код.
	ErrCodeGenerationFailed = errors.New("referral code generation failed")
	// ErrNoCycleToReset — текущий цикл ещё не завершён, новый начинать нельзя.
	ErrNoCycleToReset = errors.New("no completed referral cycle to reset")
)

// codeGenerationAttempts — сколько раз повторяется генерация кода при коллизии.
const codeGenerationAttempts = 5

// progressAttempts — число повторов условного инкремента прогресса цикла.
const progressAttempts = 3

// refcodeCacheKey — ключ кеша для разрешения реферального кода.
// Коды неизменяемы, поэтому кешировать их безопасно.
func refcodeCacheKey(code string) string {
	return "refcode:" + code
}

// refcodeCacheTTL — время жизни кешированного кода.
const refcodeCacheTTL = 24 * time.Hour

// ReferralRepository определяет методы хранилища для реферальной программы.
type ReferralRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetReferralCode(ctx context.Context, userUID, code string) error
	ListReferredUsers(ctx context.Context, referrerUID string) ([]*models.User, error)

	InsertReferralActivation(ctx context.Context, referrerUID, referredUID string, now time.Time) (bool, error)
	DeleteReferralActivation(ctx context.Context, referrerUID, referredUID string) error
	CreateReferralReward(ctx context.Context, reward models.ReferralReward) error
	GetReferralReward(ctx context.Context, rewardID string) (*models.ReferralReward, error)
	FindPendingReward(ctx context.Context, referrerUID string) (*models.ReferralReward, error)
	FindLatestReward(ctx context.Context, referrerUID string) (*models.ReferralReward, error)
	ListReferralRewards(ctx context.Context, referrerUID string) ([]*models.ReferralReward, error)
	IncrementReferralProgress(ctx context.Context, rewardID string, oldCount int) (bool, error)
	MarkRewardAwarded(ctx context.Context, rewardID string, now time.Time) (bool, error)
	RevertRewardAward(ctx context.Context, rewardID string) error
}

// Ledger описывает учёт подписок, которым реферальная программа
// начисляет награды и проверяет живой статус рефералов.
type Ledger interface {
	Grant(ctx context.Context, userUID string, durationDays int, amountPaid float64) (*models.Subscription, error)
	HasActiveSubscription(ctx context.Context, userUID string) (bool, error)
}

// Cache описывает методы кеширования разрешения реферальных кодов.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Publisher публикует нотификации о начисленных наградах.
type Publisher interface {
	PublishReward(message models.RewardNotification) error
}

// ReferralService реализует реферальную программу.
type ReferralService struct {
	repo      ReferralRepository
	ledger    Ledger
	cache     Cache
	publisher Publisher
	clk       clock.Clock
	locks     *userlock.Registry
	log       *slog.Logger
}

// NewReferralService создает новый экземпляр ReferralService.
// publisher может быть nil — тогда нотификации не отправляются.
func NewReferralService(repo ReferralRepository, ledger Ledger, cache Cache, publisher Publisher, clk clock.Clock, log *slog.Logger) *ReferralService {
	return &ReferralService{
		repo:      repo,
		ledger:    ledger,
		cache:     cache,
		publisher: publisher,
		clk:       clk,
		locks:     userlock.New(),
		log:       log,
	}
}

// EnsureCode возвращает реферальный код пользователя, генерируя и сохраняя
// его при первом обращении. Код неизменен после установки.
func (s *ReferralService) EnsureCode(ctx context.Context, userUID string) (string, error) {
	const op = "services.referral.EnsureCode"

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if user.ReferralCode != nil {
		return *user.ReferralCode, nil
	}

	for range codeGenerationAttempts {
		code, err := refcode.Generate()
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		err = s.repo.SetReferralCode(ctx, userUID, code)
		if err == nil {
			s.cacheCode(code, userUID)
			s.log.Info("generated referral code", slog.String("user_uid", userUID))
			return code, nil
		}
		if errors.Is(err, repository.ErrDuplicateReferralCode) {
			continue
		}
		if errors.Is(err, repository.ErrNotFound) {
			// Код успел установить параллельный вызов.
			user, getErr := s.repo.GetUser(ctx, userUID)
			if getErr == nil && user.ReferralCode != nil {
				return *user.ReferralCode, nil
			}
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return "", fmt.Errorf("%s: %w", op, ErrCodeGenerationFailed)
}

// Resolve возвращает UID владельца реферального кода.
//
// Нераспознанный код — это ошибка ErrInvalidReferralCode: регистрация
// с таким кодом должна завершиться отказом, а не молча продолжиться.
func (s *ReferralService) Resolve(ctx context.Context, code string) (string, error) {
	const op = "services.referral.Resolve"

	if code == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidReferralCode)
	}

	var cachedUID string
	if s.cache != nil {
		if found, err := s.cache.Get(refcodeCacheKey(code), &cachedUID); err == nil && found {
			return cachedUID, nil
		}
	}

	user, err := s.repo.GetUserByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrInvalidReferralCode)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.cacheCode(code, user.UID)
	return user.UID, nil
}

func (s *ReferralService) cacheCode(code, userUID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(refcodeCacheKey(code), userUID, refcodeCacheTTL); err != nil {
		s.log.Warn("failed to cache referral code", sl.Err(err))
	}
}
