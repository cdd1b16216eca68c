package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/metrics"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/storage/repository"
)

// ErrConcurrentUpdate — исчерпаны повторы условного обновления прогресса.
var ErrConcurrentUpdate = errors.New("concurrent update conflict")

// OnReferredUserActivated засчитывает первую оплату реферала в прогресс
// цикла его реферера. Вызывается после каждого начисления оплаченного
// доступа; повторные оплаты того же реферала игнорируются по отметке
// активации. Если пользователь пришёл без реферального кода, метод
// ничего не делает.
func (s *ReferralService) OnReferredUserActivated(ctx context.Context, referredUID string) error {
	const op = "services.referral.OnReferredUserActivated"

	referred, err := s.repo.GetUser(ctx, referredUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if referred.ReferredBy == nil {
		return nil
	}
	referrerUID := *referred.ReferredBy

	unlock := s.locks.Lock(referrerUID)
	defer unlock()

	counted, err := s.repo.InsertReferralActivation(ctx, referrerUID, referredUID, s.clk.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !counted {
		// Этот реферал уже был засчитан: продление не даёт нового прогресса.
		return nil
	}

	mutated, err := s.advanceCycle(ctx, op, referrerUID, referredUID)
	if err != nil {
		if !mutated {
			// Прогресс цикла не записан: снимаем отметку активации, иначе
			// повторный вызов увидит её и реферал пропадёт навсегда.
			if delErr := s.repo.DeleteReferralActivation(ctx, referrerUID, referredUID); delErr != nil {
				s.log.Error("failed to remove referral activation mark", sl.Err(delErr))
			}
		}
		return err
	}
	metrics.ReferralActivations.Inc()

	s.log.Info("counted referral activation",
		slog.String("referrer_uid", referrerUID),
		slog.String("referred_uid", referredUID))

	return nil
}

// advanceCycle увеличивает прогресс текущего цикла реферера либо открывает
// первый цикл. После закрытых циклов новый открывается только явным
// сбросом, поэтому при их наличии активация фиксируется без прогресса.
// Первое возвращаемое значение сообщает, учтена ли активация в состоянии
// циклов: по нему вызывающая сторона решает, снимать ли отметку активации
// при ошибке.
func (s *ReferralService) advanceCycle(ctx context.Context, op, referrerUID, referredUID string) (bool, error) {
	for range progressAttempts {
		pending, err := s.repo.FindPendingReward(ctx, referrerUID)
		if errors.Is(err, repository.ErrNotFound) {
			latest, err := s.repo.FindLatestReward(ctx, referrerUID)
			if err == nil && latest != nil {
				s.log.Info("referral activation outside of open cycle",
					slog.String("referrer_uid", referrerUID),
					slog.Int("last_cycle", latest.RewardCycle))
				return true, nil
			}
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return false, fmt.Errorf("%s: %w", op, err)
			}

			reward := models.NewReferralReward(referrerUID, &referredUID, 1, 1, s.clk.Now())
			if err := s.repo.CreateReferralReward(ctx, *reward); err != nil {
				return false, fmt.Errorf("%s: %w", op, err)
			}
			s.log.Info("opened referral cycle",
				slog.String("referrer_uid", referrerUID),
				slog.Int("cycle", reward.RewardCycle))
			if reward.CurrentReferrals >= reward.RequiredReferrals {
				return true, s.award(ctx, op, reward.ID)
			}
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}

		if pending.CurrentReferrals >= pending.RequiredReferrals {
			// Цикл уже полон, но не начислен: прошлый грант сорвался.
			// Добиваем начисление, новая активация прогресса не даёт.
			return true, s.award(ctx, op, pending.ID)
		}

		ok, err := s.repo.IncrementReferralProgress(ctx, pending.ID, pending.CurrentReferrals)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			// Прогресс изменил параллельный вызов, перечитываем цикл.
			continue
		}

		newCount := pending.CurrentReferrals + 1
		s.log.Info("advanced referral cycle",
			slog.String("referrer_uid", referrerUID),
			slog.Int("cycle", pending.RewardCycle),
			slog.Int("progress", newCount))
		if newCount >= pending.RequiredReferrals {
			return true, s.award(ctx, op, pending.ID)
		}
		return true, nil
	}

	return false, fmt.Errorf("%s: %w", op, ErrConcurrentUpdate)
}

// award начисляет награду закрытого цикла: сперва переводит запись в
// awarded, затем выдаёт дни доступа. Повторный вызов для уже начисленной
// записи — no-op. Если выдать дни не удалось, статус откатывается в
// pending, чтобы следующая активация добила начисление.
func (s *ReferralService) award(ctx context.Context, op, rewardID string) error {
	reward, err := s.repo.GetReferralReward(ctx, rewardID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	marked, err := s.repo.MarkRewardAwarded(ctx, rewardID, s.clk.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !marked {
		return nil
	}

	if _, err := s.ledger.Grant(ctx, reward.ReferrerUID, reward.RewardValueDays, 0); err != nil {
		// Дни не начислены: возвращаем цикл в pending, иначе запись будет
		// значиться awarded без гранта и повтор начисления станет no-op.
		if revErr := s.repo.RevertRewardAward(ctx, rewardID); revErr != nil {
			s.log.Error("failed to revert reward status after grant failure", sl.Err(revErr))
		}
		return fmt.Errorf("%s: grant reward days: %w", op, err)
	}
	metrics.RewardsAwarded.Inc()

	s.log.Info("awarded referral reward",
		slog.String("referrer_uid", reward.ReferrerUID),
		slog.Int("cycle", reward.RewardCycle),
		slog.Int("days", reward.RewardValueDays))

	s.publishReward(ctx, reward)
	return nil
}

// publishReward отправляет нотификацию о награде. Сбой отправки не
// откатывает начисление — нотификации best-effort.
func (s *ReferralService) publishReward(ctx context.Context, reward *models.ReferralReward) {
	if s.publisher == nil {
		return
	}
	referrer, err := s.repo.GetUser(ctx, reward.ReferrerUID)
	if err != nil {
		s.log.Warn("failed to load referrer for reward notification", sl.Err(err))
		return
	}
	msg := models.RewardNotification{
		Email:       referrer.Email,
		Username:    referrer.Username,
		RewardDays:  reward.RewardValueDays,
		RewardCycle: reward.RewardCycle,
	}
	if err := s.publisher.PublishReward(msg); err != nil {
		s.log.Warn("failed to publish reward notification", sl.Err(err))
	}
}

// CanStartNewCycle сообщает, можно ли открыть следующий реферальный цикл:
// последний цикл пользователя должен быть начислен.
func (s *ReferralService) CanStartNewCycle(ctx context.Context, referrerUID string) (bool, error) {
	const op = "services.referral.CanStartNewCycle"

	latest, err := s.repo.FindLatestReward(ctx, referrerUID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return latest.Status == models.RewardStatusAwarded, nil
}

// StartNewCycle открывает следующий цикл после начисленного: создаётся
// запись pending с нулевым прогрессом и без привязки к рефералу.
func (s *ReferralService) StartNewCycle(ctx context.Context, referrerUID string) (*models.ReferralReward, error) {
	const op = "services.referral.StartNewCycle"

	unlock := s.locks.Lock(referrerUID)
	defer unlock()

	latest, err := s.repo.FindLatestReward(ctx, referrerUID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrNoCycleToReset)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if latest.Status != models.RewardStatusAwarded {
		return nil, fmt.Errorf("%s: %w", op, ErrNoCycleToReset)
	}

	reward := models.NewReferralReward(referrerUID, nil, latest.RewardCycle+1, 0, s.clk.Now())
	if err := s.repo.CreateReferralReward(ctx, *reward); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("started new referral cycle",
		slog.String("referrer_uid", referrerUID),
		slog.Int("cycle", reward.RewardCycle))
	return reward, nil
}

// Dashboard собирает сводку реферальной программы пользователя: код,
// приглашённых пользователей и историю циклов. Код генерируется лениво
// при первом обращении.
func (s *ReferralService) Dashboard(ctx context.Context, userUID string) (*models.ReferralDashboard, error) {
	const op = "services.referral.Dashboard"

	code, err := s.EnsureCode(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	referred, err := s.repo.ListReferredUsers(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rewards, err := s.repo.ListReferralRewards(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	canReset, err := s.CanStartNewCycle(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dashboard := &models.ReferralDashboard{
		ReferralCode:     code,
		TotalReferrals:   len(referred),
		CanStartNewCycle: canReset,
		ReferredUsers:    make([]models.ReferredUser, 0, len(referred)),
		Rewards:          rewards,
	}
	for _, u := range referred {
		active, err := s.ledger.HasActiveSubscription(ctx, u.UID)
		if err != nil {
			// Сводка не падает из-за одного реферала: берём денормализованный флаг.
			s.log.Warn("failed to check referred subscription", sl.Err(err))
			active = u.HasSubscription
		}
		if active {
			dashboard.ActiveReferrals++
		}
		dashboard.ReferredUsers = append(dashboard.ReferredUsers, models.ReferredUser{
			UID:             u.UID,
			Username:        u.Username,
			HasSubscription: active,
			RegisteredAt:    u.CreatedAt,
		})
	}
	return dashboard, nil
}
