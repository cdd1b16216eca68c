package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/savelyevra/mechanic-access/internal/models"
)

// InsertReferralActivation ставит отметку "реферал оплатил впервые" для пары
// (referrer, referred). Возвращает false, если отметка уже существовала —
// повторные продления того же реферала в прогресс не засчитываются.
func (s *Storage) InsertReferralActivation(ctx context.Context, referrerUID, referredUID string, now time.Time) (bool, error) {
	const op = "storage.InsertReferralActivation"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO referral_activations (referrer_uid, referred_uid, activated_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (referrer_uid, referred_uid) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query, referrerUID, referredUID, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// DeleteReferralActivation снимает отметку активации пары (referrer, referred).
// Компенсация на случай, когда прогресс цикла после отметки записать не
// удалось: без неё повторный вызов не засчитает реферала.
func (s *Storage) DeleteReferralActivation(ctx context.Context, referrerUID, referredUID string) error {
	const op = "storage.DeleteReferralActivation"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM referral_activations
			  WHERE referrer_uid = $1
			    AND referred_uid = $2`
	_, err := s.DB.ExecContext(ctx, query, referrerUID, referredUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateReferralReward вставляет запись нового реферального цикла.
func (s *Storage) CreateReferralReward(ctx context.Context, reward models.ReferralReward) error {
	const op = "storage.CreateReferralReward"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO referral_rewards (id, referrer_uid, referred_uid, reward_type,
			      reward_value_days, required_referrals, current_referrals, reward_cycle,
			      status, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.DB.ExecContext(ctx, query,
		reward.ID, reward.ReferrerUID, reward.ReferredUID, reward.RewardType,
		reward.RewardValueDays, reward.RequiredReferrals, reward.CurrentReferrals,
		reward.RewardCycle, reward.Status, reward.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetReferralReward возвращает запись цикла по её ID.
func (s *Storage) GetReferralReward(ctx context.Context, rewardID string) (*models.ReferralReward, error) {
	const op = "storage.GetReferralReward"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, referrer_uid, referred_uid, reward_type, reward_value_days,
			      required_referrals, current_referrals, reward_cycle, status,
			      awarded_at, created_at
			  FROM referral_rewards
			  WHERE id = $1`
	return s.scanReward(s.DB.QueryRowContext(ctx, query, rewardID), op)
}

// FindPendingReward возвращает текущий (pending) цикл пользователя.
func (s *Storage) FindPendingReward(ctx context.Context, referrerUID string) (*models.ReferralReward, error) {
	const op = "storage.FindPendingReward"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, referrer_uid, referred_uid, reward_type, reward_value_days,
			      required_referrals, current_referrals, reward_cycle, status,
			      awarded_at, created_at
			  FROM referral_rewards
			  WHERE referrer_uid = $1
			    AND status = $2
			  ORDER BY reward_cycle DESC
			  LIMIT 1`
	return s.scanReward(s.DB.QueryRowContext(ctx, query, referrerUID, models.RewardStatusPending), op)
}

// FindLatestReward возвращает цикл пользователя с наибольшим номером.
func (s *Storage) FindLatestReward(ctx context.Context, referrerUID string) (*models.ReferralReward, error) {
	const op = "storage.FindLatestReward"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, referrer_uid, referred_uid, reward_type, reward_value_days,
			      required_referrals, current_referrals, reward_cycle, status,
			      awarded_at, created_at
			  FROM referral_rewards
			  WHERE referrer_uid = $1
			  ORDER BY reward_cycle DESC
			  LIMIT 1`
	return s.scanReward(s.DB.QueryRowContext(ctx, query, referrerUID), op)
}

// ListReferralRewards возвращает все циклы пользователя по возрастанию номера.
func (s *Storage) ListReferralRewards(ctx context.Context, referrerUID string) ([]*models.ReferralReward, error) {
	const op = "storage.ListReferralRewards"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, referrer_uid, referred_uid, reward_type, reward_value_days,
			      required_referrals, current_referrals, reward_cycle, status,
			      awarded_at, created_at
			  FROM referral_rewards
			  WHERE referrer_uid = $1
			  ORDER BY reward_cycle`
	rows, err := s.DB.QueryContext(ctx, query, referrerUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ReferralReward
	for rows.Next() {
		var r models.ReferralReward
		var referredUID sql.NullString
		var awardedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.ReferrerUID, &referredUID, &r.RewardType,
			&r.RewardValueDays, &r.RequiredReferrals, &r.CurrentReferrals,
			&r.RewardCycle, &r.Status, &awardedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if referredUID.Valid {
			r.ReferredUID = &referredUID.String
		}
		if awardedAt.Valid {
			r.AwardedAt = &awardedAt.Time
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// IncrementReferralProgress увеличивает счётчик цикла условным обновлением:
// запись меняется, только если current_referrals всё ещё равен oldCount и
// цикл не начислен. Возвращает false при конфликте с параллельным вызовом.
func (s *Storage) IncrementReferralProgress(ctx context.Context, rewardID string, oldCount int) (bool, error) {
	const op = "storage.IncrementReferralProgress"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE referral_rewards
			  SET current_referrals = current_referrals + 1
			  WHERE id = $1
			    AND current_referrals = $2
			    AND status = $3`
	res, err := s.DB.ExecContext(ctx, query, rewardID, oldCount, models.RewardStatusPending)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// MarkRewardAwarded переводит цикл в терминальный статус awarded.
// Возвращает false, если цикл уже был начислен — повторное начисление
// обязано быть no-op, а не вторым грантом.
func (s *Storage) MarkRewardAwarded(ctx context.Context, rewardID string, now time.Time) (bool, error) {
	const op = "storage.MarkRewardAwarded"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE referral_rewards
			  SET status = $1, awarded_at = $2
			  WHERE id = $3
			    AND status = $4`
	res, err := s.DB.ExecContext(ctx, query,
		models.RewardStatusAwarded, now, rewardID, models.RewardStatusPending)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// RevertRewardAward возвращает начисленный цикл обратно в pending и
// очищает awarded_at. Компенсация на случай, когда дни награды выдать
// не удалось: цикл остаётся открытым и начисление можно повторить.
func (s *Storage) RevertRewardAward(ctx context.Context, rewardID string) error {
	const op = "storage.RevertRewardAward"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE referral_rewards
			  SET status = $1, awarded_at = NULL
			  WHERE id = $2
			    AND status = $3`
	_, err := s.DB.ExecContext(ctx, query,
		models.RewardStatusPending, rewardID, models.RewardStatusAwarded)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) scanReward(row *sql.Row, op string) (*models.ReferralReward, error) {
	var r models.ReferralReward
	var referredUID sql.NullString
	var awardedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.ReferrerUID, &referredUID, &r.RewardType,
		&r.RewardValueDays, &r.RequiredReferrals, &r.CurrentReferrals,
		&r.RewardCycle, &r.Status, &awardedAt, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if referredUID.Valid {
		r.ReferredUID = &referredUID.String
	}
	if awardedAt.Valid {
		r.AwardedAt = &awardedAt.Time
	}
	return &r, nil
}
