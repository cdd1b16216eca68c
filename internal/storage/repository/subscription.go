package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/savelyevra/mechanic-access/internal/models"
)

// HasActiveSubscription сообщает, есть ли у пользователя хотя бы одна
// запись подписки со статусом active и сроком действия позже now.
//
// Это единственный источник истины о доступе; флаг users.has_subscription —
// только денормализованная проекция.
func (s *Storage) HasActiveSubscription(ctx context.Context, userUID string, now time.Time) (bool, error) {
	const op = "storage.HasActiveSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM subscriptions
			      WHERE user_uid = $1
			        AND status = $2
			        AND expires_at > $3
			  )`
	var exists bool
	err := s.DB.QueryRowContext(ctx, query, userUID, models.SubscriptionStatusActive, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// FindLatestActiveSubscription возвращает активную запись подписки
// пользователя с самым поздним сроком действия.
func (s *Storage) FindLatestActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	const op = "storage.FindLatestActiveSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, amount, status, purchased_at, expires_at
			  FROM subscriptions
			  WHERE user_uid = $1
			    AND status = $2
			    AND expires_at > $3
			  ORDER BY expires_at DESC
			  LIMIT 1`
	var sub models.Subscription
	row := s.DB.QueryRowContext(ctx, query, userUID, models.SubscriptionStatusActive, now)
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.Amount, &sub.Status,
		&sub.PurchasedAt, &sub.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}

// ListSubscriptions возвращает все записи подписок пользователя,
// отсортированные по дате покупки по убыванию.
func (s *Storage) ListSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, amount, status, purchased_at, expires_at
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY purchased_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserUID, &sub.Amount, &sub.Status,
			&sub.PurchasedAt, &sub.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateSubscription вставляет новую запись подписки и в той же транзакции
// выставляет флаг has_subscription владельца. Либо применяются оба изменения,
// либо ни одного.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insertQuery := `INSERT INTO subscriptions (id, user_uid, amount, status, purchased_at, expires_at)
				    VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, insertQuery,
		sub.ID, sub.UserUID, sub.Amount, sub.Status, sub.PurchasedAt, sub.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	flagQuery := `UPDATE users SET has_subscription = true WHERE uid = $1`
	if _, err := tx.ExecContext(ctx, flagQuery, sub.UserUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExtendSubscription сдвигает срок действия записи вперёд условным
// обновлением: запись меняется только если expires_at всё ещё равен
// oldExpiry. Возвращает false, если запись успел изменить параллельный
// вызов — тогда решение нужно принять заново.
//
// Флаг has_subscription владельца обновляется в той же транзакции.
func (s *Storage) ExtendSubscription(ctx context.Context, subID, userUID string, oldExpiry, newExpiry time.Time) (bool, error) {
	const op = "storage.ExtendSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	updateQuery := `UPDATE subscriptions
				    SET expires_at = $1
				    WHERE id = $2
				      AND status = $3
				      AND expires_at = $4`
	res, err := tx.ExecContext(ctx, updateQuery,
		newExpiry, subID, models.SubscriptionStatusActive, oldExpiry)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	flagQuery := `UPDATE users SET has_subscription = true WHERE uid = $1`
	if _, err := tx.ExecContext(ctx, flagQuery, userUID); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// FindSubscriptionsExpiringSoon находит активные подписки, истекающие
// в интервале (now, now+within], вместе с почтой владельца.
func (s *Storage) FindSubscriptionsExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindSubscriptionsExpiringSoon"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.email, u.username, s.expires_at
			  FROM subscriptions s
			  JOIN users u ON s.user_uid = u.uid
			  WHERE s.status = $1
			    AND s.expires_at > $2
			    AND s.expires_at <= $3`
	rows, err := s.DB.QueryContext(ctx, query,
		models.SubscriptionStatusActive, now, now.Add(within))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ExpiringSubscription
	for rows.Next() {
		var item models.ExpiringSubscription
		if err := rows.Scan(&item.Email, &item.Username, &item.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
