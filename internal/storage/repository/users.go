package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/savelyevra/mechanic-access/internal/models"
)

// ErrDuplicateReferralCode возвращается при коллизии реферального кода.
var ErrDuplicateReferralCode = errors.New("duplicate referral code")

// ErrDuplicateUser возвращается, когда username или email уже заняты.
var ErrDuplicateUser = errors.New("duplicate user")

// RegisterUser сохраняет нового пользователя в базу данных и возвращает его UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (uid, username, email, password_hash, role, referred_by)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.UID, user.Username, user.Email, user.PasswordHash, user.Role,
		user.ReferredBy).Scan(&newUID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", fmt.Errorf("%s: %w", op, ErrDuplicateUser)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, username, email, password_hash, role, has_subscription,
			      referral_code, referred_by, created_at
			  FROM users
			  WHERE uid = $1`
	return s.scanUser(s.DB.QueryRowContext(ctx, query, userUID), op)
}

// GetUserByUsername возвращает пользователя по его username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, username, email, password_hash, role, has_subscription,
			      referral_code, referred_by, created_at
			  FROM users
			  WHERE username = $1`
	return s.scanUser(s.DB.QueryRowContext(ctx, query, username), op)
}

// GetUserByReferralCode возвращает пользователя по его реферальному коду.
func (s *Storage) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	const op = "storage.GetUserByReferralCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, username, email, password_hash, role, has_subscription,
			      referral_code, referred_by, created_at
			  FROM users
			  WHERE referral_code = $1`
	return s.scanUser(s.DB.QueryRowContext(ctx, query, code), op)
}

// SetReferralCode записывает реферальный код пользователя, если код ещё не задан.
//
// Возвращает ErrDuplicateReferralCode при нарушении уникального индекса —
// вызывающая сторона повторяет генерацию с новым кодом.
func (s *Storage) SetReferralCode(ctx context.Context, userUID, code string) error {
	const op = "storage.SetReferralCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET referral_code = $1
			  WHERE uid = $2 AND referral_code IS NULL`
	res, err := s.DB.ExecContext(ctx, query, code, userUID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, ErrDuplicateReferralCode)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		// Код уже установлен либо пользователь не существует.
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ListReferredUsers возвращает пользователей, приглашённых данным пользователем.
func (s *Storage) ListReferredUsers(ctx context.Context, referrerUID string) ([]*models.User, error) {
	const op = "storage.ListReferredUsers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, username, email, password_hash, role, has_subscription,
			      referral_code, referred_by, created_at
			  FROM users
			  WHERE referred_by = $1
			  ORDER BY created_at`
	rows, err := s.DB.QueryContext(ctx, query, referrerUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		var u models.User
		var referralCode, referredBy sql.NullString
		if err := rows.Scan(&u.UID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
			&u.HasSubscription, &referralCode, &referredBy, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if referralCode.Valid {
			u.ReferralCode = &referralCode.String
		}
		if referredBy.Valid {
			u.ReferredBy = &referredBy.String
		}
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (s *Storage) scanUser(row *sql.Row, op string) (*models.User, error) {
	u := &models.User{}
	var referralCode, referredBy sql.NullString
	if err := row.Scan(&u.UID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.HasSubscription, &referralCode, &referredBy, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if referralCode.Valid {
		u.ReferralCode = &referralCode.String
	}
	if referredBy.Valid {
		u.ReferredBy = &referredBy.String
	}
	return u, nil
}
