// Package services содержит бизнес-логику регистрации и аутентификации
// пользователей.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/savelyevra/mechanic-access/internal/lib/jwt"
	"github.com/savelyevra/mechanic-access/internal/lib/password"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/storage/repository"
)

// Ошибки бизнес-уровня аутентификации.
var (
	// ErrUserExists — username или email уже заняты.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials — пара логин/пароль не подошла.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RoleUser — роль обычного пользователя, назначается при регистрации.
const RoleUser = "user"

// AuthRepository определяет методы хранилища для аутентификации.
type AuthRepository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// CodeResolver разрешает реферальный код в UID его владельца.
type CodeResolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// AuthService реализует регистрацию и выдачу токенов.
type AuthService struct {
	repo     AuthRepository
	resolver CodeResolver
	maker    jwt.Maker
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(repo AuthRepository, resolver CodeResolver, maker jwt.Maker, log *slog.Logger) *AuthService {
	return &AuthService{
		repo:     repo,
		resolver: resolver,
		maker:    maker,
		log:      log,
	}
}

// Register создает нового пользователя и возвращает его UID.
//
// Непустой referralCode разрешается в UID реферера до вставки: регистрация
// с нераспознанным кодом завершается ошибкой резолвера, а не молчаливым
// пропуском связи.
func (s *AuthService) Register(ctx context.Context, username, email, plainPassword, referralCode string) (string, error) {
	const op = "services.auth.Register"

	var referredBy *string
	if referralCode != "" {
		referrerUID, err := s.resolver.Resolve(ctx, referralCode)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		referredBy = &referrerUID
	}

	passwordHash, err := password.GetHash(plainPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		UID:          uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		ReferredBy:   referredBy,
	}
	uid, err := s.repo.RegisterUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return "", fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("registered user",
		slog.String("user_uid", uid),
		slog.Bool("referred", referredBy != nil))
	return uid, nil
}

// Login проверяет пару логин/пароль и возвращает подписанный JWT.
func (s *AuthService) Login(ctx context.Context, username, plainPassword string) (string, error) {
	const op = "services.auth.Login"

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, plainPassword); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := s.maker.GenerateToken(user.Username, user.Role, user.UID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}
