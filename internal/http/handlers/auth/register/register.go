// Package register реализует HTTP-обработчик для регистрации новых пользователей.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/savelyevra/mechanic-access/internal/http/response"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	authservice "github.com/savelyevra/mechanic-access/internal/services/auth"
	referralservice "github.com/savelyevra/mechanic-access/internal/services/referral"
)

// Request — входные данные для регистрации.
type Request struct {
	Username     string `json:"username" validate:"required,min=3,max=50"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=6"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// AuthService определяет методы бизнес-логики для регистрации пользователей.
type AuthService interface {
	Register(ctx context.Context, username, email, password, referralCode string) (string, error)
}

// Handler обрабатывает HTTP-запросы регистрации пользователей.
type Handler struct {
	log      *slog.Logger
	service  AuthService
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service AuthService) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Регистрация нового пользователя
// @Description Создает пользователя по username, email и password. Необязательный referral_code связывает нового пользователя с пригласившим.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные нового пользователя"
// @Success 200 {object} response.OKResponse "Успешная регистрация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или реферальный код"
// @Failure 409 {object} response.ErrorResponse "Username или email уже заняты"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации данных"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при регистрации"
// @Router /auth/register [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.register"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, referralservice.ErrInvalidReferralCode):
			log.Info("registration rejected: invalid referral code")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid referral code"))
		case errors.Is(err, authservice.ErrUserExists):
			log.Info("registration rejected: user already exists")
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("user already exists"))
		default:
			log.Error("registration failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to register user"))
		}
		return
	}

	log.Info("register success", slog.String("username", req.Username))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user_uid": userUID,
		"username": req.Username,
		"email":    req.Email,
	}))
}
