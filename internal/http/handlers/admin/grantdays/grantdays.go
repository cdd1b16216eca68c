// Package grantdays реализует административный HTTP-обработчик начисления
// бесплатных дней доступа пользователю.
package grantdays

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/savelyevra/mechanic-access/internal/http/response"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/models"
	subscriptionservice "github.com/savelyevra/mechanic-access/internal/services/subscription"
)

// Request — входные данные начисления дней.
type Request struct {
	Days int `json:"days" validate:"required,gt=0"`
}

// SubscriptionService определяет методы учёта подписок для начисления дней.
type SubscriptionService interface {
	Grant(ctx context.Context, userUID string, durationDays int, amountPaid float64) (*models.Subscription, error)
}

// Handler обрабатывает административные запросы начисления дней.
type Handler struct {
	log      *slog.Logger
	service  SubscriptionService
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service SubscriptionService) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Начисление бесплатных дней
// @Description Начисляет пользователю дни доступа без оплаты. Доступно только роли admin. Дни складываются с активной подпиской.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param uid path string true "UID пользователя"
// @Param request body Request true "Количество дней"
// @Success 200 {object} response.OKResponse "Дни начислены"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации данных"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/users/{uid}/days [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.grantdays"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	targetUID := chi.URLParam(r, "uid")
	if targetUID == "" {
		log.Error("missing user uid in path")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing user uid"))
		return
	}

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

	sub, err := h.service.Grant(r.Context(), targetUID, req.Days, 0)
	if err != nil {
		if errors.Is(err, subscriptionservice.ErrUserNotFound) {
			log.Info("grant rejected: user not found", slog.String("user_uid", targetUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to grant days", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to grant days"))
		return
	}

	log.Info("granted free days",
		slog.String("user_uid", targetUID),
		slog.Int("days", req.Days))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user_uid":     targetUID,
		"days_granted": req.Days,
		"expires_at":   sub.ExpiresAt,
	}))
}
