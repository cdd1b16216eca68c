// Package status реализует HTTP-обработчик статуса подписки пользователя.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/savelyevra/mechanic-access/internal/http/middlewarectx"
	"github.com/savelyevra/mechanic-access/internal/http/response"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/models"
)

// SubscriptionService определяет методы учёта подписок для чтения статуса.
type SubscriptionService interface {
	HasActiveSubscription(ctx context.Context, userUID string) (bool, error)
	ListSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error)
}

// Handler обрабатывает HTTP-запросы статуса подписки.
type Handler struct {
	log     *slog.Logger
	service SubscriptionService
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service SubscriptionService) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Статус подписки
// @Description Возвращает признак действующего доступа и историю подписок пользователя
// @Tags Subscription
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse "Статус и список подписок"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/status [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.status"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	active, err := h.service.HasActiveSubscription(r.Context(), userUID)
	if err != nil {
		log.Error("failed to check subscription status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to check subscription status"))
		return
	}

	subscriptions, err := h.service.ListSubscriptions(r.Context(), userUID)
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list subscriptions"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"active":        active,
		"subscriptions": subscriptions,
	}))
}
