// Package access реализует HTTP-обработчик авторизации консультации.
// Маршрут закрыт гейтом по активной подписке, поэтому сам обработчик
// только подтверждает доступ вызвавшему сервису консультаций.
package access

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/savelyevra/mechanic-access/internal/http/middlewarectx"
	"github.com/savelyevra/mechanic-access/internal/http/response"
)

// Handler обрабатывает HTTP-запросы подтверждения доступа к консультациям.
type Handler struct {
	log *slog.Logger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Подтверждение доступа к консультациям
// @Description Возвращает 200, если у пользователя есть действующий доступ; иначе гейт вернёт 403
// @Tags Subscription
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse "Доступ подтверждён"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 403 {object} response.ErrorResponse "Нет действующей подписки"
// @Router /consultations/access [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.access"

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

	render.JSON(w, r, response.OKWithData(map[string]any{
		"access":   "granted",
		"user_uid": userUID,
	}))
}
