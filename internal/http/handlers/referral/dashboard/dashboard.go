// Package dashboard реализует HTTP-обработчик сводки реферальной программы.
package dashboard

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

// ReferralService определяет методы реферальной программы для сводки.
type ReferralService interface {
	Dashboard(ctx context.Context, userUID string) (*models.ReferralDashboard, error)
}

// Handler обрабатывает HTTP-запросы сводки реферальной программы.
type Handler struct {
	log     *slog.Logger
	service ReferralService
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service ReferralService) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Сводка реферальной программы
// @Description Возвращает реферальный код, приглашённых пользователей и историю циклов. Код генерируется при первом обращении.
// @Tags Referral
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse "Сводка реферальной программы"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /referrals [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.referral.dashboard"

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

	dashboard, err := h.service.Dashboard(r.Context(), userUID)
	if err != nil {
		log.Error("failed to build referral dashboard", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to build referral dashboard"))
		return
	}

	render.JSON(w, r, response.OKWithData(dashboard))
}
