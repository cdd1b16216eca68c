// Package generatecode реализует HTTP-обработчик выдачи реферального кода.
package generatecode

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/savelyevra/mechanic-access/internal/http/middlewarectx"
	"github.com/savelyevra/mechanic-access/internal/http/response"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
)

// ReferralService определяет методы реферальной программы для выдачи кода.
type ReferralService interface {
	EnsureCode(ctx context.Context, userUID string) (string, error)
}

// Handler обрабатывает HTTP-запросы выдачи реферального кода.
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
// @Summary Реферальный код пользователя
// @Description Возвращает реферальный код пользователя, генерируя его при первом обращении. Код неизменен после установки.
// @Tags Referral
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse "Реферальный код"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /referrals/code [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.referral.generatecode"

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

	code, err := h.service.EnsureCode(r.Context(), userUID)
	if err != nil {
		log.Error("failed to ensure referral code", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get referral code"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"referral_code": code,
	}))
}
