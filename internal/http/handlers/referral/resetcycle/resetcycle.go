// Package resetcycle реализует HTTP-обработчик открытия нового
// реферального цикла после начисленной награды.
package resetcycle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/savelyevra/mechanic-access/internal/http/middlewarectx"
	"github.com/savelyevra/mechanic-access/internal/http/response"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/models"
	referralservice "github.com/savelyevra/mechanic-access/internal/services/referral"
)

// ReferralService определяет методы реферальной программы для сброса цикла.
type ReferralService interface {
	StartNewCycle(ctx context.Context, referrerUID string) (*models.ReferralReward, error)
}

// Handler обрабатывает HTTP-запросы открытия нового цикла.
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
// @Summary Открытие нового реферального цикла
// @Description Открывает следующий цикл с нулевым прогрессом. Доступно только после начисления награды текущего цикла.
// @Tags Referral
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse "Новый цикл открыт"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 409 {object} response.ErrorResponse "Текущий цикл ещё не завершён"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /referrals/reset [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.referral.resetcycle"

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

	reward, err := h.service.StartNewCycle(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, referralservice.ErrNoCycleToReset) {
			log.Info("reset rejected: no completed cycle", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("current referral cycle is not completed"))
			return
		}
		log.Error("failed to start new referral cycle", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to start new referral cycle"))
		return
	}

	log.Info("started new referral cycle",
		slog.String("user_uid", userUID),
		slog.Int("cycle", reward.RewardCycle))
	render.JSON(w, r, response.OKWithData(reward))
}
