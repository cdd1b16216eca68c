// Package verify реализует HTTP-обработчик подтверждения платежа
// и начисления оплаченного доступа.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/savelyevra/mechanic-access/internal/http/middlewarectx"
	"github.com/savelyevra/mechanic-access/internal/http/response"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/paymentprovider"
	subscriptionservice "github.com/savelyevra/mechanic-access/internal/services/subscription"
)

// Request — входные данные подтверждения платежа.
type Request struct {
	PaymentID string  `json:"payment_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

// SubscriptionService определяет методы учёта подписок для начисления доступа.
type SubscriptionService interface {
	Grant(ctx context.Context, userUID string, durationDays int, amountPaid float64) (*models.Subscription, error)
}

// ReferralService определяет хук реферальной программы после оплаты.
type ReferralService interface {
	OnReferredUserActivated(ctx context.Context, referredUID string) error
}

// Handler обрабатывает HTTP-запросы подтверждения платежей.
type Handler struct {
	log           *slog.Logger
	subscriptions SubscriptionService
	referrals     ReferralService
	verifier      paymentprovider.PaymentVerifier
	validate      *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, subscriptions SubscriptionService, referrals ReferralService, verifier paymentprovider.PaymentVerifier) *Handler {
	return &Handler{
		log:           log,
		subscriptions: subscriptions,
		referrals:     referrals,
		verifier:      verifier,
		validate:      validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подтверждение платежа
// @Description Сверяет платёж с провайдером, начисляет дни доступа по таблице тарифов и засчитывает оплату в реферальную программу
// @Tags Payment
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Идентификатор платежа и сумма"
// @Success 200 {object} response.OKResponse "Доступ начислен"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON, неизвестная сумма или неподтверждённый платёж"
// @Failure 401 {object} response.ErrorResponse "Пользователь не аутентифицирован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации данных"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /payments/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.verify"

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

	durationDays, err := subscriptionservice.DurationForAmount(req.Amount)
	if err != nil {
		log.Info("rejected payment with unknown amount", slog.Float64("amount", req.Amount))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown payment amount"))
		return
	}

	if err := h.verifier.VerifyPayment(r.Context(), req.PaymentID, req.Amount); err != nil {
		if errors.Is(err, paymentprovider.ErrPaymentNotConfirmed) {
			log.Info("payment not confirmed", slog.String("payment_id", req.PaymentID))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("payment not confirmed"))
			return
		}
		log.Error("failed to verify payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to verify payment"))
		return
	}

	sub, err := h.subscriptions.Grant(r.Context(), userUID, durationDays, req.Amount)
	if err != nil {
		log.Error("failed to grant subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to grant subscription"))
		return
	}

	// Сбой реферального учёта не откатывает оплаченный доступ.
	if err := h.referrals.OnReferredUserActivated(r.Context(), userUID); err != nil {
		log.Error("failed to process referral activation", sl.Err(err))
	}

	log.Info("payment verified and subscription granted",
		slog.String("user_uid", userUID),
		slog.Int("days", durationDays))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"subscription_id": sub.ID,
		"expires_at":      sub.ExpiresAt,
		"days_granted":    durationDays,
	}))
}
