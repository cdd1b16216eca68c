// Package mechanicaccess собирает основное приложение и его маршруты.
package mechanicaccess

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/savelyevra/mechanic-access/internal/http/handlers/admin/grantdays"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/auth/login"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/auth/register"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/health"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/payment/verify"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/referral/dashboard"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/referral/generatecode"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/referral/resetcycle"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/subscription/access"
	"github.com/savelyevra/mechanic-access/internal/http/handlers/subscription/status"
	"github.com/savelyevra/mechanic-access/internal/http/middlewarectx"
	"github.com/savelyevra/mechanic-access/internal/lib/jwt"
	"github.com/savelyevra/mechanic-access/internal/paymentprovider"
	authservice "github.com/savelyevra/mechanic-access/internal/services/auth"
	referralservice "github.com/savelyevra/mechanic-access/internal/services/referral"
	subscriptionservice "github.com/savelyevra/mechanic-access/internal/services/subscription"
	"github.com/savelyevra/mechanic-access/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, maker jwt.Maker, db *repository.Storage,
	subscriptionService *subscriptionservice.SubscriptionService,
	referralService *referralservice.ReferralService,
	authService *authservice.AuthService,
	providerClient *paymentprovider.Client) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/register", register.New(logger, authService).ServeHTTP)
		r.Post("/auth/login", login.New(logger, authService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(logger, maker))
			r.Use(middlewarectx.RateLimitMiddleware(logger))

			// Оплата не требует действующей подписки: её может не быть.
			r.Post("/payments/verify", verify.New(logger, subscriptionService, referralService, providerClient).ServeHTTP)
			r.Get("/subscriptions/status", status.New(logger, subscriptionService).ServeHTTP)
			r.Get("/referrals", dashboard.New(logger, referralService).ServeHTTP)
			r.Post("/referrals/code", generatecode.New(logger, referralService).ServeHTTP)
			r.Post("/referrals/reset", resetcycle.New(logger, referralService).ServeHTTP)

			// Консультации доступны только при действующей подписке
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.SubscriptionGateMiddleware(logger, subscriptionService))
				r.Get("/consultations/access", access.New(logger).ServeHTTP)
			})

			// Админские операции
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AdminOnlyMiddleware(logger))
				r.Post("/admin/users/{uid}/days", grantdays.New(logger, subscriptionService).ServeHTTP)
			})
		})
	})

	r.Get("/health", health.New(logger, db).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
