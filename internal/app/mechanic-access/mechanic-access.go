package mechanicaccess

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/savelyevra/mechanic-access/internal/cache"
	"github.com/savelyevra/mechanic-access/internal/config"
	"github.com/savelyevra/mechanic-access/internal/lib/clock"
	"github.com/savelyevra/mechanic-access/internal/lib/jwt"
	"github.com/savelyevra/mechanic-access/internal/lib/rabbitmq"
	"github.com/savelyevra/mechanic-access/internal/migrations"
	"github.com/savelyevra/mechanic-access/internal/models"
	"github.com/savelyevra/mechanic-access/internal/paymentprovider"
	authservice "github.com/savelyevra/mechanic-access/internal/services/auth"
	referralservice "github.com/savelyevra/mechanic-access/internal/services/referral"
	subscriptionservice "github.com/savelyevra/mechanic-access/internal/services/subscription"
	"github.com/savelyevra/mechanic-access/internal/storage/repository"
)

// App представляет основное HTTP-приложение движка подписок и наград.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// rewardPublisher публикует нотификации о наградах в RabbitMQ.
type rewardPublisher struct {
	ch *amqp.Channel
}

func (p *rewardPublisher) PublishReward(message models.RewardNotification) error {
	return rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, rabbitmq.RoutingKeyReward, message)
}

// New создает новый экземпляр основного приложения: подключает базу,
// применяет миграции, поднимает Redis и RabbitMQ, собирает сервисы и
// HTTP-сервер с маршрутами.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.RetriesRabbit, cfg.DelayRabbit)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		return nil, err
	}

	maker := jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	clk := clock.System{}

	subscriptionService := subscriptionservice.NewSubscriptionService(db, clk, logger)
	referralService := referralservice.NewReferralService(db, subscriptionService, cacheRedis, &rewardPublisher{ch: ch}, clk, logger)
	authService := authservice.NewAuthService(db, referralService, maker, logger)
	providerClient := paymentprovider.NewClient(cfg.ShopID, cfg.SecretKey, cfg.ProviderAPIURL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, maker, db, subscriptionService, referralService, authService, providerClient)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.ch.Close(); closeErr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", closeErr))
		}
		if closeErr := a.conn.Close(); closeErr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close database", slog.Any("err", closeErr))
		}
		return err
	}
}
