// Package sender собирает приложение отправки email-нотификаций.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/savelyevra/mechanic-access/internal/config"
	"github.com/savelyevra/mechanic-access/internal/lib/rabbitmq"
	"github.com/savelyevra/mechanic-access/internal/lib/smtp"
	senderservice "github.com/savelyevra/mechanic-access/internal/services/sender"
)

// App представляет приложение отправителя нотификаций.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New создает новый экземпляр приложения отправителя.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
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

	transport := smtp.NewTransport(cfg.SMTPConnection)
	senderService := senderservice.NewSenderService(transport, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run подписывает отправителя на очереди нотификаций и блокируется
// до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeMessages(ctx, a.ch, "notification.expiring", a.senderService.SendExpiringNotification)
	if err != nil {
		a.logger.Error("failed to start notification.expiring consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumeMessages(ctx, a.ch, "notification.reward", a.senderService.SendRewardNotification)
	if err != nil {
		a.logger.Error("failed to start notification.reward consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
