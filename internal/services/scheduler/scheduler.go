// Package services содержит планировщик нотификаций: периодический поиск
// подписок с истекающим сроком и публикацию сообщений в RabbitMQ.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/savelyevra/mechanic-access/internal/lib/clock"
	"github.com/savelyevra/mechanic-access/internal/lib/rabbitmq"
	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/models"
)

// expiryWindow — за сколько до окончания подписки уходит напоминание.
const expiryWindow = 24 * time.Hour

// scanInterval — период между проходами планировщика.
const scanInterval = 12 * time.Hour

// ExpiringRepository определяет методы хранилища для планировщика.
type ExpiringRepository interface {
	FindSubscriptionsExpiringSoon(ctx context.Context, now time.Time, within time.Duration) ([]*models.ExpiringSubscription, error)
}

// SchedulerService периодически рассылает напоминания об истекающих подписках.
type SchedulerService struct {
	repo ExpiringRepository
	clk  clock.Clock
	log  *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(repo ExpiringRepository, clk clock.Clock, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo: repo,
		clk:  clk,
		log:  log,
	}
}

// RunExpiryScan запускает цикл поиска истекающих подписок. Первый проход
// выполняется сразу, дальше по тикеру, до отмены контекста.
func (s *SchedulerService) RunExpiryScan(ctx context.Context, channel *amqp.Channel) {
	s.scanExpiring(ctx, channel)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanExpiring(ctx, channel)
		case <-ctx.Done():
			return
		}
	}
}

func (s *SchedulerService) scanExpiring(ctx context.Context, channel *amqp.Channel) {
	s.log.Info("starting scan for expiring subscriptions")

	items, err := s.repo.FindSubscriptionsExpiringSoon(ctx, s.clk.Now(), expiryWindow)
	if err != nil {
		s.log.Error("failed to find expiring subscriptions", sl.Err(err))
		return
	}
	if len(items) == 0 {
		s.log.Info("no expiring subscriptions found")
		return
	}

	s.log.Info("found expiring subscriptions", "count", len(items))
	for _, item := range items {
		err = rabbitmq.PublishMessage(channel, rabbitmq.Exchange, rabbitmq.RoutingKeyExpiring, item)
		if err != nil {
			s.log.Error("failed to publish message", sl.Err(err))
		}
	}
}
