package rabbitmq

// QueueConfig описывает очередь и ключ маршрутизации для нотификаций.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Ключи маршрутизации нотификаций.
const (
	// RoutingKeyExpiring — подписка пользователя скоро истечёт.
	RoutingKeyExpiring = "expiring"
	// RoutingKeyReward — реферальная награда начислена.
	RoutingKeyReward = "reward"
)

// GetNotificationQueues возвращает очереди, которые слушает notification-sender.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.expiring", RoutingKey: RoutingKeyExpiring},
		{QueueName: "notification.reward", RoutingKey: RoutingKeyReward},
	}
}
