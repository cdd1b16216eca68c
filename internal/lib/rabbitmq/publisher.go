package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// PublishMessage сериализует нотификацию в JSON и отправляет её в exchange
// с указанным ключом маршрутизации. Сообщение помечается persistent, чтобы
// письмо о подписке или награде пережило перезапуск брокера.
func PublishMessage(ch *amqp.Channel, exchange, routingKey string, payload any) error {
	const op = "rabbitmq.PublishMessage"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", op, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}
	if err := ch.Publish(exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("%s: publish to %q: %w", op, exchange, err)
	}
	return nil
}
