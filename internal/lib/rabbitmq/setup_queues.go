package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// RoutingKeyStatus ключ событий смены статуса подключения.
const RoutingKeyStatus = "connection.status"

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// StatusQueues очереди, в которые раскладываются события консоли.
func StatusQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "console.connection.status", RoutingKey: RoutingKeyStatus},
	}
}

// Declarer часть amqp.Channel для объявления топологии.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// SetupExchange объявляет topic-обменник и привязывает к нему очереди.
func SetupExchange(ch Declarer, exchange string, queues []QueueConfig) error {
	const op = "rabbitmq.SetupExchange"

	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}
		if err := ch.QueueBind(q.QueueName, q.RoutingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}
	return nil
}
