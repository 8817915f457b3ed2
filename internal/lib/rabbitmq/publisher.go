// Package rabbitmq публикует события консоли в RabbitMQ.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

// Channel часть amqp.Channel для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage публикует сообщение в формате JSON.
func PublishMessage(ch Channel, exchange string, routingKey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// StatusPublisher отправляет события смены статуса подключения саб-аккаунтов.
type StatusPublisher struct {
	ch       Channel
	exchange string
	log      *slog.Logger
}

func NewStatusPublisher(ch Channel, exchange string, log *slog.Logger) *StatusPublisher {
	return &StatusPublisher{ch: ch, exchange: exchange, log: log}
}

// PublishStatusChange публикует событие с ключом RoutingKeyStatus.
func (p *StatusPublisher) PublishStatusChange(ctx context.Context, ev models.StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := PublishMessage(p.ch, p.exchange, RoutingKeyStatus, ev); err != nil {
		return err
	}
	p.log.Debug("status change published",
		slog.String("sub_account_id", ev.SubAccountID),
		slog.String("to", string(ev.To)),
	)
	return nil
}
