package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"venue-server/shared/models"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const sessionEventsExchangeType = "topic"

// SessionEventPublisher publishes session lifecycle events.
type SessionEventPublisher interface {
	PublishSessionEvent(ctx context.Context, event models.SessionEvent) error
	Close() error
}

// RabbitMQSessionPublisher публикует события сессий в topic exchange.
// Тип события используется как routing key.
type RabbitMQSessionPublisher struct {
	ch           *amqp091.Channel
	logger       *zap.Logger
	exchangeName string
}

var _ SessionEventPublisher = (*RabbitMQSessionPublisher)(nil)

// NewRabbitMQSessionPublisher opens a channel and declares the durable exchange.
func NewRabbitMQSessionPublisher(conn *amqp091.Connection, exchangeName string, logger *zap.Logger) (*RabbitMQSessionPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open a channel for session events", zap.Error(err))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName,
		sessionEventsExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		logger.Error("Failed to declare session events exchange", zap.String("exchange", exchangeName), zap.Error(err))
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}
	logger.Info("Session events exchange declared", zap.String("exchange", exchangeName))

	return &RabbitMQSessionPublisher{
		ch:           ch,
		logger:       logger.Named("SessionPublisher"),
		exchangeName: exchangeName,
	}, nil
}

// PublishSessionEvent publishes a persistent JSON message.
func (p *RabbitMQSessionPublisher) PublishSessionEvent(ctx context.Context, event models.SessionEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchangeName,
		string(event.Type),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish session event",
			zap.String("type", string(event.Type)),
			zap.String("userID", event.SubjectID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	p.logger.Debug("Session event published", zap.String("type", string(event.Type)), zap.String("userID", event.SubjectID.String()))
	return nil
}

// Close закрывает канал RabbitMQ.
func (p *RabbitMQSessionPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

// NopSessionPublisher is used when no broker is configured.
type NopSessionPublisher struct{}

func (NopSessionPublisher) PublishSessionEvent(context.Context, models.SessionEvent) error {
	return nil
}

func (NopSessionPublisher) Close() error {
	return nil
}
