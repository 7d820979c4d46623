package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/conveyr/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunPending     MessageType = "run.pending"
	MessageTypeStageReady     MessageType = "stage.ready"
	MessageTypeStageCompleted MessageType = "stage.completed"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunPendingPayload — payload сообщения о новом run.
type RunPendingPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// StageJobPayload — payload stage-задания для агента.
//
// Задание самодостаточно: несёт полное определение stage и контекст
// триггера, поэтому агенту не нужны файлы pipeline. Значения секретов
// в payload не попадают — агент резолвит их из собственного хранилища
// по именам из Stage.Secrets.
type StageJobPayload struct {
	RunID   uuid.UUID           `json:"run_id"`
	Stage   domain.Stage        `json:"stage"`
	Trigger domain.TriggerEvent `json:"trigger"`

	// Image — репозиторий container image для publish-stage.
	Image string `json:"image,omitempty"`
}

// StageCompletedPayload — payload отчёта агента о терминальном
// результате stage. Result.Output уже редактирован агентом.
type StageCompletedPayload struct {
	RunID  uuid.UUID          `json:"run_id"`
	Result domain.StageResult `json:"result"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunPending публикует событие о новом run.
// Потребитель: Dispatcher.
func (p *Publisher) PublishRunPending(ctx context.Context, runID uuid.UUID) error {
	return p.Publish(ctx, ExchangeRuns, RoutingKeyPending, envelope(
		MessageTypeRunPending,
		RunPendingPayload{RunID: runID},
	))
}

// PublishStageReady публикует stage-задание.
// Потребитель: Agent.
func (p *Publisher) PublishStageReady(ctx context.Context, payload StageJobPayload) error {
	return p.Publish(ctx, ExchangeStages, RoutingKeyReady, envelope(
		MessageTypeStageReady,
		payload,
	))
}

// PublishStageCompleted публикует отчёт о завершении stage.
// Потребитель: Dispatcher.
func (p *Publisher) PublishStageCompleted(ctx context.Context, payload StageCompletedPayload) error {
	return p.Publish(ctx, ExchangeStages, RoutingKeyCompleted, envelope(
		MessageTypeStageCompleted,
		payload,
	))
}

// envelope собирает конверт сообщения.
func envelope(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
