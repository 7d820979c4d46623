package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns   Exchange = "conveyr.runs"
	ExchangeStages Exchange = "conveyr.stages"
	ExchangeDLQ    Exchange = "conveyr.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsPending     Queue = "runs.pending"
	QueueStagesReady     Queue = "stages.ready"
	QueueStagesCompleted Queue = "stages.completed"
	QueueDLQStages       Queue = "dlq.stages"
)

// Routing keys.
const (
	RoutingKeyPending   RoutingKey = "pending"
	RoutingKeyReady     RoutingKey = "ready"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQStages RoutingKey = "stages"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Идемпотентна: безопасно вызывать при каждом старте процесса.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeRuns, "direct"},
		{ExchangeStages, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQStages),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// runs.pending — без DLQ (runs диспетчеризуются один раз)
		{QueueRunsPending, nil},

		// stages.ready — с DLQ: stage-задание, которое агент не смог
		// обработать, уходит в DLQ, а не перезапускается (retry нет)
		{QueueStagesReady, dlqArgs},

		// stages.completed — события завершения, без DLQ
		{QueueStagesCompleted, nil},

		// dlq.stages — сама DLQ-очередь
		{QueueDLQStages, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunsPending, RoutingKeyPending, ExchangeRuns},
		{QueueStagesReady, RoutingKeyReady, ExchangeStages},
		{QueueStagesCompleted, RoutingKeyCompleted, ExchangeStages},
		{QueueDLQStages, RoutingKeyDLQStages, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}
