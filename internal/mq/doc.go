// Package mq — инфраструктура RabbitMQ для серверного режима.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - run.pending     — новый run ожидает диспетчеризации
//   - stage.ready     — stage готов к выполнению агентом
//   - stage.completed — агент отчитался о терминальном результате stage
//
// Exchanges:
//   - conveyr.runs   — события runs
//   - conveyr.stages — события stages
//   - conveyr.dlq    — dead letter queue
//
// Stage-задания самодостаточны: payload несёт полное определение stage,
// поэтому агентам не нужен доступ к файлам pipeline.
package mq
