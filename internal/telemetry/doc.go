// Package telemetry — логирование и метрики Conveyr.
//
// Структура:
//   - logging.go — настройка глобального slog-логгера
//   - metrics.go — prometheus-коллекторы (runs, stages, durations)
//
// Метрики отдаются через promhttp на /metrics сервером и агентом.
package telemetry
