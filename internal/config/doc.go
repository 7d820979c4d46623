// Package config загружает и валидирует файл pipeline.
//
// Pipeline описывается декларативно в YAML: stages и их зависимости —
// это данные, а не control flow. Благодаря этому ошибки конфигурации
// (неизвестная зависимость, цикл, неизвестный тип события) ловятся
// до начала какого-либо выполнения.
//
// Структурную валидацию (версия, имена, команды) выполняет этот пакет;
// валидацию графа (дубликаты, зависимости, циклы) — engine.Registry.
package config
