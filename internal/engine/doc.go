// Package engine содержит ядро оркестрации pipeline.
//
// Включает:
//   - registry.go — реестр stages с валидацией зависимостей
//   - graph.go    — замороженный снимок графа зависимостей
//   - plan.go     — построение плана выполнения (батчи, алгоритм Кана)
//
// Engine отвечает за понимание структуры pipeline и определение
// порядка выполнения stages на основе их зависимостей. Выполнением
// команд занимается пакет executor (локально) или agent (удалённо).
package engine
