// Package dispatch — диспетчер runs серверного режима.
//
// Dispatcher получает pending runs (из очереди и polling fallback),
// строит для каждого граф и план батчей через internal/engine и
// публикует stage-задания агентам батч за батчем. Перед публикацией
// батча применяется skip propagation: stages с упавшими или
// пропущенными зависимостями и stages, исключённые trigger guard'ом,
// помечаются SKIPPED и агентам не уходят.
//
// Состояние каждого активного run живёт в памяти (RunState) и
// восстанавливается из БД после рестарта по терминальным результатам.
package dispatch
