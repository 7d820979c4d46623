// Package executor выполняет план run'а.
//
// Модель выполнения — кооперативный батч-параллелизм: stages внутри
// одного батча выполняются конкурентно (ограничение — конфигурируемый
// лимит воркеров), батчи — строго последовательно. Stage никогда не
// стартует раньше, чем все его зависимости достигли SUCCEEDED.
//
// Skip propagation происходит до запуска батча: stage, у которого упала
// или была пропущена хотя бы одна зависимость (прямая или транзитивная),
// помечается SKIPPED и не запускается вовсе.
//
// Каждый stage выполняется в собственном изолированном рабочем каталоге;
// два конкурентных stage никогда не делят записываемое workspace.
// Retry отсутствует: упавший stage фиксируется, а не перезапускается.
package executor
