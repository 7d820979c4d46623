package domain

import "time"

// StageResult — итог выполнения (или пропуска) одного stage.
//
// Создаётся, когда stage достигает терминального состояния, и хранится
// до конца run для отчёта. Captured output уже прошёл редактирование
// секретов — значения секретов в него не попадают никогда.
type StageResult struct {
	// Stage — имя stage.
	Stage string `json:"stage"`

	// Outcome — финальное состояние: SUCCEEDED, FAILED или SKIPPED.
	Outcome Outcome `json:"outcome"`

	// ExitCode — код выхода последней запущенной команды.
	// Для skipped stages всегда 0.
	ExitCode int `json:"exit_code"`

	// Output — захваченный вывод команд (stdout+stderr) с вырезанными
	// секретами.
	Output string `json:"output,omitempty"`

	// Reason — класс причины падения (пуст для succeeded/skipped).
	Reason FailureReason `json:"reason,omitempty"`

	// Error — человекочитаемое описание ошибки.
	Error string `json:"error,omitempty"`

	// StartedAt — время запуска. Nil для skipped stages.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения. Nil для skipped stages.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность выполнения stage.
// Для skipped stages возвращает 0.
func (r *StageResult) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// Failed возвращает true, если stage завершился падением.
func (r *StageResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}
