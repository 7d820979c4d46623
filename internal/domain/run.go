package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все не пропущенные stages завершились успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы один stage упал.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён оператором.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run — экземпляр выполнения pipeline.
//
// Run создаётся когда:
//   - Приходит webhook-событие (push, pull_request)
//   - Scheduler срабатывает по cron-расписанию
//   - Оператор запускает pipeline вручную
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя pipeline из конфигурационного файла.
	Pipeline string `json:"pipeline"`

	// Trigger — событие, инициировавшее run.
	Trigger TriggerEvent `json:"trigger"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	// Nil, если run ещё не начался.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	// Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт новый run в статусе PENDING.
func NewRun(pipeline string, trigger TriggerEvent) *Run {
	return &Run{
		ID:        uuid.New(),
		Pipeline:  pipeline,
		Trigger:   trigger,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkFinished переводит run в терминальный статус.
func (r *Run) MarkFinished(status RunStatus, errMsg string) {
	now := time.Now()
	r.Status = status
	r.Error = errMsg
	r.FinishedAt = &now
}
