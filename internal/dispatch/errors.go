package dispatch

import "errors"

// Ошибки диспетчера.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyActive — run уже обрабатывается.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrRunNotPending — run не в статусе PENDING.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrRunNotActive — run не найден среди активных.
	ErrRunNotActive = errors.New("run not in active runs")

	// ErrUnknownStage — отчёт агента ссылается на stage вне плана.
	ErrUnknownStage = errors.New("stage not in run plan")
)
