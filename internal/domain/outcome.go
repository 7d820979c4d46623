package domain

// Outcome — состояние stage в рамках одного run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	PENDING → SKIPPED (минуя RUNNING)
//
// Терминальные состояния: SUCCEEDED, FAILED, SKIPPED.
// Из терминального состояния переходов нет.
type Outcome string

const (
	// OutcomePending — stage ещё не запускался.
	OutcomePending Outcome = "PENDING"

	// OutcomeRunning — stage выполняется.
	OutcomeRunning Outcome = "RUNNING"

	// OutcomeSucceeded — все команды stage завершились с нулевым кодом.
	OutcomeSucceeded Outcome = "SUCCEEDED"

	// OutcomeFailed — команда упала, окружение не создалось
	// или publish-stage не прошёл preflight-проверку учётных данных.
	OutcomeFailed Outcome = "FAILED"

	// OutcomeSkipped — stage не запускался: упала зависимость,
	// не прошёл trigger guard либо run был отменён.
	OutcomeSkipped Outcome = "SKIPPED"
)

// IsTerminal возвращает true, если состояние финальное.
func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeSkipped:
		return true
	default:
		return false
	}
}

// CanTransition проверяет допустимость перехода в состояние next.
func (o Outcome) CanTransition(next Outcome) bool {
	switch o {
	case OutcomePending:
		return next == OutcomeRunning || next == OutcomeSkipped
	case OutcomeRunning:
		return next == OutcomeSucceeded || next == OutcomeFailed
	default:
		// терминальные состояния
		return false
	}
}

// FailureReason — класс причины падения stage.
//
// Нужен, чтобы отличать обычное падение команды от отказа в аутентификации
// и от проблем с созданием изолированного окружения.
type FailureReason string

const (
	// ReasonNone — stage не падал.
	ReasonNone FailureReason = ""

	// ReasonCommand — команда завершилась с ненулевым кодом.
	ReasonCommand FailureReason = "COMMAND_FAILURE"

	// ReasonAuthentication — учётные данные registry отсутствуют
	// или отклонены при preflight-проверке.
	ReasonAuthentication FailureReason = "AUTHENTICATION_ERROR"

	// ReasonEnvironment — не удалось создать изолированное окружение stage.
	ReasonEnvironment FailureReason = "ENVIRONMENT_SETUP_ERROR"

	// ReasonCancelled — stage был прерван отменой run.
	ReasonCancelled FailureReason = "CANCELLED"
)
