package executor

import "errors"

// Ошибки выполнения stage.
//
// В отличие от ошибок конфигурации (пакет engine) они не прерывают run:
// действие ошибки ограничено упавшим stage и его downstream-подграфом,
// несвязанные ветви графа продолжают выполняться и отчитываются
// независимо.
var (
	// ErrAuthentication — учётные данные registry отсутствуют или
	// отклонены. Отличается от обычного падения команды: publish-stage
	// проверяет их до любого сетевого вызова.
	ErrAuthentication = errors.New("registry authentication failed")

	// ErrEnvironmentSetup — не удалось создать изолированное окружение
	// stage (рабочий каталог, секреты). Для propagation эквивалентна
	// падению команды.
	ErrEnvironmentSetup = errors.New("environment setup failed")

	// ErrCommandFailed — команда stage завершилась с ненулевым кодом.
	ErrCommandFailed = errors.New("command failed")

	// ErrRunCancelled — run отменён оператором.
	ErrRunCancelled = errors.New("run cancelled")
)
