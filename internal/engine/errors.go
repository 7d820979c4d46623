package engine

import (
	"errors"
	"fmt"
)

// Ошибки конфигурации графа stages.
//
// Все они фатальны: run с такой конфигурацией не начинает выполнение вовсе.
var (
	// ErrEmptyStageName — stage не имеет имени.
	ErrEmptyStageName = errors.New("stage has empty name")

	// ErrNoCommands — stage не содержит ни одной команды и не является
	// publish-stage (publish-stages собирают команды из схемы тегирования).
	ErrNoCommands = errors.New("stage has no commands")

	// ErrDuplicateStage — stage с таким именем уже зарегистрирован.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrUnknownDependency — stage зависит от незарегистрированного stage.
	ErrUnknownDependency = errors.New("stage depends on unknown stage")

	// ErrSelfDependency — stage зависит от самого себя.
	ErrSelfDependency = errors.New("stage depends on itself")

	// ErrCycle — обнаружен цикл в графе зависимостей.
	ErrCycle = errors.New("cyclic dependency detected")

	// ErrFrozen — реестр заморожен (Resolve уже вызван),
	// регистрация новых stages запрещена.
	ErrFrozen = errors.New("registry is frozen")

	// ErrEmptyRegistry — в реестре нет ни одного stage.
	ErrEmptyRegistry = errors.New("registry has no stages")
)

// ConfigError — ошибка конфигурации с привязкой к stage.
type ConfigError struct {
	Stage   string // имя stage, где обнаружена ошибка
	Message string // описание
	Err     error  // базовая ошибка
}

// NewConfigError создаёт ConfigError.
func NewConfigError(stage, message string, err error) *ConfigError {
	return &ConfigError{
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

// Error реализует интерфейс error.
func (e *ConfigError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %q: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap возвращает базовую ошибку для errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
