package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Default configuration values.
const defaultGracePeriod = 10 * time.Second

// CommandSpec — одна shell-команда к выполнению.
type CommandSpec struct {
	// Command — команда в форме shell-строки.
	Command string

	// Dir — рабочий каталог процесса.
	Dir string

	// Env — полное окружение процесса (имя=значение).
	Env []string

	// Stdin — данные для stdin процесса (например, пароль registry
	// для docker login --password-stdin).
	Stdin string

	// GracePeriod — время между SIGTERM при отмене и принудительным
	// SIGKILL. 0 — значение по умолчанию.
	GracePeriod time.Duration
}

// CommandResult — результат выполнения одной команды.
type CommandResult struct {
	// ExitCode — код выхода процесса.
	ExitCode int

	// Output — объединённый stdout+stderr.
	// Внимание: ещё не редактирован — секреты вырезает вызывающий.
	Output string

	// Cancelled — true, если процесс был прерван отменой контекста.
	Cancelled bool
}

// Runner выполняет отдельные команды stage.
//
// Реализации: ShellRunner (боевая, через /bin/sh) и фейки в тестах.
type Runner interface {
	Run(ctx context.Context, spec CommandSpec) (*CommandResult, error)
}

// ShellRunner выполняет команды через sh -c.
//
// При отмене контекста процессу отправляется SIGTERM; если за grace
// period он не завершился, exec принудительно убивает его (WaitDelay).
type ShellRunner struct{}

// NewShellRunner создаёт ShellRunner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run реализует Runner.
//
// Возвращает error только для инфраструктурных проблем (команду не
// удалось запустить). Ненулевой код выхода — не error: он фиксируется
// в CommandResult.ExitCode.
func (r *ShellRunner) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	grace := spec.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	// Мягкая остановка при отмене: SIGTERM, затем через grace — SIGKILL
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	err := cmd.Run()

	result := &CommandResult{
		Output:    output.String(),
		Cancelled: ctx.Err() != nil,
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	// Команду не удалось запустить (sh отсутствует, каталог не существует)
	return nil, err
}
