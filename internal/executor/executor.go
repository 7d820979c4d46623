package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/engine"
	"github.com/shaiso/conveyr/internal/image"
	"github.com/shaiso/conveyr/internal/secrets"
)

// Engine выполняет план run'а батч за батчем.
//
// Создаётся через New(cfg Config). Один Engine можно использовать
// для нескольких последовательных Execute.
type Engine struct {
	runner  Runner
	store   secrets.Store
	logger  *slog.Logger
	workers int
	grace   time.Duration
	workDir string
	image   string
	context string
}

// Config — конфигурация Engine.
type Config struct {
	// Runner — исполнитель команд (default: ShellRunner).
	Runner Runner

	// Secrets — хранилище секретов (default: EnvStore без префикса).
	Secrets secrets.Store

	// Workers — лимит конкурентных stages внутри батча.
	// <= 0 означает «без ограничения»: горутина на каждый stage батча.
	Workers int

	// GracePeriod — время между SIGTERM и SIGKILL при отмене.
	GracePeriod time.Duration

	// WorkDir — база для изолированных рабочих каталогов stages.
	// Пустая строка — системный temp.
	WorkDir string

	// Image — репозиторий container image для publish-stages.
	Image string

	// ContextDir — build context для docker-команд publish-stages.
	ContextDir string

	// Logger
	Logger *slog.Logger
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	runner := cfg.Runner
	if runner == nil {
		runner = NewShellRunner()
	}

	store := cfg.Secrets
	if store == nil {
		store = secrets.NewEnvStore("")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	return &Engine{
		runner:  runner,
		store:   store,
		logger:  logger,
		workers: cfg.Workers,
		grace:   grace,
		workDir: cfg.WorkDir,
		image:   cfg.Image,
		context: cfg.ContextDir,
	}
}

// Execute выполняет план и возвращает результат каждого stage
// в порядке регистрации.
//
// Контракт:
//   - stages одного батча выполняются конкурентно, батчи — последовательно;
//   - stage пропускается до запуска, если его зависимость не SUCCEEDED
//     или он не прошёл trigger guard;
//   - отмена ctx переводит все ещё pending stages в SKIPPED, а уже
//     запущенным процессам отправляется SIGTERM с grace period.
func (e *Engine) Execute(ctx context.Context, graph *engine.Graph, plan *engine.RunPlan, trigger domain.TriggerEvent) []domain.StageResult {
	st := &runState{
		outcomes: make(map[string]domain.Outcome, graph.Size()),
		results:  make(map[string]*domain.StageResult, graph.Size()),
	}
	for _, name := range graph.Names() {
		st.outcomes[name] = domain.OutcomePending
	}

	for _, batch := range plan.Batches {
		if ctx.Err() != nil {
			break
		}

		runnable := e.markSkips(st, graph, plan, batch)
		if len(runnable) == 0 {
			continue
		}

		g := new(errgroup.Group)
		if e.workers > 0 {
			g.SetLimit(e.workers)
		}

		for _, name := range runnable {
			name := name
			stage := graph.Stage(name)
			g.Go(func() error {
				st.setOutcome(name, domain.OutcomeRunning)
				result := e.runStage(ctx, stage, e.image)
				st.finish(name, result)

				e.logger.Info("stage finished",
					"stage", name,
					"outcome", result.Outcome,
					"duration", result.Duration(),
				)
				return nil
			})
		}

		// Ошибок горутины не возвращают: падение stage — это данные,
		// а не ошибка движка
		_ = g.Wait()
	}

	// Отмена: всё, что осталось pending, пропускается
	if ctx.Err() != nil {
		for _, name := range graph.Names() {
			if st.outcome(name) == domain.OutcomePending {
				st.finish(name, &domain.StageResult{
					Stage:   name,
					Outcome: domain.OutcomeSkipped,
					Reason:  domain.ReasonCancelled,
					Error:   ErrRunCancelled.Error(),
				})
			}
		}
	}

	results := make([]domain.StageResult, 0, graph.Size())
	for _, name := range graph.Names() {
		if r := st.result(name); r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// markSkips помечает пропускаемые stages батча до его запуска
// и возвращает имена stages, которые будут выполняться.
func (e *Engine) markSkips(st *runState, graph *engine.Graph, plan *engine.RunPlan, batch []string) []string {
	var runnable []string

	for _, name := range batch {
		if plan.PolicySkipped[name] {
			st.finish(name, &domain.StageResult{
				Stage:   name,
				Outcome: domain.OutcomeSkipped,
				Error:   "excluded by trigger policy",
			})
			e.logger.Info("stage skipped", "stage", name, "cause", "trigger policy")
			continue
		}

		if blocker := e.failedDependency(st, graph, name); blocker != "" {
			st.finish(name, &domain.StageResult{
				Stage:   name,
				Outcome: domain.OutcomeSkipped,
				Error:   fmt.Sprintf("dependency %s did not succeed", blocker),
			})
			e.logger.Info("stage skipped", "stage", name, "cause", "dependency "+blocker)
			continue
		}

		runnable = append(runnable, name)
	}

	return runnable
}

// failedDependency возвращает имя первой зависимости stage, не достигшей
// SUCCEEDED, либо пустую строку. Батчи обрабатываются в топологическом
// порядке, поэтому к этому моменту все зависимости терминальны.
func (e *Engine) failedDependency(st *runState, graph *engine.Graph, name string) string {
	for _, dep := range graph.Stage(name).DependsOn {
		if st.outcome(dep) != domain.OutcomeSucceeded {
			return dep
		}
	}
	return ""
}

// ExecuteStage выполняет один stage вне плана.
//
// Используется агентом серверного режима: stage приходит заданием из
// очереди вместе с репозиторием image своего pipeline. Семантика та же,
// что у stage внутри Execute: изолированный каталог, секреты, preflight,
// последовательные команды.
func (e *Engine) ExecuteStage(ctx context.Context, stage *domain.Stage, repository string) *domain.StageResult {
	return e.runStage(ctx, stage, repository)
}

// runStage выполняет один stage в изолированном окружении.
func (e *Engine) runStage(ctx context.Context, stage *domain.Stage, repository string) *domain.StageResult {
	started := time.Now()
	result := &domain.StageResult{
		Stage:     stage.Name,
		StartedAt: &started,
	}

	finish := func(outcome domain.Outcome, reason domain.FailureReason, err error) *domain.StageResult {
		finished := time.Now()
		result.FinishedAt = &finished
		result.Outcome = outcome
		result.Reason = reason
		if err != nil {
			result.Error = err.Error()
		}
		return result
	}

	// Изолированный рабочий каталог; эксклюзивен для этого запуска stage
	workDir, err := os.MkdirTemp(e.workDir, "conveyr-"+stage.Name+"-")
	if err != nil {
		return finish(domain.OutcomeFailed, domain.ReasonEnvironment,
			fmt.Errorf("%w: %v", ErrEnvironmentSetup, err))
	}
	defer os.RemoveAll(workDir)

	// Секреты резолвятся при запуске и попадают только в окружение
	// этого stage
	resolved, err := secrets.ResolveAll(ctx, e.store, stage.Secrets)
	if err != nil {
		if stage.Publish {
			// Отсутствие учётных данных registry — это отказ preflight,
			// а не ошибка окружения
			return finish(domain.OutcomeFailed, domain.ReasonAuthentication,
				fmt.Errorf("%w: %v", ErrAuthentication, err))
		}
		return finish(domain.OutcomeFailed, domain.ReasonEnvironment,
			fmt.Errorf("%w: %v", ErrEnvironmentSetup, err))
	}

	redactor := secrets.NewRedactorFromMap(resolved)
	env := buildEnv(stage.Env, resolved)

	if stage.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(stage.TimeoutSec)*time.Second)
		defer cancel()
	}

	commands := stage.Commands

	if stage.Publish {
		derived, err := e.publishPreflight(ctx, stage, resolved, workDir, repository, env)
		if err != nil {
			reason := domain.ReasonAuthentication
			if !errors.Is(err, ErrAuthentication) {
				reason = domain.ReasonEnvironment
			}
			return finish(domain.OutcomeFailed, reason, err)
		}
		if len(commands) == 0 {
			commands = derived
		}
	}

	// Build-check stage со схемой timestamp: команда сборки выводится
	// из image pipeline, тег — unix timestamp, чтобы собранный образ
	// не конфликтовал с публикуемым latest
	if !stage.Publish && stage.TagScheme == domain.TagSchemeTimestamp && len(commands) == 0 {
		artifact, err := image.Ref(repository, image.TagTimestamp(started))
		if err != nil {
			return finish(domain.OutcomeFailed, domain.ReasonEnvironment,
				fmt.Errorf("%w: %v", ErrEnvironmentSetup, err))
		}
		commands = []string{image.BuildCommand(artifact, e.context)}
	}

	// Команды stage выполняются строго последовательно;
	// первая упавшая прерывает оставшиеся
	var output []byte
	for _, command := range commands {
		res, err := e.runner.Run(ctx, CommandSpec{
			Command:     command,
			Dir:         workDir,
			Env:         env,
			GracePeriod: e.grace,
		})
		if err != nil {
			result.Output = string(output)
			return finish(domain.OutcomeFailed, domain.ReasonEnvironment,
				fmt.Errorf("%w: %v", ErrEnvironmentSetup, err))
		}

		output = append(output, redactor.Redact(res.Output)...)

		if res.ExitCode != 0 {
			result.Output = string(output)
			result.ExitCode = res.ExitCode

			reason := domain.ReasonCommand
			errCause := fmt.Errorf("%w: %q exited with code %d", ErrCommandFailed,
				redactor.Redact(command), res.ExitCode)
			if res.Cancelled {
				reason = domain.ReasonCancelled
				errCause = ErrRunCancelled
			}
			return finish(domain.OutcomeFailed, reason, errCause)
		}
	}

	result.Output = string(output)
	return finish(domain.OutcomeSucceeded, domain.ReasonNone, nil)
}

// buildEnv собирает окружение процесса stage: окружение раннера,
// переменные stage и резолвленные секреты.
func buildEnv(stageEnv, resolved map[string]string) []string {
	env := os.Environ()
	for k, v := range stageEnv {
		env = append(env, k+"="+v)
	}
	for k, v := range resolved {
		env = append(env, k+"="+v)
	}
	return env
}

// AnyFailed возвращает true, если хотя бы один stage упал.
// Определяет код выхода run'а: пропуски по политике кодом выхода
// не считаются падением.
func AnyFailed(results []domain.StageResult) bool {
	for i := range results {
		if results[i].Failed() {
			return true
		}
	}
	return false
}

// FirstFailure возвращает результат первого упавшего stage (nil, если
// падений нет). Его вывод показывается в сводке run'а первым.
func FirstFailure(results []domain.StageResult) *domain.StageResult {
	for i := range results {
		if results[i].Failed() {
			return &results[i]
		}
	}
	return nil
}

// runState — потокобезопасное состояние одного Execute.
type runState struct {
	mu       sync.RWMutex
	outcomes map[string]domain.Outcome
	results  map[string]*domain.StageResult
}

func (s *runState) outcome(name string) domain.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcomes[name]
}

func (s *runState) setOutcome(name string, o domain.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[name] = o
}

func (s *runState) finish(name string, result *domain.StageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[name] = result.Outcome
	s.results[name] = result
}

func (s *runState) result(name string) *domain.StageResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[name]
}
