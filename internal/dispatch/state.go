package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/engine"
)

// RunState — состояние выполнения одного run в памяти диспетчера.
//
// Создаётся, когда Dispatcher начинает обработку run, и удаляется,
// когда run достигает терминального статуса.
//
// Содержит замороженный Graph, план батчей и текущие состояния всех
// stages. Батч k публикуется агентам только после того, как все stages
// батчей < k терминальны; перед публикацией к батчу применяются
// policy-skip и пропуск из-за упавших или пропущенных зависимостей.
type RunState struct {
	// Run — данные run из БД.
	Run *domain.Run

	// Pipeline — определение pipeline.
	Pipeline *config.Pipeline

	graph *engine.Graph
	plan  *engine.RunPlan

	// currentBatch — индекс батча, который публикуется или выполняется.
	currentBatch int

	outcomes map[string]domain.Outcome
	results  map[string]*domain.StageResult

	mu sync.RWMutex
}

// NewRunState создаёт RunState.
func NewRunState(run *domain.Run, pipeline *config.Pipeline) *RunState {
	return &RunState{
		Run:      run,
		Pipeline: pipeline,
		outcomes: make(map[string]domain.Outcome),
		results:  make(map[string]*domain.StageResult),
	}
}

// Initialize регистрирует stages, резолвит граф и строит план.
// Ошибка означает невалидный pipeline: run завершается FAILED
// до запуска чего-либо.
func (s *RunState) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	registry := engine.NewRegistry()
	for _, stage := range s.Pipeline.DomainStages() {
		if err := registry.Register(stage); err != nil {
			return fmt.Errorf("register stage %q: %w", stage.Name, err)
		}
	}

	graph, err := registry.Resolve()
	if err != nil {
		return fmt.Errorf("resolve graph: %w", err)
	}

	plan, err := engine.Plan(graph, s.Run.Trigger)
	if err != nil {
		return fmt.Errorf("plan run: %w", err)
	}

	s.graph = graph
	s.plan = plan

	for _, name := range graph.Names() {
		s.outcomes[name] = domain.OutcomePending
	}

	return nil
}

// NextBatch возвращает stages очередного батча, готовые к публикации.
//
// Если предыдущий батч ещё не завершён, возвращает nil. Перед выдачей
// помечает skipped (с результатом) те stages батча, которые исключены
// trigger guard'ом или чья зависимость упала либо была пропущена —
// такие stages агентам не публикуются. Пустые после пропусков батчи
// перешагиваются.
func (s *RunState) NextBatch() []domain.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.currentBatch < len(s.plan.Batches) {
		if !s.priorBatchesTerminal() {
			return nil
		}

		batch := s.plan.Batches[s.currentBatch]
		var launch []domain.Stage

		for _, name := range batch {
			if s.outcomes[name].IsTerminal() {
				continue
			}
			if reason, skip := s.skipReason(name); skip {
				s.markSkippedLocked(name, reason)
				continue
			}
			if s.outcomes[name] == domain.OutcomePending {
				launch = append(launch, *s.graph.Stage(name))
			}
		}

		if len(launch) > 0 {
			return launch
		}

		// Батч целиком пропущен или уже завершён — идём дальше
		if s.batchTerminal(s.currentBatch) {
			s.currentBatch++
			continue
		}
		return nil
	}

	return nil
}

// priorBatchesTerminal проверяет, что все stages батчей до текущего
// терминальны.
func (s *RunState) priorBatchesTerminal() bool {
	for i := 0; i < s.currentBatch; i++ {
		if !s.batchTerminal(i) {
			return false
		}
	}
	return true
}

// batchTerminal проверяет, что все stages батча i терминальны.
func (s *RunState) batchTerminal(i int) bool {
	for _, name := range s.plan.Batches[i] {
		if !s.outcomes[name].IsTerminal() {
			return false
		}
	}
	return true
}

// skipReason решает, должен ли stage быть пропущен, и почему.
func (s *RunState) skipReason(name string) (string, bool) {
	if s.plan.PolicySkipped[name] {
		return "excluded by trigger policy", true
	}

	for _, dep := range s.graph.Stage(name).DependsOn {
		switch s.outcomes[dep] {
		case domain.OutcomeFailed:
			return fmt.Sprintf("dependency %q failed", dep), true
		case domain.OutcomeSkipped:
			return fmt.Sprintf("dependency %q skipped", dep), true
		}
	}

	return "", false
}

// markSkippedLocked помечает stage пропущенным. Вызывается под mu.
func (s *RunState) markSkippedLocked(name, reason string) {
	s.outcomes[name] = domain.OutcomeSkipped
	s.results[name] = &domain.StageResult{
		Stage:   name,
		Outcome: domain.OutcomeSkipped,
		Error:   reason,
	}
}

// MarkRunning помечает stage выполняющимся (задание опубликовано).
func (s *RunState) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[name] = domain.OutcomeRunning
}

// ApplyResult применяет терминальный отчёт агента.
//
// Повторная доставка того же результата игнорируется: состояние stage
// уже терминально и не меняется.
func (s *RunState) ApplyResult(result *domain.StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.outcomes[result.Stage]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, result.Stage)
	}

	if current.IsTerminal() {
		return nil
	}

	s.outcomes[result.Stage] = result.Outcome
	s.results[result.Stage] = result

	// Текущий батч завершён — NextBatch продвинется дальше
	if s.currentBatch < len(s.plan.Batches) && s.batchTerminal(s.currentBatch) {
		s.currentBatch++
	}

	return nil
}

// Cancel переводит все незавершённые stages в SKIPPED/CANCELLED.
// Выполняющиеся stages прерываются агентами отдельно; здесь фиксируется
// итог для тех, кто ещё не стартовал.
func (s *RunState) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for name, outcome := range s.outcomes {
		if outcome.IsTerminal() {
			continue
		}
		if outcome == domain.OutcomeRunning {
			// Терминальный отчёт придёт от агента (CANCELLED)
			continue
		}
		s.outcomes[name] = domain.OutcomeSkipped
		s.results[name] = &domain.StageResult{
			Stage:      name,
			Outcome:    domain.OutcomeSkipped,
			Reason:     domain.ReasonCancelled,
			Error:      "run cancelled",
			FinishedAt: &now,
		}
	}
}

// NeedsDispatch возвращает true, если run не завершён и ни один stage
// не выполняется: очередной батч не опубликован (например, публикация
// заданий не удалась) и без повторного dispatch run зависнет навсегда.
func (s *RunState) NeedsDispatch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	complete := true
	for _, outcome := range s.outcomes {
		if outcome == domain.OutcomeRunning {
			return false
		}
		if !outcome.IsTerminal() {
			complete = false
		}
	}
	return !complete
}

// IsComplete возвращает true, когда все stages терминальны.
func (s *RunState) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, outcome := range s.outcomes {
		if !outcome.IsTerminal() {
			return false
		}
	}
	return true
}

// HasFailed возвращает true, если хотя бы один stage упал.
func (s *RunState) HasFailed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, outcome := range s.outcomes {
		if outcome == domain.OutcomeFailed {
			return true
		}
	}
	return false
}

// FailedStages возвращает имена упавших stages в порядке регистрации.
func (s *RunState) FailedStages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var failed []string
	for _, name := range s.graph.Names() {
		if s.outcomes[name] == domain.OutcomeFailed {
			failed = append(failed, name)
		}
	}
	return failed
}

// Results возвращает результаты всех терминальных stages в порядке
// регистрации.
func (s *RunState) Results() []domain.StageResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.StageResult
	for _, name := range s.graph.Names() {
		if res := s.results[name]; res != nil {
			results = append(results, *res)
		}
	}
	return results
}

// Outcome возвращает текущее состояние stage.
func (s *RunState) Outcome(name string) domain.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcomes[name]
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.Run.ID
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{Total: len(s.outcomes)}
	for _, outcome := range s.outcomes {
		switch outcome {
		case domain.OutcomePending:
			stats.Pending++
		case domain.OutcomeRunning:
			stats.Running++
		case domain.OutcomeSucceeded:
			stats.Succeeded++
		case domain.OutcomeFailed:
			stats.Failed++
		case domain.OutcomeSkipped:
			stats.Skipped++
		}
	}
	return stats
}

// RunStats — статистика выполнения run.
type RunStats struct {
	Total     int
	Pending   int
	Running   int
	Succeeded int
	Failed    int
	Skipped   int
}
