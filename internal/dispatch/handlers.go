package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/mq"
	"github.com/shaiso/conveyr/internal/repo"
)

// handleRunPending обрабатывает событие о новом pending run.
func (d *Dispatcher) handleRunPending(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunPendingPayload](&delivery.Message)
	if err != nil {
		d.logger.Error("failed to parse run.pending payload", "error", err)
		return err
	}

	d.logger.Debug("received run.pending event", "run_id", payload.RunID)

	if d.isRunActive(payload.RunID) {
		d.logger.Debug("run already active, skipping", "run_id", payload.RunID)
		return nil
	}

	if err := d.processRun(ctx, payload.RunID); err != nil {
		if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
			d.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		d.logger.Error("failed to process run", "run_id", payload.RunID, "error", err)
		return err
	}

	return nil
}

// handleStageCompleted обрабатывает терминальный отчёт агента.
func (d *Dispatcher) handleStageCompleted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.StageCompletedPayload](&delivery.Message)
	if err != nil {
		d.logger.Error("failed to parse stage.completed payload", "error", err)
		return err
	}

	d.logger.Debug("received stage.completed event",
		"run_id", payload.RunID,
		"stage", payload.Result.Stage,
		"outcome", payload.Result.Outcome,
	)

	if err := d.processStageCompleted(ctx, payload); err != nil {
		d.logger.Error("failed to process stage completion",
			"run_id", payload.RunID,
			"stage", payload.Result.Stage,
			"error", err,
		)
		return err
	}

	return nil
}

// processRun обрабатывает новый run.
func (d *Dispatcher) processRun(ctx context.Context, runID uuid.UUID) error {
	// 1. Загружаем run из БД
	run, err := d.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	// 2. Проверяем статус
	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	// 3. Находим pipeline
	pipeline, err := d.library.Get(run.Pipeline)
	if err != nil {
		return d.failRun(ctx, run, fmt.Sprintf("pipeline not found: %s", run.Pipeline))
	}

	// 4. Создаём и инициализируем RunState (граф, план)
	state := NewRunState(run, pipeline)
	if err := state.Initialize(); err != nil {
		return d.failRun(ctx, run, fmt.Sprintf("invalid pipeline: %v", err))
	}

	// 5. Добавляем в активные runs
	if err := d.addActiveRun(state); err != nil {
		return err
	}

	// 6. Переводим run в RUNNING
	run.MarkRunning()
	if err := d.runRepo.Update(ctx, run); err != nil {
		d.removeActiveRun(runID)
		return fmt.Errorf("update run to running: %w", err)
	}

	d.logger.Info("run started",
		"run_id", runID,
		"pipeline", run.Pipeline,
		"trigger", run.Trigger.Kind,
		"branch", run.Trigger.Branch,
		"stages", len(pipeline.Stages),
	)

	// 7. Публикуем первый батч
	if err := d.dispatchReady(ctx, state); err != nil {
		d.logger.Error("failed to dispatch initial batch", "run_id", runID, "error", err)
		// Run остаётся активным без stages в полёте —
		// его переопубликует redispatchStalled на следующем poll
	}

	// Все stages могли быть пропущены guard'ом — run завершён сразу
	if state.IsComplete() {
		return d.completeRun(ctx, state)
	}

	return nil
}

// processStageCompleted обрабатывает терминальный отчёт агента.
func (d *Dispatcher) processStageCompleted(ctx context.Context, payload mq.StageCompletedPayload) error {
	// 1. Получаем активный RunState
	state := d.getActiveRun(payload.RunID)

	// Если run не в памяти, пытаемся восстановить (после рестарта)
	if state == nil {
		var err error
		state, err = d.restoreRunState(ctx, payload.RunID)
		if err != nil {
			return fmt.Errorf("restore run state: %w", err)
		}
		if state == nil {
			d.logger.Debug("run not active and cannot restore", "run_id", payload.RunID)
			return nil
		}
	}

	// 2. Сохраняем результат
	result := payload.Result
	if err := d.resultRepo.Save(ctx, payload.RunID, &result); err != nil {
		return fmt.Errorf("save stage result: %w", err)
	}

	// 3. Применяем к состоянию
	if err := state.ApplyResult(&result); err != nil {
		return err
	}

	if d.metrics != nil {
		d.metrics.ObserveStage(&result)
	}

	if result.Failed() {
		d.logger.Warn("stage failed",
			"run_id", payload.RunID,
			"stage", result.Stage,
			"reason", result.Reason,
			"exit_code", result.ExitCode,
		)
	} else {
		d.logger.Debug("stage finished",
			"run_id", payload.RunID,
			"stage", result.Stage,
			"outcome", result.Outcome,
		)
	}

	// 4. Публикуем следующий батч (skip propagation внутри NextBatch)
	if err := d.dispatchReady(ctx, state); err != nil {
		return err
	}

	// 5. Проверяем завершение run
	if state.IsComplete() {
		return d.completeRun(ctx, state)
	}

	return nil
}

// dispatchReady публикует stage-задания очередного батча.
//
// Stages, пропущенные trigger guard'ом или из-за упавших зависимостей,
// фиксируются как SKIPPED в БД, агентам не публикуются. Цикл идёт до
// первого батча с реально запускаемыми stages.
func (d *Dispatcher) dispatchReady(ctx context.Context, state *RunState) error {
	before := state.Stats().Skipped

	// NextBatch сам перешагивает батчи, пропущенные целиком
	batch := state.NextBatch()

	// Фиксируем появившиеся пропуски
	if state.Stats().Skipped > before {
		d.persistSkips(ctx, state)
	}

	if len(batch) == 0 {
		return nil
	}

	d.logger.Debug("dispatching batch",
		"run_id", state.RunID(),
		"count", len(batch),
	)

	for _, stage := range batch {
		if err := d.dispatchStage(ctx, state, stage); err != nil {
			d.logger.Error("failed to dispatch stage",
				"run_id", state.RunID(),
				"stage", stage.Name,
				"error", err,
			)
			// Продолжаем с другими stages батча
		}
	}
	return nil
}

// dispatchStage публикует одно stage-задание агентам.
func (d *Dispatcher) dispatchStage(ctx context.Context, state *RunState, stage domain.Stage) error {
	job := mq.StageJobPayload{
		RunID:   state.RunID(),
		Stage:   stage,
		Trigger: state.Run.Trigger,
		Image:   state.Pipeline.Image,
	}

	if err := d.publisher.PublishStageReady(ctx, job); err != nil {
		return fmt.Errorf("publish stage.ready: %w", err)
	}

	state.MarkRunning(stage.Name)

	d.logger.Debug("stage dispatched",
		"run_id", state.RunID(),
		"stage", stage.Name,
		"publish", stage.Publish,
	)

	return nil
}

// persistSkips сохраняет SKIPPED-результаты, ещё не записанные в БД.
func (d *Dispatcher) persistSkips(ctx context.Context, state *RunState) {
	for _, res := range state.Results() {
		if res.Outcome != domain.OutcomeSkipped {
			continue
		}
		res := res
		if err := d.resultRepo.Save(ctx, state.RunID(), &res); err != nil {
			d.logger.Error("failed to save skipped result",
				"run_id", state.RunID(),
				"stage", res.Stage,
				"error", err,
			)
		}
	}
}

// completeRun финализирует run по итогам всех stages.
func (d *Dispatcher) completeRun(ctx context.Context, state *RunState) error {
	run := state.Run

	if state.HasFailed() {
		failed := state.FailedStages()
		run.MarkFinished(domain.RunStatusFailed,
			fmt.Sprintf("stages failed: %s", strings.Join(failed, ", ")))
		d.logger.Warn("run failed",
			"run_id", run.ID,
			"failed_stages", failed,
			"duration", run.Duration(),
		)
	} else {
		run.MarkFinished(domain.RunStatusSucceeded, "")
		d.logger.Info("run succeeded",
			"run_id", run.ID,
			"duration", run.Duration(),
		)
	}

	if err := d.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	if d.metrics != nil {
		d.metrics.ObserveRun(run.Status)
	}

	d.removeActiveRun(run.ID)
	return nil
}

// failRun переводит run в FAILED до начала выполнения.
func (d *Dispatcher) failRun(ctx context.Context, run *domain.Run, errMsg string) error {
	run.MarkFinished(domain.RunStatusFailed, errMsg)

	if err := d.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run to failed: %w", err)
	}

	if d.metrics != nil {
		d.metrics.ObserveRun(run.Status)
	}

	d.logger.Warn("run failed early",
		"run_id", run.ID,
		"error", errMsg,
	)

	return fmt.Errorf("run failed: %s", errMsg)
}

// CancelRun отменяет run.
//
// PENDING run просто финализируется; у активного все незапущенные
// stages помечаются SKIPPED/CANCELLED. Выполняющиеся stages получат
// SIGTERM на стороне агента и отчитаются сами, но run финализируется
// сразу.
func (d *Dispatcher) CancelRun(ctx context.Context, runID uuid.UUID) error {
	state := d.getActiveRun(runID)

	if state == nil {
		run, err := d.runRepo.GetByID(ctx, runID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return fmt.Errorf("get run: %w", err)
		}

		if run.Status.IsTerminal() {
			return nil
		}

		run.MarkFinished(domain.RunStatusCancelled, "cancelled by operator")
		if err := d.runRepo.Update(ctx, run); err != nil {
			return fmt.Errorf("update run to cancelled: %w", err)
		}
		return nil
	}

	state.Cancel()
	d.persistSkips(ctx, state)

	run := state.Run
	run.MarkFinished(domain.RunStatusCancelled, "cancelled by operator")
	if err := d.runRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("update run to cancelled: %w", err)
	}

	if d.metrics != nil {
		d.metrics.ObserveRun(run.Status)
	}

	d.removeActiveRun(runID)

	d.logger.Info("run cancelled", "run_id", runID)
	return nil
}

// restoreRunState восстанавливает RunState из БД.
//
// Используется, когда stage.completed приходит для run, которого нет
// в памяти (после рестарта Dispatcher). Терминальные результаты
// подтягиваются из stage_results; stages, выполнявшиеся в момент
// рестарта, будут опубликованы повторно — доставка заданий
// at-least-once, агент выполняет то, что получил.
func (d *Dispatcher) restoreRunState(ctx context.Context, runID uuid.UUID) (*RunState, error) {
	run, err := d.runRepo.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil // Run не существует
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	// Если run уже завершён — ничего не делаем
	if run.Status.IsTerminal() {
		return nil, nil
	}

	pipeline, err := d.library.Get(run.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}

	state := NewRunState(run, pipeline)
	if err := state.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize state: %w", err)
	}

	// Восстанавливаем терминальные результаты
	results, err := d.resultRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	for i := range results {
		if err := state.ApplyResult(&results[i]); err != nil {
			d.logger.Warn("failed to restore result",
				"run_id", runID,
				"stage", results[i].Stage,
				"error", err,
			)
		}
	}

	if err := d.addActiveRun(state); err != nil {
		if errors.Is(err, ErrRunAlreadyActive) {
			// Кто-то уже восстановил — возвращаем его
			return d.getActiveRun(runID), nil
		}
		return nil, err
	}

	d.logger.Info("run state restored",
		"run_id", runID,
		"stats", state.Stats(),
	)

	return state, nil
}
