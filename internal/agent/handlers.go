package agent

import (
	"context"

	"github.com/shaiso/conveyr/internal/mq"
)

// handleStageReady обрабатывает stage-задание из очереди stages.ready.
//
// Ошибка возвращается только если задание невозможно даже принять
// (битый payload) — тогда оно уходит в DLQ. Падение самих команд
// stage ошибкой обработки не является: это терминальный результат,
// который публикуется диспетчеру.
func (a *Agent) handleStageReady(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.StageJobPayload](&delivery.Message)
	if err != nil {
		a.logger.Error("failed to parse stage.ready payload", "error", err)
		return err
	}

	a.logger.Info("stage started",
		"run_id", payload.RunID,
		"stage", payload.Stage.Name,
		"publish", payload.Stage.Publish,
		"trigger", payload.Trigger.Kind,
	)

	result := a.engine.ExecuteStage(ctx, &payload.Stage, payload.Image)

	if a.metrics != nil {
		a.metrics.ObserveStage(result)
	}

	if result.Failed() {
		a.logger.Warn("stage failed",
			"run_id", payload.RunID,
			"stage", result.Stage,
			"reason", result.Reason,
			"exit_code", result.ExitCode,
			"duration", result.Duration(),
		)
	} else {
		a.logger.Info("stage finished",
			"run_id", payload.RunID,
			"stage", result.Stage,
			"outcome", result.Outcome,
			"duration", result.Duration(),
		)
	}

	completion := mq.StageCompletedPayload{
		RunID:  payload.RunID,
		Result: *result,
	}

	if err := a.publisher.PublishStageCompleted(ctx, completion); err != nil {
		a.logger.Error("failed to publish stage.completed",
			"run_id", payload.RunID,
			"stage", result.Stage,
			"error", err,
		)
		// Отчёт не доставлен — задание в DLQ, диспетчер увидит зависший
		// stage при восстановлении run
		return err
	}

	return nil
}
