package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/conveyr/internal/domain"
)

// ResultRepo — репозиторий для терминальных результатов stages.
type ResultRepo struct {
	pool *pgxpool.Pool
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

// Save сохраняет результат stage.
// Повторное сохранение того же stage перезаписывает запись: агент
// отчитывается ровно один раз, но доставка сообщения может повториться.
func (r *ResultRepo) Save(ctx context.Context, runID uuid.UUID, result *domain.StageResult) error {
	query := `
		INSERT INTO stage_results (run_id, stage, outcome, exit_code, output,
		                           reason, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, stage) DO UPDATE
		SET outcome = EXCLUDED.outcome,
		    exit_code = EXCLUDED.exit_code,
		    output = EXCLUDED.output,
		    reason = EXCLUDED.reason,
		    error = EXCLUDED.error,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err := r.pool.Exec(ctx, query,
		runID,
		result.Stage,
		result.Outcome,
		result.ExitCode,
		result.Output,
		nullString(string(result.Reason)),
		nullString(result.Error),
		result.StartedAt,
		result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save stage result: %w", err)
	}
	return nil
}

// ListByRun возвращает результаты stages одного run в порядке сохранения.
func (r *ResultRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.StageResult, error) {
	query := `
		SELECT stage, outcome, exit_code, output, reason, error,
		       started_at, finished_at
		FROM stage_results
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()

	var results []domain.StageResult
	for rows.Next() {
		var res domain.StageResult
		var reason *string
		var resError *string

		err := rows.Scan(
			&res.Stage,
			&res.Outcome,
			&res.ExitCode,
			&res.Output,
			&reason,
			&resError,
			&res.StartedAt,
			&res.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}

		if reason != nil {
			res.Reason = domain.FailureReason(*reason)
		}
		if resError != nil {
			res.Error = *resError
		}

		results = append(results, res)
	}
	return results, rows.Err()
}
