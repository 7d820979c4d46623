package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/engine"
	"github.com/shaiso/conveyr/internal/executor"
)

// printPlan печатает батчи плана; stages, исключённые политикой,
// помечаются явно.
func printPlan(out *Output, plan *engine.RunPlan) {
	type planStage struct {
		Batch  int    `json:"batch"`
		Stage  string `json:"stage"`
		Policy string `json:"policy"`
	}

	var rows [][]string
	var jsonRows []planStage
	for i, batch := range plan.Batches {
		for _, name := range batch {
			policy := "run"
			if plan.PolicySkipped[name] {
				policy = "skip (trigger policy)"
			}
			rows = append(rows, []string{fmt.Sprintf("%d", i), name, policy})
			jsonRows = append(jsonRows, planStage{Batch: i, Stage: name, Policy: policy})
		}
	}

	out.Print([]string{"BATCH", "STAGE", "POLICY"}, rows, jsonRows)
}

// printSummary печатает итоги run'а: таблицу результатов и вывод
// первого упавшего stage.
func printSummary(out *Output, pipeline string, event domain.TriggerEvent, results []domain.StageResult) {
	var rows [][]string
	for i := range results {
		r := &results[i]
		rows = append(rows, []string{
			r.Stage,
			string(r.Outcome),
			formatDuration(r),
			formatDetail(r),
		})
	}

	out.Success(fmt.Sprintf("Pipeline %q (%s on %s):", pipeline, event.Kind, event.Branch))
	out.Print([]string{"STAGE", "OUTCOME", "DURATION", "DETAIL"}, rows, results)

	if failure := executor.FirstFailure(results); failure != nil {
		out.Error(fmt.Sprintf("stage %q failed: %s", failure.Stage, failure.Error))
		if output := strings.TrimSpace(failure.Output); output != "" {
			out.Success("--- output of " + failure.Stage + " ---")
			out.Success(output)
		}
	}
}

func formatDuration(r *domain.StageResult) string {
	d := r.Duration()
	if d <= 0 {
		return "-"
	}
	return d.Round(10 * time.Millisecond).String()
}

func formatDetail(r *domain.StageResult) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.ExitCode != 0:
		return fmt.Sprintf("exit code %d", r.ExitCode)
	default:
		return "-"
	}
}
