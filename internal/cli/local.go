package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/engine"
	"github.com/shaiso/conveyr/internal/executor"
)

// ErrRunFailed — хотя бы один stage упал; код выхода процесса 1.
var ErrRunFailed = errors.New("run failed")

// NewRunCmd создаёт команду локального выполнения pipeline.
func NewRunCmd(outputFn func() *Output, logger *slog.Logger) *cobra.Command {
	var (
		pipelineFile string
		trigger      string
		branch       string
		commit       string
		workers      int
		contextDir   string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline locally",
		Long: `Execute a pipeline in-process: plan the stage graph and run each
batch, stages within a batch concurrently. Exit code is 0 only when
every non-skipped stage succeeded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			event, err := parseTrigger(trigger, branch, commit)
			if err != nil {
				return err
			}

			p, graph, err := loadGraph(pipelineFile)
			if err != nil {
				return err
			}

			plan, err := engine.Plan(graph, event)
			if err != nil {
				return err
			}

			if dryRun {
				printPlan(out, plan)
				return nil
			}

			eng := executor.New(executor.Config{
				Workers:    workers,
				Image:      p.Image,
				ContextDir: contextDir,
				Logger:     logger,
			})

			results := eng.Execute(cmd.Context(), graph, plan, event)

			printSummary(out, p.Name, event, results)

			if executor.AnyFailed(results) {
				return ErrRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", "conveyr.yml", "Pipeline file")
	cmd.Flags().StringVar(&trigger, "trigger", "push", "Trigger event kind (push, pull_request)")
	cmd.Flags().StringVar(&branch, "branch", "main", "Branch of the trigger event")
	cmd.Flags().StringVar(&commit, "commit", "", "Commit SHA of the trigger event")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent stages per batch (0 = unbounded)")
	cmd.Flags().StringVar(&contextDir, "context", ".", "Build context for publish stages")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without executing")

	return cmd
}

// NewPlanCmd создаёт команду печати плана выполнения.
func NewPlanCmd(outputFn func() *Output) *cobra.Command {
	var (
		pipelineFile string
		trigger      string
		branch       string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the execution plan of a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			event, err := parseTrigger(trigger, branch, "")
			if err != nil {
				return err
			}

			_, graph, err := loadGraph(pipelineFile)
			if err != nil {
				return err
			}

			plan, err := engine.Plan(graph, event)
			if err != nil {
				return err
			}

			printPlan(out, plan)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", "conveyr.yml", "Pipeline file")
	cmd.Flags().StringVar(&trigger, "trigger", "push", "Trigger event kind (push, pull_request)")
	cmd.Flags().StringVar(&branch, "branch", "main", "Branch of the trigger event")

	return cmd
}

// NewValidateCmd создаёт команду валидации файла pipeline.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	var pipelineFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline file and its stage graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, graph, err := loadGraph(pipelineFile)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline %q is valid: %d stages", p.Name, graph.Size()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipelineFile, "pipeline", "p", "conveyr.yml", "Pipeline file")

	return cmd
}

// parseTrigger собирает TriggerEvent из флагов.
func parseTrigger(trigger, branch, commit string) (domain.TriggerEvent, error) {
	kind, err := domain.ParseTriggerKind(trigger)
	if err != nil {
		return domain.TriggerEvent{}, err
	}
	if branch == "" {
		return domain.TriggerEvent{}, fmt.Errorf("branch must not be empty")
	}
	return domain.TriggerEvent{Kind: kind, Branch: branch, Commit: commit}, nil
}

// loadGraph загружает pipeline и строит замороженный граф stages.
func loadGraph(path string) (*config.Pipeline, *engine.Graph, error) {
	p, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	registry := engine.NewRegistry()
	for _, stage := range p.DomainStages() {
		if err := registry.Register(stage); err != nil {
			return nil, nil, fmt.Errorf("stage %q: %w", stage.Name, err)
		}
	}

	graph, err := registry.Resolve()
	if err != nil {
		return nil, nil, err
	}

	return p, graph, nil
}
