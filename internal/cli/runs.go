package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewTriggerCmd создаёт команду отправки webhook-события на сервер.
func NewTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		pipeline string
		event    string
		branch   string
		commit   string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Send a trigger event and create a run on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CreateEvent(EventRequest{
				Pipeline: pipeline,
				Event:    event,
				Branch:   branch,
				Commit:   commit,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run created: %s", run.ID))
			printRun(out, run)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&event, "event", "push", "Trigger event kind (push, pull_request)")
	cmd.Flags().StringVar(&branch, "branch", "main", "Branch of the trigger event")
	cmd.Flags().StringVar(&commit, "commit", "", "Commit SHA of the trigger event")
	cmd.MarkFlagRequired("pipeline")

	return cmd
}

// NewPipelinesCmd создаёт команду списка pipelines сервера.
func NewPipelinesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List pipelines known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines()
			if err != nil {
				return err
			}

			var rows [][]string
			for _, p := range pipelines {
				schedule := p.Schedule
				if schedule == "" {
					schedule = "-"
				}
				rows = append(rows, []string{
					p.Name,
					p.Image,
					schedule,
					strings.Join(p.Stages, ", "),
				})
			}

			out.Print([]string{"NAME", "IMAGE", "SCHEDULE", "STAGES"}, rows, pipelines)
			return nil
		},
	}
}

// NewRunsCmd создаёт группу команд работы с runs сервера.
func NewRunsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and manage runs on the server",
	}

	cmd.AddCommand(newRunsListCmd(clientFn, outputFn))
	cmd.AddCommand(newRunsShowCmd(clientFn, outputFn))
	cmd.AddCommand(newRunsStagesCmd(clientFn, outputFn))
	cmd.AddCommand(newRunsCancelCmd(clientFn, outputFn))

	return cmd
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		pipeline string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				Pipeline: pipeline,
				Status:   status,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			var rows [][]string
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					r.Pipeline,
					r.Event,
					r.Branch,
					r.Status,
					r.CreatedAt,
				})
			}

			out.Print([]string{"ID", "PIPELINE", "EVENT", "BRANCH", "STATUS", "CREATED"}, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Filter by pipeline name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			printRun(out, run)
			return nil
		},
	}
}

func newRunsStagesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stages RUN_ID",
		Short: "Show stage results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			results, err := client.ListStages(args[0])
			if err != nil {
				return err
			}

			var rows [][]string
			for _, r := range results {
				detail := r.Error
				if detail == "" {
					detail = "-"
				}
				rows = append(rows, []string{
					r.Stage,
					r.Outcome,
					fmt.Sprintf("%d", r.ExitCode),
					detail,
				})
			}

			out.Print([]string{"STAGE", "OUTCOME", "EXIT", "DETAIL"}, rows, results)
			return nil
		},
	}
}

func newRunsCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run %s cancelled", run.ID))
			printRun(out, run)
			return nil
		},
	}
}

// printRun печатает один run таблицей или JSON.
func printRun(out *Output, run *RunResponse) {
	detail := run.Error
	if detail == "" {
		detail = "-"
	}
	rows := [][]string{{
		run.ID,
		run.Pipeline,
		run.Event,
		run.Branch,
		run.Status,
		detail,
	}}
	out.Print([]string{"ID", "PIPELINE", "EVENT", "BRANCH", "STATUS", "DETAIL"}, rows, run)
}
