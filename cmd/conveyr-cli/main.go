// Conveyr CLI — инструмент командной строки для выполнения pipelines
// локально и управления runs через HTTP API.
//
// Использование:
//
//	conveyr [--api-url URL] [--json] <command> [flags]
//
// Локальные команды:
//
//	run       Выполнить pipeline локально
//	plan      Напечатать план выполнения
//	validate  Проверить файл pipeline
//
// Серверные команды:
//
//	trigger    Отправить trigger-событие
//	runs       Управление runs
//	pipelines  Список pipelines сервера
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/conveyr/internal/cli"
	"github.com/shaiso/conveyr/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	logger := telemetry.SetupLogger("conveyr")

	rootCmd := &cobra.Command{
		Use:           "conveyr",
		Short:         "Conveyr CLI — pipeline orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn, logger),
		cli.NewPlanCmd(outputFn),
		cli.NewValidateCmd(outputFn),
		cli.NewTriggerCmd(clientFn, outputFn),
		cli.NewRunsCmd(clientFn, outputFn),
		cli.NewPipelinesCmd(clientFn, outputFn),
	)

	// SIGINT/SIGTERM отменяют контекст: локальный run переводит
	// запущенные stages в SIGTERM с grace period
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
