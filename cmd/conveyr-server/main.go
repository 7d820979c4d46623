// Conveyr Server — управляющая часть серверного режима.
//
// Server:
//   - Принимает trigger-события через HTTP API и создаёт runs
//   - Dispatcher ведёт runs батч за батчем и раздаёт stages агентам
//   - Scheduler создаёт runs по cron-расписаниям pipelines
//
// Stages выполняют агенты (conveyr-agent), получающие задания
// из RabbitMQ.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/conveyr/internal/api"
	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/dispatch"
	"github.com/shaiso/conveyr/internal/mq"
	"github.com/shaiso/conveyr/internal/repo"
	"github.com/shaiso/conveyr/internal/scheduler"
	"github.com/shaiso/conveyr/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("conveyr-server")
	logger.Info("starting conveyr-server")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Создаём репозитории
	runRepo := repo.NewRunRepo(pool)
	resultRepo := repo.NewResultRepo(pool)

	// Определения pipelines
	pipelinesDir := os.Getenv("PIPELINES_DIR")
	if pipelinesDir == "" {
		pipelinesDir = "./pipelines"
	}

	library, err := config.LoadDir(pipelinesDir)
	if err != nil {
		logger.Error("failed to load pipelines", "dir", pipelinesDir, "error", err)
		os.Exit(1)
	}
	logger.Info("pipelines loaded", "dir", pipelinesDir, "count", library.Len())

	// RabbitMQ: без него dispatcher не может раздавать stages агентам
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	// Создаём топологию
	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	publisher := mq.NewPublisher(mqConn, logger)
	metrics := telemetry.NewMetrics()

	// Dispatcher
	dispatcher := dispatch.New(dispatch.Config{
		RunRepo:    runRepo,
		ResultRepo: resultRepo,
		Library:    library,
		Publisher:  publisher,
		Conn:       mqConn,
		Metrics:    metrics,
		Logger:     logger,
	})

	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	// Scheduler: невалидный cron в pipeline — отказ старта
	sched, err := scheduler.New(scheduler.Config{
		RunRepo:   runRepo,
		Publisher: publisher,
		Library:   library,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
		}
	}()

	// HTTP API
	handler := api.NewHandler(api.Config{
		RunRepo:    runRepo,
		ResultRepo: resultRepo,
		Library:    library,
		Publisher:  publisher,
		Canceller:  dispatcher,
		Logger:     logger,
	})

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	dispatcher.Stop()
	logger.Info("conveyr-server stopped")
}
