// Conveyr Agent — выполняет отдельные stages.
//
// Agent:
//   - Получает stage-задания из RabbitMQ
//   - Выполняет команды stage в изолированном рабочем каталоге
//   - Резолвит секреты и редактирует их в выводе
//   - Отправляет результат обратно dispatcher'у
//
// Agents масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/conveyr/internal/agent"
	"github.com/shaiso/conveyr/internal/mq"
	"github.com/shaiso/conveyr/internal/secrets"
	"github.com/shaiso/conveyr/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("conveyr-agent")
	logger.Info("starting conveyr-agent")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ
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

	var grace time.Duration
	if v := os.Getenv("GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			grace = d
		} else {
			logger.Warn("invalid GRACE_PERIOD, using default", "value", v)
		}
	}

	// Создаём agent; секреты берутся из окружения процесса агента
	a := agent.New(agent.Config{
		Publisher:   publisher,
		Conn:        mqConn,
		Secrets:     secrets.NewEnvStore(os.Getenv("SECRETS_PREFIX")),
		WorkDir:     os.Getenv("AGENT_WORKDIR"),
		ContextDir:  os.Getenv("BUILD_CONTEXT"),
		GracePeriod: grace,
		Metrics:     metrics,
		Logger:      logger,
	})

	// Запускаем agent
	if err := a.Start(ctx); err != nil {
		logger.Error("failed to start agent", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("AGENT_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем agent: запущенному stage отправляется SIGTERM
	a.Stop()
	logger.Info("conveyr-agent stopped")
}
