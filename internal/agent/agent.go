package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/conveyr/internal/executor"
	"github.com/shaiso/conveyr/internal/mq"
	"github.com/shaiso/conveyr/internal/secrets"
	"github.com/shaiso/conveyr/internal/telemetry"
)

// defaultPrefetch — по одному заданию на агента за раз: stage занимает
// агента целиком, забирать больше бессмысленно.
const defaultPrefetch = 1

// Agent выполняет stage-задания.
//
// Agent — stateless компонент системы, который:
//   - Получает stage-задания из очереди RabbitMQ
//   - Выполняет команды stage в изолированном рабочем каталоге
//   - Резолвит секреты из собственного окружения и редактирует вывод
//   - Публикует терминальный результат в stages.completed
//
// Retry заданий нет: задание, которое агент не смог обработать,
// уходит в DLQ. Агенты масштабируются горизонтально — несколько
// экземпляров потребляют из одной очереди.
type Agent struct {
	// Executor
	engine *executor.Engine

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Metrics
	metrics *telemetry.Metrics

	// Consumer
	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Agent.
type Config struct {
	// MQ
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Secrets — хранилище секретов агента (default: EnvStore).
	Secrets secrets.Store

	// WorkDir — база для изолированных рабочих каталогов stages.
	WorkDir string

	// ContextDir — build context для docker-команд publish-stages.
	ContextDir string

	// GracePeriod — время между SIGTERM и SIGKILL при отмене.
	GracePeriod time.Duration

	// Metrics (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Agent.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := executor.New(executor.Config{
		Secrets:     cfg.Secrets,
		GracePeriod: cfg.GracePeriod,
		WorkDir:     cfg.WorkDir,
		ContextDir:  cfg.ContextDir,
		Logger:      logger,
	})

	return &Agent{
		engine:    engine,
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Start запускает Agent: consumer для stages.ready.
func (a *Agent) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel

	a.logger.Info("starting agent")

	a.consumer = mq.NewConsumer(a.conn, a.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueStagesReady),
		Handler:  a.handleStageReady,
		Prefetch: defaultPrefetch,
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("stage consumer error", "error", err)
		}
	}()

	a.logger.Info("agent started")
	return nil
}

// Stop останавливает Agent.
//
// Выполняющийся stage получает SIGTERM через отмену контекста; после
// grace period процесс убивается, результат CANCELLED уходит диспетчеру.
func (a *Agent) Stop() {
	a.logger.Info("stopping agent...")

	if a.cancelFunc != nil {
		a.cancelFunc()
	}

	if a.consumer != nil {
		a.consumer.Stop()
	}

	a.wg.Wait()

	a.logger.Info("agent stopped")
}
