package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/mq"
	"github.com/shaiso/conveyr/internal/repo"
	"github.com/shaiso/conveyr/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// Dispatcher управляет выполнением runs в серверном режиме.
//
// Dispatcher — центральный компонент сервера, который:
//   - Получает новые runs из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending runs в БД (polling fallback)
//   - Строит граф и план для каждого run
//   - Публикует stage-задания агентам батч за батчем
//   - Применяет skip propagation перед публикацией батча
//   - Принимает терминальные отчёты агентов
//   - Финализирует runs (SUCCEEDED/FAILED/CANCELLED)
type Dispatcher struct {
	// Repositories
	runRepo    *repo.RunRepo
	resultRepo *repo.ResultRepo

	// Pipelines
	library *config.Library

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Metrics
	metrics *telemetry.Metrics

	// Active runs — runs в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*RunState
	mu         sync.RWMutex

	// Consumers
	runConsumer       *mq.Consumer
	completedConsumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Dispatcher.
type Config struct {
	// Repositories
	RunRepo    *repo.RunRepo
	ResultRepo *repo.ResultRepo

	// Library — загруженные определения pipelines.
	Library *config.Library

	// MQ
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Metrics (опционально).
	Metrics *telemetry.Metrics

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество runs за один poll (default: 100)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Dispatcher.
func New(cfg Config) *Dispatcher {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		runRepo:      cfg.RunRepo,
		resultRepo:   cfg.ResultRepo,
		library:      cfg.Library,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		metrics:      cfg.Metrics,
		activeRuns:   make(map[uuid.UUID]*RunState),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Dispatcher.
//
// Запускает:
//   - Consumer для runs.pending
//   - Consumer для stages.completed
//   - Polling горутину для fallback
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancelFunc = cancel

	d.logger.Info("starting dispatcher",
		"poll_interval", d.pollInterval,
		"batch_size", d.batchSize,
		"pipelines", d.library.Len(),
	)

	d.runConsumer = mq.NewConsumer(d.conn, d.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueRunsPending),
		Handler:  d.handleRunPending,
		Prefetch: 10,
	})

	d.completedConsumer = mq.NewConsumer(d.conn, d.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueStagesCompleted),
		Handler:  d.handleStageCompleted,
		Prefetch: 10,
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.runConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("run consumer error", "error", err)
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.completedConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("completed consumer error", "error", err)
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.pollLoop(ctx)
	}()

	d.logger.Info("dispatcher started")
	return nil
}

// Stop останавливает Dispatcher.
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping dispatcher...")

	if d.cancelFunc != nil {
		d.cancelFunc()
	}

	if d.runConsumer != nil {
		d.runConsumer.Stop()
	}
	if d.completedConsumer != nil {
		d.completedConsumer.Stop()
	}

	d.wg.Wait()

	d.logger.Info("dispatcher stopped",
		"active_runs", len(d.activeRuns),
	)
}

// pollLoop — цикл polling для fallback.
func (d *Dispatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем runs, созданные пока были выключены)
	d.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling: подхватывает pending runs
// и повторно публикует батчи зависших активных runs.
func (d *Dispatcher) poll(ctx context.Context) {
	runs, err := d.runRepo.ListPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to list pending runs", "error", err)
	} else if len(runs) > 0 {
		d.logger.Debug("poll found pending runs", "count", len(runs))

		for i := range runs {
			run := &runs[i]

			if d.isRunActive(run.ID) {
				continue
			}

			if err := d.processRun(ctx, run.ID); err != nil {
				d.logger.Error("failed to process run from poll",
					"run_id", run.ID,
					"error", err,
				)
			}
		}
	}

	d.redispatchStalled(ctx)
}

// redispatchStalled повторно публикует батчи активных runs, у которых
// нет stages в полёте. Такое состояние означает, что предыдущая
// публикация заданий не удалась: события завершения для run не придёт,
// и без повторного dispatch он останется RUNNING навсегда.
func (d *Dispatcher) redispatchStalled(ctx context.Context) {
	for _, state := range d.activeStates() {
		if !state.NeedsDispatch() {
			continue
		}

		d.logger.Warn("re-dispatching stalled run", "run_id", state.RunID())

		if err := d.dispatchReady(ctx, state); err != nil {
			d.logger.Error("failed to re-dispatch run",
				"run_id", state.RunID(),
				"error", err,
			)
			continue
		}

		// Повторный dispatch мог только пометить пропуски
		if state.IsComplete() {
			if err := d.completeRun(ctx, state); err != nil {
				d.logger.Error("failed to finalize run",
					"run_id", state.RunID(),
					"error", err,
				)
			}
		}
	}
}

// activeStates возвращает снимок активных runs.
func (d *Dispatcher) activeStates() []*RunState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	states := make([]*RunState, 0, len(d.activeRuns))
	for _, state := range d.activeRuns {
		states = append(states, state)
	}
	return states
}

// isRunActive проверяет, находится ли run в обработке.
func (d *Dispatcher) isRunActive(runID uuid.UUID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.activeRuns[runID]
	return exists
}

// getActiveRun возвращает активный RunState.
func (d *Dispatcher) getActiveRun(runID uuid.UUID) *RunState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeRuns[runID]
}

// addActiveRun добавляет run в активные.
func (d *Dispatcher) addActiveRun(state *RunState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.activeRuns[state.RunID()]; exists {
		return ErrRunAlreadyActive
	}

	d.activeRuns[state.RunID()] = state
	if d.metrics != nil {
		d.metrics.ActiveRuns.Inc()
	}
	return nil
}

// removeActiveRun удаляет run из активных.
func (d *Dispatcher) removeActiveRun(runID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.activeRuns[runID]; exists {
		delete(d.activeRuns, runID)
		if d.metrics != nil {
			d.metrics.ActiveRuns.Dec()
		}
	}
}

// ActiveRunsCount возвращает количество активных runs.
func (d *Dispatcher) ActiveRunsCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.activeRuns)
}

// GetActiveRunStats возвращает статистику по активному run.
func (d *Dispatcher) GetActiveRunStats(runID uuid.UUID) (RunStats, bool) {
	state := d.getActiveRun(runID)
	if state == nil {
		return RunStats{}, false
	}
	return state.Stats(), true
}
