package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/mq"
	"github.com/shaiso/conveyr/internal/repo"
)

// defaultTickInterval — период проверки due-расписаний.
const defaultTickInterval = 30 * time.Second

// entry — расписание одного pipeline с вычисленным следующим запуском.
type entry struct {
	pipeline *config.Pipeline
	nextDue  time.Time
}

// Scheduler запускает pipelines по cron-расписаниям из их файлов.
//
// Расписания объявляются полем schedule в YAML pipeline; Scheduler
// держит next-due каждого в памяти и на каждом тике создаёт runs
// с триггером schedule для main-ветки pipeline.
type Scheduler struct {
	runRepo   *repo.RunRepo
	publisher *mq.Publisher
	logger    *slog.Logger

	entries      []*entry
	tickInterval time.Duration
}

// Config — конфигурация Scheduler.
type Config struct {
	RunRepo   *repo.RunRepo
	Publisher *mq.Publisher

	// Library — загруженные pipelines; берутся только с schedule.
	Library *config.Library

	// TickInterval — период проверки (default: 30s).
	TickInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Scheduler.
//
// Все cron-выражения валидируются сразу: невалидное расписание —
// ошибка конфигурации, с которой сервер не должен стартовать.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	now := time.Now()
	var entries []*entry
	for _, p := range cfg.Library.Scheduled() {
		if err := ValidateCronExpr(p.Schedule); err != nil {
			return nil, fmt.Errorf("pipeline %q: %w: %v", p.Name, config.ErrBadSchedule, err)
		}

		next, err := CalculateNextDue(p.Schedule, now)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
		}

		entries = append(entries, &entry{pipeline: p, nextDue: next})
		logger.Info("schedule registered",
			"pipeline", p.Name,
			"cron", p.Schedule,
			"next_due", next,
		)
	}

	return &Scheduler{
		runRepo:      cfg.RunRepo,
		publisher:    cfg.Publisher,
		logger:       logger,
		entries:      entries,
		tickInterval: tick,
	}, nil
}

// Start запускает цикл планировщика. Блокирует до отмены контекста.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.entries) == 0 {
		s.logger.Info("no scheduled pipelines, scheduler idle")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Info("scheduler started",
		"schedules", len(s.entries),
		"tick_interval", s.tickInterval,
	)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick обрабатывает due-расписания. Ошибки одного pipeline не блокируют
// остальные.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now()

	for _, e := range s.entries {
		if e.nextDue.After(now) {
			continue
		}

		if err := s.fire(ctx, e); err != nil {
			s.logger.Error("failed to fire schedule",
				"pipeline", e.pipeline.Name,
				"error", err,
			)
			// nextDue не двигаем — попробуем на следующем тике
			continue
		}

		next, err := CalculateNextDue(e.pipeline.Schedule, now)
		if err != nil {
			// Выражение валидировалось в New; сюда попасть нельзя
			s.logger.Error("failed to calculate next due",
				"pipeline", e.pipeline.Name,
				"error", err,
			)
			continue
		}
		e.nextDue = next
	}
}

// fire создаёт schedule-run для pipeline и публикует run.pending.
func (s *Scheduler) fire(ctx context.Context, e *entry) error {
	run := domain.NewRun(e.pipeline.Name, domain.TriggerEvent{
		Kind:   domain.TriggerSchedule,
		Branch: e.pipeline.MainBranch,
	})

	if err := s.runRepo.Create(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	s.logger.Info("created run from schedule",
		"run_id", run.ID,
		"pipeline", e.pipeline.Name,
		"cron", e.pipeline.Schedule,
	)

	if err := s.publisher.PublishRunPending(ctx, run.ID); err != nil {
		// Не фатальная ошибка — run уже создан в БД,
		// диспетчер заберёт его через polling
		s.logger.Warn("failed to publish run.pending",
			"run_id", run.ID,
			"error", err,
		)
	}

	return nil
}
