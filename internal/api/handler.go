package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/mq"
	"github.com/shaiso/conveyr/internal/repo"
)

// RunCanceller отменяет активный run. Реализуется Dispatcher'ом.
type RunCanceller interface {
	CancelRun(ctx context.Context, runID uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runRepo    *repo.RunRepo
	resultRepo *repo.ResultRepo
	library    *config.Library
	publisher  *mq.Publisher
	canceller  RunCanceller
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	RunRepo    *repo.RunRepo
	ResultRepo *repo.ResultRepo
	Library    *config.Library
	Publisher  *mq.Publisher
	Canceller  RunCanceller
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		runRepo:    cfg.RunRepo,
		resultRepo: cfg.ResultRepo,
		library:    cfg.Library,
		publisher:  cfg.Publisher,
		canceller:  cfg.Canceller,
		logger:     logger,
	}
}
