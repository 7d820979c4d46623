package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/domain"
)

// Event DTOs

// EventRequest — webhook-событие от системы контроля версий.
type EventRequest struct {
	// Pipeline — имя pipeline, который нужно запустить.
	Pipeline string `json:"pipeline"`

	// Event — тип события: push или pull_request.
	Event string `json:"event"`

	// Branch — ветка события.
	Branch string `json:"branch"`

	// Commit — SHA коммита (опционально).
	Commit string `json:"commit,omitempty"`
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID  `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Event      string     `json:"event"`
	Branch     string     `json:"branch"`
	Commit     string     `json:"commit,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Pipeline:   r.Pipeline,
		Event:      string(r.Trigger.Kind),
		Branch:     r.Trigger.Branch,
		Commit:     r.Trigger.Commit,
		Status:     string(r.Status),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// Stage DTOs

// StageResultResponse — терминальный результат stage.
type StageResultResponse struct {
	Stage      string     `json:"stage"`
	Outcome    string     `json:"outcome"`
	ExitCode   int        `json:"exit_code"`
	Output     string     `json:"output,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StageResultFromDomain конвертирует domain.StageResult.
func StageResultFromDomain(r domain.StageResult) StageResultResponse {
	return StageResultResponse{
		Stage:      r.Stage,
		Outcome:    string(r.Outcome),
		ExitCode:   r.ExitCode,
		Output:     r.Output,
		Reason:     string(r.Reason),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// Pipeline DTOs

// PipelineResponse — сводка pipeline из библиотеки.
type PipelineResponse struct {
	Name     string   `json:"name"`
	Image    string   `json:"image,omitempty"`
	Schedule string   `json:"schedule,omitempty"`
	Stages   []string `json:"stages"`
}

// PipelineFromConfig конвертирует config.Pipeline в сводку.
func PipelineFromConfig(p *config.Pipeline) PipelineResponse {
	stages := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		stages[i] = s.Name
	}
	return PipelineResponse{
		Name:     p.Name,
		Image:    p.Image,
		Schedule: p.Schedule,
		Stages:   stages,
	}
}
