package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/repo"
)

// CreateEvent принимает webhook-событие и создаёт run.
// POST /api/v1/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	kind, err := domain.ParseTriggerKind(req.Event)
	if err != nil {
		BadRequest(w, "unknown event kind: "+req.Event)
		return
	}
	if kind == domain.TriggerSchedule {
		BadRequest(w, "schedule events come from the scheduler, not webhooks")
		return
	}

	if req.Branch == "" {
		BadRequest(w, "branch is required")
		return
	}

	// Pipeline должен быть известен серверу
	if _, err := h.library.Get(req.Pipeline); err != nil {
		if errors.Is(err, config.ErrPipelineNotFound) {
			NotFound(w, "pipeline not found: "+req.Pipeline)
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	run := domain.NewRun(req.Pipeline, domain.TriggerEvent{
		Kind:   kind,
		Branch: req.Branch,
		Commit: req.Commit,
	})

	if err := h.runRepo.Create(r.Context(), run); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// Событие в очередь; при неудаче run подхватит polling диспетчера
	if err := h.publisher.PublishRunPending(r.Context(), run.ID); err != nil {
		h.logger.Warn("failed to publish run.pending", "run_id", run.ID, "error", err)
	}

	h.logger.Info("run created",
		"run_id", run.ID,
		"pipeline", run.Pipeline,
		"trigger", run.Trigger.String(),
	)

	Created(w, RunFromDomain(*run))
}

// ListPipelines возвращает pipelines, известные серверу.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, _ *http.Request) {
	names := h.library.Names()
	result := make([]PipelineResponse, 0, len(names))
	for _, name := range names {
		p, err := h.library.Get(name)
		if err != nil {
			continue
		}
		result = append(result, PipelineFromConfig(p))
	}
	List(w, result, len(result))
}

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?pipeline=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{
		Pipeline: r.URL.Query().Get("pipeline"),
		Status:   domain.RunStatus(r.URL.Query().Get("status")),
		Limit:    parseIntParam(r, "limit", 50),
		Offset:   parseIntParam(r, "offset", 0),
	}

	runs, err := h.runRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunStages возвращает терминальные результаты stages run'а.
// GET /api/v1/runs/{id}/stages
func (h *Handler) ListRunStages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	if _, err := h.runRepo.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	results, err := h.resultRepo.ListByRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	out := make([]StageResultResponse, len(results))
	for i, res := range results {
		out[i] = StageResultFromDomain(res)
	}

	List(w, out, len(out))
}

// CancelRun отменяет run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	if run.Status.IsTerminal() {
		InvalidState(w, "run is already finished")
		return
	}

	if err := h.canceller.CancelRun(r.Context(), id); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	run, err = h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// parseIntParam парсит числовой query-параметр с дефолтным значением.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
