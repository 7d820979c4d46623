package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/conveyr/internal/config"
	"github.com/shaiso/conveyr/internal/domain"
)

var (
	pushMain = domain.TriggerEvent{Kind: domain.TriggerPush, Branch: "main"}
	prEvent  = domain.TriggerEvent{Kind: domain.TriggerPullRequest, Branch: "feature"}
)

// ciPipeline — типовой pipeline: build → test → publish (только push в main).
func ciPipeline() *config.Pipeline {
	return &config.Pipeline{
		Version: config.SupportedVersion,
		Name:    "app",
		Image:   "docker.io/example/app",
		Stages: []config.StageDef{
			{Name: "build", Commands: []string{"make build"}},
			{Name: "test", DependsOn: []string{"build"}, Commands: []string{"make test"}},
			{
				Name:      "publish",
				DependsOn: []string{"test"},
				Publish:   true,
				OnlyOn:    &config.GuardDef{Events: []string{"push"}, Branch: "main"},
			},
		},
	}
}

func newState(t *testing.T, p *config.Pipeline, trigger domain.TriggerEvent) *RunState {
	t.Helper()

	state := NewRunState(domain.NewRun(p.Name, trigger), p)
	if err := state.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return state
}

// launch имитирует публикацию батча и помечает stages выполняющимися.
func launch(t *testing.T, state *RunState) []string {
	t.Helper()

	batch := state.NextBatch()
	var names []string
	for _, stage := range batch {
		state.MarkRunning(stage.Name)
		names = append(names, stage.Name)
	}
	return names
}

func succeed(t *testing.T, state *RunState, name string) {
	t.Helper()
	terminate(t, state, name, domain.OutcomeSucceeded, domain.ReasonNone)
}

func fail(t *testing.T, state *RunState, name string) {
	t.Helper()
	terminate(t, state, name, domain.OutcomeFailed, domain.ReasonCommand)
}

func terminate(t *testing.T, state *RunState, name string, outcome domain.Outcome, reason domain.FailureReason) {
	t.Helper()

	now := time.Now()
	err := state.ApplyResult(&domain.StageResult{
		Stage:      name,
		Outcome:    outcome,
		Reason:     reason,
		StartedAt:  &now,
		FinishedAt: &now,
	})
	if err != nil {
		t.Fatalf("ApplyResult(%s): %v", name, err)
	}
}

func TestRunState_BatchProgression(t *testing.T) {
	state := newState(t, ciPipeline(), pushMain)

	if got := launch(t, state); len(got) != 1 || got[0] != "build" {
		t.Fatalf("first batch = %v, want [build]", got)
	}

	// Батч выполняется — нового нет
	if got := state.NextBatch(); got != nil {
		t.Fatalf("NextBatch while running = %v, want nil", got)
	}

	succeed(t, state, "build")

	if got := launch(t, state); len(got) != 1 || got[0] != "test" {
		t.Fatalf("second batch = %v, want [test]", got)
	}
	succeed(t, state, "test")

	if got := launch(t, state); len(got) != 1 || got[0] != "publish" {
		t.Fatalf("third batch = %v, want [publish]", got)
	}
	succeed(t, state, "publish")

	if !state.IsComplete() {
		t.Error("run should be complete")
	}
	if state.HasFailed() {
		t.Error("run should not have failures")
	}
}

func TestRunState_PolicySkip(t *testing.T) {
	state := newState(t, ciPipeline(), prEvent)

	launch(t, state)
	succeed(t, state, "build")
	launch(t, state)
	succeed(t, state, "test")

	// Publish исключён guard'ом — батч перешагивается без публикации
	if got := state.NextBatch(); got != nil {
		t.Fatalf("NextBatch = %v, want nil (publish policy-skipped)", got)
	}

	if got := state.Outcome("publish"); got != domain.OutcomeSkipped {
		t.Errorf("publish outcome = %s, want SKIPPED", got)
	}
	if !state.IsComplete() {
		t.Error("run should be complete after policy skip")
	}
	if state.HasFailed() {
		t.Error("policy skip is not a failure")
	}
}

func TestRunState_FailureSkipsDependents(t *testing.T) {
	state := newState(t, ciPipeline(), pushMain)

	launch(t, state)
	succeed(t, state, "build")
	launch(t, state)
	fail(t, state, "test")

	if got := state.NextBatch(); got != nil {
		t.Fatalf("NextBatch after failure = %v, want nil", got)
	}

	if got := state.Outcome("publish"); got != domain.OutcomeSkipped {
		t.Errorf("publish outcome = %s, want SKIPPED", got)
	}

	if !state.HasFailed() {
		t.Error("run should have failures")
	}
	if got := state.FailedStages(); len(got) != 1 || got[0] != "test" {
		t.Errorf("FailedStages = %v, want [test]", got)
	}

	// Результат пропуска называет упавшую зависимость
	var skipRes *domain.StageResult
	for _, res := range state.Results() {
		if res.Stage == "publish" {
			skipRes = &res
			break
		}
	}
	if skipRes == nil {
		t.Fatal("no result recorded for skipped publish")
	}
	if skipRes.Error == "" {
		t.Error("skip result should explain the reason")
	}
}

func TestRunState_DiamondIsolation(t *testing.T) {
	// a → b → c; d зависит только от a: падение b не трогает d
	p := &config.Pipeline{
		Version: config.SupportedVersion,
		Name:    "diamond",
		Stages: []config.StageDef{
			{Name: "a", Commands: []string{"true"}},
			{Name: "b", DependsOn: []string{"a"}, Commands: []string{"false"}},
			{Name: "c", DependsOn: []string{"b"}, Commands: []string{"true"}},
			{Name: "d", DependsOn: []string{"a"}, Commands: []string{"true"}},
		},
	}
	state := newState(t, p, pushMain)

	launch(t, state)
	succeed(t, state, "a")

	batch := launch(t, state)
	if len(batch) != 2 {
		t.Fatalf("second batch = %v, want [b d]", batch)
	}

	fail(t, state, "b")
	succeed(t, state, "d")

	if got := state.NextBatch(); got != nil {
		t.Fatalf("NextBatch = %v, want nil (c skipped)", got)
	}

	if got := state.Outcome("c"); got != domain.OutcomeSkipped {
		t.Errorf("c outcome = %s, want SKIPPED", got)
	}
	if got := state.Outcome("d"); got != domain.OutcomeSucceeded {
		t.Errorf("d outcome = %s, want SUCCEEDED", got)
	}
}

func TestRunState_ApplyResultIdempotent(t *testing.T) {
	state := newState(t, ciPipeline(), pushMain)

	launch(t, state)
	succeed(t, state, "build")

	// Повторная доставка не меняет терминальное состояние
	now := time.Now()
	err := state.ApplyResult(&domain.StageResult{
		Stage:      "build",
		Outcome:    domain.OutcomeFailed,
		Reason:     domain.ReasonCommand,
		StartedAt:  &now,
		FinishedAt: &now,
	})
	if err != nil {
		t.Fatalf("duplicate ApplyResult: %v", err)
	}
	if got := state.Outcome("build"); got != domain.OutcomeSucceeded {
		t.Errorf("build outcome after duplicate = %s, want SUCCEEDED", got)
	}
}

func TestRunState_UnknownStage(t *testing.T) {
	state := newState(t, ciPipeline(), pushMain)

	err := state.ApplyResult(&domain.StageResult{Stage: "ghost", Outcome: domain.OutcomeSucceeded})
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("ApplyResult(ghost) = %v, want ErrUnknownStage", err)
	}
}

func TestRunState_Cancel(t *testing.T) {
	state := newState(t, ciPipeline(), pushMain)

	launch(t, state)
	state.Cancel()

	// Выполняющийся build останется до отчёта агента, остальные — SKIPPED
	if got := state.Outcome("build"); got != domain.OutcomeRunning {
		t.Errorf("build outcome = %s, want RUNNING", got)
	}
	for _, name := range []string{"test", "publish"} {
		if got := state.Outcome(name); got != domain.OutcomeSkipped {
			t.Errorf("%s outcome = %s, want SKIPPED", name, got)
		}
	}

	for _, res := range state.Results() {
		if res.Outcome == domain.OutcomeSkipped && res.Reason != domain.ReasonCancelled {
			t.Errorf("%s reason = %s, want CANCELLED", res.Stage, res.Reason)
		}
	}
}

func TestRunState_NeedsDispatch(t *testing.T) {
	state := newState(t, ciPipeline(), pushMain)

	// Свежий run: батч ещё не опубликован
	if !state.NeedsDispatch() {
		t.Error("fresh run should need dispatch")
	}

	launch(t, state)
	if state.NeedsDispatch() {
		t.Error("run with stages in flight should not need dispatch")
	}

	// build завершён, test не опубликован — run завис без dispatch
	succeed(t, state, "build")
	if !state.NeedsDispatch() {
		t.Error("run with ready batch should need dispatch")
	}

	launch(t, state)
	succeed(t, state, "test")
	launch(t, state)
	succeed(t, state, "publish")

	if state.NeedsDispatch() {
		t.Error("complete run should not need dispatch")
	}
}

func TestRunState_InvalidPipeline(t *testing.T) {
	p := &config.Pipeline{
		Version: config.SupportedVersion,
		Name:    "cyclic",
		Stages: []config.StageDef{
			{Name: "a", DependsOn: []string{"b"}, Commands: []string{"true"}},
			{Name: "b", DependsOn: []string{"a"}, Commands: []string{"true"}},
		},
	}

	state := NewRunState(domain.NewRun(p.Name, pushMain), p)
	if err := state.Initialize(); err == nil {
		t.Fatal("Initialize should reject cyclic pipeline")
	}
}

func TestRunState_Stats(t *testing.T) {
	state := newState(t, ciPipeline(), pushMain)

	launch(t, state)
	succeed(t, state, "build")

	stats := state.Stats()
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", stats.Succeeded)
	}
	if stats.Pending != 2 {
		t.Errorf("Pending = %d, want 2", stats.Pending)
	}
}
