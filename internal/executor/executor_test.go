package executor

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/engine"
	"github.com/shaiso/conveyr/internal/secrets"
)

// fakeRunner — Runner для тестов: фиксирует вызовы и падает
// на командах, содержащих заданную подстроку.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []CommandSpec
	failOn  map[string]int    // подстрока команды → код выхода
	outputs map[string]string // подстрока команды → вывод
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		failOn:  make(map[string]int),
		outputs: make(map[string]string),
	}
}

func (f *fakeRunner) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	if ctx.Err() != nil {
		return &CommandResult{ExitCode: 1, Cancelled: true}, nil
	}

	result := &CommandResult{}
	for substr, out := range f.outputs {
		if strings.Contains(spec.Command, substr) {
			result.Output = out
		}
	}
	for substr, code := range f.failOn {
		if strings.Contains(spec.Command, substr) {
			result.ExitCode = code
		}
	}
	return result, nil
}

func (f *fakeRunner) commandsRun() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmds := make([]string, len(f.calls))
	for i, c := range f.calls {
		cmds[i] = c.Command
	}
	return cmds
}

func (f *fakeRunner) ranMatching(substr string) int {
	n := 0
	for _, c := range f.commandsRun() {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

var (
	pushMain = domain.TriggerEvent{Kind: domain.TriggerPush, Branch: "main", Commit: "abc123"}
	prEvent  = domain.TriggerEvent{Kind: domain.TriggerPullRequest, Branch: "feature"}
)

// ciGraph — граф build → test → publish из типового pipeline.
func ciGraph(t *testing.T) *engine.Graph {
	t.Helper()

	r := engine.NewRegistry()
	stages := []domain.Stage{
		{Name: "build", Commands: []string{"make build"}},
		{Name: "test", DependsOn: []string{"build"}, Commands: []string{"make test"}},
		{
			Name:      "publish",
			DependsOn: []string{"test"},
			Publish:   true,
			Secrets:   []string{"REGISTRY_USER", "REGISTRY_TOKEN"},
			OnlyOn: &domain.TriggerGuard{
				Events: []domain.TriggerKind{domain.TriggerPush},
				Branch: "main",
			},
		},
	}
	for _, s := range stages {
		if err := r.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name, err)
		}
	}

	g, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return g
}

func execute(t *testing.T, g *engine.Graph, trigger domain.TriggerEvent, runner Runner, store secrets.Store) []domain.StageResult {
	t.Helper()

	plan, err := engine.Plan(g, trigger)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	e := New(Config{
		Runner:  runner,
		Secrets: store,
		Image:   "docker.io/shaiso/app",
		WorkDir: t.TempDir(),
	})
	return e.Execute(context.Background(), g, plan, trigger)
}

func outcomeOf(t *testing.T, results []domain.StageResult, stage string) domain.StageResult {
	t.Helper()
	for _, r := range results {
		if r.Stage == stage {
			return r
		}
	}
	t.Fatalf("no result for stage %s", stage)
	return domain.StageResult{}
}

func TestExecute_AllSucceed(t *testing.T) {
	runner := newFakeRunner()
	store := secrets.NewStaticStore(map[string]string{
		"REGISTRY_USER":  "robot",
		"REGISTRY_TOKEN": "hunter2",
	})

	results := execute(t, ciGraph(t), pushMain, runner, store)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Outcome != domain.OutcomeSucceeded {
			t.Errorf("stage %s: expected SUCCEEDED, got %s (%s)", r.Stage, r.Outcome, r.Error)
		}
	}

	// Результаты идут в порядке регистрации
	order := []string{"build", "test", "publish"}
	for i, r := range results {
		if r.Stage != order[i] {
			t.Errorf("result %d: expected %s, got %s", i, order[i], r.Stage)
		}
	}

	// Publish прошёл preflight и выполнил производные команды
	if runner.ranMatching("docker login") != 1 {
		t.Error("expected exactly one login during preflight")
	}
	if runner.ranMatching("docker push docker.io/shaiso/app:latest") != 1 {
		t.Error("expected push of the latest tag")
	}

	if AnyFailed(results) {
		t.Error("run should not be failed")
	}
}

func TestExecute_TestFailureSkipsPublish(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn["make test"] = 2

	store := secrets.NewStaticStore(map[string]string{
		"REGISTRY_USER":  "robot",
		"REGISTRY_TOKEN": "hunter2",
	})

	results := execute(t, ciGraph(t), pushMain, runner, store)

	test := outcomeOf(t, results, "test")
	if test.Outcome != domain.OutcomeFailed {
		t.Errorf("test: expected FAILED, got %s", test.Outcome)
	}
	if test.ExitCode != 2 {
		t.Errorf("test: expected exit code 2, got %d", test.ExitCode)
	}
	if test.Reason != domain.ReasonCommand {
		t.Errorf("test: expected COMMAND_FAILURE, got %s", test.Reason)
	}

	publish := outcomeOf(t, results, "publish")
	if publish.Outcome != domain.OutcomeSkipped {
		t.Errorf("publish: expected SKIPPED, got %s", publish.Outcome)
	}

	// Пропущенный publish не делает ни одного вызова
	if n := runner.ranMatching("docker"); n != 0 {
		t.Errorf("skipped publish must make zero calls, got %d", n)
	}

	if !AnyFailed(results) {
		t.Error("run should be failed")
	}
	if f := FirstFailure(results); f == nil || f.Stage != "test" {
		t.Errorf("first failure should be test, got %+v", f)
	}
}

func TestExecute_PullRequestSkipsPublishUnconditionally(t *testing.T) {
	runner := newFakeRunner()
	store := secrets.NewStaticStore(nil)

	results := execute(t, ciGraph(t), prEvent, runner, store)

	if r := outcomeOf(t, results, "build"); r.Outcome != domain.OutcomeSucceeded {
		t.Errorf("build: expected SUCCEEDED, got %s", r.Outcome)
	}
	if r := outcomeOf(t, results, "test"); r.Outcome != domain.OutcomeSucceeded {
		t.Errorf("test: expected SUCCEEDED, got %s", r.Outcome)
	}

	publish := outcomeOf(t, results, "publish")
	if publish.Outcome != domain.OutcomeSkipped {
		t.Errorf("publish: expected SKIPPED on pull_request, got %s", publish.Outcome)
	}

	if n := runner.ranMatching("docker"); n != 0 {
		t.Errorf("policy-skipped publish must make zero calls, got %d", n)
	}

	// Пропуск по политике — не падение
	if AnyFailed(results) {
		t.Error("run should not be failed")
	}
}

func TestExecute_MissingCredentials(t *testing.T) {
	runner := newFakeRunner()
	// Секреты registry не заданы вовсе
	store := secrets.NewStaticStore(nil)

	results := execute(t, ciGraph(t), pushMain, runner, store)

	if r := outcomeOf(t, results, "build"); r.Outcome != domain.OutcomeSucceeded {
		t.Errorf("build: expected SUCCEEDED, got %s", r.Outcome)
	}
	if r := outcomeOf(t, results, "test"); r.Outcome != domain.OutcomeSucceeded {
		t.Errorf("test: expected SUCCEEDED, got %s", r.Outcome)
	}

	publish := outcomeOf(t, results, "publish")
	if publish.Outcome != domain.OutcomeFailed {
		t.Errorf("publish: expected FAILED, got %s", publish.Outcome)
	}
	if publish.Reason != domain.ReasonAuthentication {
		t.Errorf("publish: expected AUTHENTICATION_ERROR, got %s", publish.Reason)
	}

	// Preflight упал до каких-либо сетевых вызовов
	if n := runner.ranMatching("docker"); n != 0 {
		t.Errorf("failed preflight must make zero network calls, got %d", n)
	}

	if !AnyFailed(results) {
		t.Error("run should be failed")
	}
}

func TestExecute_RejectedCredentials(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn["docker login"] = 1

	store := secrets.NewStaticStore(map[string]string{
		"REGISTRY_USER":  "robot",
		"REGISTRY_TOKEN": "expired",
	})

	results := execute(t, ciGraph(t), pushMain, runner, store)

	publish := outcomeOf(t, results, "publish")
	if publish.Outcome != domain.OutcomeFailed {
		t.Errorf("publish: expected FAILED, got %s", publish.Outcome)
	}
	if publish.Reason != domain.ReasonAuthentication {
		t.Errorf("publish: expected AUTHENTICATION_ERROR, got %s", publish.Reason)
	}

	// Отклонённый login не доходит до push
	if n := runner.ranMatching("docker push"); n != 0 {
		t.Errorf("rejected login must prevent push, got %d pushes", n)
	}
}

func TestExecute_FailureIsolatedToSubgraph(t *testing.T) {
	// a → b (падает) → c; a → d — d не зависит от b и должен выполниться
	r := engine.NewRegistry()
	for _, s := range []domain.Stage{
		{Name: "a", Commands: []string{"step a"}},
		{Name: "b", DependsOn: []string{"a"}, Commands: []string{"step b"}},
		{Name: "c", DependsOn: []string{"b"}, Commands: []string{"step c"}},
		{Name: "d", DependsOn: []string{"a"}, Commands: []string{"step d"}},
	} {
		if err := r.Register(s); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	g, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	runner := newFakeRunner()
	runner.failOn["step b"] = 1

	results := execute(t, g, pushMain, runner, secrets.NewStaticStore(nil))

	if r := outcomeOf(t, results, "b"); r.Outcome != domain.OutcomeFailed {
		t.Errorf("b: expected FAILED, got %s", r.Outcome)
	}
	if r := outcomeOf(t, results, "c"); r.Outcome != domain.OutcomeSkipped {
		t.Errorf("c: expected SKIPPED, got %s", r.Outcome)
	}
	// Несвязанная ветвь графа завершается независимо
	if r := outcomeOf(t, results, "d"); r.Outcome != domain.OutcomeSucceeded {
		t.Errorf("d: expected SUCCEEDED, got %s", r.Outcome)
	}
}

func TestExecute_FirstCommandFailureAbortsStage(t *testing.T) {
	r := engine.NewRegistry()
	if err := r.Register(domain.Stage{
		Name:     "build",
		Commands: []string{"step one", "step two", "step three"},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	g, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	runner := newFakeRunner()
	runner.failOn["step two"] = 1

	results := execute(t, g, pushMain, runner, secrets.NewStaticStore(nil))

	if results[0].Outcome != domain.OutcomeFailed {
		t.Fatalf("expected FAILED, got %s", results[0].Outcome)
	}

	if runner.ranMatching("step three") != 0 {
		t.Error("commands after the failed one must not run")
	}
	if runner.ranMatching("step one") != 1 || runner.ranMatching("step two") != 1 {
		t.Error("commands before and including the failure must run once")
	}
}

func TestExecute_SecretRedaction(t *testing.T) {
	r := engine.NewRegistry()
	if err := r.Register(domain.Stage{
		Name:     "leaky",
		Secrets:  []string{"API_KEY"},
		Commands: []string{"leak the key"},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	g, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	runner := newFakeRunner()
	runner.outputs["leak the key"] = "the key is tok_supersecret, do not tell"

	store := secrets.NewStaticStore(map[string]string{"API_KEY": "tok_supersecret"})

	results := execute(t, g, pushMain, runner, store)

	if results[0].Outcome != domain.OutcomeSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", results[0].Outcome)
	}
	if strings.Contains(results[0].Output, "tok_supersecret") {
		t.Errorf("secret leaked into captured output: %q", results[0].Output)
	}
	if !strings.Contains(results[0].Output, secrets.Placeholder) {
		t.Errorf("expected placeholder in output: %q", results[0].Output)
	}

	// Секрет при этом попал в окружение процесса stage
	found := false
	for _, env := range runner.calls[0].Env {
		if env == "API_KEY=tok_supersecret" {
			found = true
		}
	}
	if !found {
		t.Error("secret should be injected into the stage process environment")
	}
}

func TestExecute_Cancellation(t *testing.T) {
	// Три последовательных батча; отмена после первого
	r := engine.NewRegistry()
	for _, s := range []domain.Stage{
		{Name: "first", Commands: []string{"step first"}},
		{Name: "second", DependsOn: []string{"first"}, Commands: []string{"step second"}},
		{Name: "third", DependsOn: []string{"second"}, Commands: []string{"step third"}},
	} {
		if err := r.Register(s); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	g, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	runner := newFakeRunner()
	cancelling := &cancellingRunner{inner: runner, cancel: cancel, after: "step first"}

	plan, err := engine.Plan(g, pushMain)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	e := New(Config{
		Runner:  cancelling,
		Secrets: secrets.NewStaticStore(nil),
		WorkDir: t.TempDir(),
	})
	results := e.Execute(ctx, g, plan, pushMain)

	if r := outcomeOf(t, results, "first"); r.Outcome != domain.OutcomeSucceeded {
		t.Errorf("first: expected SUCCEEDED, got %s", r.Outcome)
	}

	// Все pending stages переходят сразу в SKIPPED
	for _, name := range []string{"second", "third"} {
		res := outcomeOf(t, results, name)
		if res.Outcome != domain.OutcomeSkipped {
			t.Errorf("%s: expected SKIPPED after cancellation, got %s", name, res.Outcome)
		}
		if res.Reason != domain.ReasonCancelled {
			t.Errorf("%s: expected CANCELLED reason, got %s", name, res.Reason)
		}
	}

	if runner.ranMatching("step second") != 0 || runner.ranMatching("step third") != 0 {
		t.Error("cancelled stages must never launch")
	}
}

// cancellingRunner отменяет контекст после указанной команды.
type cancellingRunner struct {
	inner  *fakeRunner
	cancel context.CancelFunc
	after  string
}

func (c *cancellingRunner) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	res, err := c.inner.Run(ctx, spec)
	if strings.Contains(spec.Command, c.after) {
		c.cancel()
	}
	return res, err
}

func TestExecute_WorkerLimit(t *testing.T) {
	// Четыре независимых stage, лимит 2: конкурентность не превышает лимит
	r := engine.NewRegistry()
	for _, name := range []string{"w1", "w2", "w3", "w4"} {
		if err := r.Register(domain.Stage{Name: name, Commands: []string{"work " + name}}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	g, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	counter := &concurrencyCounter{}
	plan, err := engine.Plan(g, pushMain)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	e := New(Config{
		Runner:  counter,
		Secrets: secrets.NewStaticStore(nil),
		Workers: 2,
		WorkDir: t.TempDir(),
	})
	results := e.Execute(context.Background(), g, plan, pushMain)

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if counter.peak() > 2 {
		t.Errorf("concurrency %d exceeded worker limit 2", counter.peak())
	}
}

// concurrencyCounter — Runner, считающий пик конкурентных вызовов.
type concurrencyCounter struct {
	mu      sync.Mutex
	current int
	max     int
}

func (c *concurrencyCounter) Run(ctx context.Context, spec CommandSpec) (*CommandResult, error) {
	c.mu.Lock()
	c.current++
	if c.current > c.max {
		c.max = c.current
	}
	c.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	c.mu.Lock()
	c.current--
	c.mu.Unlock()

	return &CommandResult{}, nil
}

func (c *concurrencyCounter) peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

func TestExecute_BuildCheckTimestampTag(t *testing.T) {
	// Build-check без команд: сборка выводится из image pipeline,
	// тег — unix timestamp вместо latest
	r := engine.NewRegistry()
	if err := r.Register(domain.Stage{Name: "build", TagScheme: domain.TagSchemeTimestamp}); err != nil {
		t.Fatalf("register build: %v", err)
	}
	g, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	runner := newFakeRunner()
	before := time.Now().Unix()
	results := execute(t, g, pushMain, runner, secrets.NewStaticStore(nil))
	after := time.Now().Unix()

	build := outcomeOf(t, results, "build")
	if build.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("build: expected SUCCEEDED, got %s (%s)", build.Outcome, build.Error)
	}

	cmds := runner.commandsRun()
	if len(cmds) != 1 {
		t.Fatalf("expected exactly one derived command, got %v", cmds)
	}

	const prefix = "docker build -t docker.io/shaiso/app:"
	if !strings.HasPrefix(cmds[0], prefix) {
		t.Fatalf("command = %q, want %q prefix", cmds[0], prefix)
	}

	tag := strings.Fields(strings.TrimPrefix(cmds[0], prefix))[0]
	ts, err := strconv.ParseInt(tag, 10, 64)
	if err != nil {
		t.Fatalf("tag %q is not a unix timestamp: %v", tag, err)
	}
	if ts < before || ts > after {
		t.Errorf("tag timestamp %d outside run window [%d, %d]", ts, before, after)
	}

	if runner.ranMatching("docker push") != 0 {
		t.Error("build-check must not push")
	}
	if runner.ranMatching("docker login") != 0 {
		t.Error("build-check must not run registry preflight")
	}
}
