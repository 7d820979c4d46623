package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shaiso/conveyr/internal/domain"
)

func mustResolve(t *testing.T, stages ...domain.Stage) *Graph {
	t.Helper()

	r := NewRegistry()
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

var pushMain = domain.TriggerEvent{Kind: domain.TriggerPush, Branch: "main"}

func TestPlan_SimpleChain(t *testing.T) {
	g := mustResolve(t,
		stage("build"),
		stage("test", "build"),
		stage("publish", "test"),
	)

	plan, err := Plan(g, pushMain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"build"}, {"test"}, {"publish"}}
	if !reflect.DeepEqual(plan.Batches, want) {
		t.Errorf("expected batches %v, got %v", want, plan.Batches)
	}
}

func TestPlan_Diamond(t *testing.T) {
	// a → b → d
	// a → c → d
	g := mustResolve(t,
		stage("a"),
		stage("b", "a"),
		stage("c", "a"),
		stage("d", "b", "c"),
	)

	plan, err := Plan(g, pushMain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(plan.Batches, want) {
		t.Errorf("expected batches %v, got %v", want, plan.Batches)
	}
}

func TestPlan_RegistrationOrderTieBreak(t *testing.T) {
	// Независимые stages в одном батче идут в порядке регистрации
	g := mustResolve(t,
		stage("zeta"),
		stage("alpha"),
		stage("mid"),
	)

	plan, err := Plan(g, pushMain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"zeta", "alpha", "mid"}}
	if !reflect.DeepEqual(plan.Batches, want) {
		t.Errorf("expected batches %v, got %v", want, plan.Batches)
	}
}

// TestPlan_TopologicalSoundness проверяет инвариант: все зависимости stage
// из батча k лежат в строго более ранних батчах.
func TestPlan_TopologicalSoundness(t *testing.T) {
	cases := []struct {
		name   string
		stages []domain.Stage
	}{
		{
			name: "chain",
			stages: []domain.Stage{
				stage("a"), stage("b", "a"), stage("c", "b"),
			},
		},
		{
			name: "diamond",
			stages: []domain.Stage{
				stage("a"), stage("b", "a"), stage("c", "a"), stage("d", "b", "c"),
			},
		},
		{
			name: "wide",
			stages: []domain.Stage{
				stage("a"), stage("b"), stage("c"),
				stage("d", "a", "b"), stage("e", "b", "c"),
				stage("f", "d", "e"), stage("g", "a"),
			},
		},
		{
			name: "two components",
			stages: []domain.Stage{
				stage("a"), stage("b", "a"),
				stage("x"), stage("y", "x"), stage("z", "y"),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := mustResolve(t, tc.stages...)

			plan, err := Plan(g, pushMain)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if plan.NumStages() != len(tc.stages) {
				t.Fatalf("plan covers %d stages, want %d", plan.NumStages(), len(tc.stages))
			}

			batchOf := make(map[string]int)
			for i, batch := range plan.Batches {
				for _, name := range batch {
					batchOf[name] = i
				}
			}

			for _, s := range tc.stages {
				for _, dep := range s.DependsOn {
					if batchOf[dep] >= batchOf[s.Name] {
						t.Errorf("dependency %s (batch %d) not before %s (batch %d)",
							dep, batchOf[dep], s.Name, batchOf[s.Name])
					}
				}
			}
		})
	}
}

func TestPlan_Deterministic(t *testing.T) {
	g := mustResolve(t,
		stage("a"),
		stage("b"),
		stage("c", "a", "b"),
		stage("d", "a"),
		stage("e", "c", "d"),
	)

	first, err := Plan(g, pushMain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Повторное планирование по тому же графу даёт идентичный результат
	for i := 0; i < 10; i++ {
		again, err := Plan(g, pushMain)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Batches, again.Batches) {
			t.Fatalf("plan differs on attempt %d: %v vs %v", i, first.Batches, again.Batches)
		}
	}
}

func TestPlan_PolicySkip(t *testing.T) {
	publish := domain.Stage{
		Name:      "publish",
		DependsOn: []string{"test"},
		Publish:   true,
		OnlyOn: &domain.TriggerGuard{
			Events: []domain.TriggerKind{domain.TriggerPush},
			Branch: "main",
		},
	}

	g := mustResolve(t, stage("build"), stage("test", "build"), publish)

	// pull_request: publish исключается политикой, независимо от исхода test
	plan, err := Plan(g, domain.TriggerEvent{Kind: domain.TriggerPullRequest, Branch: "feature"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.PolicySkipped["publish"] {
		t.Error("publish should be policy-skipped on pull_request")
	}
	if plan.PolicySkipped["build"] || plan.PolicySkipped["test"] {
		t.Error("build and test should not be policy-skipped")
	}

	// push в main: guard пропускает
	plan, err = Plan(g, pushMain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.PolicySkipped["publish"] {
		t.Error("publish should run on push to main")
	}

	// push в другую ветку: guard по ветке отсекает
	plan, err = Plan(g, domain.TriggerEvent{Kind: domain.TriggerPush, Branch: "dev"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.PolicySkipped["publish"] {
		t.Error("publish should be policy-skipped on push to non-main branch")
	}
}

func TestPlan_CycleDefensiveCheck(t *testing.T) {
	// Graph с циклом нельзя получить через Resolve, поэтому собираем
	// вручную — Plan обязан перепроверить и отказать.
	g := &Graph{
		stages: map[string]*domain.Stage{
			"a": {Name: "a", DependsOn: []string{"b"}, Commands: []string{"true"}},
			"b": {Name: "b", DependsOn: []string{"a"}, Commands: []string{"true"}},
		},
		order:      []string{"a", "b"},
		dependents: map[string][]string{"a": {"b"}, "b": {"a"}},
	}

	_, err := Plan(g, pushMain)
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
}
