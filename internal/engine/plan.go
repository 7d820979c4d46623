package engine

import "github.com/shaiso/conveyr/internal/domain"

// RunPlan — план выполнения: упорядоченные батчи имён stages.
//
// Инвариант: все зависимости stage из батча k лежат в батчах < k.
// Stages внутри одного батча могут выполняться параллельно; порядка
// между ними нет, но перечислены они детерминированно — в порядке
// регистрации. План строится один раз на trigger-событие.
type RunPlan struct {
	// Batches — батчи в порядке выполнения.
	Batches [][]string

	// PolicySkipped — stages, исключённые trigger guard'ом
	// (например, publish при pull_request). Помечаются skipped
	// до начала выполнения.
	PolicySkipped map[string]bool
}

// Stages возвращает все имена плана в порядке батчей.
func (p *RunPlan) Stages() []string {
	var names []string
	for _, batch := range p.Batches {
		names = append(names, batch...)
	}
	return names
}

// NumStages возвращает общее количество stages в плане.
func (p *RunPlan) NumStages() int {
	n := 0
	for _, batch := range p.Batches {
		n += len(batch)
	}
	return n
}

// Plan строит план выполнения по алгоритму Кана.
//
// Батч 0 — stages без зависимостей; батч k — stages, все зависимости
// которых лежат в батчах < k. Внутри батча stages идут в порядке
// регистрации, поэтому повторный Plan по тому же графу даёт идентичный
// результат.
//
// Цикл к этому моменту уже исключён Registry.Resolve, но Plan
// перепроверяет и возвращает ErrCycle, если граф всё же цикличен.
func Plan(graph *Graph, trigger domain.TriggerEvent) (*RunPlan, error) {
	inDegree := make(map[string]int, graph.Size())
	for _, name := range graph.Names() {
		inDegree[name] = len(graph.Stage(name).DependsOn)
	}

	plan := &RunPlan{
		PolicySkipped: make(map[string]bool),
	}

	placed := 0
	remaining := graph.Names()

	for len(remaining) > 0 {
		// Батч: все stages с неудовлетворёнными зависимостями = 0,
		// в порядке регистрации.
		var batch []string
		var next []string
		for _, name := range remaining {
			if inDegree[name] == 0 {
				batch = append(batch, name)
			} else {
				next = append(next, name)
			}
		}

		// Ни одного готового stage при непустом остатке — цикл
		if len(batch) == 0 {
			return nil, ErrCycle
		}

		for _, name := range batch {
			for _, dep := range graph.Dependents(name) {
				inDegree[dep]--
			}
		}

		plan.Batches = append(plan.Batches, batch)
		placed += len(batch)
		remaining = next
	}

	// Отмечаем stages, не проходящие trigger guard
	for _, name := range graph.Names() {
		if !graph.Stage(name).OnlyOn.Allows(trigger) {
			plan.PolicySkipped[name] = true
		}
	}

	return plan, nil
}
