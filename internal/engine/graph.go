package engine

import "github.com/shaiso/conveyr/internal/domain"

// Graph — замороженный снимок графа зависимостей stages.
//
// Создаётся Registry.Resolve и после этого не мутируется: планировщик
// и движок выполнения работают только со снимком.
type Graph struct {
	stages     map[string]*domain.Stage
	order      []string            // порядок регистрации
	dependents map[string][]string // stage → stages, зависящие от него
}

// newGraph строит Graph из содержимого реестра.
// Содержимое копируется: снимок не делит память с реестром.
func newGraph(stages map[string]*domain.Stage, order []string) *Graph {
	g := &Graph{
		stages:     make(map[string]*domain.Stage, len(stages)),
		order:      make([]string, len(order)),
		dependents: make(map[string][]string),
	}
	copy(g.order, order)

	for name, stage := range stages {
		s := stage.Clone()
		g.stages[name] = &s
	}

	// Обратные рёбра строим в порядке регистрации — так списки
	// dependents детерминированы.
	for _, name := range g.order {
		for _, dep := range g.stages[name].DependsOn {
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}

	return g
}

// Stage возвращает stage по имени (nil, если не найден).
func (g *Graph) Stage(name string) *domain.Stage {
	return g.stages[name]
}

// Names возвращает имена всех stages в порядке регистрации.
func (g *Graph) Names() []string {
	names := make([]string, len(g.order))
	copy(names, g.order)
	return names
}

// Dependents возвращает stages, напрямую зависящие от name.
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// Size возвращает количество stages в графе.
func (g *Graph) Size() int {
	return len(g.stages)
}

// TransitiveDependents возвращает все stages, прямо или транзитивно
// зависящие от name. Используется при skip propagation: падение stage
// пропускает весь его downstream-подграф.
func (g *Graph) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var result []string

	var walk func(string)
	walk = func(n string) {
		for _, dep := range g.dependents[n] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			result = append(result, dep)
			walk(dep)
		}
	}
	walk(name)

	return result
}

// findCycle ищет цикл обходом в глубину.
// Возвращает имя stage, входящего в цикл, либо пустую строку.
func (g *Graph) findCycle() string {
	const (
		white = 0 // не посещён
		grey  = 1 // в текущем пути обхода
		black = 2 // обработан
	)

	color := make(map[string]int, len(g.stages))

	var visit func(string) string
	visit = func(name string) string {
		color[name] = grey
		for _, dep := range g.stages[name].DependsOn {
			switch color[dep] {
			case grey:
				return dep
			case white:
				if found := visit(dep); found != "" {
					return found
				}
			}
		}
		color[name] = black
		return ""
	}

	for _, name := range g.order {
		if color[name] == white {
			if found := visit(name); found != "" {
				return found
			}
		}
	}

	return ""
}
