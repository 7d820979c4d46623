package engine

import (
	"sync"

	"github.com/shaiso/conveyr/internal/domain"
)

// Registry — реестр stages одного pipeline.
//
// Регистрация двухфазная: Register проверяет только сам stage
// (имя, дубликаты, self-dependency), а ссылки на зависимости и циклы
// проверяются в Resolve, когда все stages уже зарегистрированы.
// Это позволяет перечислять stages в конфигурации в любом порядке.
//
// После успешного Resolve реестр замораживается: дальнейшие Register
// возвращают ErrFrozen. Потокобезопасен.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]*domain.Stage
	order  []string // имена в порядке регистрации
	frozen bool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		stages: make(map[string]*domain.Stage),
	}
}

// Register добавляет stage в реестр.
//
// Возвращает:
//   - ErrFrozen, если Resolve уже вызывался
//   - ErrEmptyStageName, если имя пустое
//   - ErrDuplicateStage, если имя уже занято
//   - ErrSelfDependency, если stage зависит от самого себя
//   - ErrNoCommands, если stage без команд и не выводит их сам
//     (publish и build-check со схемой тегирования выводят команды
//     из image pipeline)
func (r *Registry) Register(stage domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}

	if stage.Name == "" {
		return ErrEmptyStageName
	}

	if _, exists := r.stages[stage.Name]; exists {
		return NewConfigError(stage.Name, "", ErrDuplicateStage)
	}

	for _, dep := range stage.DependsOn {
		if dep == stage.Name {
			return NewConfigError(stage.Name, "", ErrSelfDependency)
		}
	}

	if len(stage.Commands) == 0 && !stage.Publish && stage.TagScheme == "" {
		return NewConfigError(stage.Name, "", ErrNoCommands)
	}

	// Глубокая копия: мутации слайсов и map вызывающего после Register
	// не влияют на реестр
	s := stage.Clone()
	r.stages[s.Name] = &s
	r.order = append(r.order, s.Name)

	return nil
}

// Resolve валидирует зависимости, проверяет ацикличность и возвращает
// замороженный снимок графа. После успешного Resolve реестр не мутируется.
//
// Возвращает:
//   - ErrEmptyRegistry, если stages нет
//   - ErrUnknownDependency, если зависимость не зарегистрирована
//   - ErrCycle, если в графе есть цикл
func (r *Registry) Resolve() (*Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.stages) == 0 {
		return nil, ErrEmptyRegistry
	}

	// Проверяем ссылки на зависимости
	for _, name := range r.order {
		stage := r.stages[name]
		for _, dep := range stage.DependsOn {
			if _, exists := r.stages[dep]; !exists {
				return nil, NewConfigError(name, "depends_on "+dep, ErrUnknownDependency)
			}
		}
	}

	g := newGraph(r.stages, r.order)

	// Проверяем ацикличность обходом в глубину
	if cycle := g.findCycle(); cycle != "" {
		return nil, NewConfigError(cycle, "", ErrCycle)
	}

	r.frozen = true
	return g, nil
}

// Len возвращает количество зарегистрированных stages.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}

// IsFrozen проверяет, заморожен ли реестр.
func (r *Registry) IsFrozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
