package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/conveyr/internal/domain"
)

// SupportedVersion — поддерживаемая версия формата файла pipeline.
const SupportedVersion = 1

// Pipeline — корневой документ файла pipeline.
type Pipeline struct {
	// Version — версия формата. Сейчас поддерживается только 1.
	Version int `yaml:"version"`

	// Name — имя pipeline.
	Name string `yaml:"name"`

	// Image — репозиторий container image для publish-stages,
	// например "docker.io/shaiso/app".
	Image string `yaml:"image,omitempty"`

	// MainBranch — ветка, push в которую считается «основным».
	// По умолчанию "main".
	MainBranch string `yaml:"main_branch,omitempty"`

	// Schedule — cron-выражение для запуска по расписанию (опционально).
	Schedule string `yaml:"schedule,omitempty"`

	// Stages — список stages. Порядок в файле определяет порядок
	// регистрации (и тем самым tie-break внутри батчей плана).
	Stages []StageDef `yaml:"stages"`
}

// StageDef — описание одного stage в файле pipeline.
type StageDef struct {
	Name       string            `yaml:"name"`
	DependsOn  []string          `yaml:"depends_on,omitempty"`
	Commands   []string          `yaml:"commands,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Secrets    []string          `yaml:"secrets,omitempty"`
	OnlyOn     *GuardDef         `yaml:"only_on,omitempty"`
	Publish    bool              `yaml:"publish,omitempty"`
	TagScheme  string            `yaml:"tag_scheme,omitempty"`
	TimeoutSec int               `yaml:"timeout_sec,omitempty"`
}

// GuardDef — условие запуска stage по триггеру.
type GuardDef struct {
	Events []string `yaml:"events,omitempty"`
	Branch string   `yaml:"branch,omitempty"`
}

// Load читает и парсит файл pipeline.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	return Parse(data)
}

// Parse парсит документ pipeline из YAML и выполняет структурную валидацию.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pipeline yaml: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	if p.MainBranch == "" {
		p.MainBranch = "main"
	}

	return &p, nil
}

// validate проверяет структуру документа.
// Валидация графа (дубликаты, зависимости, циклы) происходит позже,
// при регистрации stages в engine.Registry.
func (p *Pipeline) validate() error {
	if p.Version != SupportedVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}

	if p.Name == "" {
		return ErrEmptyName
	}

	if len(p.Stages) == 0 {
		return ErrNoStages
	}

	for _, s := range p.Stages {
		if s.OnlyOn != nil {
			for _, ev := range s.OnlyOn.Events {
				if _, err := domain.ParseTriggerKind(ev); err != nil {
					return fmt.Errorf("stage %q: %w: %s", s.Name, ErrUnknownEvent, ev)
				}
			}
		}

		if s.Publish && p.Image == "" {
			return fmt.Errorf("stage %q: %w", s.Name, ErrEmptyImage)
		}

		if s.TagScheme != "" {
			if s.TagScheme != domain.TagSchemeTimestamp {
				return fmt.Errorf("stage %q: %w: %s", s.Name, ErrBadTagScheme, s.TagScheme)
			}
			if s.Publish {
				return fmt.Errorf("stage %q: %w", s.Name, ErrTagSchemeOnPublish)
			}
			if p.Image == "" {
				return fmt.Errorf("stage %q: %w", s.Name, ErrEmptyImage)
			}
		}
	}

	return nil
}

// DomainStages преобразует определения stages в доменные структуры
// в порядке их объявления в файле.
func (p *Pipeline) DomainStages() []domain.Stage {
	stages := make([]domain.Stage, 0, len(p.Stages))

	for _, def := range p.Stages {
		stage := domain.Stage{
			Name:       def.Name,
			DependsOn:  def.DependsOn,
			Commands:   def.Commands,
			Env:        def.Env,
			Secrets:    def.Secrets,
			Publish:    def.Publish,
			TagScheme:  def.TagScheme,
			TimeoutSec: def.TimeoutSec,
		}

		if def.OnlyOn != nil {
			guard := &domain.TriggerGuard{Branch: def.OnlyOn.Branch}
			for _, ev := range def.OnlyOn.Events {
				// Валидность проверена в validate
				kind, _ := domain.ParseTriggerKind(ev)
				guard.Events = append(guard.Events, kind)
			}
			stage.OnlyOn = guard
		}

		stages = append(stages, stage)
	}

	return stages
}

// HasSchedule возвращает true, если pipeline имеет cron-расписание.
func (p *Pipeline) HasSchedule() bool {
	return p.Schedule != ""
}
