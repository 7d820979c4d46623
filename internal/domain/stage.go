package domain

import (
	"maps"
	"slices"
)

// Stage — именованная единица работы в pipeline.
//
// Stage объявляет зависимости от других stages по имени. Stage запускается
// только после того, как все его зависимости завершились успешно; если хотя
// бы одна упала или была пропущена, stage помечается как skipped и не
// запускается вовсе.
type Stage struct {
	// Name — уникальное имя stage внутри pipeline.
	Name string `json:"name"`

	// DependsOn — имена stages, которые должны успешно завершиться раньше.
	DependsOn []string `json:"depends_on,omitempty"`

	// Commands — последовательность shell-команд.
	// Команды выполняются строго по порядку; первая упавшая прерывает
	// оставшиеся команды этого stage.
	Commands []string `json:"commands"`

	// Env — переменные окружения stage (не секретные).
	Env map[string]string `json:"env,omitempty"`

	// Secrets — имена секретов, которые резолвятся при запуске stage
	// и попадают только в окружение его процессов.
	Secrets []string `json:"secrets,omitempty"`

	// OnlyOn — ограничение по типу события и ветке.
	// Nil означает «выполнять при любом триггере».
	OnlyOn *TriggerGuard `json:"only_on,omitempty"`

	// Publish — true, если stage публикует артефакт в registry.
	// Такой stage перед любыми командами проходит preflight-проверку
	// учётных данных registry.
	Publish bool `json:"publish,omitempty"`

	// TagScheme — схема тегирования для build-check stage, собирающего
	// образ без публикации. При TagSchemeTimestamp команда сборки
	// выводится из image pipeline с тегом из unix timestamp — такой
	// образ не конфликтует с публикуемым latest. Publish-stages всегда
	// тегируют latest; для них поле не задаётся.
	TagScheme string `json:"tag_scheme,omitempty"`

	// TimeoutSec — таймаут выполнения stage в секундах (0 — без таймаута).
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// TagSchemeTimestamp — тег сборки из unix timestamp момента запуска.
const TagSchemeTimestamp = "timestamp"

// Clone возвращает глубокую копию stage: слайсы, map и guard
// не делят память с оригиналом.
func (s Stage) Clone() Stage {
	c := s
	c.DependsOn = slices.Clone(s.DependsOn)
	c.Commands = slices.Clone(s.Commands)
	c.Secrets = slices.Clone(s.Secrets)
	c.Env = maps.Clone(s.Env)
	if s.OnlyOn != nil {
		guard := *s.OnlyOn
		guard.Events = slices.Clone(s.OnlyOn.Events)
		c.OnlyOn = &guard
	}
	return c
}

// TriggerGuard — условие запуска stage по типу триггера.
//
// Guard — это политика, а не зависимость: stage, не прошедший guard,
// помечается skipped ещё до начала выполнения, независимо от исхода
// его зависимостей.
type TriggerGuard struct {
	// Events — типы событий, при которых stage выполняется.
	// Пустой список означает «любое событие».
	Events []TriggerKind `json:"events,omitempty"`

	// Branch — ветка, для которой stage выполняется.
	// Пустая строка означает «любая ветка».
	Branch string `json:"branch,omitempty"`
}

// Allows проверяет, разрешает ли guard выполнение при данном событии.
func (g *TriggerGuard) Allows(event TriggerEvent) bool {
	if g == nil {
		return true
	}

	if len(g.Events) > 0 {
		found := false
		for _, kind := range g.Events {
			if kind == event.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if g.Branch != "" && g.Branch != event.Branch {
		return false
	}

	return true
}
