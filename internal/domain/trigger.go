package domain

import "fmt"

// TriggerKind — тип события, запустившего pipeline.
type TriggerKind string

const (
	// TriggerPush — push в ветку репозитория.
	TriggerPush TriggerKind = "push"

	// TriggerPullRequest — открытие или обновление pull request.
	TriggerPullRequest TriggerKind = "pull_request"

	// TriggerSchedule — запуск по расписанию (cron).
	TriggerSchedule TriggerKind = "schedule"
)

// ParseTriggerKind парсит строку в TriggerKind.
func ParseTriggerKind(s string) (TriggerKind, error) {
	switch TriggerKind(s) {
	case TriggerPush, TriggerPullRequest, TriggerSchedule:
		return TriggerKind(s), nil
	default:
		return "", fmt.Errorf("unknown trigger kind: %q", s)
	}
}

// TriggerEvent — событие, инициировавшее выполнение pipeline.
//
// Источники:
//   - Webhook от системы контроля версий (push, pull_request)
//   - Scheduler по cron-расписанию (schedule)
//   - Ручной запуск через CLI (моделируется как push)
type TriggerEvent struct {
	// Kind — тип события.
	Kind TriggerKind `json:"kind"`

	// Branch — имя ветки, к которой относится событие.
	Branch string `json:"branch"`

	// Commit — ссылка на коммит (SHA или ref).
	Commit string `json:"commit,omitempty"`
}

// String возвращает компактное представление события для логов.
func (e TriggerEvent) String() string {
	if e.Commit == "" {
		return fmt.Sprintf("%s@%s", e.Kind, e.Branch)
	}
	return fmt.Sprintf("%s@%s (%s)", e.Kind, e.Branch, e.Commit)
}
