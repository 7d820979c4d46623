package config

import "errors"

// Ошибки структуры файла pipeline.
var (
	// ErrUnsupportedVersion — поле version отсутствует или не поддерживается.
	ErrUnsupportedVersion = errors.New("unsupported pipeline version")

	// ErrEmptyName — pipeline не имеет имени.
	ErrEmptyName = errors.New("pipeline has empty name")

	// ErrNoStages — pipeline не содержит ни одного stage.
	ErrNoStages = errors.New("pipeline has no stages")

	// ErrUnknownEvent — only_on содержит неизвестный тип события.
	ErrUnknownEvent = errors.New("unknown event kind in only_on")

	// ErrEmptyImage — publish-stage требует поля image на уровне pipeline.
	ErrEmptyImage = errors.New("publish stage requires pipeline image")

	// ErrBadSchedule — выражение schedule не является валидным cron.
	ErrBadSchedule = errors.New("invalid schedule expression")

	// ErrBadTagScheme — неизвестная схема тегирования в tag_scheme.
	ErrBadTagScheme = errors.New("unknown tag scheme")

	// ErrTagSchemeOnPublish — tag_scheme на publish-stage: публикация
	// всегда тегирует latest.
	ErrTagSchemeOnPublish = errors.New("publish stage always tags latest")

	// ErrPipelineNotFound — pipeline с таким именем не загружен.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrDuplicatePipeline — два файла объявляют pipeline с одним именем.
	ErrDuplicatePipeline = errors.New("duplicate pipeline name")
)
