package image

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shaiso/conveyr/internal/domain"
)

// Имена секретов с учётными данными registry.
const (
	// SecretRegistryUser — имя секрета с пользователем registry.
	SecretRegistryUser = "REGISTRY_USER"

	// SecretRegistryToken — имя секрета с паролем/токеном registry.
	SecretRegistryToken = "REGISTRY_TOKEN"
)

// TagLatest — тег публикации по умолчанию.
const TagLatest = "latest"

// Ошибки учётных данных registry.
var (
	// ErrMissingCredentials — хотя бы одна из учётных записей registry
	// отсутствует или пуста.
	ErrMissingCredentials = errors.New("registry credentials missing")

	// ErrEmptyRepository — репозиторий образа не задан.
	ErrEmptyRepository = errors.New("image repository is empty")
)

// Credentials — учётные данные registry.
// Read-only разделяемая конфигурация: stages их не мутируют.
type Credentials struct {
	Username string
	Token    string
}

// Validate проверяет, что обе учётные записи заданы.
// Вызывается publish-stage'ем до любого сетевого вызова.
func (c Credentials) Validate() error {
	if c.Username == "" || c.Token == "" {
		return ErrMissingCredentials
	}
	return nil
}

// TagTimestamp возвращает тег из unix timestamp момента now.
// Используется build-check stage'ами, чтобы не конфликтовать
// с опубликованным latest.
func TagTimestamp(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

// Ref собирает ссылку на образ repository:tag.
func Ref(repository, tag string) (domain.Artifact, error) {
	if repository == "" {
		return domain.Artifact{}, ErrEmptyRepository
	}
	if tag == "" {
		tag = TagLatest
	}
	return domain.Artifact{Repository: repository, Tag: tag}, nil
}

// LoginCommand возвращает команду входа в registry.
// Пароль передаётся через stdin, а не аргументом — аргументы процессов
// видны в списке процессов.
func LoginCommand(username string) string {
	return fmt.Sprintf("docker login --username %s --password-stdin", username)
}

// BuildCommand возвращает команду сборки образа.
func BuildCommand(artifact domain.Artifact, contextDir string) string {
	if contextDir == "" {
		contextDir = "."
	}
	return fmt.Sprintf("docker build -t %s %s", artifact.Ref(), contextDir)
}

// PushCommand возвращает команду публикации образа.
func PushCommand(artifact domain.Artifact) string {
	return fmt.Sprintf("docker push %s", artifact.Ref())
}

// PublishCommands возвращает полную последовательность команд
// publish-stage: сборка и публикация. Login выполняется отдельно,
// на этапе preflight-проверки учётных данных.
//
// Сборка здесь намеренно дублирует сборку build-check stage:
// общего кэша или передачи артефакта между ними нет.
func PublishCommands(artifact domain.Artifact, contextDir string) []string {
	return []string{
		BuildCommand(artifact, contextDir),
		PushCommand(artifact),
	}
}
