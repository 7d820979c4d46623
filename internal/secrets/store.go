package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrSecretNotFound — секрет отсутствует в хранилище.
// Сообщение называет имя секрета, но никогда — его значение.
var ErrSecretNotFound = errors.New("secret not found")

// Store — внешнее хранилище секретов.
type Store interface {
	// Resolve возвращает значение секрета по имени.
	// Возвращает ErrSecretNotFound, если секрет не задан.
	Resolve(ctx context.Context, name string) (string, error)
}

// EnvStore резолвит секреты из переменных окружения процесса.
//
// Имя секрета дополняется префиксом: секрет REGISTRY_TOKEN с префиксом
// "CONVEYR_SECRET_" читается из CONVEYR_SECRET_REGISTRY_TOKEN.
// Пустой префикс означает прямое чтение по имени.
type EnvStore struct {
	prefix string
}

// NewEnvStore создаёт EnvStore с указанным префиксом.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix}
}

// Resolve реализует Store.
func (s *EnvStore) Resolve(_ context.Context, name string) (string, error) {
	value, ok := os.LookupEnv(s.prefix + name)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// StaticStore — хранилище с фиксированным набором секретов.
// Используется в тестах и для локальных запусков с --secret флагами.
type StaticStore struct {
	values map[string]string
}

// NewStaticStore создаёт StaticStore поверх копии values.
func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticStore{values: copied}
}

// Resolve реализует Store.
func (s *StaticStore) Resolve(_ context.Context, name string) (string, error) {
	value, ok := s.values[name]
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// ResolveAll резолвит набор имён в map имя → значение.
// Первая отсутствующая запись прерывает резолв с ошибкой.
func ResolveAll(ctx context.Context, store Store, names []string) (map[string]string, error) {
	resolved := make(map[string]string, len(names))
	for _, name := range names {
		value, err := store.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		resolved[name] = value
	}
	return resolved, nil
}
