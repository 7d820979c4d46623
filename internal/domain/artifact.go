package domain

import "fmt"

// Artifact — ссылка на опубликованный container image.
//
// Производится только publish-stage, завершившимся успешно.
// Tag выводится по фиксированной схеме («latest» либо unix timestamp),
// а не по содержимому образа.
type Artifact struct {
	// Repository — репозиторий образа, например "docker.io/shaiso/app".
	Repository string `json:"repository"`

	// Tag — тег образа.
	Tag string `json:"tag"`

	// Digest — digest опубликованного манифеста (если известен).
	Digest string `json:"digest,omitempty"`
}

// Ref возвращает полную ссылку вида repository:tag.
func (a Artifact) Ref() string {
	return fmt.Sprintf("%s:%s", a.Repository, a.Tag)
}
