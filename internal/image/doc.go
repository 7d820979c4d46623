// Package image собирает ссылки на container images и команды публикации.
//
// Схемы тегирования:
//   - latest    — для публикации из основной ветки
//   - timestamp — unix timestamp, для build-check сборок, чтобы
//     не затирать опубликованный latest
//
// Теги не content-addressed: digest становится известен только после push.
package image
