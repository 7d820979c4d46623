// Package cli — команды CLI: локальное выполнение pipelines
// и работа с сервером через HTTP API.
//
// Локальный режим (run, plan, validate) работает с файлом pipeline
// напрямую и не требует сервера. Удалённые команды (trigger, runs,
// pipelines) ходят в API через Client.
package cli
