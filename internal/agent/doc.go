// Package agent — исполнитель stage-заданий серверного режима.
//
// Агент потребляет задания из stages.ready, выполняет команды stage
// через internal/executor (изолированный каталог, секреты, редактирование
// вывода, preflight для publish-stages) и публикует терминальный
// результат в stages.completed. Определения pipelines агенту не нужны:
// задание самодостаточно.
package agent
