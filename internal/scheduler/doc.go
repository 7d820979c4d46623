// Package scheduler — запуск pipelines по cron-расписаниям.
//
// Расписание объявляется полем schedule в файле pipeline. Scheduler
// на каждом тике создаёт runs с триггером schedule для main-ветки;
// publish-stages с guard'ом «push в main» при таких runs пропускаются
// политикой.
package scheduler
