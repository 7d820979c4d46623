// Package secrets резолвит секреты и вырезает их из вывода.
//
// Модель: секрет резолвится поздно — в момент запуска объявившего его
// stage — и попадает только в окружение процессов этого stage. В логи,
// захваченный вывод и результаты значения секретов не попадают никогда:
// Redactor безусловно заменяет их плейсхолдером.
//
// Store — read-only разделяемая конфигурация: ни один stage её не мутирует.
package secrets
