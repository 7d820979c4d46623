// Package api — HTTP API сервера (chi).
//
// Endpoints:
//   - POST /api/v1/events           — webhook: создать run по событию
//   - GET  /api/v1/pipelines        — известные pipelines
//   - GET  /api/v1/runs             — список runs
//   - GET  /api/v1/runs/{id}        — run по ID
//   - GET  /api/v1/runs/{id}/stages — результаты stages
//   - POST /api/v1/runs/{id}/cancel — отмена run
//   - GET  /healthz, GET /metrics
package api
