// Package api hosts the admin HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrapes to submit a full run; 409 while one is in flight.
//   - GET /v1/scrapes and /v1/scrapes/{run_id} for run history.
//   - POST /v1/refresh for a targeted subject refresh.
package api
