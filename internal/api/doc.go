// Package api hosts the HTTP server for operator access. Notable routes:
//   - GET /healthz and /readyz for liveness/readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs and /api/runs/{run_id} for crawl run progress.
package api
