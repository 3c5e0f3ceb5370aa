// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/dogs and /v1/dogs/{id} for search and lookup.
//   - POST /v1/sync to start a sync, GET /v1/sync/runs for the audit log.
package api
