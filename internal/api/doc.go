// Package api hosts the HTTP server, middleware, and REST handlers for live
// NeoWs access and archive inspection. Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the archive.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/neo/{id} and /v1/feed for rate-limited upstream queries.
//   - GET /v1/archive/{id} and /v1/archive/stats for archived rows.
package api
