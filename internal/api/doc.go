// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/pulls to submit a channel pull, DELETE /v1/pulls/{pullID} to
//     cancel one.
//   - GET /v1/pulls?action=active|all|channels|all_channels for listings and
//     GET /v1/pulls/{pullID} for a single progress record.
//
// All error responses share one envelope: {"error":{"code":...,"message":...}}.
package api
