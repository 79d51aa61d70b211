// Package api hosts the operator HTTP server that runs next to a mirror.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/admission?url=... to explain how a URL would be admitted.
//   - POST /v1/rewrite?url=... to preview the rewrite of a payload; the
//     request Content-Type selects the rewriting category and the response
//     reports the rewrite mode, category and whether anything changed.
package api
