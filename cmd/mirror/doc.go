// Package main hosts the ghost-mirror entrypoint.
//
// A run loads configuration (file plus MIRROR_* and *_DOMAIN environment
// variables), builds the domain configuration and rewriter, crawls the
// source site through the fetch domain and writes every admitted resource,
// rewritten for the production domain, to the configured blob store
// (local directory, memory or GCS).
//
// When server.enabled is set an operator server exposes /healthz, /metrics
// and the admission and rewrite preview endpoints for the lifetime of the
// run. SIGINT and SIGTERM cancel the crawl; resources already written stay
// in place.
//
// Run locally:
//
//	SOURCE_DOMAIN=http://localhost:2368 PRODUCTION_DOMAIN=https://blog.example.com \
//	    go run ./cmd/mirror -config mirror.yaml
package main
