// Package api serves the read-only status surface of a harvest run:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the driver's live state.
//   - GET /v1/manifest for the last saved checkpoint.
package api
