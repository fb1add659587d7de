// Package metrics exposes mock server telemetry as Prometheus collectors.
//
// A Registry owns its own prometheus.Registry so that several servers (or
// tests) in one process never collide. It implements the metrics hooks of the
// expectation store and the verification engine and serves the exposition
// format through Handler.
//
// Collected series:
//
//   - mockserver_requests_total: mocked requests by method and status
//   - mockserver_request_duration_seconds: mocked request latency by method
//   - mockserver_expectation_matches_total: matched requests by action type
//   - mockserver_unmatched_requests_total: requests no expectation matched
//   - mockserver_expectations_stored: expectations held by the store
//   - mockserver_notifications_coalesced_total: listener notifications replaced before delivery
//   - mockserver_verifications_total: verifications by kind and result
//   - mockserver_control_requests_total: control plane requests by endpoint and status
//
// Go runtime and process collectors are registered alongside.
package metrics
