// Package id generates the identifiers used by the mock server.
//
//   - Expectation: UUID v4 for expectations added without an id
//   - Correlation: UUID v4 tying a request to its log entry and server logs
//   - ULID: time-sortable ids for request log entries
package id
