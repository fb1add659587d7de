// Package verification answers "was this request received?" questions
// against the request log.
//
// Verify counts the logged requests that match a request pattern and checks
// the count against VerificationTimes. VerifySequence checks that a list of
// patterns was satisfied in order by the log, allowing unrelated requests in
// between. Both are read-only: they never touch the log, expectation Times or
// the match counters of stored expectations.
//
// A failed verification is not an error. It yields a Result whose Message
// names the assertion, the pattern and the requests actually recorded, ready
// to be surfaced as a test failure. Errors are returned only for invalid
// patterns.
package verification
