// Package expectation defines the configuration model of the mock server.
//
// An Expectation pairs a request pattern (RequestDefinition) with exactly one
// action: a canned HttpResponse, an HttpForward to another host, an HttpError
// that damages the connection, or an HttpCallback to an external endpoint.
// Times and TimeToLive bound how often and for how long an Expectation may
// match.
//
// # Patterns
//
// Every comparable string in a pattern is a NottableString: a literal or
// regular expression that can be negated. Headers, cookies and query string
// parameters are MultiValueMaps keyed by NottableString. Bodies are described
// by a Body whose Type selects the comparison (STRING, BINARY, REGEX, JSON,
// JSON_SCHEMA, XPATH or JSON_PATH).
//
// # Documents
//
// All types round-trip through JSON and YAML. The JSON form accepts the
// shorthand spellings used by hand-written expectation files:
//
//	{
//	  "httpRequest": {
//	    "method": "GET",
//	    "path": {"value": "/orders/.*", "regex": true},
//	    "headers": {"!X-Skip": ["true"]},
//	    "body": {"type": "JSON", "json": {"status": "open"}}
//	  },
//	  "httpResponse": {"statusCode": 200, "body": "ok"},
//	  "times": {"remainingTimes": 1},
//	  "timeToLive": {"timeUnit": "SECONDS", "timeToLive": 30}
//	}
//
// This package only describes and validates documents. Compilation into
// matchers lives in internal/matching and ownership of stored expectations in
// internal/storage.
package expectation
