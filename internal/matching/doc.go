// Package matching compiles request patterns into matchers and evaluates them
// against live requests.
//
// Patterns are compiled once, when an expectation is created, so that every
// configuration problem (an invalid regular expression, JSON schema, XPath or
// JSONPath expression, a malformed JSON body pattern) is reported as an
// *expectation.ValidationError before the expectation is stored. Evaluation
// never fails: anything that does not fit the pattern, including a live body
// that does not parse, is simply a non-match.
//
// The building blocks are:
//
//   - StringMatcher: a NottableString compiled into a literal or anchored
//     regular expression comparison, negated last
//   - MultiValueMatcher: containsAll over headers, cookies, query string and
//     path parameters
//   - BodyMatcher: one comparison per body type, dispatched on the type tag
//   - RequestMatcher: all of the above in a fixed order (method, path, query,
//     headers, cookies, body, keep-alive, secure, socket address)
//
// RequestMatcher.Explain evaluates every field without short-circuiting and
// produces a NearMiss, which is used to report the closest expectation for
// requests that matched nothing.
package matching
