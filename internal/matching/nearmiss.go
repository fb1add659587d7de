package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// FieldResult describes whether a single pattern field matched the request.
type FieldResult struct {
	Field    string      `json:"field"`
	Matched  bool        `json:"matched"`
	Score    int         `json:"score"`
	MaxScore int         `json:"maxScore"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
}

// NearMiss is an expectation that partially matched a request.
type NearMiss struct {
	ExpectationID    string        `json:"expectationId,omitempty"`
	Score            int           `json:"score"`
	MaxPossibleScore int           `json:"maxPossibleScore"`
	MatchPercentage  int           `json:"matchPercentage"`
	Fields           []FieldResult `json:"fields"`
	Reason           string        `json:"reason"`
}

// Explain evaluates every field the pattern specifies without
// short-circuiting. It does not touch the match counter.
func (m *RequestMatcher) Explain(req *expectation.HttpRequest) *NearMiss {
	result := &NearMiss{}
	if req == nil {
		return result
	}
	add := func(field string, matched bool, weight int, expected, actual interface{}) {
		score := 0
		if matched {
			score = weight
		}
		result.Fields = append(result.Fields, FieldResult{
			Field:    field,
			Matched:  matched,
			Score:    score,
			MaxScore: weight,
			Expected: expected,
			Actual:   actual,
		})
		result.Score += score
		result.MaxPossibleScore += weight
	}

	if m.method != nil {
		add("method", m.method.Matches(req.Method), ScoreMethod, m.method.String(), req.Method)
	}
	if m.path != nil {
		ok, params := m.path.Match(req.Path)
		add("path", ok, ScorePath, m.path.String(), req.Path)
		if m.pathParams != nil {
			add("pathParameters", ok && m.pathParams.ContainsAll(params), ScorePathParams, m.definition.PathParameters, params)
		}
	}
	// A failed map field reports only the pattern entries that were missed.
	addMap := func(field string, mm *MultiValueMatcher, pattern, live expectation.MultiValueMap, weight int) {
		if mm.ContainsAll(live) {
			add(field, true, weight, pattern, live)
			return
		}
		add(field, false, weight, unsatisfied(pattern, live), live)
	}
	if m.query != nil {
		addMap("queryStringParameters", m.query, m.definition.QueryStringParameters, req.QueryStringParameters, ScoreQuery)
	}
	if m.headers != nil {
		addMap("headers", m.headers, m.definition.Headers, req.Headers, ScoreHeaders)
	}
	if m.cookies != nil {
		addMap("cookies", m.cookies, m.definition.Cookies, req.Cookies, ScoreCookies)
	}
	if m.body != nil {
		add("body", m.body.Matches(req.Body, req.ContentType()), ScoreBody, m.body.String(), truncate(req.BodyString(), 200))
	}
	if m.keepAlive != nil {
		add("keepAlive", *m.keepAlive == req.KeepAlive, ScoreKeepAlive, *m.keepAlive, req.KeepAlive)
	}
	if m.secure != nil {
		add("secure", *m.secure == req.Secure, ScoreSecure, *m.secure, req.Secure)
	}
	if m.socket != nil {
		add("socketAddress", m.matchSocket(req), ScoreSocketAddress, m.socket, req.RemoteAddress)
	}

	if m.not {
		// The whole pattern is negated: it fails exactly when every field matched.
		allMatched := true
		for _, f := range result.Fields {
			allMatched = allMatched && f.Matched
		}
		add("not", !allMatched, 1, "request not matching the pattern", "request matching the pattern")
	}

	if result.MaxPossibleScore > 0 {
		result.MatchPercentage = (result.Score * 100) / result.MaxPossibleScore
	}
	result.Reason = GenerateReason(result.Fields)
	return result
}

// Candidate pairs an expectation id with its compiled matcher.
type Candidate struct {
	ID      string
	Matcher *RequestMatcher
}

// CollectNearMisses explains every candidate against req and returns the top
// N by score. Candidates with no matched field are left out.
func CollectNearMisses(candidates []Candidate, req *expectation.HttpRequest, topN int) []NearMiss {
	if topN <= 0 {
		topN = 3
	}
	var out []NearMiss
	for _, c := range candidates {
		if c.Matcher == nil {
			continue
		}
		nm := c.Matcher.Explain(req)
		if nm.Score == 0 {
			continue
		}
		nm.ExpectationID = c.ID
		out = append(out, *nm)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MatchPercentage > out[j].MatchPercentage
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// GenerateReason creates a human-readable explanation of why a pattern
// partially matched but ultimately failed.
func GenerateReason(fields []FieldResult) string {
	if len(fields) == 0 {
		return "no fields to compare"
	}

	var matched []string
	var firstMismatch *FieldResult
	for i := range fields {
		if fields[i].Matched {
			matched = append(matched, fields[i].Field)
		} else if firstMismatch == nil {
			firstMismatch = &fields[i]
		}
	}

	if firstMismatch == nil {
		return "all specified fields matched"
	}
	if len(matched) == 0 {
		return formatMismatch(firstMismatch)
	}
	return joinFields(matched) + " matched, but " + formatMismatch(firstMismatch)
}

func formatMismatch(f *FieldResult) string {
	switch f.Field {
	case "method", "path":
		return fmt.Sprintf("%s expected %v, got %q", f.Field, f.Expected, f.Actual)
	case "body":
		return fmt.Sprintf("body did not match %v", f.Expected)
	case "not":
		return "request matched a negated pattern"
	case "queryStringParameters", "headers", "cookies":
		if missing, ok := f.Expected.(expectation.MultiValueMap); ok && !missing.IsZero() {
			names := make([]string, len(missing.Entries))
			for i, e := range missing.Entries {
				names[i] = e.Name.String()
			}
			return fmt.Sprintf("%s did not match %s", f.Field, strings.Join(names, ", "))
		}
		return fmt.Sprintf("%s did not match", f.Field)
	default:
		return fmt.Sprintf("%s did not match", f.Field)
	}
}

func joinFields(fields []string) string {
	switch len(fields) {
	case 1:
		return fields[0]
	case 2:
		return fields[0] + " and " + fields[1]
	default:
		return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1]
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
