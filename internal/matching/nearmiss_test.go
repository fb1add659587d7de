package matching

import (
	"strings"
	"testing"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

func TestExplain_AllFieldsMatch(t *testing.T) {
	m := mustCompile(t, expectation.Request("GET", "/orders"))
	nm := m.Explain(liveRequest("GET", "/orders"))

	if nm.Score != ScoreMethod+ScorePath {
		t.Errorf("expected score %d, got %d", ScoreMethod+ScorePath, nm.Score)
	}
	if nm.MatchPercentage != 100 {
		t.Errorf("expected 100%%, got %d", nm.MatchPercentage)
	}
	if nm.Reason != "all specified fields matched" {
		t.Errorf("unexpected reason %q", nm.Reason)
	}
	if m.MatchCount() != 0 {
		t.Errorf("Explain must not count matches, got %d", m.MatchCount())
	}
}

func TestExplain_PathMismatch(t *testing.T) {
	m := mustCompile(t, expectation.Request("GET", "/orders"))
	nm := m.Explain(liveRequest("GET", "/users"))

	if nm.Score != ScoreMethod {
		t.Errorf("expected score %d, got %d", ScoreMethod, nm.Score)
	}
	if !strings.HasPrefix(nm.Reason, "method matched, but path expected") {
		t.Errorf("unexpected reason %q", nm.Reason)
	}
}

func TestExplain_NoShortCircuit(t *testing.T) {
	def := expectation.Request("POST", "/orders").WithBody(expectation.JSONBody(`{"a":1}`))
	m := mustCompile(t, def)

	req := liveRequest("GET", "/orders")
	req.Body = []byte(`{"a":1}`)
	nm := m.Explain(req)

	if len(nm.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(nm.Fields))
	}
	if nm.Fields[0].Matched || !nm.Fields[1].Matched || !nm.Fields[2].Matched {
		t.Errorf("unexpected field results %+v", nm.Fields)
	}
}

func TestCollectNearMisses(t *testing.T) {
	candidates := []Candidate{
		{ID: "method-only", Matcher: mustCompile(t, expectation.Request("GET", "/other"))},
		{ID: "method-and-path", Matcher: mustCompile(t, expectation.Request("GET", "/orders").WithHeader(expectation.String("X-Key"), expectation.String("k")))},
		{ID: "nothing", Matcher: mustCompile(t, expectation.Request("PUT", "/nothing"))},
	}

	got := CollectNearMisses(candidates, liveRequest("GET", "/orders"), 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 near misses, got %d", len(got))
	}
	if got[0].ExpectationID != "method-and-path" {
		t.Errorf("expected best near miss to be method-and-path, got %s", got[0].ExpectationID)
	}
}

func TestExplain_ReportsMissingHeaders(t *testing.T) {
	def := expectation.Request("GET", "/orders").
		WithHeader(expectation.String("Accept"), expectation.Regex("application/.*")).
		WithHeader(expectation.String("X-Key"), expectation.String("k"))
	m := mustCompile(t, def)

	req := liveRequest("GET", "/orders")
	req.Headers = expectation.NewMultiValueMap("Accept", "application/json")
	nm := m.Explain(req)

	if len(nm.Fields) != 3 || nm.Fields[2].Matched {
		t.Fatalf("unexpected field results %+v", nm.Fields)
	}
	missing, ok := nm.Fields[2].Expected.(expectation.MultiValueMap)
	if !ok || missing.Len() != 1 || missing.Names()[0] != "X-Key" {
		t.Errorf("expected only X-Key to be reported, got %+v", nm.Fields[2].Expected)
	}
	if nm.Reason != "method and path matched, but headers did not match X-Key" {
		t.Errorf("unexpected reason %q", nm.Reason)
	}
}

func TestGenerateReason(t *testing.T) {
	tests := []struct {
		name   string
		fields []FieldResult
		want   string
	}{
		{"no fields", nil, "no fields to compare"},
		{"body", []FieldResult{{Field: "body", Expected: "JSON {}"}}, "body did not match JSON {}"},
		{
			"several matched",
			[]FieldResult{{Field: "method", Matched: true}, {Field: "path", Matched: true}, {Field: "headers", Matched: true}, {Field: "cookies"}},
			"method, path and headers matched, but cookies did not match",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateReason(tt.fields); got != tt.want {
				t.Errorf("GenerateReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
