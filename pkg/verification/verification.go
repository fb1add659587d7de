package verification

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mock-server/mockserver-sub017/internal/matching"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
)

// ErrNilVerification is returned for a nil Verification or Sequence.
var ErrNilVerification = errors.New("verification is nil")

// maxListedRequests caps the requests quoted in a failure message.
const maxListedRequests = 20

// Verification asserts how often a request was received.
type Verification struct {
	// HttpRequest selects the requests to count. Nil counts every request.
	HttpRequest *expectation.RequestDefinition `json:"httpRequest,omitempty"`

	// ExpectationID, when set, counts only requests answered by that
	// expectation.
	ExpectationID string `json:"expectationId,omitempty"`

	// Times defaults to at least once.
	Times *VerificationTimes `json:"times,omitempty"`
}

// Sequence asserts that requests were received in order.
type Sequence struct {
	HttpRequests []*expectation.RequestDefinition `json:"httpRequests"`
}

// Result is the outcome of a verification.
type Result struct {
	Passed bool `json:"passed"`

	// Expected describes the assertion.
	Expected string `json:"expected"`

	// Found is the number of matching requests for Verify, or the number of
	// satisfied patterns for VerifySequence.
	Found int `json:"found"`

	// Message explains a failure.
	Message string `json:"message,omitempty"`
}

// Err returns the failure as an error, or nil when the verification passed.
func (r *Result) Err() error {
	if r == nil || r.Passed {
		return nil
	}
	return errors.New(r.Message)
}

// Metrics receives verification outcomes.
type Metrics interface {
	VerificationCompleted(kind string, passed bool)
}

type nopMetrics struct{}

func (nopMetrics) VerificationCompleted(string, bool) {}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMatchingOptions sets the options patterns are compiled with. They
// should be the ones the expectation store uses.
func WithMatchingOptions(opts matching.Options) Option {
	return func(e *Engine) {
		e.matchOpts = opts
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine verifies assertions against a request log.
type Engine struct {
	requests  requestlog.Store
	matchOpts matching.Options
	log       *slog.Logger
	metrics   Metrics
}

// New creates an Engine reading from requests.
func New(requests requestlog.Store, opts ...Option) *Engine {
	e := &Engine{
		requests:  requests,
		matchOpts: matching.DefaultOptions(),
		log:       logging.Nop(),
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify counts the logged requests matching v and checks the count.
func (e *Engine) Verify(v *Verification) (*Result, error) {
	if v == nil {
		return nil, ErrNilVerification
	}
	times := Unlimited()
	if v.Times != nil {
		times = *v.Times
	}
	if err := times.Validate(); err != nil {
		return nil, err
	}
	m, err := matching.Compile(v.HttpRequest, e.matchOpts)
	if err != nil {
		return nil, err
	}

	entries := e.requests.Snapshot()
	found := 0
	for _, entry := range entries {
		if v.ExpectationID != "" && entry.Outcome.ExpectationID != v.ExpectationID {
			continue
		}
		if entry.Request != nil && m.Matches(entry.Request) {
			found++
		}
	}

	result := &Result{
		Passed:   times.Matches(found),
		Expected: times.String(),
		Found:    found,
	}
	if !result.Passed {
		var b strings.Builder
		fmt.Fprintf(&b, "Request not received as expected: expected %s, found %d matching\n", times, found)
		fmt.Fprintf(&b, "  pattern: %s\n", v.HttpRequest.String())
		if v.ExpectationID != "" {
			fmt.Fprintf(&b, "  expectation: %s\n", v.ExpectationID)
		}
		writeRecorded(&b, entries)
		result.Message = strings.TrimRight(b.String(), "\n")
	}

	e.metrics.VerificationCompleted("count", result.Passed)
	e.log.Debug("verification completed",
		"passed", result.Passed,
		"expected", result.Expected,
		"found", found,
		"pattern", v.HttpRequest.String(),
	)
	return result, nil
}

// VerifySequence checks that the log holds requests matching each pattern in
// order, not necessarily adjacent. Each pattern is searched for from just
// after the request that satisfied the previous one.
func (e *Engine) VerifySequence(s *Sequence) (*Result, error) {
	if s == nil {
		return nil, ErrNilVerification
	}
	matchers := make([]*matching.RequestMatcher, len(s.HttpRequests))
	var errs []error
	for i, def := range s.HttpRequests {
		m, err := matching.Compile(def, e.matchOpts)
		if err != nil {
			errs = append(errs, fmt.Errorf("httpRequests[%d]: %w", i, err))
			continue
		}
		matchers[i] = m
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	entries := e.requests.Snapshot()
	cursor := 0
	satisfied := 0
	for _, m := range matchers {
		found := false
		for cursor < len(entries) && !found {
			req := entries[cursor].Request
			cursor++
			found = req != nil && m.Matches(req)
		}
		if !found {
			break
		}
		satisfied++
	}

	result := &Result{
		Passed:   satisfied == len(matchers),
		Expected: fmt.Sprintf("sequence of %d requests", len(matchers)),
		Found:    satisfied,
	}
	if !result.Passed {
		var b strings.Builder
		fmt.Fprintf(&b, "Request sequence not found: request %d of %d not satisfied\n", satisfied+1, len(matchers))
		fmt.Fprintf(&b, "  missing: %s\n", s.HttpRequests[satisfied].String())
		if satisfied > 0 {
			b.WriteString("  matched so far:\n")
			for i := range satisfied {
				fmt.Fprintf(&b, "    %d. %s\n", i+1, s.HttpRequests[i].String())
			}
		}
		writeRecorded(&b, entries)
		result.Message = strings.TrimRight(b.String(), "\n")
	}

	e.metrics.VerificationCompleted("sequence", result.Passed)
	e.log.Debug("sequence verification completed",
		"passed", result.Passed,
		"patterns", len(matchers),
		"satisfied", satisfied,
	)
	return result, nil
}

func writeRecorded(b *strings.Builder, entries []*requestlog.Entry) {
	if len(entries) == 0 {
		b.WriteString("  no requests recorded\n")
		return
	}
	fmt.Fprintf(b, "  recorded requests (%d):\n", len(entries))
	for i, entry := range entries {
		if i == maxListedRequests {
			fmt.Fprintf(b, "    ... %d more\n", len(entries)-i)
			break
		}
		if entry.Request != nil {
			fmt.Fprintf(b, "    %s\n", entry.Request.Summary())
		}
	}
}
