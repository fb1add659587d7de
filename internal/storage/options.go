package storage

import (
	"log/slog"
	"time"

	"github.com/mock-server/mockserver-sub017/internal/matching"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
)

// Metrics receives store events. pkg/metrics provides the Prometheus
// implementation.
type Metrics interface {
	ExpectationMatched(action expectation.ActionType)
	RequestUnmatched()
	ExpectationsStored(n int)
	NotificationCoalesced(listener string)
}

type nopMetrics struct{}

func (nopMetrics) ExpectationMatched(expectation.ActionType) {}
func (nopMetrics) RequestUnmatched()                         {}
func (nopMetrics) ExpectationsStored(int)                    {}
func (nopMetrics) NotificationCoalesced(string)              {}

// Option configures an ExpectationStore.
type Option func(*ExpectationStore)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *ExpectationStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRequestLog sets where match outcomes are recorded.
func WithRequestLog(l requestlog.Logger) Option {
	return func(s *ExpectationStore) {
		s.requests = l
	}
}

// WithClock replaces time.Now. Tests use it to move past TimeToLive bounds.
func WithClock(now func() time.Time) Option {
	return func(s *ExpectationStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMatchingOptions sets the options every stored pattern is compiled with.
func WithMatchingOptions(opts matching.Options) Option {
	return func(s *ExpectationStore) {
		s.matchOpts = opts
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *ExpectationStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMaxExpectations caps the number of stored expectations. Zero means no cap.
func WithMaxExpectations(n int) Option {
	return func(s *ExpectationStore) {
		s.maxExpectations = n
	}
}

// WithNearMisses sets how many near misses are recorded for an unmatched
// request. Zero disables the diagnosis.
func WithNearMisses(n int) Option {
	return func(s *ExpectationStore) {
		s.nearMisses = n
	}
}
