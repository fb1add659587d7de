package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mock-server/mockserver-sub017/internal/id"
	"github.com/mock-server/mockserver-sub017/internal/matching"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
)

// Errors returned by the store.
var (
	ErrNilExpectation = errors.New("expectation is nil")
	ErrCapacity       = errors.New("maximum number of expectations reached")
)

// snapshot is an immutable, sorted view of the stored entries.
type snapshot struct {
	version uint64
	entries []*entry
}

func (s *snapshot) active(now time.Time) []*expectation.Expectation {
	out := make([]*expectation.Expectation, 0, len(s.entries))
	for _, e := range s.entries {
		if e.state(now) == StateActive {
			out = append(out, e.view())
		}
	}
	return out
}

// ExpectationStore is the ordered, concurrency-safe set of expectations.
type ExpectationStore struct {
	mu       sync.Mutex // serializes writers
	current  atomic.Pointer[snapshot]
	sequence uint64

	log             *slog.Logger
	requests        requestlog.Logger
	now             func() time.Time
	matchOpts       matching.Options
	metrics         Metrics
	maxExpectations int
	nearMisses      int

	listenersMu sync.Mutex
	listeners   map[*mailbox]struct{}
}

// New creates an empty store.
func New(opts ...Option) *ExpectationStore {
	s := &ExpectationStore{
		log:        logging.Nop(),
		now:        time.Now,
		matchOpts:  matching.DefaultOptions(),
		metrics:    nopMetrics{},
		nearMisses: 3,
		listeners:  make(map[*mailbox]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&snapshot{})
	return s
}

// prepare validates and compiles an expectation outside the writer lock.
func (s *ExpectationStore) prepare(e *expectation.Expectation, cause Cause) (*entry, error) {
	if e == nil {
		return nil, ErrNilExpectation
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	owned := e.Clone()
	if owned.ID == "" {
		owned.ID = id.Expectation()
	}
	m, err := matching.Compile(owned.HttpRequest, s.matchOpts)
	if err != nil {
		return nil, err
	}

	now := s.now()
	remaining := &atomic.Int64{}
	if owned.Times == nil || owned.Times.Unlimited {
		remaining.Store(unlimited)
	} else {
		remaining.Store(int64(owned.Times.RemainingTimes))
	}
	return &entry{
		exp:       owned,
		matcher:   m,
		cause:     cause,
		created:   now,
		endTime:   owned.TimeToLive.EndTime(now),
		remaining: remaining,
	}, nil
}

// install sorts entries and swaps them in. Callers hold mu.
func (s *ExpectationStore) install(entries []*entry) *snapshot {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].exp.Priority != entries[j].exp.Priority {
			return entries[i].exp.Priority > entries[j].exp.Priority
		}
		return entries[i].sequence > entries[j].sequence
	})
	snap := &snapshot{
		version: s.current.Load().version + 1,
		entries: entries,
	}
	s.current.Store(snap)
	s.metrics.ExpectationsStored(len(entries))
	return snap
}

func (s *ExpectationStore) entriesCopy() []*entry {
	cur := s.current.Load().entries
	out := make([]*entry, len(cur), len(cur)+1)
	copy(out, cur)
	return out
}

func indexOf(entries []*entry, id string) int {
	for i, e := range entries {
		if e.id() == id {
			return i
		}
	}
	return -1
}

// Add stores e, replacing any stored expectation with the same ID. A
// replacement keeps its position among equal priorities but restarts its
// Times and TimeToLive. The returned copy carries the assigned ID.
func (s *ExpectationStore) Add(e *expectation.Expectation, cause Cause) (*expectation.Expectation, error) {
	st, err := s.prepare(e, cause)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	entries := s.entriesCopy()
	replaced := false
	if i := indexOf(entries, st.id()); i >= 0 {
		st.sequence = entries[i].sequence
		entries[i] = st
		replaced = true
	} else {
		if s.maxExpectations > 0 && len(entries) >= s.maxExpectations {
			s.mu.Unlock()
			return nil, ErrCapacity
		}
		s.sequence++
		st.sequence = s.sequence
		entries = append(entries, st)
	}
	snap := s.install(entries)
	s.mu.Unlock()

	s.log.Info("expectation stored",
		"id", st.id(),
		"cause", cause,
		"replaced", replaced,
		"priority", st.exp.Priority,
		"request", st.exp.HttpRequest.String(),
		"times", st.exp.Times.String(),
		"timeToLive", st.exp.TimeToLive.String(),
	)
	s.publish(cause, snap)
	return st.view(), nil
}

// Update reconciles the store with es for the given cause: expectations are
// upserted by ID, unchanged ones keep their counters, and stored expectations
// from the same source missing from es are removed. Invalid expectations are
// skipped and reported together in the returned error.
func (s *ExpectationStore) Update(es []*expectation.Expectation, cause Cause) error {
	var errs []error
	prepared := make([]*entry, 0, len(es))
	seen := make(map[string]bool, len(es))
	for i, e := range es {
		st, err := s.prepare(e, cause)
		if err != nil {
			errs = append(errs, fmt.Errorf("expectation %d: %w", i, err))
			continue
		}
		if seen[st.id()] {
			errs = append(errs, fmt.Errorf("expectation %d: duplicate id %q", i, st.id()))
			continue
		}
		seen[st.id()] = true
		prepared = append(prepared, st)
	}

	s.mu.Lock()
	existing := s.current.Load().entries
	entries := make([]*entry, 0, len(existing)+len(prepared))
	changed := false
	for _, e := range existing {
		if e.cause.origin() == cause.origin() && !seen[e.id()] {
			changed = true
			continue
		}
		entries = append(entries, e)
	}
	for _, st := range prepared {
		i := indexOf(entries, st.id())
		switch {
		case i >= 0 && entries[i].sameConfiguration(st):
		case i >= 0:
			st.sequence = entries[i].sequence
			entries[i] = st
			changed = true
		case s.maxExpectations > 0 && len(entries) >= s.maxExpectations:
			errs = append(errs, fmt.Errorf("expectation %q: %w", st.id(), ErrCapacity))
		default:
			s.sequence++
			st.sequence = s.sequence
			entries = append(entries, st)
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return errors.Join(errs...)
	}
	snap := s.install(entries)
	s.mu.Unlock()

	s.log.Info("expectations updated",
		"cause", cause,
		"accepted", len(prepared),
		"rejected", len(es)-len(prepared),
		"stored", len(snap.entries),
	)
	s.publish(cause, snap)
	return errors.Join(errs...)
}

// Remove deletes every stored expectation for which match returns true and
// reports how many were removed. match must not modify its argument.
func (s *ExpectationStore) Remove(match func(*expectation.Expectation) bool, cause Cause) int {
	return s.removeEntries(func(e *entry) bool { return match(e.exp) }, cause)
}

// RemoveByID deletes the expectation with the given ID.
func (s *ExpectationStore) RemoveByID(expectationID string, cause Cause) bool {
	return s.removeEntries(func(e *entry) bool { return e.id() == expectationID }, cause) > 0
}

// Clear removes the expectations whose request definition matches pattern.
// A nil pattern removes everything.
func (s *ExpectationStore) Clear(pattern *expectation.RequestDefinition, cause Cause) (int, error) {
	if pattern == nil {
		return s.Reset(cause), nil
	}
	filter, err := matching.Compile(pattern, s.matchOpts)
	if err != nil {
		return 0, err
	}
	return s.removeEntries(func(e *entry) bool {
		return filter.Matches(e.exp.HttpRequest.AsRequest())
	}, cause), nil
}

// Reset removes every expectation.
func (s *ExpectationStore) Reset(cause Cause) int {
	return s.removeEntries(func(*entry) bool { return true }, cause)
}

// Sweep removes expired and exhausted expectations.
func (s *ExpectationStore) Sweep() int {
	now := s.now()
	return s.removeEntries(func(e *entry) bool { return e.state(now) != StateActive }, CauseSweep)
}

func (s *ExpectationStore) removeEntries(match func(*entry) bool, cause Cause) int {
	s.mu.Lock()
	existing := s.current.Load().entries
	kept := make([]*entry, 0, len(existing))
	for _, e := range existing {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	removed := len(existing) - len(kept)
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	snap := s.install(kept)
	s.mu.Unlock()

	s.log.Info("expectations removed", "cause", cause, "removed", removed, "stored", len(kept))
	s.publish(cause, snap)
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *ExpectationStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("swept expectations", "removed", n)
			}
		}
	}
}

// FindMatch returns the first active expectation matching req, consuming one
// of its Times, or nil when none matches. The outcome is recorded in the
// request log. The returned expectation is shared and must not be modified.
func (s *ExpectationStore) FindMatch(req *expectation.HttpRequest) *expectation.Expectation {
	if req == nil {
		return nil
	}
	snap := s.current.Load()
	now := s.now()
	for _, e := range snap.entries {
		if e.state(now) != StateActive {
			continue
		}
		if !e.matcher.Matches(req) {
			continue
		}
		if !e.consume() {
			// Another request took the last use.
			continue
		}
		action := e.exp.Action()
		s.record(req, requestlog.Outcome{Matched: true, ExpectationID: e.id(), Action: action})
		s.metrics.ExpectationMatched(action)
		s.log.Debug("request matched",
			"correlationId", req.CorrelationID,
			"request", req.Summary(),
			"expectation", e.id(),
			"action", action,
		)
		return e.exp
	}

	outcome := requestlog.Outcome{NearMisses: s.diagnose(snap, req, now)}
	s.record(req, outcome)
	s.metrics.RequestUnmatched()
	s.log.Debug("request not matched",
		"correlationId", req.CorrelationID,
		"request", req.Summary(),
		"nearMisses", len(outcome.NearMisses),
	)
	return nil
}

func (s *ExpectationStore) diagnose(snap *snapshot, req *expectation.HttpRequest, now time.Time) []requestlog.NearMissInfo {
	if s.nearMisses <= 0 || len(snap.entries) == 0 {
		return nil
	}
	candidates := make([]matching.Candidate, 0, len(snap.entries))
	for _, e := range snap.entries {
		if e.state(now) == StateActive {
			candidates = append(candidates, matching.Candidate{ID: e.id(), Matcher: e.matcher})
		}
	}
	misses := matching.CollectNearMisses(candidates, req, s.nearMisses)
	out := make([]requestlog.NearMissInfo, 0, len(misses))
	for _, nm := range misses {
		out = append(out, requestlog.NearMissInfo{
			ExpectationID:   nm.ExpectationID,
			MatchPercentage: nm.MatchPercentage,
			Reason:          nm.Reason,
		})
	}
	return out
}

func (s *ExpectationStore) record(req *expectation.HttpRequest, outcome requestlog.Outcome) {
	if s.requests == nil {
		return
	}
	logged := *req
	correlation := logged.CorrelationID
	if correlation == "" {
		correlation = id.Correlation()
		logged.CorrelationID = correlation
	}
	s.requests.Log(&requestlog.Entry{
		CorrelationID: correlation,
		Timestamp:     s.now(),
		Request:       &logged,
		Outcome:       outcome,
	})
}

// RetrieveActiveExpectations returns copies of the active expectations in
// match order, filtered by pattern when it is not nil.
func (s *ExpectationStore) RetrieveActiveExpectations(pattern *expectation.RequestDefinition) ([]*expectation.Expectation, error) {
	var filter *matching.RequestMatcher
	if pattern != nil {
		var err error
		if filter, err = matching.Compile(pattern, s.matchOpts); err != nil {
			return nil, err
		}
	}
	snap := s.current.Load()
	now := s.now()
	out := make([]*expectation.Expectation, 0, len(snap.entries))
	for _, e := range snap.entries {
		if e.state(now) != StateActive {
			continue
		}
		if filter != nil && !filter.Matches(e.exp.HttpRequest.AsRequest()) {
			continue
		}
		out = append(out, e.view())
	}
	return out, nil
}

// Get returns a copy of the stored expectation with the given ID.
func (s *ExpectationStore) Get(expectationID string) (*expectation.Expectation, bool) {
	for _, e := range s.current.Load().entries {
		if e.id() == expectationID {
			return e.view(), true
		}
	}
	return nil, false
}

// Describe returns every stored expectation, active or not, in match order.
func (s *ExpectationStore) Describe() []Description {
	snap := s.current.Load()
	now := s.now()
	out := make([]Description, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, e.describe(now))
	}
	return out
}

// Len returns the number of stored expectations, including inactive ones.
func (s *ExpectationStore) Len() int {
	return len(s.current.Load().entries)
}

// Version returns the version of the current expectation set.
func (s *ExpectationStore) Version() uint64 {
	return s.current.Load().version
}
