package storage

import (
	"sync/atomic"
	"time"

	"github.com/mock-server/mockserver-sub017/internal/matching"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// Cause tags why the expectation set changed.
type Cause string

// Causes of change.
const (
	CauseAPI         Cause = "API"
	CauseInitializer Cause = "INITIALIZER"
	CauseFileWatcher Cause = "FILE_WATCHER"
	CauseSweep       Cause = "SWEEP"
)

// State is the lifecycle state of a stored expectation.
type State string

// States.
const (
	StateActive    State = "ACTIVE"
	StateExhausted State = "EXHAUSTED"
	StateExpired   State = "EXPIRED"
)

const unlimited = -1

// origin groups causes that load from the same source. Initializer files and
// their watcher share one, so a reload reconciles what startup loaded.
func (c Cause) origin() Cause {
	if c == CauseFileWatcher {
		return CauseInitializer
	}
	return c
}

// entry is a stored expectation with its runtime state.
type entry struct {
	exp      *expectation.Expectation
	matcher  *matching.RequestMatcher
	cause    Cause
	sequence uint64
	created  time.Time
	endTime  time.Time

	// remaining is shared by every snapshot referencing the entry.
	remaining *atomic.Int64
}

func (e *entry) id() string {
	return e.exp.ID
}

// state checks the TimeToLive before the Times.
func (e *entry) state(now time.Time) State {
	if !e.endTime.IsZero() && now.After(e.endTime) {
		return StateExpired
	}
	if r := e.remaining.Load(); r != unlimited && r <= 0 {
		return StateExhausted
	}
	return StateActive
}

// consume takes one use. It returns false when the entry was exhausted,
// including by a concurrent request that got there first.
func (e *entry) consume() bool {
	for {
		r := e.remaining.Load()
		if r == unlimited {
			return true
		}
		if r <= 0 {
			return false
		}
		if e.remaining.CompareAndSwap(r, r-1) {
			return true
		}
	}
}

// view returns a copy of the expectation whose Times reflect the uses left.
func (e *entry) view() *expectation.Expectation {
	out := e.exp.Clone()
	if r := e.remaining.Load(); r != unlimited {
		out.Times = &expectation.Times{RemainingTimes: int(r)}
	}
	return out
}

func (e *entry) describe(now time.Time) Description {
	return Description{
		Expectation: e.view(),
		State:       e.state(now),
		Cause:       e.cause,
		Sequence:    e.sequence,
		Created:     e.created,
		EndTime:     e.endTime,
		MatchCount:  e.matcher.MatchCount(),
	}
}

// sameConfiguration reports whether two entries were built from identical
// documents, in which case an update keeps the older entry and its counters.
func (e *entry) sameConfiguration(other *entry) bool {
	return e.cause.origin() == other.cause.origin() && e.exp.String() == other.exp.String()
}

// Description is a read-only view of a stored expectation for dashboards and
// diagnostics.
type Description struct {
	Expectation *expectation.Expectation `json:"expectation"`
	State       State                    `json:"state"`
	Cause       Cause                    `json:"cause"`
	Sequence    uint64                   `json:"sequence"`
	Created     time.Time                `json:"created"`
	EndTime     time.Time                `json:"endTime,omitzero"`
	MatchCount  int64                    `json:"matchCount"`
}
