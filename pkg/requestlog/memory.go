package requestlog

import (
	"strings"
	"sync"
	"time"

	"github.com/mock-server/mockserver-sub017/internal/id"
)

// DefaultMaxEntries is the capacity used when none is given.
const DefaultMaxEntries = 1000

// MemoryStore implements SubscribableStore with a bounded in-memory buffer.
// When full, the oldest entry is evicted.
type MemoryStore struct {
	entries     []*Entry
	maxEntries  int
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a MemoryStore with the given capacity.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:     make([]*Entry, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[Subscriber]struct{}),
	}
}

// Log records a request log entry.
func (s *MemoryStore) Log(entry *Entry) {
	if entry == nil {
		return
	}

	s.mu.Lock()
	if entry.ID == "" {
		entry.ID = id.ULID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	// FIFO eviction: remove oldest if at capacity
	if len(s.entries) >= s.maxEntries {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	// Notify subscribers (non-blocking)
	s.subMu.RLock()
	for sub := range s.subscribers {
		select {
		case sub <- entry:
		default:
			// Drop if subscriber is slow
		}
	}
	s.subMu.RUnlock()
}

// Get retrieves a log entry by ID.
func (s *MemoryStore) Get(id string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if entry.ID == id {
			return entry
		}
	}
	return nil
}

// List returns log entries newest first, optionally filtered.
func (s *MemoryStore) List(filter *Filter) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if filter != nil && !matchesFilter(entry, filter) {
			continue
		}
		result = append(result, entry)
	}

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(result) {
				return []*Entry{}
			}
			result = result[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(result) {
			result = result[:filter.Limit]
		}
	}
	return result
}

// Snapshot returns every entry in arrival order.
func (s *MemoryStore) Snapshot() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func matchesFilter(entry *Entry, filter *Filter) bool {
	req := entry.Request
	if filter.Method != "" && (req == nil || !strings.EqualFold(req.Method, filter.Method)) {
		return false
	}
	if filter.Path != "" && (req == nil || !strings.HasPrefix(req.Path, filter.Path)) {
		return false
	}
	if filter.ExpectationID != "" && entry.Outcome.ExpectationID != filter.ExpectationID {
		return false
	}
	if filter.Matched != nil && entry.Outcome.Matched != *filter.Matched {
		return false
	}
	return true
}

// RemoveMatching removes the entries for which match returns true.
func (s *MemoryStore) RemoveMatching(match func(*Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*Entry, 0, s.maxEntries)
	for _, entry := range s.entries {
		if !match(entry) {
			kept = append(kept, entry)
		}
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept
	return removed
}

// Clear removes all log entries.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]*Entry, 0, s.maxEntries)
}

// Count returns the number of log entries.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers a subscriber to receive new log entries.
// Returns a channel that will receive entries and an unsubscribe function.
func (s *MemoryStore) Subscribe() (Subscriber, func()) {
	ch := make(Subscriber, 100)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}
