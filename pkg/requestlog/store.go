package requestlog

// Logger is the minimal interface for recording entries. The expectation
// store accepts it so that any sink can receive match outcomes.
type Logger interface {
	Log(entry *Entry)
}

// Store defines the interface for request history storage.
// Store embeds Logger, so any Store implementation can be used where Logger is expected.
type Store interface {
	Logger

	// Get retrieves a log entry by ID.
	Get(id string) *Entry

	// List returns log entries newest first, optionally filtered.
	List(filter *Filter) []*Entry

	// Snapshot returns every entry in arrival order.
	Snapshot() []*Entry

	// RemoveMatching removes the entries for which match returns true and
	// reports how many were removed.
	RemoveMatching(match func(*Entry) bool) int

	// Clear removes all log entries.
	Clear()

	// Count returns the number of log entries.
	Count() int
}

// Filter defines criteria for filtering request logs.
type Filter struct {
	// Method filters by HTTP method.
	Method string

	// Path filters by path prefix.
	Path string

	// ExpectationID filters by matched expectation.
	ExpectationID string

	// Matched filters by match outcome.
	Matched *bool

	// Limit is the maximum number of entries to return.
	Limit int

	// Offset is the number of entries to skip.
	Offset int
}

// Subscriber is a channel that receives new log entries.
// Used for real-time updates in streaming APIs.
type Subscriber chan *Entry

// SubscribableStore extends Store with subscription support for real-time updates.
type SubscribableStore interface {
	Store

	// Subscribe registers a subscriber to receive new log entries.
	// Returns a channel that will receive entries and an unsubscribe function.
	Subscribe() (Subscriber, func())
}
