// Package requestlog records every request the mock server receives together
// with the outcome of matching it.
//
// The log is the input of verification: entries are appended in arrival order
// and are never mutated afterwards. They are only pruned by an explicit clear
// or reset, or when the bounded in-memory store evicts its oldest entries.
//
// # Store Interface
//
// Store defines the interface for request history storage, supporting:
//   - Recording new entries
//   - Querying by ID, with filters, or as an ordered snapshot
//   - Subscribing to new entries in real-time
//   - Removing entries that match a predicate
//
// # Usage
//
//	store := requestlog.NewMemoryStore(1000)
//	store.Log(&requestlog.Entry{
//	    Request: req,
//	    Outcome: requestlog.Outcome{Matched: true, ExpectationID: id},
//	})
//
// # Package Design
//
// The package depends only on pkg/expectation, so it can be imported by the
// expectation store, the verification engine and the HTTP layers alike.
package requestlog
