// Package storage holds the expectation store: the ordered set of active
// expectations that every incoming request is matched against.
//
// Reads never take a lock. The store keeps an immutable, sorted snapshot of
// its entries behind an atomic pointer; writers (add, update, remove, clear,
// sweep) serialize on a mutex, build a new snapshot and swap it in. The only
// state mutated by matching is each entry's remaining-times counter, an
// atomic cell shared by every snapshot that references the entry, consumed
// with compare-and-swap so that an expectation with one remaining use matches
// exactly once no matter how many requests race for it.
//
// Entries are tried in descending priority, then most recently added first.
// An entry is skipped once it is expired (its TimeToLive has elapsed) or
// exhausted (its Times reached zero); skipped entries stay in the snapshot
// until a sweep or an explicit clear removes them.
//
// Every change is published to listeners as a Notification carrying the full
// set of active expectations and the cause of the change. Each listener owns
// a one-slot mailbox that keeps only the newest pending notification, so a
// slow listener never blocks a writer or the match path.
package storage
