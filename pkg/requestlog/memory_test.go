package requestlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

func entryFor(method, path string) *Entry {
	return &Entry{Request: &expectation.HttpRequest{Method: method, Path: path}}
}

func TestMemoryStore_Log(t *testing.T) {
	store := NewMemoryStore(100)

	entry := entryFor("GET", "/api/test")
	store.Log(entry)

	assert.Equal(t, 1, store.Count())
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Same(t, entry, store.Get(entry.ID))
	assert.Nil(t, store.Get("nonexistent"))
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	store := NewMemoryStore(100)
	for _, p := range []string{"/a", "/b", "/c"} {
		store.Log(entryFor("GET", p))
	}

	entries := store.List(nil)
	require.Len(t, entries, 3)
	assert.Equal(t, "/c", entries[0].Request.Path)
	assert.Equal(t, "/a", entries[2].Request.Path)

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "/a", snapshot[0].Request.Path)
	assert.Equal(t, "/c", snapshot[2].Request.Path)
}

func TestMemoryStore_ListWithFilter(t *testing.T) {
	store := NewMemoryStore(100)
	store.Log(entryFor("GET", "/api/users"))
	store.Log(&Entry{
		Request: &expectation.HttpRequest{Method: "POST", Path: "/api/users"},
		Outcome: Outcome{Matched: true, ExpectationID: "create-user"},
	})
	store.Log(entryFor("GET", "/api/orders"))

	assert.Len(t, store.List(&Filter{Method: "get"}), 2)
	assert.Len(t, store.List(&Filter{Path: "/api/users"}), 2)
	assert.Len(t, store.List(&Filter{ExpectationID: "create-user"}), 1)

	matched := false
	assert.Len(t, store.List(&Filter{Matched: &matched}), 2)

	page := store.List(&Filter{Offset: 1, Limit: 1})
	require.Len(t, page, 1)
	assert.Equal(t, "POST", page[0].Request.Method)
	assert.Empty(t, store.List(&Filter{Offset: 5}))
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStore(2)
	store.Log(entryFor("GET", "/1"))
	store.Log(entryFor("GET", "/2"))
	store.Log(entryFor("GET", "/3"))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "/2", snapshot[0].Request.Path)
	assert.Equal(t, "/3", snapshot[1].Request.Path)
}

func TestMemoryStore_RemoveMatchingAndClear(t *testing.T) {
	store := NewMemoryStore(10)
	store.Log(entryFor("GET", "/keep"))
	store.Log(entryFor("GET", "/drop"))
	store.Log(entryFor("GET", "/drop"))

	removed := store.RemoveMatching(func(e *Entry) bool { return e.Request.Path == "/drop" })
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Count())

	store.Clear()
	assert.Equal(t, 0, store.Count())
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore(10)
	sub, unsubscribe := store.Subscribe()

	store.Log(entryFor("GET", "/live"))

	select {
	case entry := <-sub:
		assert.Equal(t, "/live", entry.Request.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for entry")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-sub
	assert.False(t, open)

	store.Log(entryFor("GET", "/after"))
}

func TestEntry_Summary(t *testing.T) {
	e := &Entry{Request: &expectation.HttpRequest{Method: "GET", Path: "/x"}}
	assert.Equal(t, "GET /x -> no match", e.Summary())

	e.Outcome = Outcome{Matched: true, ExpectationID: "abc"}
	assert.Equal(t, "GET /x -> abc", e.Summary())
}
