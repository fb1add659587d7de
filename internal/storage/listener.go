package storage

import (
	"fmt"
	"sync"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// Notification describes the expectation set after a change.
type Notification struct {
	// Version increases with every change.
	Version uint64

	// Cause is why the set changed.
	Cause Cause

	// Expectations are the active expectations in match order.
	Expectations []*expectation.Expectation
}

// mailbox holds at most one pending notification. Offering to a full
// mailbox replaces the pending one, so readers only ever see the latest state.
type mailbox struct {
	name string
	ch   chan Notification

	mu     sync.Mutex
	last   uint64
	closed bool
}

func newMailbox(name string) *mailbox {
	return &mailbox{name: name, ch: make(chan Notification, 1)}
}

// offer delivers n and reports whether a pending notification was replaced.
func (m *mailbox) offer(n Notification) (coalesced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || n.Version <= m.last {
		return false
	}
	m.last = n.Version

	select {
	case m.ch <- n:
		return false
	default:
	}
	select {
	case <-m.ch:
		coalesced = true
	default:
	}
	// Only offer sends, and it holds mu, so the slot is free.
	m.ch <- n
	return coalesced
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
}

// Subscribe registers a listener and returns its notification channel along
// with a function that unregisters it and closes the channel. The channel
// never holds more than the most recent undelivered notification.
func (s *ExpectationStore) Subscribe(name string) (<-chan Notification, func()) {
	mb := newMailbox(name)

	s.listenersMu.Lock()
	s.listeners[mb] = struct{}{}
	s.listenersMu.Unlock()

	var once sync.Once
	return mb.ch, func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, mb)
			s.listenersMu.Unlock()
			mb.close()
		})
	}
}

// AddListener runs fn on its own goroutine for every notification until the
// returned function is called. A panic in fn is logged and the listener keeps
// running.
func (s *ExpectationStore) AddListener(name string, fn func(Notification)) func() {
	ch, unsubscribe := s.Subscribe(name)
	go func() {
		for n := range ch {
			s.deliver(name, fn, n)
		}
	}()
	return unsubscribe
}

func (s *ExpectationStore) deliver(name string, fn func(Notification), n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("expectation listener panicked",
				"listener", name,
				"version", n.Version,
				"error", fmt.Sprint(r),
			)
		}
	}()
	fn(n)
}

// publish is called after the writer lock is released.
func (s *ExpectationStore) publish(cause Cause, snap *snapshot) {
	s.listenersMu.Lock()
	boxes := make([]*mailbox, 0, len(s.listeners))
	for mb := range s.listeners {
		boxes = append(boxes, mb)
	}
	s.listenersMu.Unlock()

	if len(boxes) == 0 {
		return
	}

	n := Notification{
		Version:      snap.version,
		Cause:        cause,
		Expectations: snap.active(s.now()),
	}
	for _, mb := range boxes {
		if mb.offer(n) {
			s.metrics.NotificationCoalesced(mb.name)
		}
	}
}
