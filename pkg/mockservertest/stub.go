package mockservertest

import "github.com/mock-server/mockserver-sub017/pkg/expectation"

// Stub builds an expectation fluently. It is stored when an action is set.
type Stub struct {
	server *Server
	exp    *expectation.Expectation
}

// ID sets the expectation ID.
func (b *Stub) ID(id string) *Stub {
	b.exp.WithID(id)
	return b
}

// Priority sets the matching priority.
func (b *Stub) Priority(p int) *Stub {
	b.exp.WithPriority(p)
	return b
}

// Times limits how often the expectation can match.
func (b *Stub) Times(n int) *Stub {
	b.exp.WithTimes(expectation.Exactly(n))
	return b
}

// For limits how long the expectation stays active.
func (b *Stub) For(unit expectation.TimeUnit, amount int64) *Stub {
	b.exp.WithTimeToLive(expectation.ExpiresAfter(unit, amount))
	return b
}

// Respond stores the expectation with a response action.
func (b *Stub) Respond(resp *expectation.HttpResponse) *expectation.Expectation {
	b.server.t.Helper()
	return b.server.Expect(b.exp.Respond(resp))[0]
}

// Forward stores the expectation with a forward action.
func (b *Stub) Forward(fwd *expectation.HttpForward) *expectation.Expectation {
	b.server.t.Helper()
	return b.server.Expect(b.exp.ForwardTo(fwd))[0]
}
