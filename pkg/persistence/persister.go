package persistence

import (
	"log/slog"
	"sync/atomic"

	"github.com/mock-server/mockserver-sub017/internal/storage"
	"github.com/mock-server/mockserver-sub017/pkg/config"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
)

// Notifier is the part of the expectation store a Persister listens to.
type Notifier interface {
	AddListener(name string, fn func(storage.Notification)) func()
}

// Persister saves every expectation set it is notified of.
type Persister struct {
	path  string
	log   *slog.Logger
	saved atomic.Uint64
}

// NewPersister creates a Persister writing to path.
func NewPersister(path string, log *slog.Logger) *Persister {
	if log == nil {
		log = logging.Nop()
	}
	return &Persister{path: path, log: log}
}

// Attach starts persisting the store's changes and returns a function that
// stops it.
func (p *Persister) Attach(store Notifier) func() {
	return store.AddListener("persistence", p.persist)
}

// Version returns the version of the last expectation set written.
func (p *Persister) Version() uint64 {
	return p.saved.Load()
}

func (p *Persister) persist(n storage.Notification) {
	if err := config.SaveExpectations(p.path, n.Expectations); err != nil {
		p.log.Error("failed to persist expectations", "path", p.path, "version", n.Version, "error", err)
		return
	}
	p.saved.Store(n.Version)
	p.log.Debug("expectations persisted",
		"path", p.path,
		"version", n.Version,
		"cause", n.Cause,
		"count", len(n.Expectations),
	)
}
