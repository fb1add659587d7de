package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogRecord is a log line sent to dashboard clients.
type LogRecord struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogBroadcaster is a slog.Handler that fans records out to dashboard
// clients. Records are dropped for clients that fall behind.
type LogBroadcaster struct {
	level slog.Leveler
	hub   *logHub
	attrs []slog.Attr
	group string
}

type logHub struct {
	mu   sync.RWMutex
	subs map[chan LogRecord]struct{}
}

// NewLogBroadcaster creates a broadcaster passing records at or above level.
func NewLogBroadcaster(level slog.Leveler) *LogBroadcaster {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogBroadcaster{
		level: level,
		hub:   &logHub{subs: make(map[chan LogRecord]struct{})},
	}
}

// Enabled implements slog.Handler.
func (b *LogBroadcaster) Enabled(_ context.Context, level slog.Level) bool {
	return level >= b.level.Level()
}

// Handle implements slog.Handler.
func (b *LogBroadcaster) Handle(_ context.Context, r slog.Record) error {
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	if len(b.hub.subs) == 0 {
		return nil
	}

	rec := LogRecord{Time: r.Time, Level: r.Level.String(), Message: r.Message}
	if n := len(b.attrs) + r.NumAttrs(); n > 0 {
		rec.Attrs = make(map[string]any, n)
		for _, a := range b.attrs {
			addAttr(rec.Attrs, "", a)
		}
		r.Attrs(func(a slog.Attr) bool {
			addAttr(rec.Attrs, b.group, a)
			return true
		})
	}
	for ch := range b.hub.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	return nil
}

func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(dst, key, ga)
		}
		return
	}
	if err, ok := a.Value.Any().(error); ok {
		dst[key] = err.Error()
		return
	}
	dst[key] = a.Value.Any()
}

// WithAttrs implements slog.Handler.
func (b *LogBroadcaster) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *b
	out.attrs = make([]slog.Attr, 0, len(b.attrs)+len(attrs))
	out.attrs = append(out.attrs, b.attrs...)
	for _, a := range attrs {
		if b.group != "" {
			a.Key = b.group + "." + a.Key
		}
		out.attrs = append(out.attrs, a)
	}
	return &out
}

// WithGroup implements slog.Handler.
func (b *LogBroadcaster) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	out := *b
	if out.group != "" {
		out.group += "." + name
	} else {
		out.group = name
	}
	return &out
}

// Subscribe returns a channel of log records and a function that closes it.
func (b *LogBroadcaster) Subscribe() (<-chan LogRecord, func()) {
	ch := make(chan LogRecord, 64)
	b.hub.mu.Lock()
	b.hub.subs[ch] = struct{}{}
	b.hub.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.hub.mu.Lock()
			delete(b.hub.subs, ch)
			b.hub.mu.Unlock()
			close(ch)
		})
	}
}
