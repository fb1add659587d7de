package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mock-server/mockserver-sub017/internal/storage"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
)

// Message types.
const (
	TypeExpectations = "expectations"
	TypeRequest      = "request"
	TypeLog          = "log"
)

const (
	writeTimeout = 5 * time.Second
	recentLimit  = 100
)

// Message is one frame sent to a client.
type Message struct {
	Type         string                `json:"type"`
	Version      uint64                `json:"version,omitempty"`
	Cause        storage.Cause         `json:"cause,omitempty"`
	Expectations []storage.Description `json:"expectations,omitempty"`
	Request      *requestlog.Entry     `json:"request,omitempty"`
	Log          *LogRecord            `json:"log,omitempty"`
}

// Store is the part of the expectation store the dashboard reads.
type Store interface {
	Subscribe(name string) (<-chan storage.Notification, func())
	Describe() []storage.Description
	Version() uint64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithLogs streams server log records to clients.
func WithLogs(b *LogBroadcaster) Option {
	return func(h *Handler) {
		h.logs = b
	}
}

// WithOriginPatterns restricts the origins allowed to connect. By default any
// origin is accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) {
		h.accept.OriginPatterns = patterns
		h.accept.InsecureSkipVerify = len(patterns) == 0
	}
}

// Handler serves the dashboard WebSocket.
type Handler struct {
	store    Store
	requests requestlog.SubscribableStore
	logs     *LogBroadcaster
	log      *slog.Logger
	accept   websocket.AcceptOptions

	nextID  atomic.Int64
	clients atomic.Int64
}

// New creates a Handler.
func New(store Store, requests requestlog.SubscribableStore, opts ...Option) *Handler {
	h := &Handler{
		store:    store,
		requests: requests,
		log:      logging.Nop(),
		accept:   websocket.AcceptOptions{InsecureSkipVerify: true},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Handler) Clients() int {
	return int(h.clients.Load())
}

// ServeHTTP upgrades the connection and streams until the client leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &h.accept)
	if err != nil {
		h.log.Debug("dashboard upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	name := fmt.Sprintf("dashboard-%d", h.nextID.Add(1))
	h.clients.Add(1)
	defer h.clients.Add(-1)
	h.log.Debug("dashboard client connected", "client", name, "remote", r.RemoteAddr)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the client goes away.
	ctx := conn.CloseRead(r.Context())

	// Subscribe before the initial snapshot so that no change is missed.
	notifications, unsubscribe := h.store.Subscribe(name)
	defer unsubscribe()
	requests, unsubscribeRequests := h.requests.Subscribe()
	defer unsubscribeRequests()
	var logs <-chan LogRecord
	if h.logs != nil {
		var unsubscribeLogs func()
		logs, unsubscribeLogs = h.logs.Subscribe()
		defer unsubscribeLogs()
	}

	if err := h.send(ctx, conn, Message{
		Type:         TypeExpectations,
		Version:      h.store.Version(),
		Expectations: h.store.Describe(),
	}); err != nil {
		return
	}
	recent := h.requests.List(&requestlog.Filter{Limit: recentLimit})
	slices.Reverse(recent)
	for _, entry := range recent {
		if err := h.send(ctx, conn, Message{Type: TypeRequest, Request: entry}); err != nil {
			return
		}
	}

	for {
		var msg Message
		select {
		case <-ctx.Done():
			h.log.Debug("dashboard client disconnected", "client", name)
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			msg = Message{Type: TypeExpectations, Version: n.Version, Cause: n.Cause, Expectations: h.store.Describe()}
		case entry, ok := <-requests:
			if !ok {
				return
			}
			msg = Message{Type: TypeRequest, Request: entry}
		case rec, ok := <-logs:
			if !ok {
				return
			}
			msg = Message{Type: TypeLog, Log: &rec}
		}
		if err := h.send(ctx, conn, msg); err != nil {
			h.log.Debug("dashboard write failed", "client", name, "error", err)
			return
		}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
