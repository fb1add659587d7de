// Core HTTP request handler for mocked traffic.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/httputil"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
)

// MaxRequestBodySize is the default limit on request bodies read for
// matching (10MB).
const MaxRequestBodySize = 10 << 20

// Matcher selects the expectation answering a request. The expectation
// store implements it and records every request it is asked about.
type Matcher interface {
	FindMatch(req *expectation.HttpRequest) *expectation.Expectation
}

// RequestMetrics observes mocked requests.
type RequestMetrics interface {
	ObserveRequest(method string, status int, elapsed time.Duration)
}

type nopRequestMetrics struct{}

func (nopRequestMetrics) ObserveRequest(string, int, time.Duration) {}

// Handler answers mocked traffic from the expectation store.
type Handler struct {
	store   Matcher
	log     *slog.Logger
	metrics RequestMetrics

	maxBodySize     int64
	forwardTimeout  time.Duration
	callbackTimeout time.Duration
	transport       http.RoundTripper
	client          *http.Client
}

// NewHandler creates a Handler for store.
func NewHandler(store Matcher) *Handler {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Handler{
		store:           store,
		log:             logging.Nop(),
		metrics:         nopRequestMetrics{},
		maxBodySize:     MaxRequestBodySize,
		forwardTimeout:  30 * time.Second,
		callbackTimeout: 10 * time.Second,
		transport:       transport,
		client:          &http.Client{Transport: transport},
	}
}

// SetLogger sets the operational logger.
func (h *Handler) SetLogger(log *slog.Logger) {
	if log != nil {
		h.log = log
	}
}

// SetMetrics sets the request metrics sink.
func (h *Handler) SetMetrics(m RequestMetrics) {
	if m != nil {
		h.metrics = m
	}
}

// SetMaxBodySize sets the request body limit.
func (h *Handler) SetMaxBodySize(n int64) {
	if n > 0 {
		h.maxBodySize = n
	}
}

// SetForwardTimeout bounds forwarded requests.
func (h *Handler) SetForwardTimeout(d time.Duration) {
	if d > 0 {
		h.forwardTimeout = d
	}
}

// SetCallbackTimeout bounds callback requests.
func (h *Handler) SetCallbackTimeout(d time.Duration) {
	if d > 0 {
		h.callbackTimeout = d
	}
}

// SetTransport sets the transport used for forwards and callbacks.
func (h *Handler) SetTransport(rt http.RoundTripper) {
	if rt != nil {
		h.transport = rt
		h.client = &http.Client{Transport: rt}
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := httputil.NewStatusRecorder(w)
	defer func() {
		h.metrics.ObserveRequest(r.Method, rec.Status(), time.Since(start))
	}()

	r.Body = http.MaxBytesReader(rec, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(rec, http.StatusRequestEntityTooLarge, httputil.CodeBodyTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", h.maxBodySize))
			return
		}
		h.log.Warn("failed to read request body", "method", r.Method, "path", r.URL.Path, "error", err)
		httputil.WriteError(rec, http.StatusBadRequest, httputil.CodeInvalidJSON, "failed to read request body")
		return
	}

	req := DecodeRequest(r, body)
	exp := h.store.FindMatch(req)
	if exp == nil {
		h.log.Debug("no expectation matched",
			"method", req.Method,
			"path", req.Path,
			"correlationId", req.CorrelationID,
		)
		rec.WriteHeader(http.StatusNotFound)
		return
	}

	h.log.Debug("expectation matched",
		"id", exp.ID,
		"action", exp.Action(),
		"method", req.Method,
		"path", req.Path,
		"correlationId", req.CorrelationID,
	)
	switch exp.Action() {
	case expectation.ActionRespond:
		h.respond(rec, r, exp.HttpResponse)
	case expectation.ActionForward:
		h.forward(rec, r, body, exp.HttpForward)
	case expectation.ActionError:
		h.fail(rec, r, exp.HttpError)
	case expectation.ActionCallback:
		h.callback(rec, r, req, exp.HttpCallback)
	default:
		httputil.WriteError(rec, http.StatusInternalServerError, httputil.CodeInternal,
			fmt.Sprintf("expectation %s has no action", exp.ID))
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
