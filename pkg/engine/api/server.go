package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mock-server/mockserver-sub017/internal/matching"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/httputil"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

// BasePath prefixes every control plane route.
const BasePath = "/mockserver"

// EngineController is the interface the API uses to drive the engine.
// It is implemented by engine.Server.
type EngineController interface {
	// Expectations
	AddExpectation(e *expectation.Expectation) (*expectation.Expectation, error)
	RemoveExpectation(id string) bool
	ClearExpectations(pattern *expectation.RequestDefinition) (int, error)
	ActiveExpectations(pattern *expectation.RequestDefinition) ([]*expectation.Expectation, error)

	// Request log
	Requests() requestlog.Store

	// Verification
	Verify(v *verification.Verification) (*verification.Result, error)
	VerifySequence(s *verification.Sequence) (*verification.Result, error)

	// Reset removes every expectation and logged request.
	Reset()

	Status() *StatusResponse
}

// Metrics receives control plane request outcomes.
type Metrics interface {
	ObserveControlRequest(endpoint string, status int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveControlRequest(string, int) {}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMatchingOptions sets the options request filters are compiled with.
func WithMatchingOptions(opts matching.Options) Option {
	return func(s *Server) {
		s.matchOpts = opts
	}
}

// WithMaxBodySize caps request bodies.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// WithMetrics records every control request.
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMetricsHandler serves handler on GET /mockserver/metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = handler
	}
}

// WithDashboard serves handler on GET /mockserver/dashboard/ws.
func WithDashboard(handler http.Handler) Option {
	return func(s *Server) {
		s.dashboard = handler
	}
}

// Server is the control plane handler.
type Server struct {
	engine         EngineController
	log            *slog.Logger
	matchOpts      matching.Options
	maxBodySize    int64
	metrics        Metrics
	metricsHandler http.Handler
	dashboard      http.Handler
	handler        http.Handler
}

// NewServer creates the control plane for engine.
func NewServer(engine EngineController, opts ...Option) *Server {
	s := &Server{
		engine:      engine,
		log:         logging.Nop(),
		matchOpts:   matching.DefaultOptions(),
		maxBodySize: httputil.DefaultMaxBodySize,
		metrics:     nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.withMiddleware(mux)
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT "+BasePath+"/expectation", s.handleCreateExpectations)
	mux.HandleFunc("PUT "+BasePath+"/clear", s.handleClear)
	mux.HandleFunc("PUT "+BasePath+"/reset", s.handleReset)
	mux.HandleFunc("PUT "+BasePath+"/retrieve", s.handleRetrieve)
	mux.HandleFunc("PUT "+BasePath+"/verify", s.handleVerify)
	mux.HandleFunc("PUT "+BasePath+"/verifySequence", s.handleVerifySequence)
	mux.HandleFunc("PUT "+BasePath+"/status", s.handleStatus)
	mux.HandleFunc("GET "+BasePath+"/status", s.handleStatus)
	mux.HandleFunc("GET "+BasePath+"/health", s.handleHealth)

	if s.metricsHandler != nil {
		mux.Handle("GET "+BasePath+"/metrics", s.metricsHandler)
	}
	if s.dashboard != nil {
		mux.Handle("GET "+BasePath+"/dashboard/ws", s.dashboard)
	}
}

// withMiddleware records the outcome of every request.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := httputil.NewStatusRecorder(w)
		next.ServeHTTP(rec, r)

		// The mux sets Pattern on the request it routed.
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.ObserveControlRequest(endpoint, rec.Status())
		s.log.Debug("control request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status(),
			"duration", time.Since(start),
		)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
