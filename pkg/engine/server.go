package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mock-server/mockserver-sub017/internal/storage"
	"github.com/mock-server/mockserver-sub017/pkg/config"
	"github.com/mock-server/mockserver-sub017/pkg/dashboard"
	"github.com/mock-server/mockserver-sub017/pkg/engine/api"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
	"github.com/mock-server/mockserver-sub017/pkg/metrics"
	"github.com/mock-server/mockserver-sub017/pkg/persistence"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLogBroadcaster streams log records to dashboard clients. The
// broadcaster should also be a handler of the logger passed to WithLogger.
func WithLogBroadcaster(b *dashboard.LogBroadcaster) ServerOption {
	return func(s *Server) {
		s.logs = b
	}
}

// WithVersion sets the version reported by the status endpoint.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is a mock server: the expectation store, the request log, the
// mocked traffic handler and the control plane behind one listener.
type Server struct {
	cfg     *config.ServerConfig
	log     *slog.Logger
	logs    *dashboard.LogBroadcaster
	version string

	store     *storage.ExpectationStore
	requests  *requestlog.MemoryStore
	verifier  *verification.Engine
	metrics   *metrics.Registry
	handler   *Handler
	api       *api.Server
	dashboard *dashboard.Handler
	persister *persistence.Persister
	watcher   *persistence.Watcher

	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	started  time.Time
}

// NewServer builds a Server from cfg. A nil cfg uses config.Default.
func NewServer(cfg *config.ServerConfig, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{cfg: cfg, log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	matchOpts := cfg.MatchingOptions()
	s.requests = requestlog.NewMemoryStore(cfg.MaxLogEntries)

	storeOpts := []storage.Option{
		storage.WithLogger(logging.Component(s.log, "store")),
		storage.WithRequestLog(s.requests),
		storage.WithMatchingOptions(matchOpts),
		storage.WithMaxExpectations(cfg.MaxExpectations),
		storage.WithNearMisses(cfg.NearMisses),
	}
	verifyOpts := []verification.Option{
		verification.WithLogger(logging.Component(s.log, "verification")),
		verification.WithMatchingOptions(matchOpts),
	}
	apiOpts := []api.Option{
		api.WithLogger(logging.Component(s.log, "api")),
		api.WithMatchingOptions(matchOpts),
		api.WithMaxBodySize(cfg.MaxRequestBodySize),
	}
	if cfg.Metrics {
		s.metrics = metrics.New()
		storeOpts = append(storeOpts, storage.WithMetrics(s.metrics))
		verifyOpts = append(verifyOpts, verification.WithMetrics(s.metrics))
		apiOpts = append(apiOpts, api.WithMetrics(s.metrics), api.WithMetricsHandler(s.metrics.Handler()))
	}

	s.store = storage.New(storeOpts...)
	s.verifier = verification.New(s.requests, verifyOpts...)

	s.handler = NewHandler(s.store)
	s.handler.SetLogger(logging.Component(s.log, "handler"))
	s.handler.SetMaxBodySize(cfg.MaxRequestBodySize)
	s.handler.SetForwardTimeout(cfg.ForwardTimeout.Std())
	s.handler.SetCallbackTimeout(cfg.CallbackTimeout.Std())
	if s.metrics != nil {
		s.handler.SetMetrics(s.metrics)
	}

	if cfg.Dashboard {
		s.dashboard = dashboard.New(s.store, s.requests,
			dashboard.WithLogger(logging.Component(s.log, "dashboard")),
			dashboard.WithLogs(s.logs),
		)
		apiOpts = append(apiOpts, api.WithDashboard(s.dashboard))
	}
	s.api = api.NewServer(s, apiOpts...)

	if cfg.PersistExpectations {
		s.persister = persistence.NewPersister(cfg.PersistedExpectationsPath, logging.Component(s.log, "persistence"))
	}
	if cfg.WatchInitialization {
		s.watcher = persistence.NewWatcher(cfg.InitializationPath, s.store,
			persistence.WithWatcherLogger(logging.Component(s.log, "watcher")),
		)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
	return s, nil
}

// Handler routes /mockserver/ to the control plane and everything else to
// the mocked traffic handler. Paths are not cleaned or redirected.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, api.BasePath+"/") {
			s.api.ServeHTTP(w, r)
			return
		}
		s.handler.ServeHTTP(w, r)
	})
}

// LoadInitializers loads the initializer files into the store. Valid
// expectations are stored even when others are rejected; the returned error
// lists the rejected ones.
func (s *Server) LoadInitializers() error {
	if s.cfg.InitializationPath == "" {
		return nil
	}
	es, err := config.LoadExpectations(s.cfg.InitializationPath)
	if err != nil {
		return fmt.Errorf("loading initializer files: %w", err)
	}
	err = s.store.Update(es, storage.CauseInitializer)
	s.log.Info("initializer files loaded", "path", s.cfg.InitializationPath, "expectations", len(es))
	return err
}

// Listen binds the listener. Run calls it when it has not been called yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Run serves until ctx is cancelled or a component fails, then shuts the
// HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	// Listeners are attached before Serve so no change is missed.
	if s.persister != nil {
		detach := s.persister.Attach(s.store)
		defer detach()
	}

	g, ctx := errgroup.WithContext(ctx)
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	s.mu.Lock()
	s.started = time.Now()
	ln := s.listener
	s.mu.Unlock()
	s.log.Info("mock server started", "addr", ln.Addr().String(), "version", s.version)

	if s.watcher != nil {
		if err := s.watcher.Watch(); err != nil {
			s.log.Warn("cannot watch initializer files", "path", s.cfg.InitializationPath, "error", err)
		} else {
			g.Go(func() error {
				return s.watcher.Run(ctx)
			})
		}
	}
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Std())
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.store.RunSweeper(ctx, s.cfg.SweepInterval.Std())
	})

	err := g.Wait()
	s.log.Info("mock server stopped", "addr", ln.Addr().String())
	return err
}

// Store returns the expectation store.
func (s *Server) Store() *storage.ExpectationStore {
	return s.store
}

// Verifier returns the verification engine.
func (s *Server) Verifier() *verification.Engine {
	return s.verifier
}

// Metrics returns the metrics registry, or nil when metrics are disabled.
func (s *Server) Metrics() *metrics.Registry {
	return s.metrics
}

// The methods below implement api.EngineController.

// AddExpectation stores e on behalf of the control plane.
func (s *Server) AddExpectation(e *expectation.Expectation) (*expectation.Expectation, error) {
	return s.store.Add(e, storage.CauseAPI)
}

// RemoveExpectation removes the expectation with the given ID.
func (s *Server) RemoveExpectation(id string) bool {
	return s.store.RemoveByID(id, storage.CauseAPI)
}

// ClearExpectations removes the expectations selected by pattern, or all of
// them when pattern is nil.
func (s *Server) ClearExpectations(pattern *expectation.RequestDefinition) (int, error) {
	return s.store.Clear(pattern, storage.CauseAPI)
}

// ActiveExpectations lists the active expectations selected by pattern.
func (s *Server) ActiveExpectations(pattern *expectation.RequestDefinition) ([]*expectation.Expectation, error) {
	return s.store.RetrieveActiveExpectations(pattern)
}

// Requests returns the request log.
func (s *Server) Requests() requestlog.Store {
	return s.requests
}

// Verify runs a count verification.
func (s *Server) Verify(v *verification.Verification) (*verification.Result, error) {
	return s.verifier.Verify(v)
}

// VerifySequence runs a sequence verification.
func (s *Server) VerifySequence(seq *verification.Sequence) (*verification.Result, error) {
	return s.verifier.VerifySequence(seq)
}

// Reset removes every expectation and logged request.
func (s *Server) Reset() {
	s.store.Reset(storage.CauseAPI)
	s.requests.Clear()
}

// Status describes the running server.
func (s *Server) Status() *api.StatusResponse {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	status := &api.StatusResponse{
		Status:              "running",
		Version:             s.version,
		Ports:               []int{},
		Expectations:        s.store.Len(),
		ExpectationsVersion: s.store.Version(),
		Requests:            s.requests.Count(),
	}
	if port := s.Port(); port != 0 {
		status.Ports = append(status.Ports, port)
	}
	if !started.IsZero() {
		status.UptimeSeconds = int64(time.Since(started).Seconds())
	}
	return status
}
