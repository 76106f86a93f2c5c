package gateway

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/identity"
	"github.com/c360/semchat/metric"
)

// Session is the part of chat.Session the gateway drives.
type Session interface {
	Identity() identity.Identity
	Snapshot() []chat.Message
	Submit(ctx context.Context, text string) (chat.Message, error)
	Delete(ctx context.Context, id string) error
	Refresh(ctx context.Context) error
	Ready() bool
	StreamErr() error
}

const (
	defaultRequestTimeout = 10 * time.Second
	maxRequestBody        = 64 << 10
)

// Server binds one Session to HTTP and WebSocket clients.
type Server struct {
	session        Session
	notifier       *Notifier
	registry       *metric.MetricsRegistry
	logger         *slog.Logger
	requestTimeout time.Duration
	writeRate      rate.Limit
	writeBurst     int
	httpWrites     *rate.Limiter

	upgrader websocket.Upgrader
	hub      *hub
	mux      *http.ServeMux
	metrics  *gatewayMetrics

	mu       sync.Mutex
	stopped  bool
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier supplies the Notifier wired into the session's change handler.
func WithNotifier(n *Notifier) Option {
	return func(s *Server) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetricsRegistry exposes registry on /metrics and records gateway
// metrics into it.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithRequestTimeout bounds each store call made on behalf of a client.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithWriteRateLimit caps sends and deletes at perSecond with the given
// burst. HTTP writes share one limiter; each WebSocket client gets its own.
// A non-positive perSecond disables the limit.
func WithWriteRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.writeRate, s.writeBurst = rate.Inf, 0
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.writeRate, s.writeBurst = rate.Limit(perSecond), burst
	}
}

// WithCheckOrigin overrides the WebSocket origin check. The default accepts
// every origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// NewServer builds the routes for session.
func NewServer(session Session, opts ...Option) (*Server, error) {
	if session == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "NewServer", "session check")
	}

	s := &Server{
		session:        session,
		logger:         slog.Default(),
		requestTimeout: defaultRequestTimeout,
		writeRate:      rate.Inf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewNotifier()
	}
	s.logger = s.logger.With("component", "gateway")
	s.httpWrites = s.newWriteLimiter()

	m, err := newGatewayMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	s.hub = newHub(s.logger, m)
	s.mux = s.routes()
	return s, nil
}

func (s *Server) newWriteLimiter() *rate.Limiter {
	return rate.NewLimiter(s.writeRate, s.writeBurst)
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Notify schedules a snapshot push to every WebSocket client.
func (s *Server) Notify() {
	s.notifier.Notify()
}

// Start listens on addr and begins serving and broadcasting. It returns once
// the listener is bound.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.WrapFatal(stderrors.New("already started"), "Gateway", "Start", "state check")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "Start", "listen")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.listener = ln
	s.cancel = cancel
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.broadcastLoop(runCtx)
	go func(srv *http.Server) {
		defer close(s.done)
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}(s.server)

	s.logger.Info("Gateway listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes WebSocket clients and stops the HTTP server within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel, done := s.server, s.cancel, s.done
	already := s.stopped
	s.stopped = true
	s.mu.Unlock()
	if srv == nil || already {
		return nil
	}

	cancel()
	s.hub.closeAll()
	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	if err != nil {
		return errors.WrapTransient(err, "Gateway", "Shutdown", "http shutdown")
	}
	s.logger.Info("Gateway stopped")
	return nil
}

// broadcastLoop reads a fresh snapshot for every coalesced change signal.
func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notifier.C():
			s.hub.broadcast(snapshotFrame(s.session.Snapshot()))
		}
	}
}

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	wsClients prometheus.Gauge
}

func newGatewayMetrics(registry *metric.MetricsRegistry) (*gatewayMetrics, error) {
	m := &gatewayMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semchat",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status code",
		}, []string{"route", "code"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semchat",
			Subsystem: "gateway",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}),
	}
	if registry == nil {
		return m, nil
	}
	if err := registry.Register("gateway", "requests_total", m.requests); err != nil {
		return nil, err
	}
	if err := registry.Register("gateway", "websocket_clients", m.wsClients); err != nil {
		return nil, err
	}
	return m, nil
}
