// Package server exposes the HTTP surface of symbolws: health, metrics,
// the current node endpoint, active subscriptions and daily price history.
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/health"
	"github.com/c360/symbolws/metric"
	"github.com/c360/symbolws/price"
	"github.com/c360/symbolws/subscription"
)

// EndpointSource yields the websocket endpoint of the current connection.
type EndpointSource interface {
	Endpoint(ctx context.Context) (string, error)
}

// SubscriptionLister lists the active subscriptions.
type SubscriptionLister interface {
	List() []subscription.Subscription
}

// PriceService serves daily price history and runs pipeline steps on demand.
type PriceService interface {
	History(ctx context.Context, symbol, currency string, from, to time.Time) ([]price.DailyPrice, error)
	Latest(ctx context.Context, symbol, currency string) (price.Point, error)
	ImportHourly(ctx context.Context) (int64, error)
	SummarizeDaily(ctx context.Context) (int, error)
	Location() *time.Location
	Now() time.Time
}

// Config configures the HTTP server.
type Config struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	// EndpointTimeout bounds how long /nodehost waits for a connection endpoint.
	EndpointTimeout time.Duration `json:"endpoint_timeout" yaml:"endpoint_timeout"`
	// DefaultSymbol and DefaultCurrency apply to price queries without them.
	DefaultSymbol   string `json:"default_symbol" yaml:"default_symbol"`
	DefaultCurrency string `json:"default_currency" yaml:"default_currency"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		EndpointTimeout: 5 * time.Second,
		DefaultSymbol:   "symbol",
		DefaultCurrency: "jpy",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.EndpointTimeout <= 0 {
		c.EndpointTimeout = d.EndpointTimeout
	}
	if c.DefaultSymbol == "" {
		c.DefaultSymbol = d.DefaultSymbol
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = d.DefaultCurrency
	}
	return c
}

// Deps are the components the server reads from. Prices may be nil when the
// price pipeline is disabled.
type Deps struct {
	Endpoint      EndpointSource
	Subscriptions SubscriptionLister
	Health        *health.Monitor
	Metrics       *metric.MetricsRegistry
	Prices        PriceService
}

// Server is the HTTP surface.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	tls      *tls.Config
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTLS serves HTTPS with cfg; nil keeps plain HTTP.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tls = cfg }
}

// New creates a Server. Endpoint, Subscriptions and Health are required.
func New(cfg Config, deps Deps, opts ...Option) (*Server, error) {
	if deps.Endpoint == nil || deps.Subscriptions == nil || deps.Health == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: endpoint, subscriptions and health are required", errors.ErrInvalidArgument),
			"Server", "New", "validate dependencies")
	}
	s := &Server{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http")
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/nodehost", s.handleNodeHost)
	mux.HandleFunc("/subscriptions", s.handleSubscriptions)
	mux.HandleFunc("/price", s.handlePrice)
	mux.HandleFunc("/price/latest", s.handleLatestPrice)
	mux.HandleFunc("/price/import", s.handleImport)
	mux.HandleFunc("/price/summary", s.handleSummary)
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", metric.Handler(s.deps.Metrics))
	}
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(fmt.Errorf("server already running"), "Server", "Start", "start server")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on %s", s.cfg.Addr))
	}

	if s.tls != nil {
		ln = tls.NewListener(ln, s.tls)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	return nil
}

// Run starts the server and shuts it down when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown HTTP server")
	}
	return nil
}

// Address returns the base URL, or "" when not running.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	scheme := "http://"
	if s.tls != nil {
		scheme = "https://"
	}
	return scheme + s.listener.Addr().String()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the error class onto an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	case errors.IsTransient(err):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
