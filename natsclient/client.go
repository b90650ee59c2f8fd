package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/health"
	"github.com/c360/symbolws/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

const initialBackoff = time.Second

// Client owns the NATS connection relayed events are published on. Failed
// connects feed a circuit breaker; once connected, reconnects are left to
// nats.go and observed through its handlers.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *metric.Metrics

	name             string
	token            string
	maxReconnects    int
	reconnectWait    time.Duration
	pingInterval     time.Duration
	connectTimeout   time.Duration
	drainTimeout     time.Duration
	circuitThreshold int32
	maxBackoff       time.Duration
	onStatus         func(from, to ConnectionStatus)

	status          atomic.Int32
	failures        atomic.Int32
	circuitFailures atomic.Int32
	reconnects      atomic.Int64
	backoff         atomic.Int64 // time.Duration
	lastFailure     atomic.Int64 // unix nanos, 0 when none

	mu     sync.RWMutex
	conn   *nats.Conn
	closed atomic.Bool
	// serializes Close
	closeMu sync.Mutex
}

// NewClient creates a disconnected client for url.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		connectTimeout:   5 * time.Second,
		drainTimeout:     10 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Client", "NewClient", "apply option")
		}
	}

	c.logger = c.logger.With("component", "natsclient", "url", url)
	c.backoff.Store(int64(initialBackoff))
	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string { return m.url }

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	return ConnectionStatus(m.status.Load())
}

// IsHealthy reports whether the connection is usable for publishing.
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the failed connects since the last successful one.
func (m *Client) Failures() int32 { return m.failures.Load() }

// Reconnects returns how often nats.go re-established a lost connection.
func (m *Client) Reconnects() int64 { return m.reconnects.Load() }

// Backoff returns how long the circuit stays open after the next trip.
func (m *Client) Backoff() time.Duration {
	return time.Duration(m.backoff.Load())
}

// LastFailure returns when the last connect failed, or the zero time.
func (m *Client) LastFailure() time.Time {
	if ns := m.lastFailure.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

func (m *Client) setStatus(to ConnectionStatus) {
	from := ConnectionStatus(m.status.Swap(int32(to)))
	m.notify(from, to)
}

func (m *Client) casStatus(from, to ConnectionStatus) bool {
	if !m.status.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	m.notify(from, to)
	return true
}

func (m *Client) notify(from, to ConnectionStatus) {
	if from == to {
		return
	}
	m.metrics.RecordNATSStatus(to == StatusConnected)
	if m.onStatus != nil {
		m.onStatus(from, to)
	}
}

// recordFailure counts a failed connect. Reaching the threshold opens the
// circuit for the current backoff, which doubles up to maxBackoff.
func (m *Client) recordFailure() {
	total := m.failures.Add(1)
	m.lastFailure.Store(time.Now().UnixNano())
	round := m.circuitFailures.Add(1)
	m.logger.Debug("Recorded NATS failure", "failures", total, "circuit_failures", round)
	if round < m.circuitThreshold {
		return
	}

	open := m.Backoff()
	next := min(open*2, m.maxBackoff)
	m.backoff.Store(int64(next))
	m.circuitFailures.Store(0)

	if m.Status() == StatusCircuitOpen {
		m.logger.Warn("Circuit breaker still open", "backoff", next)
		return
	}
	m.setStatus(StatusCircuitOpen)
	m.logger.Warn("Circuit breaker opened", "failures", round, "open_for", open)
	time.AfterFunc(open, m.halfOpen)
}

func (m *Client) resetCircuit() {
	m.failures.Store(0)
	m.circuitFailures.Store(0)
	m.backoff.Store(int64(initialBackoff))
	m.lastFailure.Store(0)
}

// halfOpen lets the next Connect try again.
func (m *Client) halfOpen() {
	if m.casStatus(StatusCircuitOpen, StatusDisconnected) {
		m.logger.Debug("Circuit breaker half-open")
	}
}

func (m *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.connectTimeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}
	if m.name != "" {
		opts = append(opts, nats.Name(m.name))
	}
	return opts
}

// Connect dials the server once. While the circuit is open it fails fast
// with ErrCircuitOpen; Backoff tells the caller when to try again.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "check state")
	}
	if m.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS")

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	opts := m.connectionOptions()
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		done <- result{conn, err}
	}()

	var conn *nats.Conn
	select {
	case res := <-done:
		if res.err != nil {
			return m.connectFailed(errors.WrapTransient(res.err, "Client", "Connect", "establish connection"))
		}
		conn = res.conn
	case <-ctx.Done():
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return m.connectFailed(errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled"))
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		conn.Close()
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "store connection")
	}
	m.conn = conn
	m.mu.Unlock()

	m.resetCircuit()
	m.setStatus(StatusConnected)
	m.logger.Info("Connected to NATS", "server", conn.ConnectedUrlRedacted())
	return nil
}

func (m *Client) connectFailed(err error) error {
	m.recordFailure()
	if m.Status() == StatusCircuitOpen {
		return errors.Join(ErrCircuitOpen, err)
	}
	m.setStatus(StatusDisconnected)
	m.logger.Warn("NATS connection failed", "error", err)
	return err
}

// Close drains pending publishes, bounded by the drain timeout and ctx, then
// closes the connection. It is safe to call more than once.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Swap(true) {
		return nil
	}

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.token = ""
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = m.drain(ctx, conn)
		conn.Close()
	}
	m.setStatus(StatusDisconnected)
	return err
}

func (m *Client) drain(ctx context.Context, conn *nats.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, m.drainTimeout)
	defer cancel()

	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()

	var err error
	select {
	case err = <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.logger.Error("Drain failed, force closing", "error", err)
		return errors.WrapTransient(err, "Client", "Close", "drain connection")
	}
	return nil
}

// RTT returns the round-trip time to the NATS server
func (m *Client) RTT() (time.Duration, error) {
	conn := m.connection()
	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Publish publishes data on subject. It fails with ErrNotConnected while no
// connection is up; nats.go buffers publishes made during a reconnect.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := m.connection()
	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

func (m *Client) connection() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// Health reports the connection as a health status for the monitor.
func (m *Client) Health() health.Status {
	status := m.Status()
	var s health.Status
	switch status {
	case StatusConnected:
		s = health.NewHealthy("nats", "Connected")
		if rtt, err := m.RTT(); err == nil {
			s.Message = fmt.Sprintf("Connected (rtt %v)", rtt.Round(time.Microsecond))
		}
	case StatusConnecting, StatusReconnecting:
		s = health.NewDegraded("nats", "NATS "+status.String())
	default:
		msg := "NATS " + status.String()
		if n := m.Failures(); n > 0 {
			msg = fmt.Sprintf("%s after %d failed connects", msg, n)
		}
		s = health.NewUnhealthy("nats", msg)
	}
	return s.WithMetrics(&health.Metrics{Reconnects: m.Reconnects()})
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("Disconnected from NATS", "error", err)
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.reconnects.Add(1)
	m.metrics.RecordNATSReconnect()
	m.setStatus(StatusConnected)
	m.logger.Info("Reconnected to NATS")
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)
}

func (m *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	m.logger.Error("NATS error", "error", err)
}
