package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/events"
	"github.com/c360/symbolws/health"
	"github.com/c360/symbolws/metric"
	"github.com/c360/symbolws/protocol"
	"github.com/c360/symbolws/staleness"
	"github.com/c360/symbolws/subscription"
)

// Directory supplies endpoints. Refresh is called once before the first
// connection; PickOne before every dial.
type Directory interface {
	Refresh(ctx context.Context) error
	PickOne(requireTLS bool) (string, error)
}

// Client is a resilient subscription client for one node websocket at a time.
type Client struct {
	id       string
	cfg      Config
	dir      Directory
	logger   *slog.Logger
	metrics  *metric.Metrics
	dialer   *websocket.Dialer
	clock    staleness.Clock
	checker  staleness.BlockChecker
	bus      *events.Bus
	registry *subscription.Registry

	runCtx    context.Context
	cancelRun context.CancelFunc

	mu             sync.Mutex
	state          State
	stayConnected  bool
	closeRequested bool
	running        bool
	announced      bool
	awaiting       bool
	conn           *websocket.Conn
	sentClose      protocol.CloseCode
	watchdog       *staleness.Watchdog
	endpoint       *endpointFuture
	openedAt       time.Time
	lastErr        error
	reconnects     int64
	frames         int64

	writeMu sync.Mutex

	firstOpen     chan struct{}
	firstOpenOnce sync.Once
	connectErr    chan error
	done          chan struct{}
	finishOnce    sync.Once
}

// New creates an idle client. dir must not be nil.
func New(cfg Config, dir Directory, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil directory", errors.ErrInvalidArgument),
			"Client", "New", "validate directory")
	}

	c := &Client{
		id:         uuid.NewString(),
		cfg:        cfg,
		dir:        dir,
		logger:     slog.Default(),
		clock:      staleness.RealClock(),
		checker:    staleness.NewBlockChecker(cfg.Network),
		endpoint:   newEndpointFuture(),
		firstOpen:  make(chan struct{}),
		connectErr: make(chan error, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	} else if c.dialer.HandshakeTimeout == 0 {
		d := *c.dialer
		d.HandshakeTimeout = cfg.HandshakeTimeout
		c.dialer = &d
	}
	if c.bus == nil {
		c.bus = events.NewBus(c.logger)
	}
	if c.registry == nil {
		c.registry = subscription.NewRegistry()
	}
	c.logger = c.logger.With("component", "symbolws-client", "client_id", c.id, "network", cfg.Network.Name)
	c.runCtx, c.cancelRun = context.WithCancel(context.Background())
	c.metrics.RecordState(int(PhaseIdle))

	return c, nil
}

// ID returns the client instance id used in logs.
func (c *Client) ID() string { return c.id }

// Bus returns the event bus listeners register on.
func (c *Client) Bus() *events.Bus { return c.bus }

// Registry returns the subscription bookkeeping.
func (c *Client) Registry() *subscription.Registry { return c.registry }

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Done is closed after the final close event.
func (c *Client) Done() <-chan struct{} { return c.done }

// State returns a snapshot of the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect refreshes the directory, then blocks until the first handshake
// completes. A directory failure, a failed first dial or a socket that ends
// before the first handshake returns the client to Idle so Connect can be
// called again. If ctx ends first, Connect returns its error while the client
// keeps trying in the background until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state.Phase {
	case PhaseIdle:
	case PhaseClosed, PhaseClosing:
		c.mu.Unlock()
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "check state")
	default:
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyConnecting, "Client", "Connect", "check state")
	}
	c.stayConnected = true
	c.setPhaseLocked(PhaseConnecting)
	c.mu.Unlock()

	endpoint, err := c.firstEndpoint(ctx)

	c.mu.Lock()
	if c.closeRequested {
		c.mu.Unlock()
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "check state")
	}
	if err != nil {
		c.stayConnected = false
		c.lastErr = err
		c.setPhaseLocked(PhaseIdle)
		c.mu.Unlock()
		return err
	}
	c.running = true
	c.awaiting = true
	c.mu.Unlock()

	go c.run(endpoint)

	select {
	case <-c.firstOpen:
		return nil
	case err := <-c.connectErr:
		return errors.Wrap(err, "Client", "Connect", "await handshake")
	case <-c.done:
		return errors.WrapFatal(errors.ErrClosed, "Client", "Connect", "await handshake")
	case <-ctx.Done():
	}

	c.mu.Lock()
	c.awaiting = false
	c.mu.Unlock()
	select {
	case err := <-c.connectErr:
		return errors.Wrap(err, "Client", "Connect", "await handshake")
	default:
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "await handshake")
	}
}

// abandonConnect hands a failed first generation back to a waiting Connect
// and returns the client to Idle. It reports false when nobody waits or a
// close was requested; the run loop then keeps its normal course.
func (c *Client) abandonConnect(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.awaiting || !c.stayConnected {
		return false
	}
	c.awaiting = false
	c.stayConnected = false
	c.running = false
	c.lastErr = err
	c.setPhaseLocked(PhaseIdle)
	c.connectErr <- err
	return true
}

func (c *Client) firstEndpoint(ctx context.Context) (string, error) {
	if err := c.dir.Refresh(ctx); err != nil {
		c.logger.Error("Node directory refresh failed", "error", err)
		return "", errors.Wrap(err, "Client", "Connect", "refresh node directory")
	}
	endpoint, err := c.dir.PickOne(c.cfg.RequireTLS)
	if err != nil {
		c.logger.Error("No endpoint available", "require_tls", c.cfg.RequireTLS, "error", err)
		return "", errors.Wrap(err, "Client", "Connect", "pick endpoint")
	}
	return endpoint, nil
}

// Close stops reconnecting and closes the socket with 4000. It returns at once;
// the close event follows when the socket is gone, then Done is closed.
// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closeRequested {
		c.mu.Unlock()
		return nil
	}
	c.closeRequested = true
	c.stayConnected = false
	running := c.running
	conn := c.conn
	if running {
		c.setPhaseLocked(PhaseClosing)
	}
	if conn != nil && c.sentClose == 0 {
		c.sentClose = protocol.CloseInstruction
	}
	c.mu.Unlock()

	c.logger.Info("Closing client")
	c.cancelRun()

	if conn != nil {
		c.writeClose(conn, protocol.CloseInstruction)
	}
	if !running {
		c.finish(int(protocol.CloseInstruction), protocol.CloseInstruction.Reason())
	}
	return nil
}

// Endpoint waits for the endpoint of the current connection generation. It
// resolves as soon as an endpoint is picked, before the handshake.
func (c *Client) Endpoint(ctx context.Context) (string, error) {
	c.mu.Lock()
	f := c.endpoint
	c.mu.Unlock()

	select {
	case <-f.ready:
		return f.url, nil
	case <-c.done:
		return "", errors.WrapFatal(errors.ErrClosed, "Client", "Endpoint", "await endpoint")
	case <-ctx.Done():
		return "", errors.WrapTransient(ctx.Err(), "Client", "Endpoint", "await endpoint")
	}
}

// Subscribe sends a subscribe frame for topic and records it in the registry.
// It returns the frame sent. Outside the Open phase it fails with
// ErrNotConnected and writes nothing.
func (c *Client) Subscribe(topic protocol.Topic, address string) (string, error) {
	return c.send("Subscribe", topic, address, protocol.SubscribeFrame, func(s subscription.Subscription) {
		c.registry.Add(s)
	})
}

// Unsubscribe sends an unsubscribe frame for topic and removes it from the registry.
func (c *Client) Unsubscribe(topic protocol.Topic, address string) (string, error) {
	return c.send("Unsubscribe", topic, address, protocol.UnsubscribeFrame, func(s subscription.Subscription) {
		c.registry.Remove(s)
	})
}

func (c *Client) send(
	method string,
	topic protocol.Topic,
	address string,
	build func(uid string, topic protocol.Topic, address string) ([]byte, error),
	record func(subscription.Subscription),
) (string, error) {
	if err := protocol.ValidateSubscription(topic, address); err != nil {
		return "", errors.WrapInvalid(err, "Client", method, "validate subscription")
	}

	c.mu.Lock()
	if c.state.Phase != PhaseOpen || c.conn == nil {
		phase := c.state.Phase
		c.mu.Unlock()
		return "", errors.WrapInvalid(
			fmt.Errorf("%w (phase %s)", errors.ErrNotConnected, phase),
			"Client", method, "check connection")
	}
	conn, uid := c.conn, c.state.Session
	c.mu.Unlock()

	frame, err := build(uid, topic, address)
	if err != nil {
		return "", errors.WrapInvalid(err, "Client", method, "build frame")
	}
	if err := c.write(conn, frame); err != nil {
		return "", errors.WrapTransient(err, "Client", method, "write frame")
	}

	record(subscription.Subscription{Topic: topic, Address: address})
	c.logger.Debug("Frame sent", "frame", string(frame))
	return string(frame), nil
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(c.deadline(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) writeClose(conn *websocket.Conn, code protocol.CloseCode) {
	msg := websocket.FormatCloseMessage(int(code), code.Reason())
	if err := conn.WriteControl(websocket.CloseMessage, msg, c.deadline(c.cfg.WriteTimeout)); err != nil {
		c.logger.Debug("Close frame not sent", "code", int(code), "error", err)
	}
	// Bound the wait for the node's close reply.
	_ = conn.SetReadDeadline(c.deadline(c.cfg.CloseGrace))
}

// deadline returns a socket deadline. Socket deadlines always use wall time,
// whatever clock drives the watchdog.
func (c *Client) deadline(d time.Duration) time.Time {
	return time.Now().Add(d)
}

// Health derives the client health from its current state.
func (c *Client) Health() health.Status {
	c.mu.Lock()
	snapshot := health.Connection{
		Phase:      c.state.Phase.String(),
		Open:       c.state.Phase == PhaseOpen,
		Connecting: c.state.Phase == PhaseConnecting || c.state.Phase == PhaseAwaitingHandshake || c.state.Phase == PhaseReconnecting,
		Endpoint:   c.state.Endpoint,
		Since:      c.openedAt,
		Reconnects: c.reconnects,
		Frames:     c.frames,
	}
	if c.lastErr != nil {
		snapshot.LastError = c.lastErr.Error()
	}
	wd := c.watchdog
	c.mu.Unlock()

	if wd != nil {
		snapshot.LastFrame = wd.LastFrame()
	}
	return health.FromConnection("websocket", snapshot)
}

func (c *Client) setPhaseLocked(p Phase) {
	c.state.Phase = p
	c.metrics.RecordState(int(p))
}

func (c *Client) finish(code int, reason string) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		c.setPhaseLocked(PhaseClosed)
		c.state.Session = ""
		c.state.Endpoint = ""
		c.stayConnected = false
		c.running = false
		c.mu.Unlock()

		c.cancelRun()
		c.logger.Info("Client closed", "code", code, "reason", reason)
		c.bus.Publish(events.Close{Code: code, Reason: reason})
		close(c.done)
	})
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.metrics.RecordError("client", errors.Classify(err).String())
	c.logger.Warn("Transport error", "error", err)
	c.bus.Publish(events.Error{Err: err})
}
