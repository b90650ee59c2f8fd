package client

import (
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/events"
	"github.com/c360/symbolws/pkg/retry"
	"github.com/c360/symbolws/protocol"
	"github.com/c360/symbolws/staleness"
)

const reasonAbnormal = "abnormal closure"

// sessionResult describes how one connection generation ended.
type sessionResult struct {
	code   int
	reason string
	opened bool
	// err explains a generation that ended before its handshake
	err error
}

// run owns the reconnect loop from the first dial until the client is closed.
func (c *Client) run(endpoint string) {
	attempt := 0
	first := true
	for {
		res := sessionResult{code: websocket.CloseAbnormalClosure, reason: reasonAbnormal}
		if endpoint != "" {
			res = c.session(endpoint)
		}
		if res.opened {
			attempt = 0
		}

		if c.stopRequested() {
			if res.code == websocket.CloseAbnormalClosure {
				res.code, res.reason = int(protocol.CloseInstruction), protocol.CloseInstruction.Reason()
			}
			c.finish(res.code, res.reason)
			return
		}
		if first && !res.opened && c.abandonConnect(res.failure()) {
			c.logger.Info("First connection failed, client is idle", "code", res.code, "reason", res.reason)
			return
		}
		first = false
		c.announceReconnect(res.code, res.reason)

		delay := c.cfg.Backoff.Delay(attempt)
		attempt++
		c.logger.Debug("Reconnect scheduled", "delay", delay, "attempt", attempt)
		if err := retry.Sleep(c.runCtx, delay); err != nil {
			c.finish(int(protocol.CloseInstruction), protocol.CloseInstruction.Reason())
			return
		}

		endpoint = c.nextEndpoint()
	}
}

// failure returns the error of a generation that never opened.
func (r sessionResult) failure() error {
	if r.err != nil {
		return r.err
	}
	if r.code == int(protocol.CloseTimeout) {
		return errors.WrapTransient(errors.ErrHandshakeTimeout, "Client", "session", "await handshake")
	}
	return errors.WrapTransient(
		fmt.Errorf("%w: socket closed before handshake (code %d: %s)", errors.ErrConnectionLost, r.code, r.reason),
		"Client", "session", "await handshake")
}

func (c *Client) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stayConnected
}

// nextEndpoint asks the directory for a fresh endpoint. On an empty cache it
// refreshes once and retries; failures surface as error events and "" is returned.
func (c *Client) nextEndpoint() string {
	endpoint, err := c.dir.PickOne(c.cfg.RequireTLS)
	if err != nil && errors.Is(err, errors.ErrEmptyCache) {
		if rerr := c.dir.Refresh(c.runCtx); rerr == nil {
			endpoint, err = c.dir.PickOne(c.cfg.RequireTLS)
		}
	}
	if err != nil {
		if c.runCtx.Err() == nil {
			c.emitError(errors.Wrap(err, "Client", "nextEndpoint", "pick endpoint"))
		}
		return ""
	}
	return endpoint
}

// announceReconnect emits at most one reconnect event between two opens.
func (c *Client) announceReconnect(code int, reason string) {
	c.mu.Lock()
	if !c.stayConnected {
		c.mu.Unlock()
		return
	}
	c.setPhaseLocked(PhaseReconnecting)
	if c.announced {
		c.mu.Unlock()
		return
	}
	c.announced = true
	c.reconnects++
	c.mu.Unlock()

	c.metrics.RecordReconnect(code)
	c.logger.Info("Connection lost, reconnecting", "code", code, "reason", reason)
	c.bus.Publish(events.Reconnect{Code: code, Reason: reason})
}

// beginGeneration moves to Connecting with a new endpoint and resolves the
// endpoint future of this generation.
func (c *Client) beginGeneration(endpoint string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stayConnected {
		return 0, false
	}
	c.state.Generation++
	c.state.Endpoint = endpoint
	c.state.Session = ""
	c.sentClose = 0
	c.setPhaseLocked(PhaseConnecting)
	c.endpoint.resolve(endpoint)
	return c.state.Generation, true
}

// endGeneration releases the socket and arms a fresh endpoint future.
func (c *Client) endGeneration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
	c.watchdog = nil
	c.state.Session = ""
	c.state.Endpoint = ""
	c.openedAt = time.Time{}
	c.endpoint = newEndpointFuture()
}

// session dials endpoint and serves it until the socket ends.
func (c *Client) session(endpoint string) sessionResult {
	res := sessionResult{code: websocket.CloseAbnormalClosure, reason: reasonAbnormal}

	gen, ok := c.beginGeneration(endpoint)
	if !ok {
		return res
	}
	logger := c.logger.With("endpoint", endpoint, "generation", gen)
	logger.Debug("Dialing node")

	conn, _, err := c.dialer.DialContext(c.runCtx, endpoint, nil)
	if err != nil {
		c.endGeneration()
		res.err = errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
			"Client", "session", "dial node")
		if c.runCtx.Err() == nil {
			c.emitError(res.err)
		}
		return res
	}
	defer conn.Close()

	wd := staleness.NewWatchdog(c.clock, c.cfg.ResponseTimeout, func() {
		c.forceClose(gen, protocol.CloseTimeout)
	})

	c.mu.Lock()
	if !c.stayConnected {
		c.mu.Unlock()
		c.endGeneration()
		return res
	}
	c.conn = conn
	c.watchdog = wd
	c.setPhaseLocked(PhaseAwaitingHandshake)
	c.mu.Unlock()

	wd.Arm()
	res = c.readLoop(conn, gen, wd)
	wd.Stop()
	c.endGeneration()

	logger.Debug("Socket ended", "code", res.code, "reason", res.reason)
	return res
}

// readLoop processes frames in arrival order. The watchdog is paused while a
// frame is dispatched and rearmed once its listeners have returned.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64, wd *staleness.Watchdog) sessionResult {
	opened := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := c.closeStatus(err)
			return sessionResult{code: code, reason: reason, opened: opened}
		}

		wd.Stop()
		if c.handleFrame(gen, data) {
			opened = true
		}
		wd.Arm()
	}
}

// closeStatus maps the error that ended a read loop to a close code and reason.
func (c *Client) closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if stderrors.As(err, &ce) {
		text := ce.Text
		if text == "" && protocol.CloseCode(ce.Code).Private() {
			text = protocol.CloseCode(ce.Code).Reason()
		}
		return ce.Code, text
	}

	c.mu.Lock()
	sent := c.sentClose
	c.mu.Unlock()
	if sent != 0 {
		return int(sent), sent.Reason()
	}

	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		c.emitError(errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "readLoop", "read frame"))
	} else {
		c.emitError(errors.WrapTransient(err, "Client", "readLoop", "read frame"))
	}
	return websocket.CloseAbnormalClosure, reasonAbnormal
}

// handleFrame decodes and dispatches one frame. It reports whether the frame
// completed the handshake.
func (c *Client) handleFrame(gen uint64, data []byte) bool {
	c.mu.Lock()
	c.frames++
	c.mu.Unlock()

	frame, err := protocol.Decode(data)
	if err != nil {
		c.metrics.RecordDropped("malformed")
		c.logger.Debug("Dropping malformed frame", "error", err)
		return false
	}

	switch frame.Kind {
	case protocol.KindHandshake:
		return c.handleHandshake(gen, frame.UID)
	case protocol.KindTopic:
		c.handleTopic(gen, frame)
	default:
		c.metrics.RecordDropped("unknown")
	}
	return false
}

func (c *Client) handleHandshake(gen uint64, uid string) bool {
	c.mu.Lock()
	if c.state.Generation != gen || c.state.Phase != PhaseAwaitingHandshake {
		c.mu.Unlock()
		c.metrics.RecordDropped("unexpected_handshake")
		return false
	}
	c.state.Session = uid
	c.setPhaseLocked(PhaseOpen)
	c.announced = false
	c.awaiting = false
	c.lastErr = nil
	c.openedAt = c.clock.Now()
	endpoint := c.state.Endpoint
	c.mu.Unlock()

	c.metrics.RecordFrame(protocol.KindHandshake.String())
	c.metrics.RecordConnection()
	c.logger.Info("Connected", "endpoint", endpoint, "generation", gen)

	c.firstOpenOnce.Do(func() { close(c.firstOpen) })
	c.bus.Publish(events.Open{URL: endpoint, Session: uid})
	return true
}

func (c *Client) handleTopic(gen uint64, frame protocol.Frame) {
	c.mu.Lock()
	open := c.state.Generation == gen && c.state.Phase == PhaseOpen
	c.mu.Unlock()
	if !open {
		c.metrics.RecordDropped("before_handshake")
		return
	}

	ev, err := events.FromFrame(frame)
	if err != nil {
		c.metrics.RecordDropped("invalid_payload")
		c.logger.Debug("Dropping topic frame", "topic", string(frame.Topic), "error", err)
		return
	}
	c.metrics.RecordFrame(ev.Name())

	if b, ok := ev.(events.BlockEvent); ok {
		lag, verdict := c.checker.Check(uint64(b.Block.Block.Timestamp), c.clock.Now())
		c.metrics.RecordBlockLag(lag)
		if verdict != staleness.VerdictOK {
			c.logger.Warn("Block outside lag tolerance",
				"verdict", verdict.String(),
				"lag", lag,
				"height", uint64(b.Block.Block.Height))
			c.forceClose(gen, verdict.CloseCode())
		}
	}

	c.bus.Publish(ev)
}

// forceClose starts a client-initiated close of generation gen. Only the first
// close code of a generation is sent.
func (c *Client) forceClose(gen uint64, code protocol.CloseCode) {
	c.mu.Lock()
	if c.state.Generation != gen || c.conn == nil || c.sentClose != 0 {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.sentClose = code
	c.setPhaseLocked(PhaseClosing)
	c.mu.Unlock()

	c.metrics.RecordLivenessClose(int(code))
	c.logger.Warn("Closing unhealthy connection", "code", int(code), "reason", code.Reason(), "generation", gen)
	c.writeClose(conn, code)
}
