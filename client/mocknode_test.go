package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/c360/symbolws/events"
	"github.com/c360/symbolws/network"
)

// mockNode is a node websocket that hands out uid-1, uid-2, ... per connection.
type mockNode struct {
	srv      *httptest.Server
	url      string
	conns    chan *nodeConn
	accepted atomic.Int32
	// noHandshake suppresses the uid frame
	noHandshake atomic.Bool
}

type nodeConn struct {
	conn     *websocket.Conn
	uid      string
	received chan string
	closed   chan int
	writeMu  sync.Mutex
}

func newMockNode(t *testing.T) *mockNode {
	t.Helper()
	n := &mockNode{conns: make(chan *nodeConn, 16)}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		nc := &nodeConn{
			conn:     conn,
			uid:      fmt.Sprintf("uid-%d", n.accepted.Add(1)),
			received: make(chan string, 16),
			closed:   make(chan int, 1),
		}
		if !n.noHandshake.Load() {
			nc.send(fmt.Sprintf(`{"uid":"%s"}`, nc.uid))
		}
		n.conns <- nc

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					nc.closed <- ce.Code
				} else {
					nc.closed <- -1
				}
				return
			}
			nc.received <- string(data)
		}
	}))
	n.url = "ws" + n.srv.URL[4:] + "/ws"
	t.Cleanup(n.srv.Close)
	return n
}

func (n *mockNode) next(t *testing.T) *nodeConn {
	t.Helper()
	select {
	case nc := <-n.conns:
		return nc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func (nc *nodeConn) send(msg string) {
	nc.writeMu.Lock()
	defer nc.writeMu.Unlock()
	_ = nc.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (nc *nodeConn) closeWith(code int, reason string) {
	_ = nc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func (nc *nodeConn) waitClosed(t *testing.T) int {
	t.Helper()
	select {
	case code := <-nc.closed:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close frame")
		return 0
	}
}

func (nc *nodeConn) waitReceived(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-nc.received:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return ""
	}
}

// recorder captures every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	ch     chan events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{ch: make(chan events.Event, 128)}
	bus.SubscribeAll(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
		r.ch <- e
	})
	return r
}

// waitFor consumes events until one named name arrives.
func (r *recorder) waitFor(t *testing.T, name string) events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.ch:
			if e.Name() == name {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event; saw %v", name, r.names())
			return nil
		}
	}
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name()
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Network = network.Mainnet
	cfg.RequireTLS = false
	cfg.CloseGrace = 500 * time.Millisecond
	cfg.Backoff.Initial = time.Millisecond
	cfg.Backoff.Max = 5 * time.Millisecond
	cfg.Backoff.Jitter = false
	return cfg
}

// blockFrame builds a block frame whose timestamp is at blockTime.
func blockFrame(n network.Network, blockTime time.Time) string {
	ts := blockTime.Sub(n.Epoch).Milliseconds()
	return fmt.Sprintf(`{"topic":"block","data":{"block":{"height":"1200000","timestamp":"%d"},"meta":{"hash":"BLOCKHASH"}}}`, ts)
}

func mustConnect(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := contextWithTimeout(5 * time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
}
