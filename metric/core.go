package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "symbolws"

// Metrics contains the websocket client and NATS relay metrics.
// Record methods are no-ops on a nil *Metrics so callers may run without metrics.
type Metrics struct {
	// Connection metrics
	ConnectionsTotal prometheus.Counter
	ReconnectsTotal  *prometheus.CounterVec
	ConnectionState  prometheus.Gauge
	LivenessCloses   *prometheus.CounterVec

	// Frame metrics
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	BlockLag       prometheus.Gauge
	ErrorsTotal    *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the core metric collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connections_total",
			Help:      "Total number of completed node handshakes",
		}),

		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnects_total",
			Help:      "Total number of reconnects by close code",
		}, []string{"code"}),

		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connection_state",
			Help:      "Connection phase (0=idle, 1=connecting, 2=awaiting_handshake, 3=open, 4=closing, 5=reconnecting, 6=closed)",
		}),

		LivenessCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "liveness_closes_total",
			Help:      "Connections closed by the client for timeout or block lag, by close code",
		}, []string{"code"}),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_received_total",
			Help:      "Total frames received by kind or topic",
		}, []string{"kind"}),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_dropped_total",
			Help:      "Total frames dropped by reason",
		}, []string{"reason"}),

		BlockLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "block_lag_seconds",
			Help:      "Wall clock minus timestamp of the last block received",
		}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "errors",
			Name:      "total",
			Help:      "Total number of errors",
		}, []string{"component", "type"}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),

		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ConnectionsTotal,
		c.ReconnectsTotal,
		c.ConnectionState,
		c.LivenessCloses,
		c.FramesReceived,
		c.FramesDropped,
		c.BlockLag,
		c.ErrorsTotal,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordConnection counts a completed handshake
func (c *Metrics) RecordConnection() {
	if c == nil {
		return
	}
	c.ConnectionsTotal.Inc()
}

// RecordReconnect counts a reconnect caused by close code
func (c *Metrics) RecordReconnect(code int) {
	if c == nil {
		return
	}
	c.ReconnectsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordState sets the connection phase gauge
func (c *Metrics) RecordState(phase int) {
	if c == nil {
		return
	}
	c.ConnectionState.Set(float64(phase))
}

// RecordLivenessClose counts a self-initiated close
func (c *Metrics) RecordLivenessClose(code int) {
	if c == nil {
		return
	}
	c.LivenessCloses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordFrame counts a received frame
func (c *Metrics) RecordFrame(kind string) {
	if c == nil {
		return
	}
	c.FramesReceived.WithLabelValues(kind).Inc()
}

// RecordDropped counts a dropped frame
func (c *Metrics) RecordDropped(reason string) {
	if c == nil {
		return
	}
	c.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordBlockLag sets the block lag gauge
func (c *Metrics) RecordBlockLag(lag time.Duration) {
	if c == nil {
		return
	}
	c.BlockLag.Set(lag.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, errorType string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}
