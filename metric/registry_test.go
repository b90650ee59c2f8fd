package metric

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/symbolws/errors"
)

// relayStub registers metrics the way a component does
type relayStub struct {
	published *prometheus.CounterVec
	queued    prometheus.Gauge
}

func (r *relayStub) RegisterMetrics(name string, registrar MetricsRegistrar) error {
	r.published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "symbolws",
		Subsystem: "relay_stub",
		Name:      "published_total",
		Help:      "Events published",
	}, []string{"subject"})
	if err := registrar.RegisterCounterVec(name, "published_total", r.published); err != nil {
		return err
	}

	r.queued = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "symbolws",
		Subsystem: "relay_stub",
		Name:      "queued",
		Help:      "Events queued",
	})
	return registrar.RegisterGauge(name, "queued", r.queued)
}

func gatheredNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.Same(t, registry.Metrics, registry.CoreMetrics())

	names := gatheredNames(t, registry)
	assert.True(t, names["go_goroutines"], "go collector should be registered")
	assert.True(t, names["symbolws_client_connections_total"])
	assert.True(t, names["symbolws_client_block_lag_seconds"])
}

func TestMetricsRegistry_RegisterComponentMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	stub := &relayStub{}

	require.NoError(t, stub.RegisterMetrics("relay", registry))
	stub.published.WithLabelValues("symbol.block").Inc()
	stub.queued.Set(3)

	names := gatheredNames(t, registry)
	assert.True(t, names["symbolws_relay_stub_published_total"])
	assert.True(t, names["symbolws_relay_stub_queued"])
}

func TestMetricsRegistry_DuplicateKey(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, (&relayStub{}).RegisterMetrics("relay", registry))
	err := (&relayStub{}).RegisterMetrics("relay", registry)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_PrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, (&relayStub{}).RegisterMetrics("relay-a", registry))
	err := (&relayStub{}).RegisterMetrics("relay-b", registry)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()
	stub := &relayStub{}
	require.NoError(t, stub.RegisterMetrics("relay", registry))
	stub.published.WithLabelValues("symbol.block").Inc()

	assert.True(t, registry.Unregister("relay", "published_total"))
	assert.False(t, registry.Unregister("relay", "published_total"))

	names := gatheredNames(t, registry)
	assert.False(t, names["symbolws_relay_stub_published_total"])
	assert.True(t, names["symbolws_relay_stub_queued"])
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})
			assert.NoError(t, registry.RegisterCounter("concurrent", fmt.Sprintf("counter_%d", id), counter))
		}(i)
	}
	wg.Wait()

	count := 0
	for name := range gatheredNames(t, registry) {
		if strings.HasPrefix(name, "concurrent_counter_") {
			count++
		}
	}
	assert.Equal(t, 10, count)
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()

	m.RecordConnection()
	m.RecordConnection()
	m.RecordReconnect(4001)
	m.RecordLivenessClose(4002)
	m.RecordFrame("block")
	m.RecordDropped("malformed")
	m.RecordBlockLag(1500 * time.Millisecond)
	m.RecordState(3)
	m.RecordError("client", "read")
	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectsTotal.WithLabelValues("4001")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LivenessCloses.WithLabelValues("4002")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("block")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("malformed")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.BlockLag))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))
}

func TestCoreMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordConnection()
		m.RecordReconnect(1006)
		m.RecordFrame("block")
		m.RecordBlockLag(time.Second)
		m.RecordNATSStatus(false)
	})
}

func TestHandler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordConnection()

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "symbolws_client_connections_total 1")
}

func TestServer_StartStop(t *testing.T) {
	registry := NewMetricsRegistry()
	srv := NewServer("127.0.0.1:0", "", registry)

	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start(), "second start must fail")

	resp, err := http.Get(srv.Address())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	require.NoError(t, srv.Stop(context.Background()))
	assert.Empty(t, srv.Address())
}

func TestServer_NilRegistry(t *testing.T) {
	err := NewServer("127.0.0.1:0", "/metrics", nil).Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
