// Package relay forwards client events to NATS subjects as JSON envelopes.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/events"
	"github.com/c360/symbolws/metric"
)

// DefaultPrefix is the subject prefix when none is configured.
const DefaultPrefix = "symbol"

// Publisher sends one message to a subject. natsclient.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Envelope is the message body published for every event.
type Envelope struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Endpoint  string       `json:"endpoint,omitempty"`
	Payload   events.Event `json:"payload"`
}

// Config selects what the relay forwards.
type Config struct {
	// Prefix is prepended to every subject.
	Prefix string `json:"prefix" yaml:"prefix"`
	// Events limits forwarding to these event names; empty forwards everything.
	Events []string `json:"events" yaml:"events"`
	// PublishTimeout bounds a single publish.
	PublishTimeout time.Duration `json:"publish_timeout" yaml:"publish_timeout"`
}

// Relay publishes events from a bus. Publish failures are logged and counted
// and never reach the bus.
type Relay struct {
	pub      Publisher
	prefix   string
	allow    map[string]bool
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	endpoint func() string

	published atomic.Int64
	failed    atomic.Int64

	publishedTotal *prometheus.CounterVec
	failedTotal    *prometheus.CounterVec
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEndpoint sets the source of the endpoint field of each envelope.
func WithEndpoint(fn func() string) Option {
	return func(r *Relay) { r.endpoint = fn }
}

// WithClock sets the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a relay publishing through pub.
func New(pub Publisher, cfg Config, opts ...Option) (*Relay, error) {
	if pub == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil publisher", errors.ErrInvalidArgument),
			"Relay", "New", "validate publisher")
	}

	prefix := strings.Trim(cfg.Prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if strings.ContainsAny(prefix, " *>") {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: subject prefix %q", errors.ErrInvalidConfig, cfg.Prefix),
			"Relay", "New", "validate prefix")
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	r := &Relay{
		pub:     pub,
		prefix:  prefix,
		timeout: timeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	if len(cfg.Events) > 0 {
		r.allow = make(map[string]bool, len(cfg.Events))
		for _, name := range cfg.Events {
			r.allow[name] = true
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "relay", "prefix", prefix)
	return r, nil
}

// Attach forwards every event published on bus until the returned function is called.
func (r *Relay) Attach(bus *events.Bus) (detach func()) {
	return bus.SubscribeAll(r.Handle)
}

// Subject returns the subject an event is published on:
// <prefix>.<name> or <prefix>.<name>.<address> for address-bound topics.
func (r *Relay) Subject(ev events.Event) string {
	subject := r.prefix + "." + ev.Name()
	if addr := addressOf(ev); addr != "" {
		subject += "." + addr
	}
	return subject
}

// Handle publishes one event. It is the bus listener installed by Attach.
func (r *Relay) Handle(ev events.Event) {
	if r.allow != nil && !r.allow[ev.Name()] {
		return
	}

	env := Envelope{
		ID:        uuid.NewString(),
		Type:      ev.Name(),
		Timestamp: r.now().UTC(),
		Payload:   ev,
	}
	if r.endpoint != nil {
		env.Endpoint = r.endpoint()
	}

	data, err := json.Marshal(env)
	if err != nil {
		r.fail(ev, errors.WrapInvalid(err, "Relay", "Handle", "marshal envelope"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	subject := r.Subject(ev)
	if err := r.pub.Publish(ctx, subject, data); err != nil {
		r.fail(ev, errors.WrapTransient(err, "Relay", "Handle", "publish "+subject))
		return
	}

	r.published.Add(1)
	if r.publishedTotal != nil {
		r.publishedTotal.WithLabelValues(ev.Name()).Inc()
	}
}

func (r *Relay) fail(ev events.Event, err error) {
	r.failed.Add(1)
	if r.failedTotal != nil {
		r.failedTotal.WithLabelValues(ev.Name()).Inc()
	}
	r.logger.Warn("Event not relayed", "event", ev.Name(), "error", err)
}

// Stats returns the number of published and failed events.
func (r *Relay) Stats() (published, failed int64) {
	return r.published.Load(), r.failed.Load()
}

// RegisterMetrics registers the relay counters under name.
func (r *Relay) RegisterMetrics(name string, registrar metric.MetricsRegistrar) error {
	r.publishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "symbolws",
		Subsystem: "relay",
		Name:      "published_total",
		Help:      "Events published to NATS by event name",
	}, []string{"event"})
	if err := registrar.RegisterCounterVec(name, "published_total", r.publishedTotal); err != nil {
		return err
	}

	r.failedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "symbolws",
		Subsystem: "relay",
		Name:      "failed_total",
		Help:      "Events that could not be published by event name",
	}, []string{"event"})
	return registrar.RegisterCounterVec(name, "failed_total", r.failedTotal)
}

func addressOf(ev events.Event) string {
	switch e := ev.(type) {
	case events.TransactionEvent:
		return e.Address
	case events.TransactionRemovedEvent:
		return e.Address
	case events.CosignatureEvent:
		return e.Address
	case events.StatusEvent:
		return e.Address
	default:
		return ""
	}
}
