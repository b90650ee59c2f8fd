package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/c360/symbolws/client"
	"github.com/c360/symbolws/config"
	"github.com/c360/symbolws/directory"
	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/events"
	"github.com/c360/symbolws/health"
	"github.com/c360/symbolws/metric"
	"github.com/c360/symbolws/natsclient"
	"github.com/c360/symbolws/pkg/retry"
	"github.com/c360/symbolws/pkg/tlsutil"
	"github.com/c360/symbolws/price"
	"github.com/c360/symbolws/relay"
	"github.com/c360/symbolws/server"
)

// app owns every long-lived component of the process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	monitor *health.Monitor

	client *client.Client

	nats   *natsclient.Client
	detach func()

	store     *price.Store
	cache     *price.Cache
	job       *price.Job
	scheduler *price.Scheduler

	http          *server.Server
	metricsServer *metric.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metric.NewMetricsRegistry(),
		monitor: health.NewMonitor(),
		detach:  func() {},
	}

	if err := a.buildClient(); err != nil {
		return nil, err
	}
	if err := a.buildRelay(); err != nil {
		return nil, err
	}
	if err := a.buildPrice(ctx); err != nil {
		a.closeStores()
		return nil, err
	}
	if err := a.buildHTTP(); err != nil {
		a.closeStores()
		return nil, err
	}
	return a, nil
}

func buildDirectory(cfg *config.Config, tlsCfg *tls.Config, logger *slog.Logger) (client.Directory, error) {
	if len(cfg.Network.Nodes) > 0 {
		return directory.Static(cfg.Network.Nodes...), nil
	}
	net, err := cfg.Network.Resolve()
	if err != nil {
		return nil, err
	}
	opts := []directory.Option{directory.WithLogger(logger)}
	if tlsCfg != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsCfg
		opts = append(opts, directory.WithHTTPClient(&http.Client{Timeout: 10 * time.Second, Transport: transport}))
	}
	return directory.ForNetwork(net, opts...)
}

// clientTLS returns nil when no client TLS setting is configured.
func clientTLS(cfg *config.Config) (*tls.Config, error) {
	if cfg.Client.TLS.IsZero() {
		return nil, nil
	}
	return tlsutil.LoadClientTLSConfig(cfg.Client.TLS)
}

func clientConfig(cfg *config.Config) (client.Config, error) {
	net, err := cfg.Network.Resolve()
	if err != nil {
		return client.Config{}, err
	}
	cc := cfg.Client
	return client.Config{
		Network:          net,
		ResponseTimeout:  cc.ResponseTimeout.Std(),
		HandshakeTimeout: cc.HandshakeTimeout.Std(),
		WriteTimeout:     cc.WriteTimeout.Std(),
		CloseGrace:       cc.CloseGrace.Std(),
		RequireTLS:       cc.RequireTLS,
		Backoff: retry.Backoff{
			Initial:    cc.Backoff.Initial.Std(),
			Max:        cc.Backoff.Max.Std(),
			Multiplier: cc.Backoff.Multiplier,
			Jitter:     cc.Backoff.Jitter,
		},
	}, nil
}

func (a *app) buildClient() error {
	tlsCfg, err := clientTLS(a.cfg)
	if err != nil {
		return fmt.Errorf("load client TLS: %w", err)
	}
	dir, err := buildDirectory(a.cfg, tlsCfg, a.logger)
	if err != nil {
		return fmt.Errorf("create node directory: %w", err)
	}
	cc, err := clientConfig(a.cfg)
	if err != nil {
		return err
	}

	opts := []client.Option{client.WithLogger(a.logger), client.WithMetrics(a.metrics)}
	if tlsCfg != nil {
		opts = append(opts, client.WithDialer(&websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cc.HandshakeTimeout,
			TLSClientConfig:  tlsCfg,
		}))
	}
	c, err := client.New(cc, dir, opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	a.client = c
	a.monitor.Register("websocket", c.Health)

	subs := a.cfg.SubscriptionList()
	c.Bus().OnOpen(func(ev events.Open) {
		for _, s := range subs {
			if _, err := c.Subscribe(s.Topic, s.Address); err != nil {
				a.logger.Warn("Resubscribe failed", "channel", s.Channel(), "endpoint", ev.URL, "error", err)
			}
		}
		a.logger.Info("Subscriptions restored", "count", len(subs), "endpoint", ev.URL)
	})
	c.Bus().OnError(func(err error) {
		a.logger.Warn("Client error", "error", err)
	})
	return nil
}

func (a *app) buildRelay() error {
	nc := a.cfg.NATS
	if !nc.Enabled {
		return nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithMetrics(a.metrics),
		natsclient.WithName(nc.Name),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait.Std()),
		natsclient.WithPingInterval(nc.PingInterval.Std()),
		natsclient.WithConnectTimeout(nc.ConnectTimeout.Std()),
		natsclient.WithDrainTimeout(nc.DrainTimeout.Std()),
		natsclient.WithCircuitBreakerThreshold(int32(nc.CircuitThreshold)),
		natsclient.WithMaxBackoff(nc.MaxBackoff.Std()),
		natsclient.WithStatusListener(a.natsStatusChanged),
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}
	n, err := natsclient.NewClient(nc.URL, opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	a.nats = n
	a.monitor.Register("nats", n.Health)

	r, err := relay.New(n, relay.Config{
		Prefix:         nc.Prefix,
		Events:         nc.Events,
		PublishTimeout: nc.PublishTimeout.Std(),
	}, relay.WithLogger(a.logger), relay.WithEndpoint(func() string {
		return a.client.State().Endpoint
	}))
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}
	if err := r.RegisterMetrics("relay", a.metrics); err != nil {
		return fmt.Errorf("register relay metrics: %w", err)
	}
	a.detach = r.Attach(a.client.Bus())
	return nil
}

func (a *app) buildPrice(ctx context.Context) error {
	pc := a.cfg.Price
	if !pc.Enabled {
		return nil
	}

	loc, err := pc.Location()
	if err != nil {
		return err
	}

	store, err := price.Open(ctx, pc.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open price store: %w", err)
	}
	a.store = store
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init price schema: %w", err)
	}
	a.monitor.Register("postgres", pingProbe("postgres", store.Ping))

	jobOpts := []price.JobOption{price.WithJobLogger(a.logger), price.WithJobMetrics(a.metrics)}
	if pc.Redis.Addr != "" {
		cache, err := price.NewCache(ctx, price.CacheConfig{
			Addr:     pc.Redis.Addr,
			Password: pc.Redis.Password,
			DB:       pc.Redis.DB,
			TTL:      pc.Redis.TTL.Std(),
		})
		if err != nil {
			return fmt.Errorf("connect price cache: %w", err)
		}
		a.cache = cache
		a.monitor.Register("redis", pingProbe("redis", cache.Ping))
		jobOpts = append(jobOpts, price.WithLatestCache(cache))
	}

	fetcher := price.NewFetcher(price.FetcherConfig{
		BaseURL:           pc.CoinGecko.BaseURL,
		APIKey:            pc.CoinGecko.APIKey,
		Days:              pc.CoinGecko.Days,
		RequestsPerMinute: pc.CoinGecko.RequestsPerMinute,
		Timeout:           pc.CoinGecko.Timeout.Std(),
	}, price.WithFetcherLogger(a.logger))

	job, err := price.NewJob(price.JobConfig{
		Symbols:         pc.Symbols,
		Currencies:      pc.Currencies,
		Location:        loc,
		RetentionMonths: pc.RetentionMonths,
		Workers:         pc.Workers,
		HistoryTTL:      pc.HistoryTTL.Std(),
	}, fetcher, store, jobOpts...)
	if err != nil {
		return fmt.Errorf("create price job: %w", err)
	}
	a.job = job

	sched, err := price.NewScheduler(price.Tasks(job,
		pc.ImportInterval.Std(), pc.SummaryInterval.Std(), pc.CleanupInterval.Std()), a.logger)
	if err != nil {
		return fmt.Errorf("create price scheduler: %w", err)
	}
	a.scheduler = sched
	return nil
}

func pingProbe(name string, ping func(context.Context) error) health.Probe {
	return func() health.Status {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			return health.NewUnhealthy(name, err.Error())
		}
		return health.NewHealthy(name, "reachable")
	}
}

func (a *app) buildHTTP() error {
	hc := a.cfg.HTTP
	if hc.Enabled {
		deps := server.Deps{
			Endpoint:      a.client,
			Subscriptions: a.client.Registry(),
			Health:        a.monitor,
			Metrics:       a.metrics,
		}
		if a.job != nil {
			deps.Prices = a.job
		}
		tlsCfg, err := tlsutil.LoadServerTLSConfig(hc.TLS)
		if err != nil {
			return fmt.Errorf("load HTTP TLS: %w", err)
		}
		srv, err := server.New(server.Config{
			Addr:            hc.Addr,
			ReadTimeout:     hc.ReadTimeout.Std(),
			WriteTimeout:    hc.WriteTimeout.Std(),
			IdleTimeout:     hc.IdleTimeout.Std(),
			EndpointTimeout: hc.EndpointTimeout.Std(),
		}, deps, server.WithLogger(a.logger), server.WithTLS(tlsCfg))
		if err != nil {
			return fmt.Errorf("create HTTP server: %w", err)
		}
		a.http = srv
	}

	if a.cfg.Metrics.Addr != "" {
		a.metricsServer = metric.NewServer(a.cfg.Metrics.Addr, a.cfg.Metrics.Path, a.metrics)
	}
	return nil
}

// run blocks until ctx is done or a component fails, then shuts down.
func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	if a.job != nil {
		if err := a.job.Start(ctx); err != nil {
			return errors.Join(err, a.shutdown(shutdownTimeout))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Start(); err != nil {
			return errors.Join(err, a.shutdown(shutdownTimeout))
		}
		a.logger.Info("Metrics server listening", "address", a.metricsServer.Address())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.connectClient(gctx) })

	if a.nats != nil {
		g.Go(func() error { return a.connectNATS(gctx) })
	}

	if a.scheduler != nil {
		g.Go(func() error {
			if err := a.scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if a.http != nil {
		g.Go(func() error { return a.http.Run(gctx) })
	}

	err := g.Wait()
	if err != nil {
		a.logger.Error("Component failed, shutting down", "error", err)
	} else {
		a.logger.Info("Received shutdown signal")
	}

	return errors.Join(err, a.shutdown(shutdownTimeout))
}

// connectClient retries Connect until the first handshake. Directory
// failures leave the client idle, so each attempt starts from a refresh.
func (a *app) connectClient(ctx context.Context) error {
	backoff := a.client.Config().Backoff
	for attempt := 0; ; attempt++ {
		err := a.client.Connect(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.IsFatal(err) {
			return err
		}
		a.logger.Warn("Connect failed", "attempt", attempt+1, "error", err)
		if err := retry.Sleep(ctx, backoff.Delay(attempt)); err != nil {
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

// natsStatusChanged logs when relaying stops or resumes.
func (a *app) natsStatusChanged(from, to natsclient.ConnectionStatus) {
	switch {
	case to == natsclient.StatusConnected && from == natsclient.StatusReconnecting:
		a.logger.Info("NATS reconnected, relaying resumed")
	case from == natsclient.StatusConnected:
		a.logger.Warn("NATS connection lost", "status", to.String())
	case to == natsclient.StatusCircuitOpen:
		a.logger.Warn("NATS circuit breaker open")
	}
}

func (a *app) connectNATS(ctx context.Context) error {
	backoff := retry.DefaultBackoff()
	for attempt := 0; ; attempt++ {
		err := a.nats.Connect(ctx)
		if err == nil {
			a.logger.Info("Relaying events to NATS", "url", a.nats.URL(), "prefix", a.cfg.NATS.Prefix)
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, errors.ErrClosed) {
			return nil
		}

		delay := backoff.Delay(attempt)
		if errors.Is(err, natsclient.ErrCircuitOpen) {
			delay = a.nats.Backoff()
		}
		a.logger.Warn("NATS connect failed, events are dropped until connected",
			"attempt", attempt+1, "retry_in", delay, "error", err)
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (a *app) shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close client: %w", err))
	}
	select {
	case <-a.client.Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("client close: %w", ctx.Err()))
	}
	a.detach()

	if a.job != nil {
		if err := a.job.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop price job: %w", err))
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeStores()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.logger.Info("symbolws shutdown complete")
	return nil
}

func (a *app) closeStores() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Closing price cache failed", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Closing price store failed", "error", err)
		}
	}
}
