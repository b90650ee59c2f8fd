// Package directory discovers API nodes from the network statistics service and
// picks endpoints at random so that reconnects spread across the network.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/network"
	"github.com/c360/symbolws/pkg/retry"
)

const defaultHTTPTimeout = 10 * time.Second

// Client fetches and caches the API nodes of one network.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger

	mu    sync.RWMutex
	nodes []NodeInfo
	rng   *rand.Rand
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry overrides the refresh retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithRand fixes the random source used for picks.
func WithRand(r *rand.Rand) Option {
	return func(c *Client) {
		if r != nil {
			c.rng = r
		}
	}
}

// New creates a directory client for baseURL, e.g. https://symbol.services.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty directory url", errors.ErrInvalidArgument),
			"Directory", "New", "validate base url")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retry:      retry.Quick(),
		logger:     slog.Default(),
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForNetwork creates a directory client for the statistics service of n.
func ForNetwork(n network.Network, opts ...Option) (*Client, error) {
	return New(n.DirectoryURL, opts...)
}

// Refresh replaces the cache with the API nodes currently listed. A failed or
// empty listing leaves the previous cache untouched.
func (c *Client) Refresh(ctx context.Context) error {
	nodes, err := retry.DoWithResult(ctx, c.retry, func() ([]NodeInfo, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		c.logger.Warn("Node directory refresh failed", "url", c.baseURL, "error", err)
		return errors.WrapTransient(err, "Directory", "Refresh", "fetch nodes")
	}

	api := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		if n.IsAPI() {
			api = append(api, n)
		}
	}
	if len(api) == 0 {
		return errors.WrapTransient(
			fmt.Errorf("%w: no api nodes listed", errors.ErrUnavailable),
			"Directory", "Refresh", "filter api nodes")
	}

	c.mu.Lock()
	c.nodes = api
	c.mu.Unlock()

	c.logger.Debug("Node directory refreshed", "url", c.baseURL, "listed", len(nodes), "api_nodes", len(api))
	return nil
}

func (c *Client) fetch(ctx context.Context) ([]NodeInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nodes", nil)
	if err != nil {
		return nil, retry.NonRetryable(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status code %d", errors.ErrUnavailable, resp.StatusCode)
	}

	var nodes []NodeInfo
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", errors.ErrUnavailable, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: empty node list", errors.ErrUnavailable)
	}
	return nodes, nil
}

// Nodes returns a copy of the cached API nodes.
func (c *Client) Nodes() []NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]NodeInfo, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// PickOne returns the websocket URL of a random candidate node.
func (c *Client) PickOne(requireTLS bool) (string, error) {
	urls, err := c.PickMany(requireTLS, 1)
	if err != nil {
		return "", err
	}
	return urls[0], nil
}

// PickMany returns up to max websocket URLs of distinct random candidate nodes.
func (c *Client) PickMany(requireTLS bool, max int) ([]string, error) {
	nodes, err := c.pick(requireTLS, max, "PickMany")
	if err != nil {
		return nil, err
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.APIStatus.WebSocket.URL
	}
	return out, nil
}

// PickRESTGateway returns the REST gateway URL of a random candidate node.
func (c *Client) PickRESTGateway(requireTLS bool) (string, error) {
	nodes, err := c.pick(requireTLS, 1, "PickRESTGateway")
	if err != nil {
		return "", err
	}
	return nodes[0].APIStatus.RESTGatewayURL, nil
}

func (c *Client) pick(requireTLS bool, max int, method string) ([]NodeInfo, error) {
	if max < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: count must be at least 1, got %d", errors.ErrInvalidArgument, max),
			"Directory", method, "validate count")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.nodes) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: refresh has not succeeded", errors.ErrEmptyCache),
			"Directory", method, "pick node")
	}

	candidates := make([]NodeInfo, 0, len(c.nodes))
	for _, n := range c.nodes {
		if n.Candidate(requireTLS) && n.APIStatus.WebSocket.URL != "" {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no available node (tls=%t)", errors.ErrEmptyCache, requireTLS),
			"Directory", method, "pick node")
	}

	c.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if max > len(candidates) {
		max = len(candidates)
	}
	return candidates[:max], nil
}
