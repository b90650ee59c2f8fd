package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/pkg/retry"
)

// DefaultCoinGeckoURL is the public CoinGecko API base.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	BaseURL string
	APIKey  string
	// Days of history requested per call; CoinGecko returns hourly points up to 90 days.
	Days int
	// RequestsPerMinute caps the call rate; the demo plan allows 30.
	RequestsPerMinute int
	Timeout           time.Duration
}

// Fetcher reads market charts from CoinGecko.
type Fetcher struct {
	cfg     FetcherConfig
	http    *http.Client
	limiter *rate.Limiter
	retry   retry.Config
	logger  *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.http = c
		}
	}
}

// WithFetchRetry replaces the retry policy of one fetch.
func WithFetchRetry(cfg retry.Config) FetcherOption {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a CoinGecko fetcher.
func NewFetcher(cfg FetcherConfig, opts ...FetcherOption) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCoinGeckoURL
	}
	if cfg.Days <= 0 {
		cfg.Days = 90
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	f := &Fetcher{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		retry:   retry.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "price-fetcher")
	return f
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// Fetch returns the hourly prices of symbol in currency, oldest first.
func (f *Fetcher) Fetch(ctx context.Context, symbol, currency string) ([]Point, error) {
	if symbol == "" || currency == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: symbol and currency are required", errors.ErrInvalidArgument),
			"Fetcher", "Fetch", "validate pair")
	}

	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", f.cfg.BaseURL, url.PathEscape(symbol), url.Values{
		"vs_currency": {currency},
		"days":        {strconv.Itoa(f.cfg.Days)},
	}.Encode())

	chart, err := retry.DoWithResult(ctx, f.retry, func() (marketChart, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return marketChart{}, retry.NonRetryable(err)
		}
		return f.get(ctx, endpoint)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Fetcher", "Fetch", "fetch "+symbol+"/"+currency)
	}

	points := make([]Point, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		points = append(points, Point{
			Time:     time.UnixMilli(int64(p[0])).UTC(),
			Source:   SourceCoinGecko,
			Symbol:   symbol,
			Currency: currency,
			Price:    p[1],
		})
	}
	f.logger.Debug("Fetched market chart", "symbol", symbol, "currency", currency, "points", len(points))
	return points, nil
}

func (f *Fetcher) get(ctx context.Context, endpoint string) (marketChart, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return marketChart{}, errors.WrapInvalid(err, "Fetcher", "get", "build request")
	}
	req.Header.Set("Accept", "application/json")
	if f.cfg.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", f.cfg.APIKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return marketChart{}, errors.WrapTransient(err, "Fetcher", "get", "request market chart")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return marketChart{}, errors.WrapTransient(errors.ErrRateLimited, "Fetcher", "get", "request market chart")
	case resp.StatusCode == http.StatusNotFound:
		return marketChart{}, errors.WrapInvalid(
			fmt.Errorf("%w: unknown coin (status %d)", errors.ErrInvalidArgument, resp.StatusCode),
			"Fetcher", "get", "request market chart")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return marketChart{}, errors.WrapTransient(
			fmt.Errorf("%w: status %d", errors.ErrUpstreamUnavailable, resp.StatusCode),
			"Fetcher", "get", "request market chart")
	}

	var chart marketChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return marketChart{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Fetcher", "get", "decode market chart")
	}
	return chart, nil
}
