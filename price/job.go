package price

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/metric"
	"github.com/c360/symbolws/pkg/cache"
	"github.com/c360/symbolws/pkg/worker"
)

// Source fetches hourly prices of one pair.
type Source interface {
	Fetch(ctx context.Context, symbol, currency string) ([]Point, error)
}

// Repository persists hourly and daily prices.
type Repository interface {
	InsertHourly(ctx context.Context, points []Point) (int64, error)
	PendingHourly(ctx context.Context, before time.Time) ([]Point, error)
	SaveDaily(ctx context.Context, d DailyPrice) error
	Daily(ctx context.Context, symbol, currency string, from, to time.Time) ([]DailyPrice, error)
	DeleteSummarized(ctx context.Context, olderThan time.Time) (int64, error)
}

// LatestCache holds the most recent price of each pair.
type LatestCache interface {
	SetLatest(ctx context.Context, p Point) error
	Latest(ctx context.Context, symbol, currency string) (Point, error)
}

// JobConfig configures a Job.
type JobConfig struct {
	Symbols    []string
	Currencies []string
	// Location decides where local days start; defaults to time.Local.
	Location        *time.Location
	RetentionMonths int
	// Workers bounds concurrent pair imports.
	Workers    int
	HistoryTTL time.Duration
}

// Job runs the price pipeline steps.
type Job struct {
	cfg     JobConfig
	source  Source
	repo    Repository
	latest  LatestCache
	logger  *slog.Logger
	now     func() time.Time
	metrics metric.MetricsRegistrar

	pool    *worker.Pool[importTask]
	history cache.Cache[[]DailyPrice]
	started atomic.Bool
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithLatestCache stores the newest point of each import in c.
func WithLatestCache(c LatestCache) JobOption {
	return func(j *Job) { j.latest = c }
}

// WithJobLogger sets the logger.
func WithJobLogger(l *slog.Logger) JobOption {
	return func(j *Job) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithJobClock replaces the time source deciding day boundaries.
func WithJobClock(now func() time.Time) JobOption {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

// WithJobMetrics registers the import pool metrics.
func WithJobMetrics(r metric.MetricsRegistrar) JobOption {
	return func(j *Job) { j.metrics = r }
}

type importTask struct {
	pair Pair
	done chan<- importResult
}

type importResult struct {
	pair     Pair
	inserted int64
	err      error
}

// NewJob creates a Job. Call Start before ImportHourly.
func NewJob(cfg JobConfig, source Source, repo Repository, opts ...JobOption) (*Job, error) {
	if source == nil || repo == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: source and repository are required", errors.ErrInvalidArgument),
			"Job", "NewJob", "validate dependencies")
	}
	if len(cfg.Symbols) == 0 || len(cfg.Currencies) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: at least one symbol and currency", errors.ErrInvalidConfig),
			"Job", "NewJob", "validate config")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RetentionMonths <= 0 {
		cfg.RetentionMonths = 15
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = 10 * time.Minute
	}

	j := &Job{
		cfg:    cfg,
		source: source,
		repo:   repo,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With("component", "price-job")

	poolOpts := []worker.Option[importTask]{worker.WithLogger[importTask](j.logger)}
	if j.metrics != nil {
		poolOpts = append(poolOpts, worker.WithMetrics[importTask](j.metrics, "price_import"))
	}
	pairs := len(cfg.Symbols) * len(cfg.Currencies)
	pool, err := worker.NewPool(cfg.Workers, pairs, j.importTask, poolOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Job", "NewJob", "create import pool")
	}
	j.pool = pool

	history, err := cache.NewTTL[[]DailyPrice](context.Background(), cfg.HistoryTTL, cfg.HistoryTTL,
		cache.WithNow(func() time.Time { return j.now() }))
	if err != nil {
		return nil, errors.Wrap(err, "Job", "NewJob", "create history cache")
	}
	j.history = history
	return j, nil
}

// Start launches the import workers; they stop when ctx is done or Stop is called.
func (j *Job) Start(ctx context.Context) error {
	if err := j.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Job", "Start", "start import pool")
	}
	j.started.Store(true)
	return nil
}

// Stop drains pending imports and releases the history cache.
func (j *Job) Stop(timeout time.Duration) error {
	return errors.Join(j.pool.Stop(timeout), j.history.Close())
}

// ImportHourly fetches every configured pair and stores new hourly points.
// Pairs are imported concurrently; a failing pair does not stop the others.
// It returns the number of stored points and the joined pair errors.
func (j *Job) ImportHourly(ctx context.Context) (int64, error) {
	if !j.started.Load() {
		return 0, errors.WrapFatal(worker.ErrPoolNotStarted, "Job", "ImportHourly", "submit imports")
	}

	pairs := Pairs(j.cfg.Symbols, j.cfg.Currencies)
	results := make(chan importResult, len(pairs))

	var errs []error
	pending := 0
	for _, p := range pairs {
		if err := j.pool.Submit(importTask{pair: p, done: results}); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", p.Symbol, p.Currency, err))
			continue
		}
		pending++
	}

	var total int64
	for ; pending > 0; pending-- {
		select {
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return total, errors.Wrap(errors.Join(errs...), "Job", "ImportHourly", "wait for imports")
		case r := <-results:
			total += r.inserted
			if r.err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", r.pair.Symbol, r.pair.Currency, r.err))
			}
		}
	}

	j.logger.Info("Imported hourly prices", "pairs", len(pairs), "inserted", total, "failed", len(errs))
	if len(errs) > 0 {
		return total, errors.Wrap(errors.Join(errs...), "Job", "ImportHourly", "import pairs")
	}
	return total, nil
}

func (j *Job) importTask(ctx context.Context, t importTask) error {
	n, err := j.importPair(ctx, t.pair)
	t.done <- importResult{pair: t.pair, inserted: n, err: err}
	return err
}

func (j *Job) importPair(ctx context.Context, p Pair) (int64, error) {
	points, err := j.source.Fetch(ctx, p.Symbol, p.Currency)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	n, err := j.repo.InsertHourly(ctx, points)
	if err != nil {
		return 0, err
	}

	if j.latest != nil {
		if err := j.latest.SetLatest(ctx, points[len(points)-1]); err != nil {
			j.logger.Warn("Failed to cache latest price", "symbol", p.Symbol, "currency", p.Currency, "error", err)
		}
	}
	return n, nil
}

// SummarizeDaily averages every unsummarized hourly point observed before
// today into daily prices. It returns the number of daily prices saved.
func (j *Job) SummarizeDaily(ctx context.Context) (int, error) {
	cutoff := StartOfDay(j.now(), j.cfg.Location)

	points, err := j.repo.PendingHourly(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "Job", "SummarizeDaily", "load pending points")
	}

	saved := 0
	var errs []error
	for _, d := range Rollup(points, j.cfg.Location) {
		if err := j.repo.SaveDaily(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s %s: %w", d.Symbol, d.Currency, d.Day.Format(time.DateOnly), err))
			continue
		}
		saved++
	}
	if saved > 0 {
		_ = j.history.Clear()
	}

	j.logger.Info("Summarized daily prices", "points", len(points), "days", saved, "failed", len(errs))
	if len(errs) > 0 {
		return saved, errors.Wrap(errors.Join(errs...), "Job", "SummarizeDaily", "save daily prices")
	}
	return saved, nil
}

// Cleanup deletes summarized hourly points older than the retention period.
func (j *Job) Cleanup(ctx context.Context) (int64, error) {
	cutoff := StartOfDay(j.now(), j.cfg.Location).AddDate(0, -j.cfg.RetentionMonths, 0)
	n, err := j.repo.DeleteSummarized(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "Job", "Cleanup", "delete summarized points")
	}
	j.logger.Info("Cleaned up hourly prices", "before", cutoff, "deleted", n)
	return n, nil
}

// History returns the daily prices of a pair with from <= day < to.
// Results are memoized until the next summary or the history TTL.
func (j *Job) History(ctx context.Context, symbol, currency string, from, to time.Time) ([]DailyPrice, error) {
	symbol, currency = strings.ToLower(symbol), strings.ToLower(currency)
	key := fmt.Sprintf("%s/%s/%d/%d", symbol, currency, from.UnixMilli(), to.UnixMilli())
	if days, ok := j.history.Get(key); ok {
		return days, nil
	}

	days, err := j.repo.Daily(ctx, symbol, currency, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "Job", "History", "query daily prices")
	}
	_, _ = j.history.Set(key, days)
	return days, nil
}

// Latest returns the newest imported price of a pair.
func (j *Job) Latest(ctx context.Context, symbol, currency string) (Point, error) {
	if j.latest == nil {
		return Point{}, fmt.Errorf("latest %s/%s: %w", symbol, currency, errors.ErrNotFound)
	}
	return j.latest.Latest(ctx, strings.ToLower(symbol), strings.ToLower(currency))
}

// Location returns the zone local days are computed in.
func (j *Job) Location() *time.Location {
	return j.cfg.Location
}

// Now returns the job's current time.
func (j *Job) Now() time.Time {
	return j.now()
}
