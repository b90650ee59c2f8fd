package price

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/c360/symbolws/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS hourly_price (
	source      TEXT             NOT NULL,
	symbol      TEXT             NOT NULL,
	currency    TEXT             NOT NULL,
	observed_at TIMESTAMPTZ      NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	summarized  BOOLEAN          NOT NULL DEFAULT FALSE,
	PRIMARY KEY (source, symbol, currency, observed_at)
);
CREATE INDEX IF NOT EXISTS hourly_price_pending ON hourly_price (summarized, observed_at);

CREATE TABLE IF NOT EXISTS daily_price (
	symbol   TEXT             NOT NULL,
	currency TEXT             NOT NULL,
	day      TIMESTAMPTZ      NOT NULL,
	price    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, currency, day)
);
`

// Store persists hourly and daily prices in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: postgres dsn", errors.ErrMissingConfig), "Store", "Open", "validate dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Store", "Open", "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "Store", "Open", "ping database")
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the price tables when missing.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify(err, "InitSchema", "create tables")
	}
	return nil
}

// InsertHourly stores points, ignoring those already present. It returns the
// number of new rows.
func (s *Store) InsertHourly(ctx context.Context, points []Point) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}

	sources := make([]string, len(points))
	symbols := make([]string, len(points))
	currencies := make([]string, len(points))
	times := make([]string, len(points))
	prices := make([]float64, len(points))
	for i, p := range points {
		sources[i] = p.Source
		symbols[i] = p.Symbol
		currencies[i] = p.Currency
		times[i] = p.Time.UTC().Format(time.RFC3339Nano)
		prices[i] = p.Price
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO hourly_price (source, symbol, currency, observed_at, price)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::timestamptz[], $5::float8[])
		ON CONFLICT DO NOTHING`,
		pq.Array(sources), pq.Array(symbols), pq.Array(currencies), pq.Array(times), pq.Array(prices))
	if err != nil {
		return 0, classify(err, "InsertHourly", "insert points")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, "InsertHourly", "count rows")
	}
	return n, nil
}

// PendingHourly returns the unsummarized points observed before the cutoff.
func (s *Store) PendingHourly(ctx context.Context, before time.Time) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, symbol, currency, observed_at, price
		FROM hourly_price
		WHERE summarized = FALSE AND observed_at < $1
		ORDER BY observed_at`, before)
	if err != nil {
		return nil, classify(err, "PendingHourly", "query points")
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Source, &p.Symbol, &p.Currency, &p.Time, &p.Price); err != nil {
			return nil, classify(err, "PendingHourly", "scan point")
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "PendingHourly", "iterate points")
	}
	return points, nil
}

// SaveDaily stores one daily price and marks the hourly points of the same
// pair and day as summarized, atomically. An existing daily row is kept.
func (s *Store) SaveDaily(ctx context.Context, d DailyPrice) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "SaveDaily", "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_price (symbol, currency, day, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`, d.Symbol, d.Currency, d.Day, d.Price); err != nil {
		return classify(err, "SaveDaily", "insert daily price")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE hourly_price SET summarized = TRUE
		WHERE symbol = $1 AND currency = $2 AND observed_at >= $3 AND observed_at < $4`,
		d.Symbol, d.Currency, d.Day, d.Day.AddDate(0, 0, 1)); err != nil {
		return classify(err, "SaveDaily", "mark summarized")
	}

	if err := tx.Commit(); err != nil {
		return classify(err, "SaveDaily", "commit")
	}
	return nil
}

// Daily returns the daily prices of a pair with from <= day < to, oldest first.
func (s *Store) Daily(ctx context.Context, symbol, currency string, from, to time.Time) ([]DailyPrice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, symbol, currency, price
		FROM daily_price
		WHERE symbol = $1 AND currency = $2 AND day >= $3 AND day < $4
		ORDER BY day`, symbol, currency, from, to)
	if err != nil {
		return nil, classify(err, "Daily", "query daily prices")
	}
	defer rows.Close()

	out := []DailyPrice{}
	for rows.Next() {
		var d DailyPrice
		if err := rows.Scan(&d.Day, &d.Symbol, &d.Currency, &d.Price); err != nil {
			return nil, classify(err, "Daily", "scan daily price")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "Daily", "iterate daily prices")
	}
	return out, nil
}

// DeleteSummarized removes summarized hourly points observed before olderThan.
func (s *Store) DeleteSummarized(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM hourly_price WHERE summarized = TRUE AND observed_at < $1`, olderThan)
	if err != nil {
		return 0, classify(err, "DeleteSummarized", "delete points")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, "DeleteSummarized", "count rows")
	}
	return n, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err, "Ping", "ping database")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps PostgreSQL error classes onto the error taxonomy: connection
// and resource problems are transient, data and constraint problems invalid.
func classify(err error, method, action string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "Store", method, action)
		case "22", "23":
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Store", method, action)
		}
		return errors.WrapFatal(err, "Store", method, action)
	}
	return errors.WrapTransient(err, "Store", method, action)
}
