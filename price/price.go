// Package price imports hourly coin prices from CoinGecko, rolls them up into
// daily averages in PostgreSQL and serves the daily history.
//
// The pipeline is three jobs run by a Scheduler:
//
//   - ImportHourly fetches the market chart of every configured symbol and
//     currency and stores each hourly point once.
//   - SummarizeDaily averages all unsummarized points up to the end of
//     yesterday into one daily price per local day and marks them summarized.
//   - Cleanup deletes summarized hourly points older than the retention.
//
// The latest fetched price of each pair is kept in Redis for cheap reads.
package price

import (
	"encoding/json"
	"math"
	"time"
)

// SourceCoinGecko names the only price source.
const SourceCoinGecko = "coingecko"

// Point is one observed price.
type Point struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Symbol   string    `json:"symbol"`
	Currency string    `json:"currency"`
	Price    float64   `json:"price"`
}

// DailyPrice is the average price of one local day.
type DailyPrice struct {
	Day      time.Time
	Symbol   string
	Currency string
	Price    float64
}

// MarshalJSON renders {"unixTime":ms,"symbol":..,"currency":..,"price":..}
// with the price rounded to six decimals.
func (d DailyPrice) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UnixTime int64   `json:"unixTime"`
		Symbol   string  `json:"symbol"`
		Currency string  `json:"currency"`
		Price    float64 `json:"price"`
	}{d.Day.UnixMilli(), d.Symbol, d.Currency, Round(d.Price, 6)})
}

// Round rounds v to places decimals, halves away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Pair is one symbol priced in one currency.
type Pair struct {
	Symbol   string
	Currency string
}

// Pairs returns the cross product of symbols and currencies.
func Pairs(symbols, currencies []string) []Pair {
	pairs := make([]Pair, 0, len(symbols)*len(currencies))
	for _, s := range symbols {
		for _, c := range currencies {
			pairs = append(pairs, Pair{Symbol: s, Currency: c})
		}
	}
	return pairs
}

// StartOfDay returns midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last millisecond of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Millisecond)
}
