package price

import (
	"sort"
	"time"
)

type dayKey struct {
	day      time.Time
	symbol   string
	currency string
}

// Rollup averages points into one DailyPrice per local day, symbol and
// currency. The result is sorted by day, then symbol, then currency.
func Rollup(points []Point, loc *time.Location) []DailyPrice {
	if loc == nil {
		loc = time.Local
	}

	type acc struct {
		sum   float64
		count int
	}
	sums := make(map[dayKey]*acc)
	for _, p := range points {
		k := dayKey{StartOfDay(p.Time, loc), p.Symbol, p.Currency}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		a.sum += p.Price
		a.count++
	}

	out := make([]DailyPrice, 0, len(sums))
	for k, a := range sums {
		out = append(out, DailyPrice{
			Day:      k.day,
			Symbol:   k.symbol,
			Currency: k.currency,
			Price:    a.sum / float64(a.count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}
